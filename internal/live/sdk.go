package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"google.golang.org/genai"

	"github.com/eleven-am/aria-assistant/internal/audio"
)

// SDKDialer opens sessions through the genai client's Live service.
type SDKDialer struct {
	apiKey string
	logger *slog.Logger

	once   sync.Once
	client *genai.Client
	err    error
}

func NewSDKDialer(apiKey string, logger *slog.Logger) *SDKDialer {
	return &SDKDialer{
		apiKey: apiKey,
		logger: logger.With("component", "live_sdk"),
	}
}

func (d *SDKDialer) getClient(ctx context.Context) (*genai.Client, error) {
	d.once.Do(func() {
		d.client, d.err = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  d.apiKey,
			Backend: genai.BackendGeminiAPI,
		})
	})
	return d.client, d.err
}

func (d *SDKDialer) Dial(ctx context.Context, cfg Config, handlers Handlers) (Session, error) {
	client, err := d.getClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	conn, err := client.Live.Connect(ctx, cfg.Model, connectConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("live connect: %w", err)
	}

	s := &sdkSession{
		id:       uuid.New().String(),
		conn:     conn,
		handlers: handlers,
		ready:    make(chan struct{}),
	}
	s.logger = d.logger.With("session_id", s.id)

	go s.receive()

	s.logger.Info("live session opened", "model", cfg.Model, "voice", cfg.Voice)
	close(s.ready)
	return s, nil
}

func connectConfig(cfg Config) *genai.LiveConnectConfig {
	modality := genai.ModalityAudio
	if cfg.ResponseModality != "" {
		modality = genai.Modality(cfg.ResponseModality)
	}

	lc := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{modality},
	}
	if cfg.Voice != "" {
		lc.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: cfg.Voice},
			},
		}
	}
	if cfg.SystemInstruction != "" {
		lc.SystemInstruction = genai.NewContentFromText(cfg.SystemInstruction, genai.RoleUser)
	}
	return lc
}

type sdkSession struct {
	id       string
	conn     *genai.Session
	handlers Handlers
	logger   *slog.Logger

	mu     sync.Mutex
	closed bool
	ready  chan struct{}
}

func (s *sdkSession) ID() string {
	return s.id
}

func (s *sdkSession) Send(ctx context.Context, blob audio.Blob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.isClosed() {
		return ErrSessionClosed
	}

	err := s.conn.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{Data: blob.Data, MIMEType: blob.MIMEType},
	})
	if err != nil {
		if s.isClosed() {
			return ErrSessionClosed
		}
		return fmt.Errorf("send realtime input: %w", err)
	}
	return nil
}

func (s *sdkSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.conn.Close()
}

func (s *sdkSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *sdkSession) receive() {
	<-s.ready

	for {
		msg, err := s.conn.Receive()
		if err != nil {
			s.finish(err)
			return
		}
		if msg.GoAway != nil {
			s.logger.Warn("server requested disconnect")
		}
		if msg.ServerContent == nil {
			continue
		}
		for _, m := range fromServerContent(msg.ServerContent) {
			s.handlers.message(m)
		}
	}
}

func (s *sdkSession) finish(err error) {
	if s.isClosed() {
		return
	}
	defer s.Close()

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) && (closeErr.Code == websocket.CloseNormalClosure || closeErr.Code == websocket.CloseGoingAway) {
		s.logger.Info("live session closed by server", "code", closeErr.Code)
		s.handlers.closed()
		return
	}

	s.logger.Error("live session receive error", "error", err)
	s.handlers.failed(err)
}

func fromServerContent(sc *genai.LiveServerContent) []Message {
	head := Message{
		Interrupted:  sc.Interrupted,
		TurnComplete: sc.TurnComplete,
	}
	if sc.InputTranscription != nil {
		head.InputTranscript = sc.InputTranscription.Text
	}
	if sc.OutputTranscription != nil {
		head.OutputTranscript = sc.OutputTranscription.Text
	}

	var out []Message
	if sc.ModelTurn != nil {
		for _, p := range sc.ModelTurn.Parts {
			if p == nil || p.InlineData == nil || len(p.InlineData.Data) == 0 {
				continue
			}
			m := Message{Audio: p.InlineData.Data, MIMEType: p.InlineData.MIMEType}
			if len(out) == 0 {
				m.Interrupted = head.Interrupted
				m.InputTranscript = head.InputTranscript
				m.OutputTranscript = head.OutputTranscript
			}
			out = append(out, m)
		}
	}

	return collapse(head, out)
}
