package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/eleven-am/aria-assistant/internal/audio"
)

const (
	DefaultEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

	// MaxMessageSize bounds a single inbound frame (16MB).
	MaxMessageSize = 16 * 1024 * 1024

	defaultDialTimeout  = 45 * time.Second
	defaultSetupTimeout = 15 * time.Second
	writeWait           = 10 * time.Second
	pingPeriod          = 30 * time.Second
)

type WebSocketConfig struct {
	Endpoint     string
	APIKey       string
	DialTimeout  time.Duration
	SetupTimeout time.Duration
	PingPeriod   time.Duration
}

// WebSocketDialer speaks the BidiGenerateContent protocol directly.
type WebSocketDialer struct {
	cfg    WebSocketConfig
	dialer *websocket.Dialer
	logger *slog.Logger
}

func NewWebSocketDialer(cfg WebSocketConfig, logger *slog.Logger) *WebSocketDialer {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.SetupTimeout <= 0 {
		cfg.SetupTimeout = defaultSetupTimeout
	}
	if cfg.PingPeriod <= 0 {
		cfg.PingPeriod = pingPeriod
	}

	return &WebSocketDialer{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.DialTimeout,
		},
		logger: logger.With("component", "live_websocket"),
	}
}

func (d *WebSocketDialer) Dial(ctx context.Context, cfg Config, handlers Handlers) (Session, error) {
	headers := http.Header{}
	if d.cfg.APIKey != "" {
		headers.Set("x-goog-api-key", d.cfg.APIKey)
	}

	dialCtx, cancel := context.WithTimeout(ctx, d.cfg.DialTimeout)
	defer cancel()

	conn, resp, err := d.dialer.DialContext(dialCtx, d.cfg.Endpoint, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial live endpoint: %w", err)
	}

	conn.SetReadLimit(MaxMessageSize)

	s := &wsSession{
		id:       uuid.New().String(),
		conn:     conn,
		handlers: handlers,
		logger:   d.logger,
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
	}
	s.logger = d.logger.With("session_id", s.id)

	if err := s.writeJSON(newSetupMessage(cfg)); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send setup: %w", err)
	}

	if err := s.awaitSetup(ctx, d.cfg.SetupTimeout); err != nil {
		_ = conn.Close()
		return nil, err
	}

	go s.readPump()
	go s.pingPump(d.cfg.PingPeriod)

	s.logger.Info("live session opened", "model", cfg.Model, "voice", cfg.Voice)
	close(s.ready)
	return s, nil
}

type wsSession struct {
	id       string
	conn     *websocket.Conn
	handlers Handlers
	logger   *slog.Logger

	writeMu sync.Mutex
	mu      sync.Mutex
	closed  bool

	ready chan struct{}
	done  chan struct{}
}

func (s *wsSession) ID() string {
	return s.id
}

func (s *wsSession) Send(ctx context.Context, blob audio.Blob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.isClosed() {
		return ErrSessionClosed
	}

	msg := clientMessage{
		RealtimeInput: &realtimeInputMessage{
			MediaChunks: []inlineData{{MimeType: blob.MIMEType, Data: blob.Base64()}},
		},
	}
	if err := s.writeJSON(msg); err != nil {
		if s.isClosed() {
			return ErrSessionClosed
		}
		return fmt.Errorf("send realtime input: %w", err)
	}
	return nil
}

func (s *wsSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()

	deadline := time.Now().Add(writeWait)
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return s.conn.Close()
}

func (s *wsSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *wsSession) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *wsSession) awaitSetup(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = s.conn.SetReadDeadline(deadline)
	defer func() { _ = s.conn.SetReadDeadline(time.Time{}) }()

	stop := context.AfterFunc(ctx, func() { _ = s.conn.SetReadDeadline(time.Now()) })
	defer stop()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %v", ErrSetupIncomplete, err)
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Warn("ignoring malformed message during setup", "error", err)
			continue
		}
		if msg.SetupComplete != nil {
			return nil
		}
	}
}

func (s *wsSession) readPump() {
	<-s.ready
	defer s.Close()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.finish(err)
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Error("failed to unmarshal server message", "error", err)
			continue
		}

		if msg.GoAway != nil {
			s.logger.Warn("server requested disconnect", "time_left", msg.GoAway.TimeLeft)
		}
		if msg.ServerContent == nil {
			continue
		}

		for _, m := range s.toMessages(msg.ServerContent) {
			s.handlers.message(m)
		}
	}
}

// finish reports how the read loop ended. A locally closed session reports nothing.
func (s *wsSession) finish(err error) {
	if s.isClosed() {
		return
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) && (closeErr.Code == websocket.CloseNormalClosure || closeErr.Code == websocket.CloseGoingAway) {
		s.logger.Info("live session closed by server", "code", closeErr.Code, "reason", closeErr.Text)
		s.handlers.closed()
		return
	}

	s.logger.Error("live session read error", "error", err)
	s.handlers.failed(err)
}

func (s *wsSession) pingPump(period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				s.logger.Debug("ping failed", "error", err)
				return
			}
		}
	}
}

// toMessages splits server content into at most one audio chunk per message.
// Flags ride on the first message so an interruption precedes the audio it carries.
func (s *wsSession) toMessages(sc *serverContent) []Message {
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
			if p.InlineData == nil || p.InlineData.Data == "" {
				continue
			}
			raw, err := audio.DecodeBase64(p.InlineData.Data)
			if err != nil {
				s.logger.Warn("dropping undecodable audio part", "error", err)
				continue
			}
			m := Message{Audio: raw, MIMEType: p.InlineData.MimeType}
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

// collapse returns the audio messages with the trailing turn flag applied, or
// the bare flag message when the content carried no audio.
func collapse(head Message, out []Message) []Message {
	if len(out) == 0 {
		if !head.Interrupted && !head.TurnComplete && head.InputTranscript == "" && head.OutputTranscript == "" {
			return nil
		}
		return []Message{head}
	}
	out[len(out)-1].TurnComplete = head.TurnComplete
	return out
}
