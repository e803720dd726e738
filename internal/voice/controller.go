package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/eleven-am/aria-assistant/internal/audio"
	"github.com/eleven-am/aria-assistant/internal/live"
	"github.com/eleven-am/aria-assistant/internal/visualizer"
)

const (
	DefaultInputSampleRate  = 16000
	DefaultOutputSampleRate = 24000
	DefaultFrameSize        = 4096
	DefaultFFTSize          = 256
)

type Config struct {
	InputSampleRate  int
	OutputSampleRate int
	FrameSize        int
	FFTSize          int
	OutboundBuffer   int
	Live             live.Config
}

func (c *Config) applyDefaults() {
	if c.InputSampleRate <= 0 {
		c.InputSampleRate = DefaultInputSampleRate
	}
	if c.OutputSampleRate <= 0 {
		c.OutputSampleRate = DefaultOutputSampleRate
	}
	if c.FrameSize <= 0 {
		c.FrameSize = DefaultFrameSize
	}
	if c.FFTSize <= 0 {
		c.FFTSize = DefaultFFTSize
	}
	if c.Live.ResponseModality == "" {
		c.Live.ResponseModality = live.ModalityAudio
	}
	c.Live.InputSampleRate = c.InputSampleRate
}

// Visualizer is started with the playback analyser once connected.
type Visualizer interface {
	Start(src visualizer.Source)
	Stop()
}

type Stats struct {
	State        State            `json:"state"`
	ErrorMessage string           `json:"error_message,omitempty"`
	SessionID    string           `json:"session_id,omitempty"`
	Generation   uint64           `json:"generation"`
	QueueLength  int              `json:"queue_length"`
	NextStart    float64          `json:"next_start"`
	PlaybackTime float64          `json:"playback_time"`
	PathwaysOpen bool             `json:"pathways_open"`
	Outbound     live.SenderStats `json:"outbound"`
}

// Controller owns one voice session at a time: microphone, audio pathways,
// live session, playback queue and visualizer.
type Controller struct {
	cfg    Config
	device audio.Device
	dialer live.Dialer
	viz    Visualizer
	logger *slog.Logger

	mu         sync.Mutex
	state      State
	errMsg     string
	generation uint64
	closed     bool

	stream   audio.MediaStream
	capture  audio.CaptureContext
	playback audio.PlaybackContext
	analyser *audio.Analyser
	node     audio.CaptureNode
	session  live.Session
	sender   *live.Sender
	outbound live.SenderStats

	queue    *playbackQueue
	notifier *notifier
}

func NewController(cfg Config, device audio.Device, dialer live.Dialer, viz Visualizer, logger *slog.Logger) *Controller {
	cfg.applyDefaults()
	logger = logger.With("component", "voice_controller")

	return &Controller{
		cfg:      cfg,
		device:   device,
		dialer:   dialer,
		viz:      viz,
		logger:   logger,
		state:    StateDisconnected,
		queue:    newPlaybackQueue(logger),
		notifier: newNotifier(),
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) ErrorMessage() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errMsg
}

// Subscribe registers fn for state changes. Changes are delivered in commit
// order from a dedicated goroutine.
func (c *Controller) Subscribe(fn func(StateChange)) func() {
	return c.notifier.subscribe(fn)
}

func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Stats{
		State:        c.state,
		ErrorMessage: c.errMsg,
		Generation:   c.generation,
		QueueLength:  c.queue.size(),
		NextStart:    c.queue.nextStart(),
		PathwaysOpen: c.capture != nil && c.playback != nil,
		Outbound:     c.outbound,
	}
	if c.session != nil {
		st.SessionID = c.session.ID()
	}
	if c.sender != nil {
		st.Outbound = c.sender.Stats()
	}
	if c.playback != nil {
		st.PlaybackTime = c.playback.CurrentTime()
	}
	return st
}

// Connect runs one connect attempt to completion. It fails with
// ErrAlreadyActive while connecting or connected.
func (c *Controller) Connect(ctx context.Context) error {
	gen, err := c.begin()
	if err != nil {
		return err
	}
	return c.connect(ctx, gen)
}

// StartConnect enters Connecting before returning and finishes the attempt
// in the background. The channel receives the attempt's result.
func (c *Controller) StartConnect(ctx context.Context) (<-chan error, error) {
	gen, err := c.begin()
	if err != nil {
		return nil, err
	}

	done := make(chan error, 1)
	go func() { done <- c.connect(ctx, gen) }()
	return done, nil
}

func (c *Controller) begin() (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, ErrClosed
	}
	if c.state.Active() {
		return 0, ErrAlreadyActive
	}
	c.generation++
	c.setStateLocked(StateConnecting, "")
	return c.generation, nil
}

func (c *Controller) connect(ctx context.Context, gen uint64) error {
	log := c.logger.With("generation", gen)
	log.Info("connecting")

	stream, err := c.device.RequestMicrophone(ctx)
	if err != nil {
		return c.fail(gen, fmt.Errorf("%w: %v", ErrPermissionDenied, err), MessageMicrophone)
	}

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		audio.StopTracks(stream)
		log.Info("discarding stale microphone grant")
		return ErrSuperseded
	}
	c.stream = stream
	err = c.openPathwaysLocked()
	c.mu.Unlock()
	if err != nil {
		return c.fail(gen, fmt.Errorf("%w: %v", ErrAudioPathway, err), MessageConnection)
	}

	session, err := c.dialer.Dial(ctx, c.cfg.Live, live.Handlers{
		OnMessage: func(msg live.Message) { c.handleMessage(gen, msg) },
		OnClose:   func() { c.handleRemoteClose(gen) },
		OnError:   func(err error) { c.handleTransportError(gen, err) },
	})
	if err != nil {
		return c.fail(gen, fmt.Errorf("%w: %v", ErrTransport, err), MessageConnection)
	}

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		if err := session.Close(); err != nil {
			log.Warn("failed to close stale session", "error", err)
		}
		log.Info("discarding stale session", "session_id", session.ID())
		return ErrSuperseded
	}

	c.session = session
	c.sender = live.NewSender(session, c.cfg.OutboundBuffer, c.logger)
	sender, rate := c.sender, c.cfg.InputSampleRate
	node, err := c.capture.Connect(c.stream, c.cfg.FrameSize, func(frame []float32) {
		sender.Submit(audio.EncodeFrame(frame, rate))
	})
	if err != nil {
		c.mu.Unlock()
		return c.fail(gen, fmt.Errorf("%w: %v", ErrAudioPathway, err), MessageConnection)
	}
	c.node = node

	if c.viz != nil {
		c.viz.Start(c.analyser)
	}
	c.setStateLocked(StateConnected, "")
	c.mu.Unlock()

	log.Info("connected", "session_id", session.ID())
	return nil
}

// Disconnect tears down any session. It is safe in every state and repeatable.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	detached := c.teardownLocked()
	c.setStateLocked(StateDisconnected, "")
	c.mu.Unlock()

	c.closeSession(detached)
}

// Close disconnects and releases both audio pathways. The controller cannot
// be reused afterwards.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	detached := c.teardownLocked()
	c.setStateLocked(StateDisconnected, "")

	var errs []error
	if c.capture != nil {
		errs = append(errs, c.capture.Close())
		c.capture = nil
	}
	if c.playback != nil {
		errs = append(errs, c.playback.Close())
		c.playback = nil
	}
	c.analyser = nil
	c.mu.Unlock()

	c.closeSession(detached)
	c.notifier.stop()

	if err := errors.Join(errs...); err != nil {
		c.logger.Warn("failed to close audio pathways", "error", err)
		return err
	}
	return nil
}

func (c *Controller) openPathwaysLocked() error {
	if c.capture == nil {
		capture, err := c.device.OpenCapture(c.cfg.InputSampleRate)
		if err != nil {
			return fmt.Errorf("open capture: %w", err)
		}
		c.capture = capture
	}
	if c.playback == nil {
		playback, err := c.device.OpenPlayback(c.cfg.OutputSampleRate)
		if err != nil {
			return fmt.Errorf("open playback: %w", err)
		}
		c.playback = playback
	}
	if c.analyser == nil {
		analyser, err := c.playback.NewAnalyser(c.cfg.FFTSize)
		if err != nil {
			return fmt.Errorf("create analyser: %w", err)
		}
		c.analyser = analyser
	}
	return nil
}

// teardownLocked releases everything a session holds and invalidates the
// current generation. The detached session is returned for closing after
// the lock is released.
func (c *Controller) teardownLocked() live.Session {
	c.generation++

	audio.StopTracks(c.stream)
	c.stream = nil

	if c.node != nil {
		c.node.Disconnect()
		c.node = nil
	}

	if n := c.queue.flush(); n > 0 {
		c.logger.Debug("flushed playback queue", "sources", n)
	}

	if c.sender != nil {
		c.sender.Stop()
		c.outbound = c.sender.Stats()
		c.sender = nil
	}

	session := c.session
	c.session = nil

	if c.viz != nil {
		c.viz.Stop()
	}
	if c.analyser != nil {
		c.analyser.Reset()
	}
	return session
}

func (c *Controller) closeSession(session live.Session) {
	if session == nil {
		return
	}
	if err := session.Close(); err != nil {
		c.logger.Warn("failed to close session", "session_id", session.ID(), "error", err)
	}
}

func (c *Controller) fail(gen uint64, cause error, message string) error {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return ErrSuperseded
	}
	detached := c.teardownLocked()
	c.setStateLocked(StateError, message)
	c.mu.Unlock()

	c.logger.Error("connect failed", "generation", gen, "error", cause)
	c.closeSession(detached)
	return cause
}

func (c *Controller) handleMessage(gen uint64, msg live.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation || !c.state.Active() {
		return
	}

	if msg.InputTranscript != "" {
		c.logger.Debug("user transcript", "text", msg.InputTranscript)
	}
	if msg.OutputTranscript != "" {
		c.logger.Debug("assistant transcript", "text", msg.OutputTranscript)
	}

	if msg.Interrupted {
		n := c.queue.flush()
		c.logger.Debug("playback interrupted", "stopped", n)
	}

	if !msg.HasAudio() || c.playback == nil {
		return
	}

	buf, err := audio.DecodePCM16(msg.Audio, c.cfg.OutputSampleRate, 1)
	if err != nil {
		c.logger.Warn("dropping undecodable audio chunk", "error", err, "bytes", len(msg.Audio))
		return
	}
	if _, err := c.queue.schedule(c.playback, buf, c.analyser); err != nil {
		c.logger.Warn("failed to schedule audio chunk", "error", err)
	}
}

func (c *Controller) handleRemoteClose(gen uint64) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	detached := c.teardownLocked()
	c.setStateLocked(StateDisconnected, "")
	c.mu.Unlock()

	c.logger.Info("session closed by remote", "generation", gen)
	c.closeSession(detached)
}

func (c *Controller) handleTransportError(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	detached := c.teardownLocked()
	c.setStateLocked(StateError, MessageConnection)
	c.mu.Unlock()

	c.logger.Error("session transport error", "generation", gen, "error", fmt.Errorf("%w: %v", ErrTransport, err))
	c.closeSession(detached)
}

// setStateLocked commits a transition and queues its notification while the
// lock is held, so observers see transitions in commit order.
func (c *Controller) setStateLocked(next State, message string) {
	if c.state == next && c.errMsg == message {
		return
	}
	c.notifier.publish(StateChange{From: c.state, To: next, ErrorMessage: message, Generation: c.generation})
	c.state = next
	c.errMsg = message
}
