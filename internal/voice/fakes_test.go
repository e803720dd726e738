package voice

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/eleven-am/aria-assistant/internal/audio"
	"github.com/eleven-am/aria-assistant/internal/live"
	"github.com/eleven-am/aria-assistant/internal/visualizer"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeTrack struct {
	mu   sync.Mutex
	live bool
}

func (t *fakeTrack) Stop() {
	t.mu.Lock()
	t.live = false
	t.mu.Unlock()
}

func (t *fakeTrack) Live() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live
}

type fakeStream struct {
	track *fakeTrack
}

func (s *fakeStream) Tracks() []audio.Track { return []audio.Track{s.track} }

type fakeNode struct {
	capture *fakeCapture
}

func (n *fakeNode) Disconnect() {
	n.capture.mu.Lock()
	n.capture.onFrame = nil
	n.capture.mu.Unlock()
}

type fakeCapture struct {
	rate    int
	mu      sync.Mutex
	onFrame func([]float32)
	closed  bool
}

func (c *fakeCapture) SampleRate() int { return c.rate }

func (c *fakeCapture) Connect(_ audio.MediaStream, _ int, onFrame func([]float32)) (audio.CaptureNode, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onFrame = onFrame
	return &fakeNode{capture: c}, nil
}

func (c *fakeCapture) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

// emit plays the role of the hardware callback.
func (c *fakeCapture) emit(frame []float32) bool {
	c.mu.Lock()
	fn := c.onFrame
	c.mu.Unlock()
	if fn == nil {
		return false
	}
	fn(frame)
	return true
}

type fakeDevice struct {
	mu          sync.Mutex
	micErr      error
	micGate     chan struct{}
	tracks      []*fakeTrack
	captureOpen int
	playOpen    int
	capture     *fakeCapture
	mixer       *audio.Mixer
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{}
}

func (d *fakeDevice) RequestMicrophone(ctx context.Context) (audio.MediaStream, error) {
	d.mu.Lock()
	gate, err := d.micGate, d.micErr
	d.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}

	track := &fakeTrack{live: true}
	d.mu.Lock()
	d.tracks = append(d.tracks, track)
	d.mu.Unlock()
	return &fakeStream{track: track}, nil
}

func (d *fakeDevice) OpenCapture(rate int) (audio.CaptureContext, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.captureOpen++
	d.capture = &fakeCapture{rate: rate}
	return d.capture, nil
}

func (d *fakeDevice) OpenPlayback(rate int) (audio.PlaybackContext, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.playOpen++
	d.mixer = audio.NewMixer(rate)
	return d.mixer, nil
}

func (d *fakeDevice) liveTracks() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, t := range d.tracks {
		if t.Live() {
			n++
		}
	}
	return n
}

type fakeSession struct {
	id     string
	mu     sync.Mutex
	blobs  []audio.Blob
	closed bool
}

func (s *fakeSession) ID() string { return s.id }

func (s *fakeSession) Send(_ context.Context, blob audio.Blob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return live.ErrSessionClosed
	}
	s.blobs = append(s.blobs, blob)
	return nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fakeSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSession) sent() []audio.Blob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]audio.Blob(nil), s.blobs...)
}

type fakeDialer struct {
	mu       sync.Mutex
	err      error
	gate     chan struct{}
	dialing  chan struct{}
	cfg      live.Config
	handlers live.Handlers
	sessions []*fakeSession
}

func (d *fakeDialer) Dial(ctx context.Context, cfg live.Config, h live.Handlers) (live.Session, error) {
	d.mu.Lock()
	gate, err, dialing := d.gate, d.err, d.dialing
	d.mu.Unlock()

	if dialing != nil {
		dialing <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	s := &fakeSession{id: "session_" + string(rune('a'+len(d.sessions)))}
	d.cfg = cfg
	d.handlers = h
	d.sessions = append(d.sessions, s)
	return s, nil
}

func (d *fakeDialer) last() (*fakeSession, live.Handlers) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sessions) == 0 {
		return nil, live.Handlers{}
	}
	return d.sessions[len(d.sessions)-1], d.handlers
}

type fakeVisualizer struct {
	mu      sync.Mutex
	running bool
	starts  int
}

func (v *fakeVisualizer) Start(visualizer.Source) {
	v.mu.Lock()
	v.running = true
	v.starts++
	v.mu.Unlock()
}

func (v *fakeVisualizer) Stop() {
	v.mu.Lock()
	v.running = false
	v.mu.Unlock()
}

func (v *fakeVisualizer) isRunning() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.running
}

var errDenied = errors.New("NotAllowedError")
