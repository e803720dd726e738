package voice

import (
	"context"
	"errors"
	"math"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/eleven-am/aria-assistant/internal/live"
)

type stateLog struct {
	mu      sync.Mutex
	changes []StateChange
	signal  chan struct{}
}

func watch(c *Controller) *stateLog {
	l := &stateLog{signal: make(chan struct{}, 64)}
	c.Subscribe(func(ch StateChange) {
		l.mu.Lock()
		l.changes = append(l.changes, ch)
		l.mu.Unlock()
		l.signal <- struct{}{}
	})
	return l
}

func (l *stateLog) states() []State {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]State, 0, len(l.changes))
	for _, ch := range l.changes {
		out = append(out, ch.To)
	}
	return out
}

func (l *stateLog) waitFor(t *testing.T, n int) []State {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		if got := l.states(); len(got) >= n {
			return got
		}
		select {
		case <-l.signal:
		case <-deadline:
			t.Fatalf("expected %d state changes, got %v", n, l.states())
		}
	}
}

func newTestController(t *testing.T) (*Controller, *fakeDevice, *fakeDialer, *fakeVisualizer) {
	t.Helper()
	device := newFakeDevice()
	dialer := &fakeDialer{}
	viz := &fakeVisualizer{}
	c := NewController(Config{
		Live: live.Config{Model: DefaultModel, Voice: DefaultVoice, SystemInstruction: "persona"},
	}, device, dialer, viz, testLogger())
	t.Cleanup(func() { _ = c.Close() })
	return c, device, dialer, viz
}

func connect(t *testing.T, c *Controller) {
	t.Helper()
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect error: %v", err)
	}
	if c.State() != StateConnected {
		t.Fatalf("expected connected, got %s", c.State())
	}
}

// pcmChunk is silent PCM16 mono at 24 kHz lasting ms milliseconds.
func pcmChunk(ms int) []byte {
	return make([]byte, ms*DefaultOutputSampleRate/1000*2)
}

func queuedStarts(c *Controller) []float64 {
	c.queue.mu.Lock()
	defer c.queue.mu.Unlock()
	out := make([]float64, 0, len(c.queue.entries))
	for e := range c.queue.entries {
		out = append(out, e.start)
	}
	slices.Sort(out)
	return out
}

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestController_ConnectSuccess(t *testing.T) {
	c, device, dialer, viz := newTestController(t)
	log := watch(c)

	connect(t, c)

	got := log.waitFor(t, 2)
	if got[0] != StateConnecting || got[1] != StateConnected {
		t.Errorf("expected connecting then connected, got %v", got)
	}
	if device.captureOpen != 1 || device.playOpen != 1 {
		t.Errorf("expected both pathways opened once, got %d/%d", device.captureOpen, device.playOpen)
	}
	if device.capture.rate != 16000 || device.mixer.SampleRate() != 24000 {
		t.Error("expected 16 kHz capture and 24 kHz playback")
	}
	if c.analyser == nil || c.analyser.FFTSize() != 256 {
		t.Error("expected analyser with fft size 256")
	}
	if dialer.cfg.ResponseModality != live.ModalityAudio || dialer.cfg.Voice != "Kore" {
		t.Errorf("unexpected live config %+v", dialer.cfg)
	}
	if !viz.isRunning() {
		t.Error("expected visualizer to run while connected")
	}
	if st := c.Stats(); st.SessionID == "" || !st.PathwaysOpen {
		t.Errorf("expected session id and open pathways, got %+v", st)
	}
}

func TestController_PermissionDenied(t *testing.T) {
	c, device, _, viz := newTestController(t)
	device.micErr = errDenied
	log := watch(c)

	err := c.Connect(context.Background())
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if c.State() != StateError {
		t.Errorf("expected error state, got %s", c.State())
	}
	if c.ErrorMessage() != MessageMicrophone {
		t.Errorf("expected %q, got %q", MessageMicrophone, c.ErrorMessage())
	}
	if device.captureOpen != 0 || device.playOpen != 0 {
		t.Error("expected no pathway to be opened")
	}
	if viz.starts != 0 {
		t.Error("expected visualizer never started")
	}
	for _, s := range log.waitFor(t, 2) {
		if s == StateConnected {
			t.Error("state passed through connected")
		}
	}
}

func TestController_HandshakeFailure(t *testing.T) {
	c, device, dialer, _ := newTestController(t)
	dialer.err = errors.New("handshake refused")

	err := c.Connect(context.Background())
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
	if c.State() != StateError || c.ErrorMessage() != MessageConnection {
		t.Errorf("expected error with connection message, got %s %q", c.State(), c.ErrorMessage())
	}
	if device.liveTracks() != 0 {
		t.Error("expected microphone released after handshake failure")
	}

	dialer.err = nil
	connect(t, c)
	if c.ErrorMessage() != "" {
		t.Errorf("expected message cleared on reconnect, got %q", c.ErrorMessage())
	}
	if device.captureOpen != 1 {
		t.Errorf("expected pathways reused, opened %d times", device.captureOpen)
	}
}

func TestController_ConnectWhileActive(t *testing.T) {
	c, _, _, _ := newTestController(t)
	connect(t, c)

	if err := c.Connect(context.Background()); !errors.Is(err, ErrAlreadyActive) {
		t.Errorf("expected ErrAlreadyActive, got %v", err)
	}
}

func TestController_CaptureFramesReachSession(t *testing.T) {
	c, device, dialer, _ := newTestController(t)
	connect(t, c)

	frame := make([]float32, DefaultFrameSize)
	frame[0] = 0.5
	if !device.capture.emit(frame) {
		t.Fatal("expected capture node connected")
	}

	session, _ := dialer.last()
	deadline := time.Now().Add(time.Second)
	for len(session.sent()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	sent := session.sent()
	if len(sent) != 1 {
		t.Fatalf("expected 1 blob, got %d", len(sent))
	}
	if sent[0].MIMEType != "audio/pcm;rate=16000" {
		t.Errorf("expected audio/pcm;rate=16000, got %s", sent[0].MIMEType)
	}
	if len(sent[0].Data) != DefaultFrameSize*2 {
		t.Errorf("expected %d bytes, got %d", DefaultFrameSize*2, len(sent[0].Data))
	}
}

func TestController_GaplessScheduling(t *testing.T) {
	c, device, dialer, _ := newTestController(t)
	connect(t, c)
	_, h := dialer.last()

	h.OnMessage(live.Message{Audio: pcmChunk(500)})
	h.OnMessage(live.Message{Audio: pcmChunk(300)})

	starts := queuedStarts(c)
	if len(starts) != 2 || !near(starts[0], 0) || !near(starts[1], 0.5) {
		t.Fatalf("expected starts [0 0.5], got %v", starts)
	}
	if !near(c.queue.nextStart(), 0.8) {
		t.Errorf("expected cursor 0.8, got %f", c.queue.nextStart())
	}

	device.mixer.Render(make([]float32, 24000*3/2))
	if n := c.queue.size(); n != 0 {
		t.Errorf("expected queue drained after natural end, got %d", n)
	}

	h.OnMessage(live.Message{Audio: pcmChunk(100)})
	starts = queuedStarts(c)
	if len(starts) != 1 || !near(starts[0], 1.5) {
		t.Errorf("expected start at clock time 1.5 after a gap, got %v", starts)
	}
}

func TestController_Interruption(t *testing.T) {
	c, device, dialer, _ := newTestController(t)
	connect(t, c)
	_, h := dialer.last()

	for range 3 {
		h.OnMessage(live.Message{Audio: pcmChunk(200)})
	}
	if device.mixer.Active() != 3 {
		t.Fatalf("expected 3 scheduled sources, got %d", device.mixer.Active())
	}

	h.OnMessage(live.Message{Interrupted: true})

	if device.mixer.Active() != 0 {
		t.Errorf("expected all sources stopped, got %d", device.mixer.Active())
	}
	if c.queue.size() != 0 || c.queue.nextStart() != 0 {
		t.Errorf("expected empty queue and cursor 0, got %d %f", c.queue.size(), c.queue.nextStart())
	}
}

func TestController_InterruptionAppliedBeforeAudio(t *testing.T) {
	c, device, dialer, _ := newTestController(t)
	connect(t, c)
	_, h := dialer.last()

	h.OnMessage(live.Message{Audio: pcmChunk(500)})
	device.mixer.Render(make([]float32, 2400))
	h.OnMessage(live.Message{Interrupted: true, Audio: pcmChunk(200)})

	starts := queuedStarts(c)
	if len(starts) != 1 || !near(starts[0], 0.1) {
		t.Errorf("expected only the new chunk at clock time 0.1, got %v", starts)
	}
}

func TestController_Scenario(t *testing.T) {
	c, device, dialer, _ := newTestController(t)
	connect(t, c)
	session, h := dialer.last()

	h.OnMessage(live.Message{Audio: pcmChunk(500)})
	h.OnMessage(live.Message{Audio: pcmChunk(300)})
	if starts := queuedStarts(c); len(starts) != 2 || !near(starts[0], 0) || !near(starts[1], 0.5) {
		t.Fatalf("expected starts [0 0.5], got %v", starts)
	}

	h.OnMessage(live.Message{Interrupted: true})
	if device.mixer.Active() != 0 || c.queue.size() != 0 || c.queue.nextStart() != 0 {
		t.Fatal("expected interruption to stop both chunks and reset the cursor")
	}

	c.Disconnect()
	if c.State() != StateDisconnected {
		t.Errorf("expected disconnected, got %s", c.State())
	}
	if device.liveTracks() != 0 {
		t.Error("expected no live tracks")
	}
	if !session.isClosed() {
		t.Error("expected session closed")
	}
}

func TestController_DisconnectReleasesEverything(t *testing.T) {
	c, device, dialer, viz := newTestController(t)
	connect(t, c)
	session, h := dialer.last()

	h.OnMessage(live.Message{Audio: pcmChunk(400)})
	h.OnMessage(live.Message{Audio: pcmChunk(400)})

	c.Disconnect()

	if device.liveTracks() != 0 {
		t.Error("expected zero live tracks")
	}
	if device.mixer.Active() != 0 || c.queue.size() != 0 {
		t.Error("expected zero scheduled buffers")
	}
	if c.queue.nextStart() != 0 {
		t.Error("expected cursor reset")
	}
	if !session.isClosed() {
		t.Error("expected session closed")
	}
	if viz.isRunning() {
		t.Error("expected visualizer stopped")
	}
	if device.capture.emit(make([]float32, DefaultFrameSize)) {
		t.Error("expected capture node disconnected")
	}

	h.OnMessage(live.Message{Audio: pcmChunk(100)})
	if c.queue.size() != 0 {
		t.Error("expected late audio after disconnect to be ignored")
	}
}

func TestController_DisconnectTwice(t *testing.T) {
	c, _, _, _ := newTestController(t)
	connect(t, c)

	c.Disconnect()
	if c.State() != StateDisconnected {
		t.Errorf("expected disconnected, got %s", c.State())
	}
	c.Disconnect()
	if c.State() != StateDisconnected {
		t.Errorf("expected disconnected after second call, got %s", c.State())
	}
}

func TestController_DisconnectWhenIdle(t *testing.T) {
	c, device, _, _ := newTestController(t)

	c.Disconnect()
	if c.State() != StateDisconnected {
		t.Errorf("expected disconnected, got %s", c.State())
	}
	if device.captureOpen != 0 {
		t.Error("expected no pathway opened by an idle disconnect")
	}
}

func TestController_RemoteCloseTearsDown(t *testing.T) {
	c, device, dialer, _ := newTestController(t)
	connect(t, c)
	session, h := dialer.last()
	h.OnMessage(live.Message{Audio: pcmChunk(200)})

	h.OnClose()

	if c.State() != StateDisconnected {
		t.Errorf("expected disconnected, got %s", c.State())
	}
	if device.liveTracks() != 0 || c.queue.size() != 0 {
		t.Error("expected teardown on remote close")
	}
	if !session.isClosed() {
		t.Error("expected session closed")
	}
}

func TestController_TransportErrorTearsDown(t *testing.T) {
	c, device, dialer, _ := newTestController(t)
	connect(t, c)
	_, h := dialer.last()

	h.OnError(errors.New("connection reset"))

	if c.State() != StateError {
		t.Errorf("expected error, got %s", c.State())
	}
	if c.ErrorMessage() != MessageConnection {
		t.Errorf("expected %q, got %q", MessageConnection, c.ErrorMessage())
	}
	if device.liveTracks() != 0 {
		t.Error("expected microphone released")
	}

	connect(t, c)
}

func TestController_StaleSessionAfterDisconnect(t *testing.T) {
	c, device, dialer, _ := newTestController(t)
	dialer.gate = make(chan struct{})
	dialer.dialing = make(chan struct{}, 1)

	result := make(chan error, 1)
	go func() { result <- c.Connect(context.Background()) }()

	select {
	case <-dialer.dialing:
	case <-time.After(time.Second):
		t.Fatal("connect never reached the dialer")
	}
	c.Disconnect()
	close(dialer.gate)

	if err := <-result; !errors.Is(err, ErrSuperseded) {
		t.Errorf("expected ErrSuperseded, got %v", err)
	}
	if c.State() != StateDisconnected {
		t.Errorf("expected disconnected, got %s", c.State())
	}
	session, _ := dialer.last()
	if session == nil || !session.isClosed() {
		t.Error("expected stale session closed")
	}
	if device.liveTracks() != 0 {
		t.Error("expected microphone released")
	}
}

func TestController_StaleMicrophoneGrant(t *testing.T) {
	c, device, dialer, _ := newTestController(t)
	device.micGate = make(chan struct{})

	result := make(chan error, 1)
	go func() { result <- c.Connect(context.Background()) }()

	deadline := time.Now().Add(time.Second)
	for c.State() != StateConnecting && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	c.Disconnect()
	close(device.micGate)

	if err := <-result; !errors.Is(err, ErrSuperseded) {
		t.Errorf("expected ErrSuperseded, got %v", err)
	}
	if device.liveTracks() != 0 {
		t.Error("expected stale grant tracks stopped")
	}
	if s, _ := dialer.last(); s != nil {
		t.Error("expected no dial for a stale grant")
	}
	if c.State() != StateDisconnected {
		t.Errorf("expected disconnected, got %s", c.State())
	}
}

func TestController_CloseReleasesPathways(t *testing.T) {
	c, device, _, _ := newTestController(t)
	connect(t, c)

	if err := c.Close(); err != nil {
		t.Fatalf("close error: %v", err)
	}
	if !device.mixer.Closed() || !device.capture.closed {
		t.Error("expected both pathways closed")
	}
	if err := c.Connect(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second close should be a no-op, got %v", err)
	}
}

func TestController_StatsKeepOutboundAfterTeardown(t *testing.T) {
	c, device, _, _ := newTestController(t)
	connect(t, c)

	device.capture.emit(make([]float32, DefaultFrameSize))
	deadline := time.Now().Add(time.Second)
	for c.Stats().Outbound.Sent == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	c.Disconnect()

	if st := c.Stats(); st.Outbound.Sent != 1 || st.SessionID != "" {
		t.Errorf("expected last outbound stats and no session, got %+v", st)
	}
}

func TestController_StartConnect(t *testing.T) {
	c, _, dialer, _ := newTestController(t)
	dialer.gate = make(chan struct{})

	done, err := c.StartConnect(context.Background())
	if err != nil {
		t.Fatalf("start error: %v", err)
	}
	if c.State() != StateConnecting {
		t.Errorf("expected connecting on return, got %s", c.State())
	}
	if _, err := c.StartConnect(context.Background()); !errors.Is(err, ErrAlreadyActive) {
		t.Errorf("expected ErrAlreadyActive, got %v", err)
	}

	close(dialer.gate)
	if err := <-done; err != nil {
		t.Fatalf("connect error: %v", err)
	}
	if c.State() != StateConnected {
		t.Errorf("expected connected, got %s", c.State())
	}
}
