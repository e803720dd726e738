package device

import (
	"errors"
	"sync"
	"testing"

	"github.com/eleven-am/aria-assistant/internal/audio"
)

type frameRecorder struct {
	mu     sync.Mutex
	frames [][]float32
}

func (r *frameRecorder) record(frame []float32) {
	r.mu.Lock()
	r.frames = append(r.frames, frame)
	r.mu.Unlock()
}

func (r *frameRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

func pcmOf(n int, v int16) []byte {
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = v
	}
	return audio.Int16ToPCMBytes(samples)
}

func TestCaptureContext_FramesStream(t *testing.T) {
	s := newStream(16000)
	ctx := newCaptureContext(16000)
	rec := &frameRecorder{}

	node, err := ctx.Connect(s, 4, rec.record)
	if err != nil {
		t.Fatalf("connect error: %v", err)
	}

	s.deliver(pcmOf(3, 16384))
	if rec.count() != 0 {
		t.Errorf("expected no frame before 4 samples, got %d", rec.count())
	}
	s.deliver(pcmOf(6, 16384))
	if rec.count() != 2 {
		t.Fatalf("expected 2 frames, got %d", rec.count())
	}
	if rec.frames[0][0] != 0.5 {
		t.Errorf("expected sample 0.5, got %f", rec.frames[0][0])
	}

	node.Disconnect()
	node.Disconnect()
	s.deliver(pcmOf(8, 1))
	if rec.count() != 2 {
		t.Errorf("expected no frames after disconnect, got %d", rec.count())
	}
}

func TestCaptureContext_RateMismatch(t *testing.T) {
	ctx := newCaptureContext(16000)
	_, err := ctx.Connect(newStream(48000), 4096, func([]float32) {})
	if !errors.Is(err, audio.ErrSampleRateMismatch) {
		t.Errorf("expected ErrSampleRateMismatch, got %v", err)
	}
}

func TestCaptureContext_CloseDisconnectsNodes(t *testing.T) {
	s := newStream(16000)
	ctx := newCaptureContext(16000)
	rec := &frameRecorder{}

	if _, err := ctx.Connect(s, 2, rec.record); err != nil {
		t.Fatalf("connect error: %v", err)
	}
	if err := ctx.Close(); err != nil {
		t.Fatalf("close error: %v", err)
	}

	s.deliver(pcmOf(4, 1))
	if rec.count() != 0 {
		t.Errorf("expected no frames after close, got %d", rec.count())
	}
	if _, err := ctx.Connect(s, 2, rec.record); !errors.Is(err, audio.ErrContextClosed) {
		t.Errorf("expected ErrContextClosed, got %v", err)
	}
}

func TestTrack_StopSilencesStream(t *testing.T) {
	s := newStream(16000)
	ctx := newCaptureContext(16000)
	rec := &frameRecorder{}
	if _, err := ctx.Connect(s, 2, rec.record); err != nil {
		t.Fatalf("connect error: %v", err)
	}

	tracks := s.Tracks()
	if len(tracks) != 1 || !tracks[0].Live() {
		t.Fatal("expected one live track")
	}

	audio.StopTracks(s)
	tracks[0].Stop()

	if tracks[0].Live() {
		t.Error("expected track to be stopped")
	}
	s.deliver(pcmOf(4, 1))
	if rec.count() != 0 {
		t.Errorf("expected no frames from stopped track, got %d", rec.count())
	}
}
