package device

import (
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/eleven-am/aria-assistant/internal/audio"
)

// stream fans microphone samples out to the capture nodes attached to it.
type stream struct {
	sampleRate int
	track      *track

	mu    sync.RWMutex
	sinks map[int]func([]float32)
	next  int
}

func newStream(sampleRate int) *stream {
	s := &stream{
		sampleRate: sampleRate,
		sinks:      make(map[int]func([]float32)),
	}
	s.track = &track{live: true}
	return s
}

func (s *stream) Tracks() []audio.Track {
	return []audio.Track{s.track}
}

func (s *stream) attach(sink func([]float32)) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	s.sinks[id] = sink
	return id
}

func (s *stream) detach(id int) {
	s.mu.Lock()
	delete(s.sinks, id)
	s.mu.Unlock()
}

func (s *stream) deliver(pcm []byte) {
	if !s.track.Live() {
		return
	}
	samples := audio.Int16ToFloat32(audio.PCMBytesToInt16(pcm))

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sink := range s.sinks {
		sink(samples)
	}
}

type track struct {
	mu     sync.Mutex
	live   bool
	device *malgo.Device
}

func (t *track) Live() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live
}

func (t *track) Stop() {
	t.mu.Lock()
	if !t.live {
		t.mu.Unlock()
		return
	}
	t.live = false
	dev := t.device
	t.device = nil
	t.mu.Unlock()

	if dev != nil {
		_ = dev.Stop()
		dev.Uninit()
	}
}
