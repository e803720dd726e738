package audio

import "sync"

// Framer slices a continuous sample stream into fixed-size frames.
type Framer struct {
	mu      sync.Mutex
	size    int
	pending []float32
	onFrame func([]float32)
}

func NewFramer(size int, onFrame func([]float32)) *Framer {
	if size <= 0 {
		size = 4096
	}
	return &Framer{
		size:    size,
		pending: make([]float32, 0, size),
		onFrame: onFrame,
	}
}

func (f *Framer) Size() int {
	return f.size
}

// Write buffers samples and emits every completed frame in order.
func (f *Framer) Write(samples []float32) {
	f.mu.Lock()
	var frames [][]float32
	for len(samples) > 0 {
		n := min(f.size-len(f.pending), len(samples))
		f.pending = append(f.pending, samples[:n]...)
		samples = samples[n:]
		if len(f.pending) == f.size {
			frame := make([]float32, f.size)
			copy(frame, f.pending)
			frames = append(frames, frame)
			f.pending = f.pending[:0]
		}
	}
	f.mu.Unlock()

	for _, frame := range frames {
		f.onFrame(frame)
	}
}

func (f *Framer) Reset() {
	f.mu.Lock()
	f.pending = f.pending[:0]
	f.mu.Unlock()
}
