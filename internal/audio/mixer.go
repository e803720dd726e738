package audio

import (
	"io"
	"math"
	"sync"
)

// Mixer is a sample-accurate playback graph. Its clock advances only as
// frames are rendered, so an output device pulling from Read drives time.
type Mixer struct {
	mu         sync.Mutex
	sampleRate int
	position   int64
	sources    []*mixerSource
	taps       []*Analyser
	closed     bool

	mix     []float32
	tapBufs map[*Analyser][]float32
}

type sourceState int

const (
	sourceScheduled sourceState = iota
	sourceEnded
)

type mixerSource struct {
	mixer      *Mixer
	samples    []float32
	startFrame int64
	tap        *Analyser
	onEnded    func()
	state      sourceState
	endOnce    sync.Once
}

func NewMixer(sampleRate int) *Mixer {
	return &Mixer{
		sampleRate: sampleRate,
		tapBufs:    make(map[*Analyser][]float32),
	}
}

func (m *Mixer) SampleRate() int {
	return m.sampleRate
}

func (m *Mixer) CurrentTime() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return float64(m.position) / float64(m.sampleRate)
}

func (m *Mixer) NewAnalyser(fftSize int) (*Analyser, error) {
	a, err := NewAnalyser(fftSize)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrContextClosed
	}
	m.taps = append(m.taps, a)
	return a, nil
}

// Active reports how many sources are scheduled or playing.
func (m *Mixer) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sources)
}

func (m *Mixer) Schedule(buf *Buffer, at float64, tap *Analyser, onEnded func()) (Source, error) {
	if buf.SampleRate != m.sampleRate {
		return nil, ErrSampleRateMismatch
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrContextClosed
	}

	start := int64(math.Round(at * float64(m.sampleRate)))
	if start < m.position {
		start = m.position
	}

	src := &mixerSource{
		mixer:      m,
		samples:    buf.Mono(),
		startFrame: start,
		tap:        tap,
		onEnded:    onEnded,
	}
	m.sources = append(m.sources, src)
	return src, nil
}

// Render mixes the next len(out) frames into out and advances the clock.
func (m *Mixer) Render(out []float32) {
	m.mu.Lock()
	clear(out)
	if m.closed {
		m.mu.Unlock()
		return
	}

	n := int64(len(out))
	from, to := m.position, m.position+n
	for _, tap := range m.taps {
		m.tapBufs[tap] = resize(m.tapBufs[tap], len(out))
	}

	var ended []*mixerSource
	kept := m.sources[:0]
	for _, src := range m.sources {
		end := src.startFrame + int64(len(src.samples))
		lo, hi := max(from, src.startFrame), min(to, end)
		for f := lo; f < hi; f++ {
			s := src.samples[f-src.startFrame]
			out[f-from] += s
			if tb, ok := m.tapBufs[src.tap]; ok {
				tb[f-from] += s
			}
		}
		if end <= to {
			src.state = sourceEnded
			ended = append(ended, src)
			continue
		}
		kept = append(kept, src)
	}
	clear(m.sources[len(kept):])
	m.sources = kept

	for _, tap := range m.taps {
		tap.Write(m.tapBufs[tap])
	}
	m.position = to
	m.mu.Unlock()

	for _, src := range ended {
		src.fireEnded()
	}
}

// Read renders signed 16-bit little-endian mono PCM for an output device.
func (m *Mixer) Read(p []byte) (int, error) {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return 0, io.EOF
	}

	frames := len(p) / BytesPerSample
	if frames == 0 {
		return 0, nil
	}
	m.mix = resize(m.mix, frames)
	m.Render(m.mix)
	copy(p, Float32ToPCMBytes(m.mix))
	return frames * BytesPerSample, nil
}

// Close drops every source without firing onEnded; later calls are no-ops.
func (m *Mixer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for _, src := range m.sources {
		src.state = sourceEnded
	}
	m.sources = nil
	m.taps = nil
	return nil
}

func (m *Mixer) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (s *mixerSource) StartTime() float64 {
	return float64(s.startFrame) / float64(s.mixer.sampleRate)
}

func (s *mixerSource) Duration() float64 {
	return float64(len(s.samples)) / float64(s.mixer.sampleRate)
}

func (s *mixerSource) Stop() error {
	m := s.mixer
	m.mu.Lock()
	if s.state == sourceEnded {
		m.mu.Unlock()
		return ErrSourceEnded
	}
	s.state = sourceEnded
	for i, other := range m.sources {
		if other == s {
			m.sources = append(m.sources[:i], m.sources[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	s.fireEnded()
	return nil
}

func (s *mixerSource) fireEnded() {
	s.endOnce.Do(func() {
		if s.onEnded != nil {
			s.onEnded()
		}
	})
}

func resize(buf []float32, n int) []float32 {
	if cap(buf) < n {
		return make([]float32, n)
	}
	buf = buf[:n]
	clear(buf)
	return buf
}
