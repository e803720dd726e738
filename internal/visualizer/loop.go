package visualizer

import (
	"log/slog"
	"sync"
)

const DefaultBars = 30

// Source is anything that exposes byte frequency data, usually an analyser.
type Source interface {
	FrequencyBinCount() int
	ByteFrequencyData(dst []byte)
}

type Frame struct {
	Seq    uint64    `json:"seq"`
	Levels []float64 `json:"levels"`
}

type Renderer interface {
	Render(frame Frame)
}

type RendererFunc func(Frame)

func (f RendererFunc) Render(frame Frame) { f(frame) }

// Loop samples a source once per refresh and renders one bar level per bar.
type Loop struct {
	scheduler Scheduler
	renderer  Renderer
	bars      int
	logger    *slog.Logger

	mu      sync.Mutex
	running bool
	epoch   uint64
	handle  Handle
	source  Source
	seq     uint64
	data    []byte
}

func NewLoop(scheduler Scheduler, renderer Renderer, bars int, logger *slog.Logger) *Loop {
	if bars <= 0 {
		bars = DefaultBars
	}
	return &Loop{
		scheduler: scheduler,
		renderer:  renderer,
		bars:      bars,
		logger:    logger.With("component", "visualizer"),
	}
}

func (l *Loop) Start(src Source) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.handle != nil {
		l.handle.Cancel()
	}
	l.epoch++
	l.running = true
	l.source = src
	l.data = make([]byte, src.FrequencyBinCount())
	l.handle = l.scheduler.Request(l.tick(l.epoch))
	l.logger.Debug("visualizer started", "bars", l.bars, "bins", len(l.data))
}

// Stop cancels the pending callback. A callback already running for the
// previous epoch sees the change and neither renders nor reschedules.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.running {
		return
	}
	l.running = false
	l.epoch++
	l.source = nil
	if l.handle != nil {
		l.handle.Cancel()
		l.handle = nil
	}
	l.logger.Debug("visualizer stopped")
}

func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

func (l *Loop) tick(epoch uint64) func() {
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()

		if !l.running || epoch != l.epoch {
			return
		}

		l.source.ByteFrequencyData(l.data)
		l.seq++
		l.renderer.Render(Frame{Seq: l.seq, Levels: Levels(l.data, l.bars)})
		l.handle = l.scheduler.Request(l.tick(epoch))
	}
}

// Levels picks bars values from the lower half of the spectrum at bin
// floor(i*bins/(bars*2)) and scales them to [0,1].
func Levels(data []byte, bars int) []float64 {
	levels := make([]float64, bars)
	if len(data) == 0 {
		return levels
	}
	for i := range levels {
		idx := i * len(data) / (bars * 2)
		levels[i] = float64(data[idx]) / 255
	}
	return levels
}
