package visualizer

import (
	"time"
)

const DefaultFPS = 60

// Handle cancels a pending refresh callback.
type Handle interface {
	Cancel()
}

// Scheduler runs fn once at the next display refresh.
type Scheduler interface {
	Request(fn func()) Handle
}

type TickerScheduler struct {
	interval time.Duration
}

func NewTickerScheduler(fps int) *TickerScheduler {
	if fps <= 0 {
		fps = DefaultFPS
	}
	return &TickerScheduler{interval: time.Second / time.Duration(fps)}
}

func (s *TickerScheduler) Interval() time.Duration {
	return s.interval
}

func (s *TickerScheduler) Request(fn func()) Handle {
	return timerHandle{time.AfterFunc(s.interval, fn)}
}

type timerHandle struct {
	t *time.Timer
}

func (h timerHandle) Cancel() {
	h.t.Stop()
}
