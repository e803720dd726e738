package live

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/eleven-am/aria-assistant/internal/audio"
)

const DefaultSenderBuffer = 64

type SenderStats struct {
	Sent    uint64 `json:"sent"`
	Failed  uint64 `json:"failed"`
	Dropped uint64 `json:"dropped"`
}

// Sender forwards captured blobs to a session from a single goroutine so
// submission order is preserved and the capture callback never blocks.
type Sender struct {
	session Session
	queue   chan audio.Blob
	logger  *slog.Logger

	sent    atomic.Uint64
	failed  atomic.Uint64
	dropped atomic.Uint64

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
	done     chan struct{}
}

func NewSender(session Session, buffer int, logger *slog.Logger) *Sender {
	if buffer <= 0 {
		buffer = DefaultSenderBuffer
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Sender{
		session: session,
		queue:   make(chan audio.Blob, buffer),
		logger:  logger.With("component", "live_sender", "session_id", session.ID()),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

// Submit enqueues a blob without blocking. It reports false when the blob
// was dropped because the sender is stopped or the queue is full.
func (s *Sender) Submit(blob audio.Blob) bool {
	if s.ctx.Err() != nil {
		return false
	}

	select {
	case s.queue <- blob:
		return true
	default:
		n := s.dropped.Add(1)
		if n == 1 || n%100 == 0 {
			s.logger.Warn("outbound queue full, dropping audio frame", "dropped", n)
		}
		return false
	}
}

func (s *Sender) Stop() {
	s.stopOnce.Do(s.cancel)
}

// Done is closed once the drain goroutine has exited.
func (s *Sender) Done() <-chan struct{} {
	return s.done
}

func (s *Sender) Stats() SenderStats {
	return SenderStats{
		Sent:    s.sent.Load(),
		Failed:  s.failed.Load(),
		Dropped: s.dropped.Load(),
	}
}

func (s *Sender) run() {
	defer close(s.done)

	for {
		select {
		case <-s.ctx.Done():
			return
		case blob := <-s.queue:
			if s.ctx.Err() != nil {
				return
			}
			s.send(blob)
		}
	}
}

func (s *Sender) send(blob audio.Blob) {
	err := s.session.Send(s.ctx, blob)
	if err == nil {
		s.sent.Add(1)
		return
	}

	if errors.Is(err, context.Canceled) {
		return
	}

	n := s.failed.Add(1)
	switch {
	case errors.Is(err, ErrSessionClosed):
		s.logger.Debug("send on closed session", "failed", n)
	default:
		s.logger.Warn("failed to send audio frame", "error", err, "failed", n)
	}
}
