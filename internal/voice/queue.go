package voice

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/eleven-am/aria-assistant/internal/audio"
)

type queued struct {
	src   audio.Source
	start float64
}

// playbackQueue tracks in-flight sources and the next-start cursor. It has
// its own lock because sources report their end from the render goroutine.
type playbackQueue struct {
	mu      sync.Mutex
	entries map[*queued]struct{}
	cursor  float64
	logger  *slog.Logger
}

func newPlaybackQueue(logger *slog.Logger) *playbackQueue {
	return &playbackQueue{
		entries: make(map[*queued]struct{}),
		logger:  logger,
	}
}

// schedule plays buf at max(cursor, clock) and advances the cursor by its duration.
func (q *playbackQueue) schedule(pc audio.PlaybackContext, buf *audio.Buffer, tap *audio.Analyser) (float64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	start := max(q.cursor, pc.CurrentTime())
	entry := &queued{start: start}
	src, err := pc.Schedule(buf, start, tap, func() { q.remove(entry) })
	if err != nil {
		return 0, err
	}
	entry.src = src
	q.entries[entry] = struct{}{}
	q.cursor = start + buf.Duration()
	return start, nil
}

func (q *playbackQueue) remove(entry *queued) {
	q.mu.Lock()
	delete(q.entries, entry)
	q.mu.Unlock()
}

// flush stops every queued source, empties the queue and resets the cursor.
// It returns how many sources were queued.
func (q *playbackQueue) flush() int {
	q.mu.Lock()
	entries := make([]*queued, 0, len(q.entries))
	for e := range q.entries {
		entries = append(entries, e)
	}
	clear(q.entries)
	q.cursor = 0
	q.mu.Unlock()

	for _, e := range entries {
		if err := e.src.Stop(); err != nil && !errors.Is(err, audio.ErrSourceEnded) {
			q.logger.Warn("failed to stop queued source", "error", err)
		}
	}
	return len(entries)
}

func (q *playbackQueue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

func (q *playbackQueue) nextStart() float64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cursor
}
