package audio

import (
	"context"
	"errors"
)

var (
	ErrSourceEnded        = errors.New("source already ended")
	ErrContextClosed      = errors.New("audio context closed")
	ErrSampleRateMismatch = errors.New("buffer sample rate does not match context")
)

// Device opens the local audio hardware. RequestMicrophone is the
// permission-gated step; the contexts are plain processing graphs.
type Device interface {
	RequestMicrophone(ctx context.Context) (MediaStream, error)
	OpenCapture(sampleRate int) (CaptureContext, error)
	OpenPlayback(sampleRate int) (PlaybackContext, error)
}

type MediaStream interface {
	Tracks() []Track
}

type Track interface {
	Stop()
	Live() bool
}

// StopTracks stops every track of the stream. A nil stream is a no-op.
func StopTracks(stream MediaStream) {
	if stream == nil {
		return
	}
	for _, t := range stream.Tracks() {
		t.Stop()
	}
}

type CaptureContext interface {
	SampleRate() int
	// Connect routes the stream through a processor that calls onFrame with
	// frameSize mono samples at a time until the node is disconnected.
	Connect(stream MediaStream, frameSize int, onFrame func([]float32)) (CaptureNode, error)
	Close() error
}

type CaptureNode interface {
	Disconnect()
}

type PlaybackContext interface {
	SampleRate() int
	// CurrentTime is the playback clock in seconds.
	CurrentTime() float64
	NewAnalyser(fftSize int) (*Analyser, error)
	// Schedule plays buf starting at the given clock time, routed through tap
	// when non-nil. onEnded runs once when the source finishes or is stopped.
	Schedule(buf *Buffer, at float64, tap *Analyser, onEnded func()) (Source, error)
	Close() error
}

type Source interface {
	StartTime() float64
	Duration() float64
	Stop() error
}
