package live

import (
	"context"
	"errors"

	"github.com/eleven-am/aria-assistant/internal/audio"
)

var (
	ErrSessionClosed   = errors.New("session is closed")
	ErrSetupIncomplete = errors.New("setup complete not received")
)

const ModalityAudio = "AUDIO"

// Config is the behaviour configuration supplied when a session opens.
type Config struct {
	Model             string
	Voice             string
	SystemInstruction string
	ResponseModality  string
	InputSampleRate   int
}

// Message is one inbound server message, reduced to what playback needs.
// Audio holds raw PCM already decoded from the transport encoding.
type Message struct {
	Audio            []byte
	MIMEType         string
	Interrupted      bool
	TurnComplete     bool
	InputTranscript  string
	OutputTranscript string
}

func (m Message) HasAudio() bool {
	return len(m.Audio) > 0
}

// Handlers receive inbound traffic. They are invoked from the session's
// receive goroutine, in transport order, only after Dial has returned.
type Handlers struct {
	OnMessage func(Message)
	OnClose   func()
	OnError   func(error)
}

func (h Handlers) message(msg Message) {
	if h.OnMessage != nil {
		h.OnMessage(msg)
	}
}

func (h Handlers) closed() {
	if h.OnClose != nil {
		h.OnClose()
	}
}

func (h Handlers) failed(err error) {
	if h.OnError != nil {
		h.OnError(err)
	}
}

// Session is the opaque handle to an open live session.
type Session interface {
	ID() string
	Send(ctx context.Context, blob audio.Blob) error
	Close() error
}

// Dialer opens a session and returns once the remote handshake completes.
type Dialer interface {
	Dial(ctx context.Context, cfg Config, handlers Handlers) (Session, error)
}
