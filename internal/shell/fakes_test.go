package shell

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/eleven-am/aria-assistant/internal/voice"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeController moves straight to Connecting on StartConnect and lets the
// test decide when the attempt resolves.
type fakeController struct {
	mu          sync.Mutex
	state       voice.State
	errMsg      string
	startErr    error
	starts      int
	disconnects int
	lastCtx     context.Context
	result      chan error
	subs        []func(voice.StateChange)
}

func newFakeController() *fakeController {
	return &fakeController{state: voice.StateDisconnected}
}

func (f *fakeController) StartConnect(ctx context.Context) (<-chan error, error) {
	f.mu.Lock()
	if f.startErr != nil {
		err := f.startErr
		f.mu.Unlock()
		return nil, err
	}
	f.starts++
	f.lastCtx = ctx
	f.result = make(chan error, 1)
	result := f.result
	f.mu.Unlock()

	f.set(voice.StateConnecting, "")
	return result, nil
}

func (f *fakeController) Disconnect() {
	f.mu.Lock()
	f.disconnects++
	f.mu.Unlock()
	f.set(voice.StateDisconnected, "")
}

func (f *fakeController) Stats() voice.Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return voice.Stats{State: f.state, ErrorMessage: f.errMsg}
}

func (f *fakeController) Subscribe(fn func(voice.StateChange)) func() {
	f.mu.Lock()
	f.subs = append(f.subs, fn)
	f.mu.Unlock()
	return func() {}
}

func (f *fakeController) set(state voice.State, msg string) {
	f.mu.Lock()
	change := voice.StateChange{From: f.state, To: state, ErrorMessage: msg}
	f.state = state
	f.errMsg = msg
	subs := append([]func(voice.StateChange)(nil), f.subs...)
	f.mu.Unlock()

	for _, fn := range subs {
		fn(change)
	}
}

func (f *fakeController) resolve(err error) {
	f.mu.Lock()
	result := f.result
	f.mu.Unlock()
	if err == nil {
		f.set(voice.StateConnected, "")
	} else {
		f.set(voice.StateError, voice.MessageConnection)
	}
	result <- err
}
