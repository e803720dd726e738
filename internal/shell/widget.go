package shell

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/eleven-am/aria-assistant/internal/voice"
)

var ErrWidgetClosed = errors.New("widget is closed")

const (
	HintIdle      = "Tap microphone to speak with our AI agent"
	HintListening = "Listening... Speak naturally."
)

type Action string

const (
	ActionConnect    Action = "connect"
	ActionDisconnect Action = "disconnect"
)

// Controller is the part of voice.Controller the widget drives.
type Controller interface {
	StartConnect(ctx context.Context) (<-chan error, error)
	Disconnect()
	Stats() voice.Stats
	Subscribe(fn func(voice.StateChange)) func()
}

type Snapshot struct {
	IsOpen          bool        `json:"is_open"`
	ConnectionState voice.State `json:"connection_state" swaggertype:"string" enums:"disconnected,connecting,connected,error"`
	ErrorMessage    string      `json:"error_message,omitempty"`
	Hint            string      `json:"hint"`
}

func hintFor(state voice.State) string {
	if state == voice.StateConnected {
		return HintListening
	}
	return HintIdle
}

// Widget is the assistant panel: open/close plus the connect toggle.
type Widget struct {
	ctrl   Controller
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.Mutex
	open bool

	toggleMu sync.Mutex

	subMu   sync.Mutex
	subs    map[int]func(Snapshot)
	nextSub int

	unsubscribe func()
}

func NewWidget(ctrl Controller, logger *slog.Logger) *Widget {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Widget{
		ctrl:   ctrl,
		logger: logger.With("component", "widget"),
		ctx:    ctx,
		cancel: cancel,
		subs:   make(map[int]func(Snapshot)),
	}
	w.unsubscribe = ctrl.Subscribe(w.onStateChange)
	return w
}

func (w *Widget) Snapshot() Snapshot {
	open := w.IsOpen()
	st := w.ctrl.Stats()
	return Snapshot{
		IsOpen:          open,
		ConnectionState: st.State,
		ErrorMessage:    st.ErrorMessage,
		Hint:            hintFor(st.State),
	}
}

func (w *Widget) IsOpen() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.open
}

func (w *Widget) Subscribe(fn func(Snapshot)) func() {
	w.subMu.Lock()
	id := w.nextSub
	w.nextSub++
	w.subs[id] = fn
	w.subMu.Unlock()

	return func() {
		w.subMu.Lock()
		delete(w.subs, id)
		w.subMu.Unlock()
	}
}

func (w *Widget) Open() Snapshot {
	w.mu.Lock()
	changed := !w.open
	w.open = true
	w.mu.Unlock()

	snap := w.Snapshot()
	if changed {
		w.publish(snap)
	}
	return snap
}

// Close disconnects any session before hiding the panel.
func (w *Widget) Close() Snapshot {
	w.toggleMu.Lock()
	defer w.toggleMu.Unlock()

	w.ctrl.Disconnect()

	w.mu.Lock()
	changed := w.open
	w.open = false
	w.mu.Unlock()

	snap := w.Snapshot()
	if changed {
		w.publish(snap)
	}
	return snap
}

// ToggleConnection disconnects an active session or starts connecting one.
// Connect attempts outlive the request and end with Shutdown.
func (w *Widget) ToggleConnection() (Action, error) {
	w.toggleMu.Lock()
	defer w.toggleMu.Unlock()

	if !w.IsOpen() {
		return "", ErrWidgetClosed
	}

	if w.ctrl.Stats().State.Active() {
		w.ctrl.Disconnect()
		return ActionDisconnect, nil
	}

	done, err := w.ctrl.StartConnect(w.ctx)
	if errors.Is(err, voice.ErrAlreadyActive) {
		w.ctrl.Disconnect()
		return ActionDisconnect, nil
	}
	if err != nil {
		return "", err
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := <-done; err != nil && !errors.Is(err, voice.ErrSuperseded) {
			w.logger.Warn("connect attempt failed", "error", err)
		}
	}()
	return ActionConnect, nil
}

// Shutdown cancels in-flight connect attempts and waits for them to finish.
func (w *Widget) Shutdown() {
	w.cancel()
	w.wg.Wait()
	w.unsubscribe()
}

func (w *Widget) onStateChange(change voice.StateChange) {
	w.publish(Snapshot{
		IsOpen:          w.IsOpen(),
		ConnectionState: change.To,
		ErrorMessage:    change.ErrorMessage,
		Hint:            hintFor(change.To),
	})
}

func (w *Widget) publish(snap Snapshot) {
	w.subMu.Lock()
	subs := make([]func(Snapshot), 0, len(w.subs))
	for _, fn := range w.subs {
		subs = append(subs, fn)
	}
	w.subMu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}
