package shell

import (
	"errors"
	"sync"
	"testing"

	"github.com/eleven-am/aria-assistant/internal/voice"
)

func TestWidget_ToggleWhenClosed(t *testing.T) {
	ctrl := newFakeController()
	w := NewWidget(ctrl, testLogger())
	defer w.Shutdown()

	if _, err := w.ToggleConnection(); !errors.Is(err, ErrWidgetClosed) {
		t.Errorf("expected ErrWidgetClosed, got %v", err)
	}
	if ctrl.starts != 0 {
		t.Error("expected no connect attempt")
	}
}

func TestWidget_ToggleConnectsThenDisconnects(t *testing.T) {
	ctrl := newFakeController()
	w := NewWidget(ctrl, testLogger())
	defer w.Shutdown()

	w.Open()

	action, err := w.ToggleConnection()
	if err != nil {
		t.Fatalf("toggle error: %v", err)
	}
	if action != ActionConnect || ctrl.starts != 1 {
		t.Errorf("expected connect, got %s with %d starts", action, ctrl.starts)
	}

	action, err = w.ToggleConnection()
	if err != nil {
		t.Fatalf("toggle error: %v", err)
	}
	if action != ActionDisconnect || ctrl.disconnects != 1 {
		t.Errorf("expected disconnect while connecting, got %s", action)
	}

	ctrl.resolve(voice.ErrSuperseded)
}

func TestWidget_ToggleWhenConnected(t *testing.T) {
	ctrl := newFakeController()
	w := NewWidget(ctrl, testLogger())
	defer w.Shutdown()

	w.Open()
	if _, err := w.ToggleConnection(); err != nil {
		t.Fatalf("toggle error: %v", err)
	}
	ctrl.resolve(nil)

	if snap := w.Snapshot(); snap.ConnectionState != voice.StateConnected || snap.Hint != HintListening {
		t.Errorf("unexpected snapshot %+v", snap)
	}

	action, _ := w.ToggleConnection()
	if action != ActionDisconnect {
		t.Errorf("expected disconnect, got %s", action)
	}
}

func TestWidget_ToggleFromError(t *testing.T) {
	ctrl := newFakeController()
	w := NewWidget(ctrl, testLogger())
	defer w.Shutdown()

	w.Open()
	_, _ = w.ToggleConnection()
	ctrl.resolve(errors.New("handshake failed"))

	snap := w.Snapshot()
	if snap.ConnectionState != voice.StateError || snap.ErrorMessage != voice.MessageConnection {
		t.Errorf("expected error snapshot, got %+v", snap)
	}

	action, err := w.ToggleConnection()
	if err != nil || action != ActionConnect {
		t.Errorf("expected reconnect from error, got %s %v", action, err)
	}
	ctrl.resolve(nil)
}

func TestWidget_CloseDisconnectsFirst(t *testing.T) {
	ctrl := newFakeController()
	w := NewWidget(ctrl, testLogger())
	defer w.Shutdown()

	w.Open()
	_, _ = w.ToggleConnection()
	ctrl.resolve(nil)

	snap := w.Close()
	if ctrl.disconnects != 1 {
		t.Errorf("expected one disconnect, got %d", ctrl.disconnects)
	}
	if snap.IsOpen || snap.ConnectionState != voice.StateDisconnected || snap.Hint != HintIdle {
		t.Errorf("unexpected snapshot after close %+v", snap)
	}
}

func TestWidget_PublishesSnapshots(t *testing.T) {
	ctrl := newFakeController()
	w := NewWidget(ctrl, testLogger())
	defer w.Shutdown()

	var mu sync.Mutex
	var got []Snapshot
	w.Subscribe(func(s Snapshot) {
		mu.Lock()
		got = append(got, s)
		mu.Unlock()
	})

	w.Open()
	w.Open()
	_, _ = w.ToggleConnection()
	ctrl.resolve(nil)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 3 {
		t.Fatalf("expected open, connecting and connected snapshots, got %d", len(got))
	}
	if !got[0].IsOpen || got[1].ConnectionState != voice.StateConnecting || got[2].ConnectionState != voice.StateConnected {
		t.Errorf("unexpected snapshots %+v", got)
	}
}

func TestWidget_ShutdownCancelsConnect(t *testing.T) {
	ctrl := newFakeController()
	w := NewWidget(ctrl, testLogger())

	w.Open()
	_, _ = w.ToggleConnection()

	go func() {
		<-ctrl.lastCtx.Done()
		ctrl.resolve(ctrl.lastCtx.Err())
	}()
	w.Shutdown()

	if ctrl.lastCtx.Err() == nil {
		t.Error("expected connect context cancelled")
	}
}

func TestWidget_ControllerClosed(t *testing.T) {
	ctrl := newFakeController()
	ctrl.startErr = voice.ErrClosed
	w := NewWidget(ctrl, testLogger())
	defer w.Shutdown()

	w.Open()
	if _, err := w.ToggleConnection(); !errors.Is(err, voice.ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}
