package voice

import (
	"testing"
)

func TestNotifier_DeliversInOrder(t *testing.T) {
	n := newNotifier()

	var got []State
	unsubscribe := n.subscribe(func(ch StateChange) { got = append(got, ch.To) })

	want := []State{StateConnecting, StateConnected, StateDisconnected, StateConnecting, StateError}
	for _, s := range want {
		n.publish(StateChange{To: s})
	}
	n.stop()

	if len(got) != len(want) {
		t.Fatalf("expected %d changes, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("change %d: expected %s, got %s", i, want[i], got[i])
		}
	}
	unsubscribe()
}

func TestNotifier_UnsubscribeAndStop(t *testing.T) {
	n := newNotifier()

	calls := 0
	unsubscribe := n.subscribe(func(StateChange) { calls++ })
	unsubscribe()

	n.publish(StateChange{To: StateConnected})
	n.stop()
	n.stop()
	n.publish(StateChange{To: StateError})

	if calls != 0 {
		t.Errorf("expected no calls after unsubscribe, got %d", calls)
	}
}
