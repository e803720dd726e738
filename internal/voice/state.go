package voice

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateError        State = "error"
)

func (s State) String() string {
	return string(s)
}

// Active reports whether a connection is in flight or established.
func (s State) Active() bool {
	return s == StateConnecting || s == StateConnected
}

type StateChange struct {
	From         State  `json:"from"`
	To           State  `json:"to"`
	ErrorMessage string `json:"error_message,omitempty"`
	Generation   uint64 `json:"generation"`
}
