package gzclient

// State represents the session state machine position. Disconnected is both
// the initial state and the state reached after any disconnect or socket
// close; Error is reachable from any non-terminal state and immediately
// decays to Disconnected.
type State int

// Session states
const (
	StateDisconnected State = iota
	StateAwaitingSchema
	StateConnected
	StateReady
	StateError
)

// String returns the string representation of State
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateAwaitingSchema:
		return "awaiting_schema"
	case StateConnected:
		return "connected"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// StateChange describes one transition of the session state machine. Err is
// set when the transition was forced by a failure (socket error, rejected
// authorization, handshake decode failure).
type StateChange struct {
	From State
	To   State
	Err  error
}

// StateHandler observes session state transitions in order.
type StateHandler func(change StateChange)

// SceneHandler receives the scene snapshot delivered when the session
// reaches Ready, and any snapshot the server pushes afterwards.
type SceneHandler func(scene map[string]any)
