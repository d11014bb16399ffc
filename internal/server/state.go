package server

// State is where a [Server] is in its lifecycle.
//
// The normal flow is:
//
//	Unknown → Starting → Running → Stopping → Stopped
//
// Starting and Running may fail. A stopped or failed server is not
// restarted; build a new one.
type State string

const (
	// StateUnknown is a server that has not been started.
	StateUnknown State = "unknown"
	// StateStarting is set while the listener is being opened.
	StateStarting State = "starting"
	// StateRunning is the only state in which /readyz answers 200.
	StateRunning State = "running"
	// StateStopping is set while in-flight requests drain.
	StateStopping State = "stopping"
	// StateStopped is a clean shutdown.
	StateStopped State = "stopped"
	// StateFailed means the listener could not be opened, serving
	// stopped unexpectedly, or a stop hook failed.
	StateFailed State = "failed"
)

func (s State) String() string { return string(s) }

// Valid reports whether s is one of the defined states.
func (s State) Valid() bool {
	switch s {
	case StateUnknown, StateStarting, StateRunning, StateStopping, StateStopped, StateFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether s is Stopped or Failed.
func (s State) IsTerminal() bool {
	return s == StateStopped || s == StateFailed
}

// validTransitions lists, per source state, the states it may move to.
//
//	Unknown  → Starting
//	Starting → Running, Failed
//	Running  → Stopping, Failed
//	Stopping → Stopped, Failed
var validTransitions = map[State][]State{
	StateUnknown:  {StateStarting},
	StateStarting: {StateRunning, StateFailed},
	StateRunning:  {StateStopping, StateFailed},
	StateStopping: {StateStopped, StateFailed},
}

// ValidTransition reports whether a server may move from one state to
// another. Same-state transitions are rejected.
func ValidTransition(from, to State) bool {
	for _, t := range validTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}
