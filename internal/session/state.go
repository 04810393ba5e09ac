package session

// State is a step of the writer handshake.
type State int

const (
	StateStart State = iota
	StateConnected
	StateAuthorized
	StateRegistering
	StateReconnecting
	StateSubmitted
	StateFailed
)

// String returns the string representation of State
func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateConnected:
		return "connected"
	case StateAuthorized:
		return "authorized"
	case StateRegistering:
		return "registering"
	case StateReconnecting:
		return "reconnecting"
	case StateSubmitted:
		return "submitted"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions follow s.
func (s State) Terminal() bool {
	return s == StateSubmitted || s == StateFailed
}
