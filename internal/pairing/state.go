package pairing

// State is the lifecycle position of a pairing handle.
type State int

const (
	StateIdle State = iota
	StateListening
	StateHandshaking
	StatePaired
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateHandshaking:
		return "handshaking"
	case StatePaired:
		return "paired"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StatePaired || s == StateFailed
}
