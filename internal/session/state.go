package session

// State is a Session Store lifecycle state.
type State int

const (
	StateInitializing State = iota
	StateActive
	StateRefreshing
	StateSignedOut
	StateCorrupted
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateActive:
		return "active"
	case StateRefreshing:
		return "refreshing"
	case StateSignedOut:
		return "signed_out"
	case StateCorrupted:
		return "corrupted"
	}
	return "invalid"
}

// settled reports whether s is a state observers are told about.
func (s State) settled() bool {
	return s == StateActive || s == StateSignedOut
}
