package syncer

// State is the orchestrator's activity.
type State int

const (
	StateIdle State = iota
	StateSyncing
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateSyncing:
		return "Syncing"
	default:
		return "Unknown"
	}
}
