package progress

// State is the lifecycle state of a tracked invocation.
type State string

const (
	StateQueued   State = "queued"
	StateRunning  State = "running"
	StateSuccess  State = "success"
	StateFailed   State = "failed"
	StateCanceled State = "canceled"
)

// Terminal reports whether s ends an invocation.
func (s State) Terminal() bool {
	switch s {
	case StateSuccess, StateFailed, StateCanceled:
		return true
	}
	return false
}
