package sentriq

// Status represents a task's lifecycle state. Use the exported constants
// (StatusPending, StatusRunning, etc.) instead of raw strings to avoid
// typos. Transitions are one-directional: pending precedes running, running
// precedes completed or failed, and cancelled is reachable from pending
// only. Terminal states never change again.
type Status string

const (
	// StatusPending marks a task admitted to the queue but not yet dispatched.
	StatusPending Status = "pending"
	// StatusRunning marks a task currently executing on a worker.
	StatusRunning Status = "running"
	// StatusCompleted marks a task whose body returned without error.
	StatusCompleted Status = "completed"
	// StatusFailed marks a task whose body returned an error or panicked.
	StatusFailed Status = "failed"
	// StatusCancelled marks a task cancelled while still pending.
	StatusCancelled Status = "cancelled"
)

// AllStatuses lists every valid task status in a stable order.
var AllStatuses = []Status{StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled}

// String returns the raw string value of the status.
func (s Status) String() string { return string(s) }

// Terminal reports whether the status is final. Terminal tasks are immutable
// and eligible for the retention sweep.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// ParseStatus converts a string into a Status, returning an error for
// unknown values.
func ParseStatus(s string) (Status, error) {
	switch s {
	case string(StatusPending):
		return StatusPending, nil
	case string(StatusRunning):
		return StatusRunning, nil
	case string(StatusCompleted):
		return StatusCompleted, nil
	case string(StatusFailed):
		return StatusFailed, nil
	case string(StatusCancelled):
		return StatusCancelled, nil
	default:
		return "", ErrUnknownStatus
	}
}
