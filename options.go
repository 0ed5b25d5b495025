package sentriq

import "time"

type submitOptions struct {
	id        string
	retention time.Duration
}

// SubmitOption configures task behavior during Submit.
type SubmitOption func(*submitOptions)

// TaskID sets a custom ID for the task. If not provided, an ID is derived
// from the task name, the submission time and a random suffix. Submitting a
// duplicate explicit ID fails with ErrDuplicateTask.
func TaskID(id string) SubmitOption {
	return func(o *submitOptions) {
		o.id = id
	}
}

// Retention overrides how long the task is kept in the table after reaching
// a terminal state. Zero falls back to the executor default; a negative
// duration keeps the task until Stop.
func Retention(d time.Duration) SubmitOption {
	return func(o *submitOptions) {
		o.retention = d
	}
}
