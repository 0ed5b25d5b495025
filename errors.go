package sentriq

import "errors"

// ErrQueueFull is returned by Submit when the admission queue is at capacity.
// Callers decide whether to retry, shed the work, or fail the request.
var ErrQueueFull = errors.New("sentriq: task queue full")

// ErrExecutorStopped is returned by Submit after Stop has been called.
var ErrExecutorStopped = errors.New("sentriq: executor stopped")

// ErrDuplicateTask is returned when Submit is called with an explicit ID that
// already exists in the task table.
var ErrDuplicateTask = errors.New("sentriq: duplicate task id")

// ErrNilTaskFunc is returned by Submit when no task body is provided.
var ErrNilTaskFunc = errors.New("sentriq: nil task func")

// ErrUnknownStatus is returned when an invalid status string is parsed.
var ErrUnknownStatus = errors.New("sentriq: unknown status")
