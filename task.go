package sentriq

import (
	"context"
	"time"

	"github.com/Sentriq/sentriq-go/internal/hctx"
)

// TaskFunc is the unit of work submitted to the Executor. The body receives
// a context cancelled on executor shutdown and returns an opaque result.
// Bodies are treated as black boxes: the executor captures their result,
// error or panic, and never lets any of them take down the dispatch loop.
type TaskFunc func(ctx context.Context) (any, error)

// task is the executor-owned record for one submission. It lives in the task
// table for the duration of the retention window and is only ever mutated
// under the executor's mutex.
type task struct {
	id        string
	name      string
	fn        TaskFunc
	status    Status
	result    any
	err       string
	progress  int
	state     *hctx.State   // live progress while running, nil otherwise
	retention time.Duration // <0 keeps forever, 0 uses the executor default
	createdAt time.Time
	startedAt time.Time
	doneAt    time.Time
}

// view snapshots the record for external consumption.
func (t *task) view() TaskView {
	progress := t.progress
	if t.state != nil {
		progress = t.state.Progress()
	}
	return TaskView{
		ID:          t.id,
		Name:        t.name,
		Status:      t.status,
		Result:      t.result,
		Err:         t.err,
		Progress:    progress,
		CreatedAt:   t.createdAt,
		StartedAt:   t.startedAt,
		CompletedAt: t.doneAt,
	}
}

// TaskView is the externally visible snapshot of a task. Tasks are owned by
// the Executor for their whole lifetime and referenced outside only by ID;
// a view never aliases executor-internal state.
type TaskView struct {
	// ID is the unique identifier assigned at submission.
	ID string `json:"id"`
	// Name is the caller-supplied task name, used as the ID prefix.
	Name string `json:"name"`
	// Status is the task's current lifecycle state.
	Status Status `json:"status"`
	// Result is the value returned by the task body, present once completed.
	Result any `json:"result,omitempty"`
	// Err is the captured failure cause, present once failed.
	Err string `json:"error,omitempty"`
	// Progress is the body-reported progress (0..100).
	Progress int `json:"progress,omitempty"`
	// CreatedAt is when the task was admitted to the queue.
	CreatedAt time.Time `json:"created_at"`
	// StartedAt is when a worker began executing the task.
	StartedAt time.Time `json:"started_at,omitzero"`
	// CompletedAt is when the task reached a terminal state.
	CompletedAt time.Time `json:"completed_at,omitzero"`
}

// TaskFilter is a predicate used to filter snapshots during List.
type TaskFilter func(TaskView) bool
