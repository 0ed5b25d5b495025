package sentriq

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Sentriq/sentriq-go/internal/clock"
	"github.com/Sentriq/sentriq-go/internal/hctx"
	"github.com/Sentriq/sentriq-go/internal/pool"
)

// ExecutorConfig defines the configuration for an Executor.
type ExecutorConfig struct {
	// Workers is the number of concurrent task slots.
	Workers int
	// QueueSize is the admission queue capacity. Submit fails with
	// ErrQueueFull once it is reached.
	QueueSize int
	// Retention is how long terminal tasks stay visible to Status and
	// List before the sweeper removes them. Zero selects 24 hours; a
	// negative value keeps them until Stop.
	Retention time.Duration
	// SweepEvery is the retention sweep period.
	SweepEvery time.Duration
	// StopTimeout bounds how long Stop waits for in-flight tasks.
	StopTimeout time.Duration
	// Logger is the logger used for executor events.
	Logger Logger
}

// ExecutorStats is a point-in-time summary of the task table and pool.
type ExecutorStats struct {
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
	// QueueDepth is the number of admitted tasks not yet picked up.
	QueueDepth int `json:"queue_depth"`
	// InFlight is the number of worker slots currently held.
	InFlight int `json:"in_flight"`
	// Workers is the configured slot count.
	Workers int `json:"workers"`
}

// Executor runs submitted tasks on a bounded worker pool fed by a single
// dispatcher goroutine. Admission is FIFO; completion order is not
// guaranteed. Task state lives in an in-memory table behind one mutex and
// survives until the retention sweep removes it.
//
// The lifecycle is one-shot: Start launches the dispatcher and sweeper,
// Stop halts intake, waits out in-flight work up to StopTimeout, then
// cancels whatever is left. A stopped executor does not restart.
type Executor struct {
	workers     int
	retention   time.Duration
	sweepEvery  time.Duration
	stopTimeout time.Duration
	log         Logger
	clock       clock.Clock

	mu    sync.Mutex
	tasks map[string]*task

	queue chan *task
	pool  *pool.Pool

	// ctx gates the dispatcher and sweeper; taskCtx is handed to task
	// bodies and outlives ctx so in-flight work can finish during Stop.
	ctx        context.Context
	cancel     context.CancelFunc
	taskCtx    context.Context
	taskCancel context.CancelFunc
	loops      sync.WaitGroup

	lifecycle sync.Mutex
	started   bool
	stopped   bool
}

// NewExecutor creates an executor from cfg. Tasks can be submitted before
// Start; they sit in the queue until the dispatcher comes up.
func NewExecutor(cfg ExecutorConfig) *Executor {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	retention := cfg.Retention
	if retention == 0 {
		retention = 24 * time.Hour
	}
	sweepEvery := cfg.SweepEvery
	if sweepEvery <= 0 {
		sweepEvery = time.Minute
	}
	stopTimeout := cfg.StopTimeout
	if stopTimeout <= 0 {
		stopTimeout = 30 * time.Second
	}
	l := cfg.Logger
	if l == nil {
		l = NewFmtLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	taskCtx, taskCancel := context.WithCancel(context.Background())
	return &Executor{
		workers:     workers,
		retention:   retention,
		sweepEvery:  sweepEvery,
		stopTimeout: stopTimeout,
		log:         l,
		clock:       clock.System(),
		tasks:       make(map[string]*task),
		queue:       make(chan *task, queueSize),
		pool:        pool.New(workers),
		ctx:         ctx,
		cancel:      cancel,
		taskCtx:     taskCtx,
		taskCancel:  taskCancel,
	}
}

// Submit enqueues fn under the given name and returns the task ID without
// waiting for execution. It never blocks beyond enqueue: a full queue fails
// fast with ErrQueueFull, and after Stop it fails with ErrExecutorStopped.
func (e *Executor) Submit(name string, fn TaskFunc, opts ...SubmitOption) (string, error) {
	if fn == nil {
		return "", ErrNilTaskFunc
	}
	var o submitOptions
	for _, opt := range opts {
		opt(&o)
	}

	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()
	if e.stopped {
		return "", ErrExecutorStopped
	}

	now := e.clock.Now()
	id := o.id
	if id == "" {
		id = newTaskID(name, now)
	}
	t := &task{
		id:        id,
		name:      name,
		fn:        fn,
		status:    StatusPending,
		retention: o.retention,
		createdAt: now,
	}

	e.mu.Lock()
	if _, dup := e.tasks[id]; dup {
		e.mu.Unlock()
		return "", ErrDuplicateTask
	}
	e.tasks[id] = t
	e.mu.Unlock()

	select {
	case e.queue <- t:
	default:
		e.mu.Lock()
		delete(e.tasks, id)
		e.mu.Unlock()
		return "", ErrQueueFull
	}
	e.log.Debugf("task submitted: id=%s depth=%d", id, len(e.queue))
	return id, nil
}

// Status returns the current snapshot of a task, or false if the ID is
// unknown or already swept.
func (e *Executor) Status(id string) (TaskView, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.tasks[id]
	if !ok {
		return TaskView{}, false
	}
	return t.view(), true
}

// Cancel marks a pending task cancelled and reports whether it did. A task
// in any other state is left alone: running work is cooperative and cannot
// be preempted. A cancelled task is skipped by the dispatcher, so it never
// transitions to running.
func (e *Executor) Cancel(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.tasks[id]
	if !ok || t.status != StatusPending {
		return false
	}
	t.status = StatusCancelled
	t.doneAt = e.clock.Now()
	return true
}

// List returns snapshots of every task accepted by filter, oldest first.
// A nil filter selects everything.
func (e *Executor) List(filter TaskFilter) []TaskView {
	e.mu.Lock()
	views := make([]TaskView, 0, len(e.tasks))
	for _, t := range e.tasks {
		v := t.view()
		if filter == nil || filter(v) {
			views = append(views, v)
		}
	}
	e.mu.Unlock()
	sort.Slice(views, func(i, j int) bool {
		if views[i].CreatedAt.Equal(views[j].CreatedAt) {
			return views[i].ID < views[j].ID
		}
		return views[i].CreatedAt.Before(views[j].CreatedAt)
	})
	return views
}

// Stats reports per-status task counts alongside queue and pool state.
func (e *Executor) Stats() ExecutorStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := ExecutorStats{
		QueueDepth: len(e.queue),
		InFlight:   e.pool.InFlight(),
		Workers:    e.pool.Size(),
	}
	for _, t := range e.tasks {
		switch t.status {
		case StatusPending:
			s.Pending++
		case StatusRunning:
			s.Running++
		case StatusCompleted:
			s.Completed++
		case StatusFailed:
			s.Failed++
		case StatusCancelled:
			s.Cancelled++
		}
	}
	return s
}

// Start launches the dispatcher and the retention sweeper. It is idempotent
// and non-blocking.
func (e *Executor) Start() {
	e.lifecycle.Lock()
	if e.stopped {
		e.log.Warnf("executor stopped; ignoring Start()")
		e.lifecycle.Unlock()
		return
	}
	if e.started {
		e.log.Warnf("executor already started; ignoring Start()")
		e.lifecycle.Unlock()
		return
	}
	e.started = true
	e.lifecycle.Unlock()
	e.log.Infof("starting executor: workers=%d queue=%d", e.pool.Size(), cap(e.queue))

	e.loops.Add(1)
	go func() {
		defer e.loops.Done()
		e.dispatch()
	}()

	// Retention sweeper
	e.loops.Add(1)
	go func() {
		defer e.loops.Done()
		ticker := e.clock.NewTicker(e.sweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-e.ctx.Done():
				return
			case <-ticker.C():
				if n := e.sweep(); n > 0 {
					e.log.Debugf("sweep: removed terminal tasks count=%d", n)
				}
			}
		}
	}()
}

// Stop halts intake, waits up to StopTimeout for in-flight tasks, then
// cancels whatever is still running. It is idempotent; afterwards Submit
// fails with ErrExecutorStopped.
func (e *Executor) Stop() {
	e.lifecycle.Lock()
	if !e.started || e.stopped {
		e.log.Warnf("executor not running; ignoring Stop()")
		e.lifecycle.Unlock()
		return
	}
	e.stopped = true
	e.lifecycle.Unlock()
	e.log.Infof("stopping executor")

	e.cancel()
	e.loops.Wait()
	if !e.pool.Wait(e.stopTimeout) {
		e.log.Warnf("stop timeout after %s; releasing in-flight tasks", e.stopTimeout)
	}
	e.taskCancel()
	e.log.Infof("executor stopped")
}

// dispatch is the single consumer of the admission queue. It survives every
// task outcome; only executor shutdown ends it.
func (e *Executor) dispatch() {
	for {
		select {
		case <-e.ctx.Done():
			return
		case t := <-e.queue:
			release, ok := e.pool.Acquire(e.ctx)
			if !ok {
				// Shutdown while waiting for a slot. The task was
				// never marked running and stays pending.
				return
			}
			if !e.markRunning(t) {
				// Cancelled while queued.
				release()
				continue
			}
			e.pool.Run(func() {
				defer release()
				e.run(t)
			})
		}
	}
}

// markRunning moves a task from pending to running. It reports false for
// any other starting state, which is how cancelled tasks get skipped.
func (e *Executor) markRunning(t *task) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t.status != StatusPending {
		return false
	}
	t.status = StatusRunning
	t.startedAt = e.clock.Now()
	t.state = hctx.New()
	return true
}

// run executes one task body and records the outcome. Panics are captured
// as failures so a bad task can never take down the pool.
func (e *Executor) run(t *task) {
	ctx := hctx.WithState(e.taskCtx, t.state)
	defer func() {
		if r := recover(); r != nil {
			e.log.Errorf("task panicked: id=%s err=%v\n%s", t.id, r, debug.Stack())
			e.finish(t, nil, fmt.Errorf("panic: %v", r))
		}
	}()
	res, err := t.fn(ctx)
	e.finish(t, res, err)
	if err != nil {
		e.log.Warnf("task failed: id=%s err=%v", t.id, err)
	} else {
		e.log.Debugf("task completed: id=%s", t.id)
	}
}

// finish records a terminal outcome. Transitions are monotonic: once a task
// left running this is a no-op.
func (e *Executor) finish(t *task, res any, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t.status != StatusRunning {
		return
	}
	if t.state != nil {
		t.progress = t.state.Progress()
		t.state = nil
	}
	t.doneAt = e.clock.Now()
	if err != nil {
		t.status = StatusFailed
		t.err = err.Error()
		return
	}
	t.status = StatusCompleted
	t.result = res
	t.progress = 100
}

// sweep removes terminal tasks older than their retention. Pending and
// running tasks are never touched.
func (e *Executor) sweep() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.clock.Now()
	removed := 0
	for id, t := range e.tasks {
		if !t.status.Terminal() {
			continue
		}
		ret := t.retention
		if ret == 0 {
			ret = e.retention
		}
		if ret < 0 {
			continue
		}
		if now.Sub(t.doneAt) >= ret {
			delete(e.tasks, id)
			removed++
		}
	}
	return removed
}

// newTaskID builds a readable, unique task ID from the task name, the
// submission time and a random suffix.
func newTaskID(name string, at time.Time) string {
	return name + "-" + strconv.FormatInt(at.UnixMilli(), 10) + "-" + uuid.NewString()[:8]
}
