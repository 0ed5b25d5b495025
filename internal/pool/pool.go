package pool

// Package pool provides the bounded worker pool behind the executor. Slots
// are a buffered-channel semaphore; the dispatcher acquires a slot before
// handing work off, which is what bounds task concurrency and keeps
// admission FIFO.

import (
	"context"
	"sync"
	"time"
)

// Pool bounds concurrent execution to a fixed number of slots.
type Pool struct {
	sem chan struct{}
	wg  sync.WaitGroup
}

// New creates a pool with the given number of slots. Sizes below one are
// clamped to one.
func New(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{sem: make(chan struct{}, size)}
}

// Acquire blocks until a slot is free or ctx ends. On success it returns a
// release function that must be called exactly once.
func (p *Pool) Acquire(ctx context.Context) (release func(), ok bool) {
	select {
	case p.sem <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-p.sem }) }, true
	case <-ctx.Done():
		return nil, false
	}
}

// Run executes fn on a new goroutine tracked by Wait. The caller is
// responsible for holding a slot for the duration of fn.
func (p *Pool) Run(fn func()) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		fn()
	}()
}

// Wait blocks until all running work finishes or the timeout elapses.
// It returns false on timeout. A timeout of zero or less waits forever.
func (p *Pool) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	if timeout <= 0 {
		<-done
		return true
	}
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// InFlight reports how many slots are currently held.
func (p *Pool) InFlight() int { return len(p.sem) }

// Size reports the pool's slot capacity.
func (p *Pool) Size() int { return cap(p.sem) }
