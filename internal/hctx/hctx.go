package hctx

import (
	"context"
	"sync/atomic"
)

// State holds per-execution, task-provided metadata. The task body writes it
// from the worker goroutine while status readers observe it concurrently, so
// access goes through atomics.
type State struct {
	progress atomic.Int32
}

// New creates a fresh execution state container.
func New() *State { return &State{} }

// SetProgress records the body-reported completion percentage.
func (s *State) SetProgress(p int) { s.progress.Store(int32(p)) }

// Progress returns the last recorded completion percentage.
func (s *State) Progress() int { return int(s.progress.Load()) }

type ctxKey struct{}

// WithState returns a child context carrying the given execution state.
func WithState(parent context.Context, s *State) context.Context {
	return context.WithValue(parent, ctxKey{}, s)
}

// From extracts the execution state from context if present.
func From(ctx context.Context) (*State, bool) {
	v := ctx.Value(ctxKey{})
	if v == nil {
		return nil, false
	}
	st, ok := v.(*State)
	return st, ok
}
