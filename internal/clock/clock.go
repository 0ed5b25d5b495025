package clock

// Package clock abstracts wall-clock access so expiry, window and retention
// logic can be tested without real sleeps. Production code uses System;
// tests use Fake and advance it manually.

import (
	"sync"
	"time"
)

// Clock provides the time operations the library depends on.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
	After(d time.Duration) <-chan time.Time
}

// Ticker mirrors time.Ticker behind an interface so it can be faked.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// System returns a Clock backed by the time package.
func System() Clock { return systemClock{} }

type systemClock struct{}

func (systemClock) Now() time.Time                         { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (systemClock) NewTicker(d time.Duration) Ticker {
	return &systemTicker{t: time.NewTicker(d)}
}

type systemTicker struct{ t *time.Ticker }

func (s *systemTicker) C() <-chan time.Time { return s.t.C }
func (s *systemTicker) Stop()               { s.t.Stop() }

// Fake is a manually advanced Clock for tests. Advance moves the current
// time forward and fires any tickers or timers that come due, in order.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
	timers  []*fakeTimer
}

// NewFake creates a Fake clock pinned at the given instant.
func NewFake(at time.Time) *Fake { return &Fake{now: at} }

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) NewTicker(d time.Duration) Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTicker{ch: make(chan time.Time, 1), every: d, next: f.now.Add(d)}
	f.tickers = append(f.tickers, t)
	return t
}

func (f *Fake) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	tm := &fakeTimer{ch: make(chan time.Time, 1), at: f.now.Add(d)}
	f.timers = append(f.timers, tm)
	return tm.ch
}

// Advance moves the fake time forward by d and delivers due ticks/timers.
// Tick delivery is non-blocking, matching time.Ticker's drop-on-slow-reader
// behavior.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	now := f.now
	tickers := make([]*fakeTicker, len(f.tickers))
	copy(tickers, f.tickers)
	var due []*fakeTimer
	rest := f.timers[:0]
	for _, tm := range f.timers {
		if !tm.at.After(now) {
			due = append(due, tm)
		} else {
			rest = append(rest, tm)
		}
	}
	f.timers = rest
	f.mu.Unlock()

	for _, t := range tickers {
		t.advance(now)
	}
	for _, tm := range due {
		tm.ch <- tm.at
	}
}

type fakeTicker struct {
	mu      sync.Mutex
	ch      chan time.Time
	every   time.Duration
	next    time.Time
	stopped bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *fakeTicker) advance(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	for !t.next.After(now) {
		select {
		case t.ch <- t.next:
		default:
		}
		t.next = t.next.Add(t.every)
	}
}

type fakeTimer struct {
	ch chan time.Time
	at time.Time
}
