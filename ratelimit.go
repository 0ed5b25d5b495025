package sentriq

import (
	"context"
	"sync"
	"time"

	"github.com/Sentriq/sentriq-go/internal/clock"
	"github.com/Sentriq/sentriq-go/internal/window"
)

// limiterHorizon is the longest window tracked per record. Minute counts
// are derived from the same timestamps, so one horizon serves both.
const limiterHorizon = time.Hour

// DefaultClass is the class used when Allow is called with an unknown one.
const DefaultClass = "default"

// ClassLimit caps one endpoint class over two sliding windows.
type ClassLimit struct {
	// PerMinute is the cap over the trailing 60 seconds.
	PerMinute int
	// PerHour is the cap over the trailing hour.
	PerHour int
}

// defaultClasses is the limit table used when LimiterConfig.Classes is nil.
var defaultClasses = map[string]ClassLimit{
	"auth":       {PerMinute: 10, PerHour: 100},
	"upload":     {PerMinute: 20, PerHour: 200},
	"api":        {PerMinute: 120, PerHour: 2000},
	DefaultClass: {PerMinute: 60, PerHour: 1000},
}

// LimiterConfig defines the configuration for a Limiter.
type LimiterConfig struct {
	// Classes maps endpoint class names to their limits. Nil selects the
	// built-in table. A table without a "default" entry gets one added so
	// unknown classes always resolve.
	Classes map[string]ClassLimit
	// CleanupEvery is the janitor period for dropping idle identities.
	// Defaults to 5 minutes.
	CleanupEvery time.Duration
	// Logger is the logger used for limiter events.
	Logger Logger
}

// WindowInfo describes one window of a rate decision.
type WindowInfo struct {
	// Limit is the window cap.
	Limit int `json:"limit"`
	// Used is the number of requests counted against the cap, including
	// the current one when it was admitted.
	Used int `json:"used"`
	// Remaining is how many further requests the window admits.
	Remaining int `json:"remaining"`
	// Reset is when the oldest counted request leaves the window.
	Reset time.Time `json:"reset"`
}

// RateLimitInfo reports both windows of an Allow decision. The fields map
// directly onto X-RateLimit response headers.
type RateLimitInfo struct {
	// Class is the class that governed the decision, after any fallback.
	Class  string     `json:"class"`
	Minute WindowInfo `json:"minute"`
	Hour   WindowInfo `json:"hour"`
}

// LimiterStats is a point-in-time summary of limiter traffic.
type LimiterStats struct {
	// Allowed and Rejected count Allow outcomes since construction.
	Allowed  uint64 `json:"allowed"`
	Rejected uint64 `json:"rejected"`
	// Tracked is the number of live (class, identity) records.
	Tracked int `json:"tracked"`
}

// Limiter enforces per-identity, per-class sliding-window rate limits.
// All state is in-memory behind one mutex; a janitor goroutine drops
// identities that have gone quiet for a full horizon.
type Limiter struct {
	classes      map[string]ClassLimit
	cleanupEvery time.Duration
	log          Logger
	clock        clock.Clock

	mu     sync.Mutex
	tables map[string]map[string]*window.Record // class -> identity -> record

	allowed  uint64
	rejected uint64

	lifecycle sync.Mutex
	started   bool
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewLimiter creates a limiter from cfg. Start launches the janitor; Allow
// works without it, records just will not be reclaimed.
func NewLimiter(cfg LimiterConfig) *Limiter {
	src := cfg.Classes
	if src == nil {
		src = defaultClasses
	}
	classes := make(map[string]ClassLimit, len(src)+1)
	for name, lim := range src {
		classes[name] = lim
	}
	if _, ok := classes[DefaultClass]; !ok {
		classes[DefaultClass] = defaultClasses[DefaultClass]
	}
	cleanup := cfg.CleanupEvery
	if cleanup <= 0 {
		cleanup = 5 * time.Minute
	}
	l := cfg.Logger
	if l == nil {
		l = NewFmtLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Limiter{
		classes:      classes,
		cleanupEvery: cleanup,
		log:          l,
		clock:        clock.System(),
		tables:       make(map[string]map[string]*window.Record),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Allow records a request for identity under class and reports whether it is
// admitted, together with the state of both windows. The Nth request of a
// window limited to N is admitted; the next is not. An unknown class is
// governed by the "default" entry. Check and append happen under one lock,
// so concurrent callers for the same identity cannot both take the last
// slot.
func (l *Limiter) Allow(identity, class string) (bool, RateLimitInfo) {
	lim, ok := l.classes[class]
	if !ok {
		class = DefaultClass
		lim = l.classes[DefaultClass]
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	byIdentity := l.tables[class]
	if byIdentity == nil {
		byIdentity = make(map[string]*window.Record)
		l.tables[class] = byIdentity
	}
	rec := byIdentity[identity]
	if rec == nil {
		rec = &window.Record{}
		byIdentity[identity] = rec
	}

	rec.Prune(now, limiterHorizon)
	minuteUsed := rec.CountSince(now, time.Minute)
	hourUsed := rec.Len()

	admitted := minuteUsed < lim.PerMinute && hourUsed < lim.PerHour
	if admitted {
		rec.Add(now)
		minuteUsed++
		hourUsed++
		l.allowed++
	} else {
		l.rejected++
		l.log.Debugf("rate limit exceeded: identity=%s class=%s minute=%d/%d hour=%d/%d",
			identity, class, minuteUsed, lim.PerMinute, hourUsed, lim.PerHour)
	}

	info := RateLimitInfo{
		Class:  class,
		Minute: l.windowInfo(rec, now, time.Minute, lim.PerMinute, minuteUsed),
		Hour:   l.windowInfo(rec, now, limiterHorizon, lim.PerHour, hourUsed),
	}
	return admitted, info
}

// windowInfo builds the reporting view of one window. Callers hold l.mu.
func (l *Limiter) windowInfo(rec *window.Record, now time.Time, span time.Duration, limit, used int) WindowInfo {
	reset := now.Add(span)
	if oldest, ok := rec.OldestSince(now, span); ok {
		reset = oldest.Add(span)
	}
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	return WindowInfo{Limit: limit, Used: used, Remaining: remaining, Reset: reset}
}

// Stats reports limiter traffic counters and the live record count.
func (l *Limiter) Stats() LimiterStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	tracked := 0
	for _, byIdentity := range l.tables {
		tracked += len(byIdentity)
	}
	return LimiterStats{Allowed: l.allowed, Rejected: l.rejected, Tracked: tracked}
}

// Start launches the janitor goroutine. It is idempotent and non-blocking.
func (l *Limiter) Start() {
	l.lifecycle.Lock()
	if l.started {
		l.log.Warnf("limiter already started; ignoring Start()")
		l.lifecycle.Unlock()
		return
	}
	l.started = true
	l.lifecycle.Unlock()
	l.log.Infof("starting limiter: classes=%d cleanup=%s", len(l.classes), l.cleanupEvery)

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ticker := l.clock.NewTicker(l.cleanupEvery)
		defer ticker.Stop()
		for {
			select {
			case <-l.ctx.Done():
				return
			case <-ticker.C():
				removed := l.cleanup()
				if removed > 0 {
					l.log.Debugf("janitor: dropped idle identities count=%d", removed)
				}
			}
		}
	}()
}

// Stop halts the janitor and waits for it to exit. It is idempotent.
func (l *Limiter) Stop() {
	l.lifecycle.Lock()
	if !l.started {
		l.log.Warnf("limiter not started; ignoring Stop()")
		l.lifecycle.Unlock()
		return
	}
	l.started = false
	l.lifecycle.Unlock()
	l.cancel()
	l.wg.Wait()
	l.log.Infof("limiter stopped")
}

// cleanup prunes every record and drops the empty ones, returning how many
// identities were removed. It shares the table mutex with Allow, so a
// record cannot be reclaimed mid-decision.
func (l *Limiter) cleanup() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock.Now()
	removed := 0
	for class, byIdentity := range l.tables {
		for identity, rec := range byIdentity {
			rec.Prune(now, limiterHorizon)
			if rec.Empty() {
				delete(byIdentity, identity)
				removed++
			}
		}
		if len(byIdentity) == 0 {
			delete(l.tables, class)
		}
	}
	return removed
}
