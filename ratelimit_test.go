package sentriq

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sentriq/sentriq-go/internal/clock"
)

func newFakeLimiter(t *testing.T, cfg LimiterConfig) (*Limiter, *clock.Fake) {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = NopLogger{}
	}
	l := NewLimiter(cfg)
	fc := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	l.clock = fc
	return l, fc
}

func TestLimiter_DefaultsApplied(t *testing.T) {
	l, _ := newFakeLimiter(t, LimiterConfig{})
	for _, class := range []string{"auth", "upload", "api", DefaultClass} {
		_, ok := l.classes[class]
		assert.True(t, ok, "missing default class %q", class)
	}
	assert.Equal(t, ClassLimit{PerMinute: 10, PerHour: 100}, l.classes["auth"])
}

func TestLimiter_DefaultClassInjected(t *testing.T) {
	l, _ := newFakeLimiter(t, LimiterConfig{
		Classes: map[string]ClassLimit{"auth": {PerMinute: 5, PerHour: 50}},
	})
	_, ok := l.classes[DefaultClass]
	require.True(t, ok)

	// unknown class resolves through the injected default
	allowed, info := l.Allow("1.2.3.4", "no-such-class")
	assert.True(t, allowed)
	assert.Equal(t, DefaultClass, info.Class)
}

func TestLimiter_MinuteBoundary(t *testing.T) {
	l, _ := newFakeLimiter(t, LimiterConfig{
		Classes: map[string]ClassLimit{"auth": {PerMinute: 5, PerHour: 100}},
	})

	// the Nth request is the last one allowed
	for i := 1; i <= 5; i++ {
		allowed, info := l.Allow("10.0.0.1", "auth")
		require.True(t, allowed, "request %d should be admitted", i)
		assert.Equal(t, i, info.Minute.Used)
		assert.Equal(t, 5-i, info.Minute.Remaining)
	}

	allowed, info := l.Allow("10.0.0.1", "auth")
	assert.False(t, allowed)
	assert.Equal(t, 5, info.Minute.Used)
	assert.Equal(t, 0, info.Minute.Remaining)
}

func TestLimiter_WindowSlides(t *testing.T) {
	l, fc := newFakeLimiter(t, LimiterConfig{
		Classes: map[string]ClassLimit{"auth": {PerMinute: 2, PerHour: 100}},
	})

	l.Allow("10.0.0.1", "auth")
	l.Allow("10.0.0.1", "auth")
	allowed, _ := l.Allow("10.0.0.1", "auth")
	require.False(t, allowed)

	// past the minute window the identity is admitted again
	fc.Advance(61 * time.Second)
	allowed, info := l.Allow("10.0.0.1", "auth")
	assert.True(t, allowed)
	assert.Equal(t, 1, info.Minute.Used)
	// the hour window still remembers all three admitted hits
	assert.Equal(t, 3, info.Hour.Used)
}

func TestLimiter_HourCap(t *testing.T) {
	l, fc := newFakeLimiter(t, LimiterConfig{
		Classes: map[string]ClassLimit{"burst": {PerMinute: 5, PerHour: 8}},
	})

	for i := 0; i < 5; i++ {
		allowed, _ := l.Allow("10.0.0.2", "burst")
		require.True(t, allowed)
	}
	fc.Advance(2 * time.Minute)
	for i := 0; i < 3; i++ {
		allowed, _ := l.Allow("10.0.0.2", "burst")
		require.True(t, allowed)
	}

	// minute window is clear but the hour budget is spent
	allowed, info := l.Allow("10.0.0.2", "burst")
	assert.False(t, allowed)
	assert.Equal(t, 3, info.Minute.Used)
	assert.Equal(t, 8, info.Hour.Used)
	assert.Equal(t, 0, info.Hour.Remaining)
}

func TestLimiter_ClassesIndependent(t *testing.T) {
	l, _ := newFakeLimiter(t, LimiterConfig{
		Classes: map[string]ClassLimit{
			"auth":       {PerMinute: 5, PerHour: 100},
			DefaultClass: {PerMinute: 60, PerHour: 1000},
		},
	})

	// exhaust auth for this identity
	for i := 0; i < 5; i++ {
		l.Allow("10.0.0.3", "auth")
	}
	allowed, _ := l.Allow("10.0.0.3", "auth")
	require.False(t, allowed)

	// default must be unaffected
	allowed, info := l.Allow("10.0.0.3", DefaultClass)
	assert.True(t, allowed)
	assert.Equal(t, 1, info.Minute.Used)
}

func TestLimiter_IdentitiesIndependent(t *testing.T) {
	l, _ := newFakeLimiter(t, LimiterConfig{
		Classes: map[string]ClassLimit{"auth": {PerMinute: 1, PerHour: 10}},
	})
	allowed, _ := l.Allow("10.0.0.4", "auth")
	require.True(t, allowed)
	allowed, _ = l.Allow("10.0.0.4", "auth")
	require.False(t, allowed)

	allowed, _ = l.Allow("10.0.0.5", "auth")
	assert.True(t, allowed)
}

func TestLimiter_ResetReporting(t *testing.T) {
	l, fc := newFakeLimiter(t, LimiterConfig{
		Classes: map[string]ClassLimit{"auth": {PerMinute: 5, PerHour: 100}},
	})
	start := fc.Now()

	_, info := l.Allow("10.0.0.6", "auth")
	// the only hit leaves the minute window one minute after it landed
	assert.Equal(t, start.Add(time.Minute), info.Minute.Reset)
	assert.Equal(t, start.Add(time.Hour), info.Hour.Reset)

	fc.Advance(30 * time.Second)
	_, info = l.Allow("10.0.0.6", "auth")
	// reset still tracks the oldest in-window hit
	assert.Equal(t, start.Add(time.Minute), info.Minute.Reset)
}

func TestLimiter_JanitorDropsIdleIdentities(t *testing.T) {
	l, fc := newFakeLimiter(t, LimiterConfig{CleanupEvery: time.Minute})
	l.Start()
	defer l.Stop()

	l.Allow("10.0.0.7", "api")
	require.Equal(t, 1, l.Stats().Tracked)

	// after a full horizon of silence the record is reclaimed; keep
	// ticking in case Start registered its ticker after the big jump
	fc.Advance(61 * time.Minute)
	require.Eventually(t, func() bool {
		fc.Advance(time.Minute)
		return l.Stats().Tracked == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestLimiter_StartStopIdempotent(t *testing.T) {
	l, _ := newFakeLimiter(t, LimiterConfig{})
	l.Start()
	l.Start() // ignored
	l.Stop()
	l.Stop() // ignored
}

func TestLimiter_Stats(t *testing.T) {
	l, _ := newFakeLimiter(t, LimiterConfig{
		Classes: map[string]ClassLimit{"auth": {PerMinute: 1, PerHour: 10}},
	})
	l.Allow("a", "auth")
	l.Allow("a", "auth") // rejected
	l.Allow("b", "auth")

	st := l.Stats()
	assert.Equal(t, uint64(2), st.Allowed)
	assert.Equal(t, uint64(1), st.Rejected)
	assert.Equal(t, 2, st.Tracked)
}

func TestLimiter_ConcurrentAllowNeverOveradmits(t *testing.T) {
	l, _ := newFakeLimiter(t, LimiterConfig{
		Classes: map[string]ClassLimit{"auth": {PerMinute: 50, PerHour: 50}},
	})

	var admitted atomic.Int32
	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				if ok, _ := l.Allow("shared", "auth"); ok {
					admitted.Add(1)
				}
			}
		}()
	}
	wg.Wait()
	// 200 attempts against a budget of 50: exactly the budget is admitted
	assert.Equal(t, int32(50), admitted.Load())
}

func TestLimiter_ManyIdentities(t *testing.T) {
	l, _ := newFakeLimiter(t, LimiterConfig{})
	for i := 0; i < 100; i++ {
		id := fmt.Sprintf("198.51.100.%d", i)
		allowed, _ := l.Allow(id, "api")
		require.True(t, allowed)
	}
	assert.Equal(t, 100, l.Stats().Tracked)
}
