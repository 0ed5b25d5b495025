package sentriq

import (
	"net/http"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Config assembles the resilience core. One Config builds one Core, which
// is constructed at process start and passed to whatever needs it; there is
// no package-level instance.
type Config struct {
	// Executor configures the background task executor.
	Executor ExecutorConfig
	// Limiter configures the rate limiter.
	Limiter LimiterConfig
	// Detector configures the attack detector. It only takes effect when
	// Redis is set; without a store there is no reputation to keep.
	Detector DetectorConfig
	// Redis backs the detector's reputation and block records. Leave nil
	// to run without the detector.
	Redis redis.UniversalClient
	// TrustXFF is passed through to Protect's identity extraction.
	TrustXFF bool
	// OnReject is passed through to Protect.
	OnReject func(r *http.Request, reason string)
	// Logger is used by the core and, unless overridden per component, by
	// every component.
	Logger Logger
}

// CoreStats aggregates the stats of every component.
type CoreStats struct {
	Executor ExecutorStats `json:"executor"`
	Cache    CacheStats    `json:"cache"`
	Limiter  LimiterStats  `json:"limiter"`
}

// Core owns one instance of each component: cache, executor, limiter and,
// when a store is configured, detector.
type Core struct {
	cache    *Cache
	executor *Executor
	limiter  *Limiter
	detector *Detector
	log      Logger
	trustXFF bool
	onReject func(r *http.Request, reason string)

	mu      sync.Mutex
	started bool
}

// New builds a Core from cfg. Component loggers default to cfg.Logger.
func New(cfg Config) *Core {
	l := cfg.Logger
	if l == nil {
		l = NewFmtLogger()
	}
	if cfg.Executor.Logger == nil {
		cfg.Executor.Logger = l
	}
	if cfg.Limiter.Logger == nil {
		cfg.Limiter.Logger = l
	}
	if cfg.Detector.Logger == nil {
		cfg.Detector.Logger = l
	}

	c := &Core{
		cache:    NewCache(),
		executor: NewExecutor(cfg.Executor),
		limiter:  NewLimiter(cfg.Limiter),
		log:      l,
		trustXFF: cfg.TrustXFF,
		onReject: cfg.OnReject,
	}
	if cfg.Redis != nil {
		c.detector = NewDetector(cfg.Redis, cfg.Detector)
	} else {
		l.Infof("no redis configured; attack detector disabled")
	}
	return c
}

// Start brings up the executor and the limiter janitor. It is idempotent
// and non-blocking.
func (c *Core) Start() {
	c.mu.Lock()
	if c.started {
		c.log.Warnf("core already started; ignoring Start()")
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()
	c.executor.Start()
	c.limiter.Start()
}

// Stop shuts the components down in reverse order. It is idempotent.
func (c *Core) Stop() {
	c.mu.Lock()
	if !c.started {
		c.log.Warnf("core not started; ignoring Stop()")
		c.mu.Unlock()
		return
	}
	c.started = false
	c.mu.Unlock()
	c.limiter.Stop()
	c.executor.Stop()
}

// Protect wraps next with the protection pipeline built from the core's
// components.
func (c *Core) Protect(next http.Handler) http.Handler {
	return Middleware(MiddlewareOptions{
		Detector: c.detector,
		Limiter:  c.limiter,
		TrustXFF: c.trustXFF,
		OnReject: c.onReject,
		Logger:   c.log,
	})(next)
}

// Cache returns the core's cache.
func (c *Core) Cache() *Cache { return c.cache }

// Executor returns the core's task executor.
func (c *Core) Executor() *Executor { return c.executor }

// Limiter returns the core's rate limiter.
func (c *Core) Limiter() *Limiter { return c.limiter }

// Detector returns the core's attack detector, or nil when no store was
// configured.
func (c *Core) Detector() *Detector { return c.detector }

// Stats aggregates component stats for operational reporting.
func (c *Core) Stats() CoreStats {
	return CoreStats{
		Executor: c.executor.Stats(),
		Cache:    c.cache.Stats(),
		Limiter:  c.limiter.Stats(),
	}
}
