package sentriq

import (
	"context"
	"net/netip"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	ikeys "github.com/Sentriq/sentriq-go/internal/keys"
	"github.com/Sentriq/sentriq-go/internal/patterns"
)

// Category identifies an attack pattern family.
type Category string

// Categories, in inspection order. Matching is first-category-wins.
const (
	CategoryScriptInjection  Category = patterns.ScriptInjection
	CategoryPathTraversal    Category = patterns.PathTraversal
	CategoryRemoteInclusion  Category = patterns.RemoteInclusion
	CategoryCommandInjection Category = patterns.CommandInjection
	CategorySQLInjection     Category = patterns.SQLInjection
	CategoryNoSQLInjection   Category = patterns.NoSQLInjection
)

// AllCategories returns every category in inspection order.
func AllCategories() []Category {
	names := patterns.Categories()
	out := make([]Category, len(names))
	for i, n := range names {
		out[i] = Category(n)
	}
	return out
}

// suspicionWeight is added to a category counter per tracked match. With the
// default threshold of 10, the sixth match inside one window crosses it.
const suspicionWeight = 2

// BlockRecord describes an active block, as stored in Redis.
type BlockRecord struct {
	// Identity is the blocked identity, normally a client IP.
	Identity string `json:"identity"`
	// Category is the attack category whose increment crossed the threshold.
	Category Category `json:"category"`
	// Total is the reputation sum at block time.
	Total int `json:"total"`
	// CreatedAt and ExpiresAt bound the block's lifetime. Expiry is
	// enforced by the store TTL; ExpiresAt only reports it.
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// DetectorConfig defines the configuration for a Detector.
type DetectorConfig struct {
	// BlockThreshold is the reputation sum above which an identity is
	// blocked. Defaults to 10.
	BlockThreshold int
	// BlockTTL is how long a block lasts. Defaults to 1 hour.
	BlockTTL time.Duration
	// CounterTTL is the reputation window. It is armed when an identity's
	// first counter appears and not re-armed by later increments, so a
	// quiet identity's history ages out. Defaults to 1 hour.
	CounterTTL time.Duration
	// TrustedCIDRs lists networks whose identities bypass tracking and
	// blocking. Entries are CIDR prefixes; a bare IP is treated as a
	// single-address prefix.
	TrustedCIDRs []string
	// FailClosed makes IsBlocked report true when the store is
	// unreachable. The default is to fail open and keep serving.
	FailClosed bool
	// Logger is the logger used for detector events.
	Logger Logger
}

// Detector matches request text against attack signatures and keeps
// per-identity reputation in Redis, so repeat offenders are blocked across
// process instances. Pattern matching is pure and in-process; only
// reputation and block state touch the store, and store failures degrade to
// detection without memory.
type Detector struct {
	rdb        redis.UniversalClient
	threshold  int
	blockTTL   time.Duration
	counterTTL time.Duration
	trusted    []netip.Prefix
	failClosed bool
	log        Logger

	// warnLimit throttles store-failure warnings, which would otherwise
	// fire on every request for the duration of an outage.
	warnLimit *rate.Limiter
}

// NewDetector creates a detector backed by rdb.
func NewDetector(rdb redis.UniversalClient, cfg DetectorConfig) *Detector {
	l := cfg.Logger
	if l == nil {
		l = NewFmtLogger()
	}
	threshold := cfg.BlockThreshold
	if threshold <= 0 {
		threshold = 10
	}
	blockTTL := cfg.BlockTTL
	if blockTTL <= 0 {
		blockTTL = time.Hour
	}
	counterTTL := cfg.CounterTTL
	if counterTTL <= 0 {
		counterTTL = time.Hour
	}
	trusted := make([]netip.Prefix, 0, len(cfg.TrustedCIDRs))
	for _, s := range cfg.TrustedCIDRs {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			addr, aerr := netip.ParseAddr(s)
			if aerr != nil {
				l.Warnf("ignoring invalid trusted cidr %q", s)
				continue
			}
			p = netip.PrefixFrom(addr, addr.BitLen())
		}
		trusted = append(trusted, p.Masked())
	}
	return &Detector{
		rdb:        rdb,
		threshold:  threshold,
		blockTTL:   blockTTL,
		counterTTL: counterTTL,
		trusted:    trusted,
		failClosed: cfg.FailClosed,
		log:        l,
		warnLimit:  rate.NewLimiter(rate.Every(10*time.Second), 1),
	}
}

// Inspect matches text against the signature tables and returns the first
// matching category. It never touches the store.
func (d *Detector) Inspect(text string) (Category, bool) {
	cat, ok := patterns.Match(text)
	return Category(cat), ok
}

// Track records a detected match for identity and blocks it once its
// reputation sum exceeds the threshold. Trusted identities are not tracked.
// Store failures skip the bookkeeping with a throttled warning; the caller's
// request path is never affected.
func (d *Detector) Track(ctx context.Context, identity string, cat Category) {
	if d.Trusted(identity) {
		return
	}
	kset := ikeys.For(identity)

	if err := d.rdb.HIncrBy(ctx, kset.Reputation, string(cat), suspicionWeight).Err(); err != nil {
		d.warnf("reputation store unavailable, skipping track: identity=%s err=%v", identity, err)
		return
	}
	// NX keeps the window anchored at the first offense.
	if err := d.rdb.ExpireNX(ctx, kset.Reputation, d.counterTTL).Err(); err != nil {
		d.warnf("reputation expire failed: identity=%s err=%v", identity, err)
	}

	counts, err := d.rdb.HGetAll(ctx, kset.Reputation).Result()
	if err != nil {
		d.warnf("reputation read failed: identity=%s err=%v", identity, err)
		return
	}
	total := 0
	for _, v := range counts {
		n, perr := strconv.Atoi(v)
		if perr != nil {
			continue
		}
		total += n
	}
	if total <= d.threshold {
		return
	}

	now := time.Now()
	rec := BlockRecord{
		Identity:  identity,
		Category:  cat,
		Total:     total,
		CreatedAt: now,
		ExpiresAt: now.Add(d.blockTTL),
	}
	raw, err := defaultEncoder.Encode(rec)
	if err != nil {
		d.warnf("block record encode failed: identity=%s err=%v", identity, err)
		return
	}
	if err := d.rdb.Set(ctx, kset.Block, raw, d.blockTTL).Err(); err != nil {
		d.warnf("block write failed: identity=%s err=%v", identity, err)
		return
	}
	d.log.Infof("blocked identity=%s total=%d category=%s ttl=%s", identity, total, cat, d.blockTTL)
}

// IsBlocked reports whether identity has an active block. The block key is
// checked on its own; counter state never overrides it. Trusted identities
// are never blocked. On store failure it returns the configured FailClosed
// value with a throttled warning.
func (d *Detector) IsBlocked(ctx context.Context, identity string) bool {
	if d.Trusted(identity) {
		return false
	}
	n, err := d.rdb.Exists(ctx, ikeys.Block(identity)).Result()
	if err != nil {
		d.warnf("block check failed: identity=%s err=%v", identity, err)
		return d.failClosed
	}
	return n > 0
}

// Block returns the active block record for identity, if any.
func (d *Detector) Block(ctx context.Context, identity string) (*BlockRecord, bool) {
	raw, err := d.rdb.Get(ctx, ikeys.Block(identity)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		d.warnf("block read failed: identity=%s err=%v", identity, err)
		return nil, false
	}
	var rec BlockRecord
	if err := defaultEncoder.Decode(raw, &rec); err != nil {
		d.warnf("block record decode failed: identity=%s err=%v", identity, err)
		return nil, false
	}
	return &rec, true
}

// Reputation returns identity's per-category counters. An identity with no
// history yields an empty map.
func (d *Detector) Reputation(ctx context.Context, identity string) (map[Category]int, error) {
	counts, err := d.rdb.HGetAll(ctx, ikeys.Reputation(identity)).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[Category]int, len(counts))
	for k, v := range counts {
		n, perr := strconv.Atoi(v)
		if perr != nil {
			continue
		}
		out[Category(k)] = n
	}
	return out, nil
}

// Trusted reports whether identity falls inside a configured trusted
// network. An identity that does not parse as an IP is not trusted.
func (d *Detector) Trusted(identity string) bool {
	addr, err := netip.ParseAddr(identity)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range d.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func (d *Detector) warnf(format string, args ...any) {
	if d.warnLimit.Allow() {
		d.log.Warnf(format, args...)
	}
}
