package sentriq

import (
	"path"
	"sync"
	"time"

	"github.com/Sentriq/sentriq-go/internal/clock"
)

// Cache is an in-process TTL key/value cache. All state is volatile by
// design: entries are rebuildable derived data and loss on restart is
// acceptable. A single mutex guards the table; expired entries are evicted
// lazily on access and opportunistically during Stats.
type Cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	clock   clock.Clock

	hits   uint64
	misses uint64
}

type cacheEntry struct {
	value     any
	expiresAt time.Time // zero means no expiry
}

func (e cacheEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// CacheStats is a point-in-time summary of cache contents and traffic.
type CacheStats struct {
	// Size is the number of live entries after the sweep.
	Size int `json:"size"`
	// Hits and Misses count Get outcomes since construction.
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
	// Expired is the number of entries purged by this Stats call.
	Expired int `json:"expired"`
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		entries: make(map[string]cacheEntry),
		clock:   clock.System(),
	}
}

// Get returns the value for key, or false on a miss. An entry past its
// expiry behaves as a miss and is removed as a side effect; a cleared value
// is never returned.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if e.expired(c.clock.Now()) {
		delete(c.entries, key)
		c.misses++
		return nil, false
	}
	c.hits++
	return e.value, true
}

// Set stores value under key. A ttl of zero or less stores the entry without
// expiry; otherwise the entry expires ttl from now.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := cacheEntry{value: value}
	if ttl > 0 {
		e.expiresAt = c.clock.Now().Add(ttl)
	}
	c.entries[key] = e
}

// Delete removes key. Deleting an absent key is a no-op.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// DeletePattern removes every entry whose key matches the glob pattern
// (path.Match syntax: *, ?, [...]) and returns how many were removed.
// A malformed pattern removes nothing.
func (c *Cache) DeletePattern(pattern string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k := range c.entries {
		ok, err := path.Match(pattern, k)
		if err != nil {
			return 0
		}
		if ok {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Exists reports whether key holds a live entry. Like Get, it evicts an
// expired entry as a side effect.
func (c *Cache) Exists(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return false
	}
	if e.expired(c.clock.Now()) {
		delete(c.entries, key)
		return false
	}
	return true
}

// Expire re-arms the TTL on an existing key, counted from now. It returns
// false if the key is absent or already expired. A ttl of zero or less
// clears the expiry.
func (c *Cache) Expire(key string, ttl time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	now := c.clock.Now()
	if !ok || e.expired(now) {
		if ok {
			delete(c.entries, key)
		}
		return false
	}
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	} else {
		e.expiresAt = time.Time{}
	}
	c.entries[key] = e
	return true
}

// Clear removes every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

// Stats sweeps all expired entries and reports the resulting size along with
// how many the sweep purged.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	purged := 0
	for k, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, k)
			purged++
		}
	}
	return CacheStats{
		Size:    len(c.entries),
		Hits:    c.hits,
		Misses:  c.misses,
		Expired: purged,
	}
}
