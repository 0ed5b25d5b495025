package window

// Package window implements the per-identity sliding-window record used by
// the rate limiter. A Record keeps request timestamps in ascending order
// within a rolling horizon; callers derive shorter-window counts from the
// same slice. Records are not safe for concurrent use; the owning limiter
// serializes access behind its table mutex.

import (
	"sort"
	"time"
)

// Record holds the in-horizon request timestamps for one identity.
type Record struct {
	hits []time.Time
}

// Add appends a hit. Timestamps must be non-decreasing; the limiter always
// stamps with its own clock under one lock, which guarantees that.
func (r *Record) Add(at time.Time) {
	r.hits = append(r.hits, at)
}

// Prune drops every hit older than now-horizon. The backing array is reused
// so steady-state traffic does not churn allocations.
func (r *Record) Prune(now time.Time, horizon time.Duration) {
	cutoff := now.Add(-horizon)
	i := sort.Search(len(r.hits), func(i int) bool { return r.hits[i].After(cutoff) })
	if i == 0 {
		return
	}
	r.hits = append(r.hits[:0], r.hits[i:]...)
}

// CountSince reports how many hits fall within the trailing interval.
func (r *Record) CountSince(now time.Time, within time.Duration) int {
	cutoff := now.Add(-within)
	i := sort.Search(len(r.hits), func(i int) bool { return r.hits[i].After(cutoff) })
	return len(r.hits) - i
}

// OldestSince returns the earliest hit within the trailing interval.
func (r *Record) OldestSince(now time.Time, within time.Duration) (time.Time, bool) {
	cutoff := now.Add(-within)
	i := sort.Search(len(r.hits), func(i int) bool { return r.hits[i].After(cutoff) })
	if i == len(r.hits) {
		return time.Time{}, false
	}
	return r.hits[i], true
}

// Len reports the total number of retained hits.
func (r *Record) Len() int { return len(r.hits) }

// Empty reports whether no hits remain.
func (r *Record) Empty() bool { return len(r.hits) == 0 }
