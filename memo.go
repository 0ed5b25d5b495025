package sentriq

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// ComputeFunc is a unit of work whose result can be memoized. Arguments are
// opaque to the cache; they only feed key derivation.
type ComputeFunc func(ctx context.Context, args []any, kwargs map[string]any) (any, error)

// CacheKey derives a deterministic cache key from a logical prefix and the
// call arguments. Equal inputs always produce equal keys: the arguments are
// encoded with the default Encoder, whose map output is sorted, and the
// digest of that encoding is appended to the prefix. It returns an error
// only when the arguments cannot be encoded.
func CacheKey(prefix string, args []any, kwargs map[string]any) (string, error) {
	payload := struct {
		Args   []any          `json:"args,omitempty"`
		Kwargs map[string]any `json:"kwargs,omitempty"`
	}{args, kwargs}
	raw, err := defaultEncoder.Encode(payload)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return prefix + ":" + hex.EncodeToString(sum[:]), nil
}

// Memoized wraps fn so that results are served from c when present and
// stored under CacheKey(prefix, args, kwargs) with the given ttl when not.
// The cache never gets in the way of the call: unencodable arguments bypass
// it, and a compute error is returned without being stored.
func Memoized(c *Cache, prefix string, ttl time.Duration, fn ComputeFunc) ComputeFunc {
	return func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
		key, kerr := CacheKey(prefix, args, kwargs)
		if kerr != nil {
			return fn(ctx, args, kwargs)
		}
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		v, err := fn(ctx, args, kwargs)
		if err != nil {
			return v, err
		}
		c.Set(key, v, ttl)
		return v, nil
	}
}

// InvalidatePrefix removes every memoized entry stored under prefix and
// returns how many were removed. Entries of other prefixes are untouched.
func InvalidatePrefix(c *Cache, prefix string) int {
	return c.DeletePattern(prefix + ":*")
}
