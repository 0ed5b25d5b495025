package sentriq

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ikeys "github.com/Sentriq/sentriq-go/internal/keys"
)

func protect(opts MiddlewareOptions, next http.Handler) http.Handler {
	if opts.Logger == nil {
		opts.Logger = NopLogger{}
	}
	return Middleware(opts)(next)
}

func okHandler(served *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*served = true
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddleware_CleanRequestPasses(t *testing.T) {
	_, rdb, done := newMiniClient(t)
	defer done()
	d := newTestDetector(rdb, DetectorConfig{})
	l, _ := newFakeLimiter(t, LimiterConfig{
		Classes: map[string]ClassLimit{"api": {PerMinute: 5, PerHour: 50}},
	})

	var served bool
	h := protect(MiddlewareOptions{Detector: d, Limiter: l}, okHandler(&served))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/reports?scope=weekly", nil))

	assert.True(t, served)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "5", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "4", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
}

func TestMiddleware_AttackRejected(t *testing.T) {
	_, rdb, done := newMiniClient(t)
	defer done()
	d := newTestDetector(rdb, DetectorConfig{})

	var served bool
	var reason string
	h := protect(MiddlewareOptions{
		Detector: d,
		OnReject: func(r *http.Request, why string) { reason = why },
	}, okHandler(&served))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/files?path=../../etc/passwd", nil))

	assert.False(t, served)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, RejectAttack, reason)
	// the body must not leak what matched
	assert.Equal(t, "Forbidden\n", rec.Body.String())

	// the offense was charged to the client IP
	rep, err := d.Reputation(context.Background(), "192.0.2.1")
	require.NoError(t, err)
	assert.Equal(t, 2, rep[CategoryPathTraversal])
}

func TestMiddleware_BlockedBeforeInspection(t *testing.T) {
	_, rdb, done := newMiniClient(t)
	defer done()
	d := newTestDetector(rdb, DetectorConfig{})
	ctx := context.Background()

	// httptest requests come from 192.0.2.1
	require.NoError(t, rdb.Set(ctx, ikeys.Block("192.0.2.1"), "x", 0).Err())

	var served bool
	var reason string
	h := protect(MiddlewareOptions{
		Detector: d,
		OnReject: func(r *http.Request, why string) { reason = why },
	}, okHandler(&served))

	// even an attack URL reports "blocked": the block check runs first
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/x?q=<script>", nil))

	assert.False(t, served)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, RejectBlocked, reason)
}

func TestMiddleware_RateLimitRejected(t *testing.T) {
	l, _ := newFakeLimiter(t, LimiterConfig{
		Classes: map[string]ClassLimit{DefaultClass: {PerMinute: 1, PerHour: 10}},
	})

	var served int
	var reason string
	h := protect(MiddlewareOptions{
		Limiter:  l,
		OnReject: func(r *http.Request, why string) { reason = why },
	}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		served++
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, 1, served)
	assert.Equal(t, RejectRateLimited, reason)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	secs, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, secs, 1)
	assert.LessOrEqual(t, secs, 61)
}

func TestMiddleware_NoComponents(t *testing.T) {
	var served bool
	h := protect(MiddlewareOptions{}, okHandler(&served))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/anything", nil))

	assert.True(t, served)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
}

func TestMiddleware_CustomKeyFunc(t *testing.T) {
	l, _ := newFakeLimiter(t, LimiterConfig{
		Classes: map[string]ClassLimit{DefaultClass: {PerMinute: 1, PerHour: 10}},
	})
	h := protect(MiddlewareOptions{
		Limiter: l,
		KeyFunc: func(r *http.Request) string { return r.Header.Get("X-API-Key") },
	}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	send := func(key string) int {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("X-API-Key", key)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("key-a"))
	assert.Equal(t, http.StatusTooManyRequests, send("key-a"))
	// a different key has its own budget
	assert.Equal(t, http.StatusOK, send("key-b"))
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "203.0.113.5:4711"
	assert.Equal(t, "203.0.113.5", ClientIP(req, false))

	req.Header.Set("X-Forwarded-For", "198.51.100.9, 10.0.0.1")
	// untrusted proxies cannot override the peer address
	assert.Equal(t, "203.0.113.5", ClientIP(req, false))
	assert.Equal(t, "198.51.100.9", ClientIP(req, true))

	req.Header.Del("X-Forwarded-For")
	req.RemoteAddr = "203.0.113.5"
	assert.Equal(t, "203.0.113.5", ClientIP(req, false))

	req.RemoteAddr = ""
	assert.Equal(t, "unknown", ClientIP(req, false))
}

func TestDefaultClassFunc(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{"/auth/callback", "auth"},
		{"/login", "auth"},
		{"/token/refresh", "auth"},
		{"/upload/avatar", "upload"},
		{"/api/reports", "api"},
		{"/", DefaultClass},
		{"/healthz", DefaultClass},
	}
	for _, tc := range cases {
		req := httptest.NewRequest("GET", tc.path, nil)
		assert.Equal(t, tc.want, DefaultClassFunc(req), "path %s", tc.path)
	}
}

func TestDecodeRequestText(t *testing.T) {
	req := httptest.NewRequest("GET", "/files?p=%2e%2e%2fetc", nil)
	req.Header.Set("User-Agent", "probe/1.0")

	text := DecodeRequestText(req)
	assert.Contains(t, text, "/files")
	// percent-encoding must not hide the payload
	assert.Contains(t, text, "../etc")
	assert.Contains(t, text, "probe/1.0")
}
