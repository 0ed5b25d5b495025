package sentriq

import (
	"math"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Reject reasons passed to MiddlewareOptions.OnReject.
const (
	RejectBlocked     = "blocked"
	RejectAttack      = "attack"
	RejectRateLimited = "rate-limited"
)

// MiddlewareOptions configures Middleware. Detector and Limiter are both
// optional; a nil component skips its stage.
type MiddlewareOptions struct {
	// Detector screens requests for attack signatures and blocked senders.
	Detector *Detector
	// Limiter enforces per-identity rate limits.
	Limiter *Limiter
	// ClassFunc maps a request to a rate-limit class. Defaults to
	// DefaultClassFunc.
	ClassFunc func(*http.Request) string
	// KeyFunc extracts the identity a request is charged to. Defaults to
	// the client IP via ClientIP, honoring TrustXFF.
	KeyFunc func(*http.Request) string
	// TrustXFF lets the default KeyFunc take the client IP from the first
	// X-Forwarded-For entry. Enable only behind a trusted proxy.
	TrustXFF bool
	// OnReject is called with the reject reason before the response is
	// written. Useful for metrics.
	OnReject func(r *http.Request, reason string)
	// Logger is the logger used for middleware events.
	Logger Logger
}

// Middleware returns a handler wrapper that runs each request through the
// protection pipeline: active block check, attack inspection, then rate
// limiting. Rejected requests get a generic status body; matched pattern
// details only ever go to the logger.
func Middleware(opts MiddlewareOptions) func(http.Handler) http.Handler {
	if opts.ClassFunc == nil {
		opts.ClassFunc = DefaultClassFunc
	}
	if opts.KeyFunc == nil {
		trustXFF := opts.TrustXFF
		opts.KeyFunc = func(r *http.Request) string {
			return ClientIP(r, trustXFF)
		}
	}
	if opts.Logger == nil {
		opts.Logger = NewFmtLogger()
	}
	reject := func(w http.ResponseWriter, r *http.Request, reason string, status int) {
		if opts.OnReject != nil {
			opts.OnReject(r, reason)
		}
		http.Error(w, http.StatusText(status), status)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := opts.KeyFunc(r)

			if opts.Detector != nil {
				if opts.Detector.IsBlocked(r.Context(), identity) {
					opts.Logger.Infof("rejected blocked identity=%s path=%s", identity, r.URL.Path)
					reject(w, r, RejectBlocked, http.StatusForbidden)
					return
				}
				if cat, ok := opts.Detector.Inspect(DecodeRequestText(r)); ok {
					opts.Logger.Warnf("attack detected: identity=%s category=%s method=%s path=%s",
						identity, cat, r.Method, r.URL.Path)
					opts.Detector.Track(r.Context(), identity, cat)
					reject(w, r, RejectAttack, http.StatusForbidden)
					return
				}
			}

			if opts.Limiter != nil {
				allowed, info := opts.Limiter.Allow(identity, opts.ClassFunc(r))
				setRateHeaders(w, info)
				if !allowed {
					w.Header().Set("Retry-After", strconv.Itoa(retryAfter(info)))
					reject(w, r, RejectRateLimited, http.StatusTooManyRequests)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// DefaultClassFunc maps a request path to a rate-limit class by prefix:
// /auth, /login and /token are "auth"; /upload is "upload"; /api is "api";
// everything else is the default class.
func DefaultClassFunc(r *http.Request) string {
	p := r.URL.Path
	switch {
	case strings.HasPrefix(p, "/auth") || strings.HasPrefix(p, "/login") || strings.HasPrefix(p, "/token"):
		return "auth"
	case strings.HasPrefix(p, "/upload"):
		return "upload"
	case strings.HasPrefix(p, "/api"):
		return "api"
	default:
		return DefaultClass
	}
}

// ClientIP extracts the client identity of a request. With trustXFF set, the
// first X-Forwarded-For entry wins; otherwise the RemoteAddr host is used,
// falling back to the raw RemoteAddr when it has no port.
func ClientIP(r *http.Request, trustXFF bool) string {
	if trustXFF {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}

// DecodeRequestText flattens the inspectable parts of a request into one
// string: the decoded path, the decoded query and every header value. The
// detector matches categories in a fixed order over the whole text, so the
// part order carries no significance.
func DecodeRequestText(r *http.Request) string {
	var b strings.Builder
	b.WriteString(r.URL.Path)
	if raw := r.URL.RawQuery; raw != "" {
		b.WriteByte('?')
		if q, err := url.QueryUnescape(raw); err == nil {
			b.WriteString(q)
		} else {
			b.WriteString(raw)
		}
	}
	for _, vs := range r.Header {
		for _, v := range vs {
			b.WriteByte('\n')
			b.WriteString(v)
		}
	}
	return b.String()
}

func setRateHeaders(w http.ResponseWriter, info RateLimitInfo) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(info.Minute.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(info.Minute.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(info.Minute.Reset.Unix(), 10))
}

// retryAfter picks the reset of the window that caused the reject and
// reports whole seconds until it, at least 1.
func retryAfter(info RateLimitInfo) int {
	reset := info.Minute.Reset
	if info.Minute.Remaining > 0 {
		reset = info.Hour.Reset
	}
	secs := int(math.Ceil(time.Until(reset).Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}
