package limitkit

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nhalm/canonlog"
)

// UserFunc extracts an authenticated user id from a request.
// Returning an empty string means "no user": the check runs under the IP
// scope alone.
type UserFunc func(*http.Request) string

// Middleware enforces rate limits on inbound requests: it resolves the
// route's config through a Policy, runs the Limiter, and emits the
// X-RateLimit-* response headers. Rejections get a 429 with a structured
// body and a Retry-After header.
type Middleware struct {
	limiter  *Limiter
	policy   *Policy
	userFn   UserFunc
	canonlog bool
}

// MiddlewareOption configures a Middleware.
type MiddlewareOption func(*Middleware)

// WithUserFunc supplies user identity extraction. When the function returns
// a user id the check runs under the ip_user scope instead of ip.
func WithUserFunc(fn UserFunc) MiddlewareOption {
	return func(m *Middleware) {
		m.userFn = fn
	}
}

// WithCanonicalLogging wraps each limited request in a canonlog context and
// flushes one canonical line after the response. Violation and fail-open
// fields added by the Limiter land on the same line.
func WithCanonicalLogging() MiddlewareOption {
	return func(m *Middleware) {
		m.canonlog = true
	}
}

// NewMiddleware creates rate limiting middleware over a limiter and a policy.
func NewMiddleware(l *Limiter, p *Policy, opts ...MiddlewareOption) *Middleware {
	m := &Middleware{
		limiter: l,
		policy:  p,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Handler returns the middleware. Sets on every limited response:
//   - X-RateLimit-Limit: the ceiling for the resolved policy
//   - X-RateLimit-Remaining: capacity left after this request
//   - X-RateLimit-Reset: unix timestamp when full capacity returns
//   - X-RateLimit-Reset-After: the same moment as seconds from now
//
// and on rejection additionally Retry-After plus a structured JSON error.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if m.policy.Excluded(path) {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		if m.canonlog {
			ctx = canonlog.NewContext(ctx)
			canonlog.InfoAddMany(ctx, map[string]any{
				"method": r.Method,
				"path":   path,
			})
			r = r.WithContext(ctx)
			defer canonlog.Flush(ctx)
		}

		identifier := clientIP(r)
		scope := ScopeIP
		userID := ""
		if m.userFn != nil {
			if userID = m.userFn(r); userID != "" {
				scope = ScopeIPUser
			}
		}

		cfg := m.policy.Resolve(path)
		result := m.limiter.Allow(ctx, Check{
			Scope:      scope,
			Identifier: identifier,
			Config:     &cfg,
			Endpoint:   path,
			UserID:     userID,
		})

		setRateLimitHeaders(w, result)

		if !result.Allowed {
			w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
			writeError(w, http.StatusTooManyRequests, &APIError{
				Type:       "rate_limit_error",
				Code:       "rate_limited",
				Message:    fmt.Sprintf("Rate limit exceeded, retry in %d seconds", result.RetryAfter),
				RetryAfter: result.RetryAfter,
				Limit:      cfg.Limit,
				Window:     cfg.Window,
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func setRateLimitHeaders(w http.ResponseWriter, result Result) {
	resetAfter := result.ResetAt - time.Now().Unix()
	if resetAfter < 0 {
		resetAfter = 0
	}

	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt, 10))
	h.Set("X-RateLimit-Reset-After", strconv.FormatInt(resetAfter, 10))
}

// clientIP resolves the caller identity: first X-Forwarded-For hop, then
// X-Real-IP, then the connection's remote address.
//
// The forwarding headers are only trustworthy behind a reverse proxy that
// sets them; without one, clients could spoof them to dodge limits.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return strings.TrimSpace(realIP)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
