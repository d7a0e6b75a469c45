// Package limitkit provides a pluggable request rate limiting core for Chi
// and standard http.Handler services.
//
// The Limiter decides, per request, whether to admit or reject based on a
// configurable algorithm (token bucket, sliding window, or fixed window),
// a partitioning scope (IP, user, endpoint, or combinations), and allow/deny
// override lists. All mutable state lives in a store.Store, so any number of
// service instances sharing a Redis see the same counters.
//
// Basic usage:
//
//	st := store.NewMemory()
//	defer st.Close()
//
//	limiter := limitkit.New(st, limitkit.WithViolationLogging())
//	policy, _ := limitkit.NewPolicy(limitkit.DefaultConfig())
//	policy.Add("/auth/login", limitkit.Config{Limit: 10, Window: 60, Enabled: true})
//
//	r := chi.NewRouter()
//	r.Use(limitkit.NewMiddleware(limiter, policy).Handler)
//
// The limiter fails open: when the backing store is unreachable a check
// returns an allow rather than blocking traffic behind a limiter fault.
package limitkit

import (
	"context"
	"fmt"
	"time"

	"github.com/nhalm/canonlog"

	"github.com/nhalm/limitkit/algorithm"
	"github.com/nhalm/limitkit/store"
)

// Check describes one rate limit decision.
type Check struct {
	// Scope selects the partitioning dimension.
	Scope Scope
	// Identifier is the caller identity for the scope, typically a client IP.
	Identifier string
	// Algorithm overrides the limiter's default algorithm. Unknown or empty
	// names fall back to the default.
	Algorithm string
	// Config overrides the limiter's default policy for this check.
	Config *Config
	// Endpoint is the request path, used by endpoint scopes.
	Endpoint string
	// UserID is the authenticated user, used by user scopes.
	UserID string
}

// Stats is the observability snapshot for one scope/identifier pair.
type Stats struct {
	Scope       Scope  `json:"scope"`
	Identifier  string `json:"identifier"`
	Key         string `json:"rate_limit_key"`
	Allowlisted bool   `json:"allowlisted"`
	Denylisted  bool   `json:"denylisted"`
}

// Limiter composes list checks, algorithm selection, and config resolution
// into a single decision. It holds no mutable state of its own; safe for
// concurrent use.
type Limiter struct {
	store    store.Store
	settings Settings
	defaults Config
	lists    *ListManager
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithEnabled turns rate limiting on or off globally (default: on).
// When off, every check returns an unbounded allow without storage access.
func WithEnabled(enabled bool) Option {
	return func(l *Limiter) {
		l.settings.Enabled = enabled
	}
}

// WithAlgorithm sets the default algorithm name (default: token bucket).
func WithAlgorithm(name string) Option {
	return func(l *Limiter) {
		l.settings.Algorithm = name
	}
}

// WithViolationLogging adds canonical log fields for every denied request.
func WithViolationLogging() Option {
	return func(l *Limiter) {
		l.settings.LogViolations = true
	}
}

// WithDefaultConfig sets the policy used by checks that carry no Config.
func WithDefaultConfig(cfg Config) Option {
	return func(l *Limiter) {
		l.defaults = cfg
	}
}

// New creates a Limiter over the given store.
//
// Options:
//   - WithEnabled: global on/off switch
//   - WithAlgorithm: default algorithm name
//   - WithDefaultConfig: fallback Config for checks without one
//   - WithViolationLogging: canonical log fields on denials
func New(st store.Store, opts ...Option) *Limiter {
	l := &Limiter{
		store: st,
		settings: Settings{
			Enabled:   true,
			Algorithm: AlgorithmTokenBucket,
		},
		defaults: DefaultConfig(),
		lists:    NewListManager(st),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow runs one rate limit decision, consuming capacity when it admits.
//
// Decision order: global/config disable, deny list, allow list, then the
// selected algorithm. Deny-listed identifiers are rejected with
// RetryAfter = BlockDuration before the allow list is consulted, so an
// identifier on both lists stays denied. Storage faults at any step fail
// open.
func (l *Limiter) Allow(ctx context.Context, c Check) Result {
	cfg := l.configFor(c)
	if !l.settings.Enabled || !cfg.Enabled {
		return unboundedAllow()
	}

	if denied, ok := l.listed(ctx, DenyList, c.Identifier); ok && denied {
		return Result{
			Allowed:    false,
			Remaining:  0,
			ResetAt:    time.Now().Unix() + int64(cfg.BlockDuration),
			Limit:      0,
			RetryAfter: cfg.BlockDuration,
		}
	}

	if allowed, ok := l.listed(ctx, AllowList, c.Identifier); ok && allowed {
		return unboundedAllow()
	}

	key := buildKey(c.Scope, c.Identifier, c.Endpoint, c.UserID)
	alg := l.algorithmFor(c.Algorithm, key, cfg)

	admitted, err := alg.Allow(ctx)
	if err != nil {
		canonlog.ErrorAdd(ctx, fmt.Errorf("rate limit check failed, failing open: %w", err))
		return failOpen(cfg)
	}

	remaining, err := alg.Remaining(ctx)
	if err != nil {
		remaining = cfg.Limit
	}
	resetAt, err := alg.ResetAt(ctx)
	if err != nil {
		resetAt = time.Now().Unix() + int64(cfg.Window)
	}

	result := Result{
		Allowed:   admitted,
		Remaining: remaining,
		ResetAt:   resetAt,
		Limit:     cfg.Limit,
	}

	if !admitted {
		retryAfter := int(resetAt - time.Now().Unix())
		if retryAfter < 0 {
			retryAfter = 0
		}
		result.RetryAfter = retryAfter

		if l.settings.LogViolations {
			canonlog.InfoAddMany(ctx, map[string]any{
				"rate_limited":           true,
				"rate_limit_key":         key,
				"rate_limit_scope":       string(c.Scope),
				"rate_limit_retry_after": retryAfter,
			})
		}
	}

	return result
}

// Peek reports the current state of a check without consuming capacity.
func (l *Limiter) Peek(ctx context.Context, c Check) Result {
	cfg := l.configFor(c)
	if !l.settings.Enabled || !cfg.Enabled {
		return unboundedAllow()
	}

	if denied, ok := l.listed(ctx, DenyList, c.Identifier); ok && denied {
		return Result{
			Allowed:    false,
			Remaining:  0,
			ResetAt:    time.Now().Unix() + int64(cfg.BlockDuration),
			Limit:      0,
			RetryAfter: cfg.BlockDuration,
		}
	}

	if allowed, ok := l.listed(ctx, AllowList, c.Identifier); ok && allowed {
		return unboundedAllow()
	}

	key := buildKey(c.Scope, c.Identifier, c.Endpoint, c.UserID)
	alg := l.algorithmFor(c.Algorithm, key, cfg)

	remaining, err := alg.Remaining(ctx)
	if err != nil {
		canonlog.ErrorAdd(ctx, fmt.Errorf("rate limit peek failed, failing open: %w", err))
		return failOpen(cfg)
	}
	resetAt, err := alg.ResetAt(ctx)
	if err != nil {
		resetAt = time.Now().Unix() + int64(cfg.Window)
	}

	result := Result{
		Allowed:   remaining > 0,
		Remaining: remaining,
		ResetAt:   resetAt,
		Limit:     cfg.Limit,
	}
	if !result.Allowed {
		retryAfter := int(resetAt - time.Now().Unix())
		if retryAfter < 0 {
			retryAfter = 0
		}
		result.RetryAfter = retryAfter
	}
	return result
}

// Stats returns the scope/identifier/key triple plus list membership flags.
func (l *Limiter) Stats(ctx context.Context, c Check) (Stats, error) {
	allowlisted, err := l.lists.IsMember(ctx, AllowList, c.Identifier)
	if err != nil {
		return Stats{}, err
	}
	denylisted, err := l.lists.IsMember(ctx, DenyList, c.Identifier)
	if err != nil {
		return Stats{}, err
	}

	return Stats{
		Scope:       c.Scope,
		Identifier:  c.Identifier,
		Key:         buildKey(c.Scope, c.Identifier, c.Endpoint, c.UserID),
		Allowlisted: allowlisted,
		Denylisted:  denylisted,
	}, nil
}

// AddToAllowlist puts identifier on the allow list. Zero expire = permanent.
func (l *Limiter) AddToAllowlist(ctx context.Context, identifier string, expire time.Duration) error {
	return l.lists.Add(ctx, AllowList, identifier, expire)
}

// RemoveFromAllowlist removes identifier from the allow list.
func (l *Limiter) RemoveFromAllowlist(ctx context.Context, identifier string) (bool, error) {
	return l.lists.Remove(ctx, AllowList, identifier)
}

// Allowlist returns the current allow list entries.
func (l *Limiter) Allowlist(ctx context.Context) ([]ListEntry, error) {
	return l.lists.Entries(ctx, AllowList)
}

// AddToDenylist puts identifier on the deny list. Zero expire = permanent.
func (l *Limiter) AddToDenylist(ctx context.Context, identifier string, expire time.Duration) error {
	return l.lists.Add(ctx, DenyList, identifier, expire)
}

// RemoveFromDenylist removes identifier from the deny list.
func (l *Limiter) RemoveFromDenylist(ctx context.Context, identifier string) (bool, error) {
	return l.lists.Remove(ctx, DenyList, identifier)
}

// Denylist returns the current deny list entries.
func (l *Limiter) Denylist(ctx context.Context) ([]ListEntry, error) {
	return l.lists.Entries(ctx, DenyList)
}

// Settings returns the limiter's construction-time settings.
func (l *Limiter) Settings() Settings {
	return l.settings
}

// Defaults returns the fallback Config used by checks without one.
func (l *Limiter) Defaults() Config {
	return l.defaults
}

func (l *Limiter) configFor(c Check) Config {
	if c.Config != nil {
		return *c.Config
	}
	return l.defaults
}

// listed wraps a membership check with the fail-open policy: a storage error
// is logged and treated as "not listed".
func (l *Limiter) listed(ctx context.Context, kind ListKind, identifier string) (member, ok bool) {
	member, err := l.lists.IsMember(ctx, kind, identifier)
	if err != nil {
		canonlog.ErrorAdd(ctx, err)
		return false, false
	}
	return member, true
}

func (l *Limiter) algorithmFor(name, key string, cfg Config) algorithm.Algorithm {
	if name == "" {
		name = l.settings.Algorithm
	}

	switch name {
	case AlgorithmSlidingWindow:
		return algorithm.NewSlidingWindow(l.store, key, cfg.Limit, cfg.Window)
	case AlgorithmFixedWindow:
		return algorithm.NewFixedWindow(l.store, key, cfg.Limit, cfg.Window)
	default:
		burst := cfg.Burst
		if burst < 1 {
			burst = cfg.Limit
		}
		return algorithm.NewTokenBucket(l.store, key, cfg.Limit, cfg.Window, burst)
	}
}
