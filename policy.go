package limitkit

import (
	"fmt"
	"sort"
	"strings"
)

// defaultExclusions are path prefixes that bypass rate limiting entirely:
// health checks, metrics scrapes, and API documentation.
var defaultExclusions = []string{
	"/health",
	"/metrics",
	"/docs",
	"/openapi.json",
	"/favicon.ico",
}

type prefixRule struct {
	prefix string
	config Config
}

// Policy maps request paths to rate limit configs.
//
// Resolution order: exact match, then the longest registered prefix of the
// path, then the mandatory default. Build the policy at startup; it is not
// safe for concurrent mutation once requests are flowing.
type Policy struct {
	exact      map[string]Config
	prefixes   []prefixRule
	defaults   Config
	exclusions []string
}

// PolicyOption configures a Policy.
type PolicyOption func(*Policy)

// WithExclusions replaces the default exclusion list with the given path
// prefixes.
func WithExclusions(paths ...string) PolicyOption {
	return func(p *Policy) {
		p.exclusions = paths
	}
}

// NewPolicy creates a Policy with the mandatory default config. A missing or
// invalid default is a construction error, never a request-time surprise.
func NewPolicy(defaultConfig Config, opts ...PolicyOption) (*Policy, error) {
	if err := defaultConfig.Validate(); err != nil {
		return nil, fmt.Errorf("default config: %w", err)
	}

	p := &Policy{
		exact:      make(map[string]Config),
		defaults:   defaultConfig,
		exclusions: defaultExclusions,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Add registers a config for a path. The path doubles as a prefix rule, so
// "/auth" covers "/auth/login" unless a more specific rule exists.
func (p *Policy) Add(path string, cfg Config) error {
	if path == "" {
		return fmt.Errorf("policy path must not be empty")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config for %s: %w", path, err)
	}

	p.exact[path] = cfg
	p.prefixes = append(p.prefixes, prefixRule{prefix: path, config: cfg})
	// Longest prefix first, so the most specific rule wins regardless of
	// registration order.
	sort.SliceStable(p.prefixes, func(i, j int) bool {
		return len(p.prefixes[i].prefix) > len(p.prefixes[j].prefix)
	})
	return nil
}

// Resolve returns the config for a request path.
func (p *Policy) Resolve(path string) Config {
	if cfg, ok := p.exact[path]; ok {
		return cfg
	}
	for _, rule := range p.prefixes {
		if strings.HasPrefix(path, rule.prefix) {
			return rule.config
		}
	}
	return p.defaults
}

// Excluded reports whether the path bypasses rate limiting entirely.
func (p *Policy) Excluded(path string) bool {
	for _, prefix := range p.exclusions {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Default returns the policy's default config.
func (p *Policy) Default() Config {
	return p.defaults
}
