package limitkit

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Algorithm names accepted by the limiter. Unknown names fall back to the
// token bucket.
const (
	AlgorithmTokenBucket   = "token_bucket"
	AlgorithmSlidingWindow = "sliding_window"
	AlgorithmFixedWindow   = "fixed_window"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config is an immutable per-route rate limiting policy. One instance may be
// shared by many concurrent requests; it is never mutated after construction.
type Config struct {
	// Limit is the maximum number of permits per window.
	Limit int `json:"limit" validate:"required,gt=0"`
	// Window is the accounting window in seconds.
	Window int `json:"window" validate:"required,gt=0"`
	// Burst is the token bucket capacity. Zero means "use Limit".
	Burst int `json:"burst" validate:"gte=0"`
	// BlockDuration is the retry-after reported for deny-listed callers, in seconds.
	BlockDuration int `json:"block_duration" validate:"gte=0"`
	// Enabled turns the policy on. Disabled policies admit everything.
	Enabled bool `json:"enabled"`
}

// Validate checks the config's field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid rate limit config: %w", err)
	}
	return nil
}

// DefaultConfig returns the stock policy: 100 requests per minute with a
// burst of 10 and a 60s block duration.
func DefaultConfig() Config {
	return Config{
		Limit:         100,
		Window:        60,
		Burst:         10,
		BlockDuration: 60,
		Enabled:       true,
	}
}

// Settings configure the limiter as a whole. They are fixed at construction
// time; per-route behavior comes from Config.
type Settings struct {
	// Enabled turns rate limiting on globally. When false every check
	// returns an unbounded allow without touching storage.
	Enabled bool `json:"enabled"`
	// Algorithm is the default algorithm name used when a check does not
	// name one.
	Algorithm string `json:"algorithm"`
	// LogViolations adds canonical log fields for every denied request.
	LogViolations bool `json:"log_violations"`
}
