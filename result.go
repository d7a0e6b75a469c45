package limitkit

import "time"

// Result is the outcome of a single rate limit decision. Produced fresh per
// check, never persisted.
type Result struct {
	// Allowed reports whether the request is admitted.
	Allowed bool `json:"allowed"`
	// Remaining is the capacity left after this decision, within [0, Limit].
	Remaining int `json:"remaining"`
	// ResetAt is the unix timestamp (seconds) when full capacity returns.
	ResetAt int64 `json:"reset_time"`
	// Limit is the ceiling the decision was made against.
	Limit int `json:"limit"`
	// RetryAfter is the suggested wait in seconds. Set only when denied.
	RetryAfter int `json:"retry_after,omitempty"`
}

// Sentinel values reported for checks that bypass accounting entirely
// (limiting disabled, allow-listed caller).
const (
	unboundedLimit      = 999999
	unboundedResetAfter = time.Hour
)

func unboundedAllow() Result {
	return Result{
		Allowed:   true,
		Remaining: unboundedLimit,
		ResetAt:   time.Now().Add(unboundedResetAfter).Unix(),
		Limit:     unboundedLimit,
	}
}

// failOpen is the result for checks that hit a storage or internal fault:
// availability of the protected service wins over strict enforcement.
func failOpen(cfg Config) Result {
	return Result{
		Allowed:   true,
		Remaining: cfg.Limit,
		ResetAt:   time.Now().Unix() + int64(cfg.Window),
		Limit:     cfg.Limit,
	}
}
