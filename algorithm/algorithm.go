// Package algorithm implements the rate limiting algorithms: token bucket,
// sliding window, and fixed window.
//
// Each algorithm is a pure decision function over a store.Store: it holds no
// mutable state of its own, so any number of instances (across goroutines or
// service instances) can evaluate the same key concurrently. Atomicity of the
// per-key read-modify-write is delegated to the store's atomic primitives.
//
// State keys derive from the scoped rate limit key with a per-algorithm
// suffix, so switching a route's algorithm never reads another algorithm's
// state.
package algorithm

import (
	"context"
	"time"
)

// Algorithm is the common contract for rate limiting algorithms.
//
// Allow consumes one unit of capacity when it admits; Remaining and ResetAt
// are non-destructive reads. Errors from the store propagate to the caller,
// which decides the failure policy (the limiter fails open).
type Algorithm interface {
	// Allow reports whether the request is admitted, consuming one unit of
	// capacity if so.
	Allow(ctx context.Context) (bool, error)

	// Remaining returns the remaining capacity without consuming any.
	// The value may be approximate but is always within [0, limit].
	Remaining(ctx context.Context) (int, error)

	// ResetAt returns the unix timestamp (seconds) at which the window or
	// bucket next allows full capacity.
	ResetAt(ctx context.Context) (int64, error)
}

// nowFunc is replaced in tests to make timing deterministic.
var nowFunc = time.Now

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
