// Package store defines the storage contract for rate limit state and
// provides Redis and in-memory implementations.
//
// All mutable limiter state (token buckets, request logs, window counters,
// allow/deny list entries) lives behind the Store interface so the limiter
// itself holds no state of its own. Implementations must be safe for
// concurrent use and must provide per-key linearizability for the atomic
// operations (Incr, CompareAndSwap, ZAddIfCardBelow): concurrent checks
// against the same key may never both observe stale capacity.
//
// For distributed deployments use the Redis store. The in-memory store is
// only suitable for single-instance deployments and tests.
package store

import (
	"context"
	"time"
)

// ScoredMember is a sorted-set member with its score.
type ScoredMember struct {
	Member string
	Score  float64
}

// Store is the storage backend consumed by the rate limiting core.
// All TTLs are expressed in whole seconds; a zero TTL means no expiry.
type Store interface {
	// Get retrieves the value for key. The bool reports whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key with the given TTL.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// CompareAndSwap atomically replaces the value at key with new if the
	// current value equals old. An empty old means "only if the key is
	// absent". Returns true if the swap happened.
	CompareAndSwap(ctx context.Context, key, old, new string, ttl time.Duration) (bool, error)

	// Incr atomically increments the counter at key and returns the new
	// count. The TTL is applied when the increment creates the key.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Expire sets the TTL for an existing key.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// Del removes key. Returns true if the key existed.
	Del(ctx context.Context, key string) (bool, error)

	// TTL returns the remaining time to live for key, or a negative
	// duration if the key has no expiry or does not exist.
	TTL(ctx context.Context, key string) (time.Duration, error)

	// Keys returns all keys matching the glob pattern. Intended for
	// low-volume administrative listings, not the request path.
	Keys(ctx context.Context, pattern string) ([]string, error)

	// ZAddIfCardBelow atomically removes sorted-set members with score less
	// than minScore, then adds member with the given score if the remaining
	// cardinality is below limit. Returns the cardinality before the add and
	// whether the member was added. The TTL is refreshed when the member is
	// added.
	ZAddIfCardBelow(ctx context.Context, key, member string, score, minScore float64, limit int64, ttl time.Duration) (card int64, added bool, err error)

	// ZRemRangeByScore removes sorted-set members with min <= score <= max.
	ZRemRangeByScore(ctx context.Context, key string, min, max float64) error

	// ZCard returns the cardinality of the sorted set at key.
	ZCard(ctx context.Context, key string) (int64, error)

	// ZRangeWithScores returns members at rank [start, stop] in score order.
	// Use (0, 0) for the member with the lowest score.
	ZRangeWithScores(ctx context.Context, key string, start, stop int64) ([]ScoredMember, error)

	// Close releases any resources held by the store.
	Close() error
}
