package algorithm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/nhalm/limitkit/store"
)

// casAttempts bounds the optimistic retry loop. Each attempt re-reads fresh
// state, so contention on a single key converges quickly.
const casAttempts = 5

// ErrContention is returned when a compare-and-swap loop exhausts its
// attempts without winning. Callers treat it like any store failure.
var ErrContention = errors.New("token bucket: compare-and-swap contention")

// TokenBucket implements the continuous-refill token bucket.
//
// Tokens accumulate at limit/window per second up to burst; each admitted
// request spends one. The bucket state ("tokens lastRefill") lives in a
// single key and is replaced with an optimistic compare-and-swap, so
// concurrent checks on the same key never both spend the last token.
type TokenBucket struct {
	store  store.Store
	key    string
	limit  int
	window int
	burst  int
}

// NewTokenBucket creates a token bucket over key admitting limit requests
// per window seconds on average, with bursts of up to burst requests.
func NewTokenBucket(st store.Store, key string, limit, window, burst int) *TokenBucket {
	return &TokenBucket{
		store:  st,
		key:    key + ":bucket",
		limit:  limit,
		window: window,
		burst:  burst,
	}
}

func (b *TokenBucket) Allow(ctx context.Context) (bool, error) {
	ttl := time.Duration(2*b.window) * time.Second

	for attempt := 0; attempt < casAttempts; attempt++ {
		raw, exists, err := b.store.Get(ctx, b.key)
		if err != nil {
			return false, err
		}

		now := unixSeconds(nowFunc())
		tokens := float64(b.burst)
		lastRefill := now
		old := ""
		if exists {
			tokens, lastRefill, err = decodeBucket(raw)
			if err != nil {
				return false, err
			}
			old = raw
		}

		elapsed := now - lastRefill
		if elapsed < 0 {
			elapsed = 0
		}
		tokens = math.Min(float64(b.burst), tokens+elapsed*float64(b.limit)/float64(b.window))

		allowed := tokens >= 1
		if allowed {
			tokens--
		}

		// Denied requests still persist the refreshed record so the
		// accrued fractional refill is not lost.
		swapped, err := b.store.CompareAndSwap(ctx, b.key, old, encodeBucket(tokens, now), ttl)
		if err != nil {
			return false, err
		}
		if swapped {
			return allowed, nil
		}
	}

	return false, ErrContention
}

func (b *TokenBucket) Remaining(ctx context.Context) (int, error) {
	raw, exists, err := b.store.Get(ctx, b.key)
	if err != nil {
		return 0, err
	}

	tokens := float64(b.burst)
	if exists {
		tokens, _, err = decodeBucket(raw)
		if err != nil {
			return 0, err
		}
	}

	remaining := int(tokens)
	if remaining < 0 {
		remaining = 0
	}
	if remaining > b.limit {
		remaining = b.limit
	}
	return remaining, nil
}

// ResetAt reports when the bucket next admits a request: for a drained
// bucket that is the moment the next token finishes regenerating, otherwise
// the conservative full-refill horizon.
func (b *TokenBucket) ResetAt(ctx context.Context) (int64, error) {
	raw, exists, err := b.store.Get(ctx, b.key)
	if err != nil {
		return 0, err
	}
	if !exists {
		return nowFunc().Unix() + int64(b.window), nil
	}

	tokens, lastRefill, err := decodeBucket(raw)
	if err != nil {
		return 0, err
	}

	if tokens < 1 {
		perToken := float64(b.window) / float64(b.limit)
		return int64(math.Ceil(lastRefill + (1-tokens)*perToken)), nil
	}
	return int64(lastRefill) + int64(b.window), nil
}

func encodeBucket(tokens, lastRefill float64) string {
	return strconv.FormatFloat(tokens, 'f', -1, 64) + " " + strconv.FormatFloat(lastRefill, 'f', -1, 64)
}

func decodeBucket(raw string) (tokens, lastRefill float64, err error) {
	t, l, ok := strings.Cut(raw, " ")
	if !ok {
		return 0, 0, fmt.Errorf("malformed bucket state %q", raw)
	}
	tokens, err = strconv.ParseFloat(t, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed bucket tokens %q: %w", raw, err)
	}
	lastRefill, err = strconv.ParseFloat(l, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed bucket refill time %q: %w", raw, err)
	}
	return tokens, lastRefill, nil
}
