package algorithm

import (
	"context"
	"strconv"
	"time"

	"github.com/nhalm/limitkit/store"
)

// FixedWindow implements coarse counting over discrete, non-overlapping
// windows. It is the cheapest algorithm: one counter per window. Up to
// 2*limit requests can land across a window boundary; that burst is a known
// trade-off of the algorithm, not a bug.
type FixedWindow struct {
	store  store.Store
	key    string
	limit  int
	window int
}

// NewFixedWindow creates a fixed window limiter over key admitting at most
// limit requests per window-second bucket.
func NewFixedWindow(st store.Store, key string, limit, window int) *FixedWindow {
	return &FixedWindow{
		store:  st,
		key:    key + ":counter",
		limit:  limit,
		window: window,
	}
}

// windowStart returns the start of the current window in unix seconds.
func (f *FixedWindow) windowStart() int64 {
	w := int64(f.window)
	return nowFunc().Unix() / w * w
}

func (f *FixedWindow) counterKey(windowStart int64) string {
	return f.key + ":" + strconv.FormatInt(windowStart, 10)
}

func (f *FixedWindow) Allow(ctx context.Context) (bool, error) {
	ttl := time.Duration(f.window+1) * time.Second

	// Increment first, compare after: the atomic increment is what keeps
	// two concurrent checks from both seeing count == limit-1. The counter
	// may run past limit within a window; Remaining clamps at zero.
	count, err := f.store.Incr(ctx, f.counterKey(f.windowStart()), ttl)
	if err != nil {
		return false, err
	}
	return count <= int64(f.limit), nil
}

func (f *FixedWindow) Remaining(ctx context.Context) (int, error) {
	raw, exists, err := f.store.Get(ctx, f.counterKey(f.windowStart()))
	if err != nil {
		return 0, err
	}

	count := 0
	if exists {
		count, err = strconv.Atoi(raw)
		if err != nil {
			return 0, err
		}
	}

	remaining := f.limit - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

func (f *FixedWindow) ResetAt(_ context.Context) (int64, error) {
	return f.windowStart() + int64(f.window), nil
}
