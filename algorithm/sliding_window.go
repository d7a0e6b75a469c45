package algorithm

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/nhalm/limitkit/store"
)

// SlidingWindow implements exact rate accounting over a continuously moving
// window, keeping one timestamped entry per admitted request in a sorted
// set. Precise, but storage cost grows with the in-window request count.
type SlidingWindow struct {
	store  store.Store
	key    string
	limit  int
	window int
}

// NewSlidingWindow creates a sliding window limiter over key admitting at
// most limit requests in any window-second interval.
func NewSlidingWindow(st store.Store, key string, limit, window int) *SlidingWindow {
	return &SlidingWindow{
		store:  st,
		key:    key + ":log",
		limit:  limit,
		window: window,
	}
}

func (s *SlidingWindow) Allow(ctx context.Context) (bool, error) {
	now := unixSeconds(nowFunc())
	ttl := time.Duration(s.window+1) * time.Second

	// A uuid fragment keeps members unique when two requests land on the
	// same timestamp; a plain timestamp member would dedup and undercount.
	member := strconv.FormatFloat(now, 'f', 6, 64) + ":" + uuid.NewString()[:8]

	_, added, err := s.store.ZAddIfCardBelow(ctx, s.key, member, now, now-float64(s.window), int64(s.limit), ttl)
	if err != nil {
		return false, err
	}
	return added, nil
}

func (s *SlidingWindow) Remaining(ctx context.Context) (int, error) {
	now := unixSeconds(nowFunc())

	if err := s.store.ZRemRangeByScore(ctx, s.key, math.Inf(-1), now-float64(s.window)); err != nil {
		return 0, err
	}
	count, err := s.store.ZCard(ctx, s.key)
	if err != nil {
		return 0, err
	}

	remaining := s.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

func (s *SlidingWindow) ResetAt(ctx context.Context) (int64, error) {
	oldest, err := s.store.ZRangeWithScores(ctx, s.key, 0, 0)
	if err != nil {
		return 0, err
	}
	if len(oldest) == 0 {
		return nowFunc().Unix() + int64(s.window), nil
	}
	return int64(oldest[0].Score) + int64(s.window), nil
}
