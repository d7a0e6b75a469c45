package algorithm

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nhalm/limitkit/store"
)

// windowAligned is divisible by 60, so a 60s fixed window starts exactly here.
const windowAligned = 1_699_999_980

func TestFixedWindow_LimitPerWindow(t *testing.T) {
	st := store.NewMemory()
	defer st.Close()

	freezeTime(t, time.Unix(windowAligned, 0))
	ctx := context.Background()

	fw := NewFixedWindow(st, "rate_limit:ip:10.0.0.1", 5, 60)

	for i := 0; i < 5; i++ {
		allowed, err := fw.Allow(ctx)
		if err != nil {
			t.Fatalf("Allow() %d error = %v", i+1, err)
		}
		if !allowed {
			t.Fatalf("request %d: expected allowed", i+1)
		}
	}

	if allowed, _ := fw.Allow(ctx); allowed {
		t.Error("6th request: expected denied")
	}

	remaining, err := fw.Remaining(ctx)
	if err != nil {
		t.Fatalf("Remaining() error = %v", err)
	}
	if remaining != 0 {
		t.Errorf("Remaining() = %d, want 0 (never negative past the limit)", remaining)
	}

	resetAt, err := fw.ResetAt(ctx)
	if err != nil {
		t.Fatalf("ResetAt() error = %v", err)
	}
	if resetAt != windowAligned+60 {
		t.Errorf("ResetAt() = %d, want %d", resetAt, windowAligned+60)
	}
}

func TestFixedWindow_BoundaryResetsCounter(t *testing.T) {
	st := store.NewMemory()
	defer st.Close()

	clock := freezeTime(t, time.Unix(windowAligned, 0))
	ctx := context.Background()

	fw := NewFixedWindow(st, "rate_limit:ip:10.0.0.1", 2, 60)

	// Exhaust the current window right before its boundary.
	*clock = clock.Add(59 * time.Second)
	for i := 0; i < 2; i++ {
		if allowed, err := fw.Allow(ctx); err != nil || !allowed {
			t.Fatalf("request %d: allowed = %v, err = %v", i+1, allowed, err)
		}
	}
	if allowed, _ := fw.Allow(ctx); allowed {
		t.Fatal("expected denial at the window limit")
	}

	// One second later a fresh window opens with full capacity. Up to
	// 2*limit requests can straddle the boundary; that is the algorithm's
	// documented coarseness.
	*clock = clock.Add(time.Second)
	for i := 0; i < 2; i++ {
		allowed, err := fw.Allow(ctx)
		if err != nil {
			t.Fatalf("Allow() error = %v", err)
		}
		if !allowed {
			t.Errorf("request %d in new window: expected allowed", i+1)
		}
	}

	remaining, err := fw.Remaining(ctx)
	if err != nil {
		t.Fatalf("Remaining() error = %v", err)
	}
	if remaining != 0 {
		t.Errorf("Remaining() in new window = %d, want 0", remaining)
	}
}

func TestFixedWindow_RemainingFreshWindow(t *testing.T) {
	st := store.NewMemory()
	defer st.Close()

	freezeTime(t, time.Unix(windowAligned, 0))
	ctx := context.Background()

	fw := NewFixedWindow(st, "rate_limit:ip:10.0.0.1", 5, 60)

	remaining, err := fw.Remaining(ctx)
	if err != nil {
		t.Fatalf("Remaining() error = %v", err)
	}
	if remaining != 5 {
		t.Errorf("Remaining() = %d, want 5", remaining)
	}
}

func TestFixedWindow_ConcurrentSameKey(t *testing.T) {
	st := store.NewMemory()
	defer st.Close()

	freezeTime(t, time.Unix(windowAligned, 0))
	ctx := context.Background()

	const (
		limit       = 20
		concurrency = 50
	)

	fw := NewFixedWindow(st, "rate_limit:ip:10.0.0.1", limit, 60)

	var (
		allowed atomic.Int64
		wg      sync.WaitGroup
		startCh = make(chan struct{})
	)

	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			defer wg.Done()
			<-startCh

			ok, err := fw.Allow(ctx)
			if err != nil {
				t.Errorf("Allow() error = %v", err)
				return
			}
			if ok {
				allowed.Add(1)
			}
		}()
	}

	close(startCh)
	wg.Wait()

	if allowed.Load() != limit {
		t.Errorf("expected exactly %d admitted, got %d", limit, allowed.Load())
	}
}
