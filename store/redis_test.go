package store

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func setupRedisTest(t *testing.T) (*Redis, func()) {
	t.Helper()

	config := RedisConfig{
		URL:    "localhost:6379",
		DB:     15,
		Prefix: "test:limitkit:",
	}

	st, err := NewRedis(config)
	if err != nil {
		t.Skip("Redis not available:", err)
	}

	cleanup := func() {
		ctx := context.Background()
		iter := st.client.Scan(ctx, 0, config.Prefix+"*", 0).Iterator()
		for iter.Next(ctx) {
			st.client.Del(ctx, iter.Val())
		}
		st.Close()
	}

	return st, cleanup
}

func TestNewRedis_InvalidConnection(t *testing.T) {
	_, err := NewRedis(RedisConfig{URL: "localhost:9999"})
	if err == nil {
		t.Error("expected connection error for unreachable Redis")
	}
}

func TestRedis_GetSet(t *testing.T) {
	st, cleanup := setupRedisTest(t)
	defer cleanup()

	ctx := context.Background()

	_, exists, err := st.Get(ctx, "missing")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if exists {
		t.Error("expected missing key to not exist")
	}

	if err := st.Set(ctx, "key", "value", time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	val, exists, err := st.Get(ctx, "key")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !exists || val != "value" {
		t.Errorf("Get() = (%q, %v), want (%q, true)", val, exists, "value")
	}
}

func TestRedis_CompareAndSwap(t *testing.T) {
	st, cleanup := setupRedisTest(t)
	defer cleanup()

	ctx := context.Background()

	swapped, err := st.CompareAndSwap(ctx, "cas", "", "first", time.Minute)
	if err != nil {
		t.Fatalf("CompareAndSwap() error = %v", err)
	}
	if !swapped {
		t.Error("expected create-when-absent swap to succeed")
	}

	swapped, err = st.CompareAndSwap(ctx, "cas", "wrong", "second", time.Minute)
	if err != nil {
		t.Fatalf("CompareAndSwap() error = %v", err)
	}
	if swapped {
		t.Error("expected mismatched swap to fail")
	}

	swapped, err = st.CompareAndSwap(ctx, "cas", "first", "second", time.Minute)
	if err != nil {
		t.Fatalf("CompareAndSwap() error = %v", err)
	}
	if !swapped {
		t.Error("expected matching swap to succeed")
	}

	val, _, err := st.Get(ctx, "cas")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if val != "second" {
		t.Errorf("value = %q, want %q", val, "second")
	}
}

func TestRedis_CompareAndSwap_Concurrent(t *testing.T) {
	st, cleanup := setupRedisTest(t)
	defer cleanup()

	ctx := context.Background()
	if err := st.Set(ctx, "cas", "base", time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	const concurrency = 20

	var (
		wins    atomic.Int64
		wg      sync.WaitGroup
		startCh = make(chan struct{})
	)

	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			defer wg.Done()
			<-startCh

			swapped, err := st.CompareAndSwap(ctx, "cas", "base", "next", time.Minute)
			if err != nil {
				t.Errorf("CompareAndSwap() error = %v", err)
				return
			}
			if swapped {
				wins.Add(1)
			}
		}()
	}

	close(startCh)
	wg.Wait()

	if wins.Load() != 1 {
		t.Errorf("expected exactly 1 winning swap, got %d", wins.Load())
	}
}

func TestRedis_Incr(t *testing.T) {
	st, cleanup := setupRedisTest(t)
	defer cleanup()

	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		got, err := st.Incr(ctx, "counter", time.Minute)
		if err != nil {
			t.Fatalf("Incr() error = %v", err)
		}
		if got != i {
			t.Errorf("Incr() = %d, want %d", got, i)
		}
	}

	ttl, err := st.TTL(ctx, "counter")
	if err != nil {
		t.Fatalf("TTL() error = %v", err)
	}
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("TTL() = %v, want within (0, 1m]", ttl)
	}
}

func TestRedis_ExistsDel(t *testing.T) {
	st, cleanup := setupRedisTest(t)
	defer cleanup()

	ctx := context.Background()

	if err := st.Set(ctx, "key", "v", time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	exists, err := st.Exists(ctx, "key")
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if !exists {
		t.Error("expected key to exist")
	}

	removed, err := st.Del(ctx, "key")
	if err != nil {
		t.Fatalf("Del() error = %v", err)
	}
	if !removed {
		t.Error("expected Del() to report removal")
	}

	removed, err = st.Del(ctx, "key")
	if err != nil {
		t.Fatalf("Del() error = %v", err)
	}
	if removed {
		t.Error("expected second Del() to report nothing removed")
	}
}

func TestRedis_Keys(t *testing.T) {
	st, cleanup := setupRedisTest(t)
	defer cleanup()

	ctx := context.Background()

	for i := 0; i < 3; i++ {
		key := fmt.Sprintf("rate_limit:denylist:10.0.0.%d", i)
		if err := st.Set(ctx, key, "1", time.Minute); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
	}
	if err := st.Set(ctx, "rate_limit:allowlist:10.0.0.9", "1", time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	keys, err := st.Keys(ctx, "rate_limit:denylist:*")
	if err != nil {
		t.Fatalf("Keys() error = %v", err)
	}
	if len(keys) != 3 {
		t.Errorf("Keys() returned %d keys, want 3: %v", len(keys), keys)
	}
	// The prefix is stripped from returned keys.
	for _, key := range keys {
		if len(key) < len("rate_limit:") || key[:len("rate_limit:")] != "rate_limit:" {
			t.Errorf("key %q should not carry the store prefix", key)
		}
	}
}

func TestRedis_ZAddIfCardBelow(t *testing.T) {
	st, cleanup := setupRedisTest(t)
	defer cleanup()

	ctx := context.Background()

	for i := 0; i < 3; i++ {
		member := fmt.Sprintf("m%d", i)
		_, added, err := st.ZAddIfCardBelow(ctx, "log", member, float64(i), -1, 3, time.Minute)
		if err != nil {
			t.Fatalf("ZAddIfCardBelow() error = %v", err)
		}
		if !added {
			t.Errorf("add %d: expected added", i)
		}
	}

	card, added, err := st.ZAddIfCardBelow(ctx, "log", "m3", 3, -1, 3, time.Minute)
	if err != nil {
		t.Fatalf("ZAddIfCardBelow() error = %v", err)
	}
	if added {
		t.Error("expected add to be rejected at the limit")
	}
	if card != 3 {
		t.Errorf("card = %d, want 3", card)
	}

	// Prune via minScore makes room again.
	_, added, err = st.ZAddIfCardBelow(ctx, "log", "m4", 4, 2.5, 3, time.Minute)
	if err != nil {
		t.Fatalf("ZAddIfCardBelow() error = %v", err)
	}
	if !added {
		t.Error("expected add after pruning scores below 2.5")
	}

	count, err := st.ZCard(ctx, "log")
	if err != nil {
		t.Fatalf("ZCard() error = %v", err)
	}
	if count != 2 {
		t.Errorf("ZCard() = %d, want 2", count)
	}
}

func TestRedis_ZRangeWithScores(t *testing.T) {
	st, cleanup := setupRedisTest(t)
	defer cleanup()

	ctx := context.Background()

	for i, score := range []float64{5, 1, 3} {
		member := fmt.Sprintf("m%d", i)
		if _, _, err := st.ZAddIfCardBelow(ctx, "log", member, score, -1, 100, time.Minute); err != nil {
			t.Fatalf("ZAddIfCardBelow() error = %v", err)
		}
	}

	oldest, err := st.ZRangeWithScores(ctx, "log", 0, 0)
	if err != nil {
		t.Fatalf("ZRangeWithScores() error = %v", err)
	}
	if len(oldest) != 1 || oldest[0].Score != 1 {
		t.Errorf("ZRangeWithScores(0, 0) = %v, want single member with score 1", oldest)
	}
}
