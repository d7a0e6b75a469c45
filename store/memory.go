package store

import (
	"context"
	"path"
	"sort"
	"strconv"
	"sync"
	"time"
)

type memoryValue struct {
	value      string
	expiration time.Time // zero means no expiry
}

type memoryZSet struct {
	members    map[string]float64
	expiration time.Time
}

// Memory is an in-memory implementation of Store.
// Suitable for single-instance deployments and tests. Atomicity is provided
// by a single mutex, which also makes the composite operations linearizable.
type Memory struct {
	mu     sync.Mutex
	values map[string]*memoryValue
	zsets  map[string]*memoryZSet
	stopCh chan struct{}
}

// NewMemory creates a new in-memory store with automatic cleanup of expired entries.
func NewMemory() *Memory {
	m := &Memory{
		values: make(map[string]*memoryValue),
		zsets:  make(map[string]*memoryZSet),
		stopCh: make(chan struct{}),
	}

	go m.cleanup()
	return m
}

func (v *memoryValue) expired(now time.Time) bool {
	return !v.expiration.IsZero() && now.After(v.expiration)
}

func (z *memoryZSet) expired(now time.Time) bool {
	return !z.expiration.IsZero() && now.After(z.expiration)
}

// live returns the value entry for key, dropping it if expired.
// Callers must hold the mutex.
func (m *Memory) live(key string) (*memoryValue, bool) {
	v, ok := m.values[key]
	if !ok {
		return nil, false
	}
	if v.expired(time.Now()) {
		delete(m.values, key)
		return nil, false
	}
	return v, true
}

func (m *Memory) liveZSet(key string) (*memoryZSet, bool) {
	z, ok := m.zsets[key]
	if !ok {
		return nil, false
	}
	if z.expired(time.Now()) {
		delete(m.zsets, key)
		return nil, false
	}
	return z, true
}

func expirationFor(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.live(key)
	if !ok {
		return "", false, nil
	}
	return v.value, true, nil
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[key] = &memoryValue{value: value, expiration: expirationFor(ttl)}
	return nil
}

func (m *Memory) CompareAndSwap(_ context.Context, key, old, new string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.live(key)
	if ok && v.value != old {
		return false, nil
	}
	if !ok && old != "" {
		return false, nil
	}
	m.values[key] = &memoryValue{value: new, expiration: expirationFor(ttl)}
	return true, nil
}

func (m *Memory) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.live(key)
	if !ok {
		m.values[key] = &memoryValue{value: "1", expiration: expirationFor(ttl)}
		return 1, nil
	}

	n, err := strconv.ParseInt(v.value, 10, 64)
	if err != nil {
		n = 0
	}
	n++
	v.value = strconv.FormatInt(n, 10)
	return n, nil
}

func (m *Memory) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if v, ok := m.live(key); ok {
		v.expiration = expirationFor(ttl)
	}
	if z, ok := m.liveZSet(key); ok {
		z.expiration = expirationFor(ttl)
	}
	return nil
}

func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.live(key); ok {
		return true, nil
	}
	_, ok := m.liveZSet(key)
	return ok, nil
}

func (m *Memory) Del(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, hadValue := m.live(key)
	_, hadZSet := m.liveZSet(key)
	delete(m.values, key)
	delete(m.zsets, key)
	return hadValue || hadZSet, nil
}

func (m *Memory) TTL(_ context.Context, key string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if v, ok := m.live(key); ok && !v.expiration.IsZero() {
		return time.Until(v.expiration), nil
	}
	if z, ok := m.liveZSet(key); ok && !z.expiration.IsZero() {
		return time.Until(z.expiration), nil
	}
	return -1, nil
}

func (m *Memory) Keys(_ context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var keys []string
	for key, v := range m.values {
		if v.expired(now) {
			continue
		}
		if ok, _ := path.Match(pattern, key); ok {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (m *Memory) ZAddIfCardBelow(_ context.Context, key, member string, score, minScore float64, limit int64, ttl time.Duration) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	z, ok := m.liveZSet(key)
	if !ok {
		z = &memoryZSet{members: make(map[string]float64)}
		m.zsets[key] = z
	}

	for mem, s := range z.members {
		if s < minScore {
			delete(z.members, mem)
		}
	}

	card := int64(len(z.members))
	if card >= limit {
		return card, false, nil
	}

	z.members[member] = score
	z.expiration = expirationFor(ttl)
	return card, true, nil
}

func (m *Memory) ZRemRangeByScore(_ context.Context, key string, min, max float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	z, ok := m.liveZSet(key)
	if !ok {
		return nil
	}
	for mem, s := range z.members {
		if s >= min && s <= max {
			delete(z.members, mem)
		}
	}
	return nil
}

func (m *Memory) ZCard(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	z, ok := m.liveZSet(key)
	if !ok {
		return 0, nil
	}
	return int64(len(z.members)), nil
}

func (m *Memory) ZRangeWithScores(_ context.Context, key string, start, stop int64) ([]ScoredMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	z, ok := m.liveZSet(key)
	if !ok {
		return nil, nil
	}

	members := make([]ScoredMember, 0, len(z.members))
	for mem, s := range z.members {
		members = append(members, ScoredMember{Member: mem, Score: s})
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].Score != members[j].Score {
			return members[i].Score < members[j].Score
		}
		return members[i].Member < members[j].Member
	})

	if start < 0 {
		start = 0
	}
	if stop >= int64(len(members)) {
		stop = int64(len(members)) - 1
	}
	if start > stop {
		return nil, nil
	}
	return members[start : stop+1], nil
}

func (m *Memory) Close() error {
	close(m.stopCh)
	return nil
}

func (m *Memory) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			m.mu.Lock()
			for key, v := range m.values {
				if v.expired(now) {
					delete(m.values, key)
				}
			}
			for key, z := range m.zsets {
				if z.expired(now) {
					delete(m.zsets, key)
				}
			}
			m.mu.Unlock()
		case <-m.stopCh:
			return
		}
	}
}

