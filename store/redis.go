package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a Redis-backed implementation of Store.
// Suitable for distributed deployments: all instances sharing the same
// Redis see the same counters, and the atomic operations run as server-side
// Lua scripts so per-key read-modify-write sequences are linearizable.
type Redis struct {
	client *redis.Client
	prefix string
}

// RedisConfig holds configuration for the Redis connection.
// Populate from environment variables in your application code.
type RedisConfig struct {
	URL      string
	Password string
	DB       int
	// Prefix is prepended to every key. Leave empty when the caller already
	// namespaces its keys (the limiter's key builder does).
	Prefix string
}

// compareAndSwapScript sets KEYS[1] to ARGV[2] only when its current value
// equals ARGV[1] (empty ARGV[1] means the key must be absent).
const compareAndSwapScript = `
local cur = redis.call('GET', KEYS[1])
if (cur == false and ARGV[1] == '') or cur == ARGV[1] then
	if tonumber(ARGV[3]) > 0 then
		redis.call('SET', KEYS[1], ARGV[2], 'EX', ARGV[3])
	else
		redis.call('SET', KEYS[1], ARGV[2])
	end
	return 1
end
return 0
`

// zAddIfCardBelowScript prunes members with score below ARGV[1], then adds
// ARGV[4] with score ARGV[3] if the remaining cardinality is under ARGV[2].
const zAddIfCardBelowScript = `
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', '(' .. ARGV[1])
local count = redis.call('ZCARD', KEYS[1])
if count < tonumber(ARGV[2]) then
	redis.call('ZADD', KEYS[1], ARGV[3], ARGV[4])
	redis.call('EXPIRE', KEYS[1], ARGV[5])
	return {count, 1}
end
return {count, 0}
`

// NewRedis creates a Redis store with the given configuration.
func NewRedis(config RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.URL,
		Password: config.Password,
		DB:       config.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Redis{
		client: client,
		prefix: config.Prefix,
	}, nil
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.client.Get(ctx, r.prefix+key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get failed: %w", err)
	}
	return val, true, nil
}

func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *Redis) CompareAndSwap(ctx context.Context, key, old, new string, ttl time.Duration) (bool, error) {
	ttlSec := int64(ttl / time.Second)
	res, err := r.client.Eval(ctx, compareAndSwapScript, []string{r.prefix + key}, old, new, ttlSec).Result()
	if err != nil {
		return false, fmt.Errorf("redis compare-and-swap failed: %w", err)
	}
	n, ok := res.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected compare-and-swap result type %T", res)
	}
	return n == 1, nil
}

func (r *Redis) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	fullKey := r.prefix + key

	pipe := r.client.Pipeline()
	incr := pipe.Incr(ctx, fullKey)
	pipe.ExpireNX(ctx, fullKey, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis increment failed: %w", err)
	}
	return incr.Val(), nil
}

func (r *Redis) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := r.client.Expire(ctx, r.prefix+key, ttl).Err(); err != nil {
		return fmt.Errorf("redis expire failed: %w", err)
	}
	return nil
}

func (r *Redis) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, r.prefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists failed: %w", err)
	}
	return n > 0, nil
}

func (r *Redis) Del(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Del(ctx, r.prefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("redis del failed: %w", err)
	}
	return n > 0, nil
}

func (r *Redis) TTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := r.client.TTL(ctx, r.prefix+key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis ttl failed: %w", err)
	}
	return ttl, nil
}

func (r *Redis) Keys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, r.prefix+pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val()[len(r.prefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan failed: %w", err)
	}
	return keys, nil
}

func (r *Redis) ZAddIfCardBelow(ctx context.Context, key, member string, score, minScore float64, limit int64, ttl time.Duration) (int64, bool, error) {
	ttlSec := int64(ttl / time.Second)
	res, err := r.client.Eval(ctx, zAddIfCardBelowScript, []string{r.prefix + key},
		formatScore(minScore), limit, formatScore(score), member, ttlSec).Result()
	if err != nil {
		return 0, false, fmt.Errorf("redis guarded zadd failed: %w", err)
	}
	arr, ok := res.([]interface{})
	if !ok || len(arr) != 2 {
		return 0, false, fmt.Errorf("unexpected guarded zadd result %v", res)
	}
	card, ok1 := arr[0].(int64)
	added, ok2 := arr[1].(int64)
	if !ok1 || !ok2 {
		return 0, false, fmt.Errorf("unexpected guarded zadd result %v", res)
	}
	return card, added == 1, nil
}

func (r *Redis) ZRemRangeByScore(ctx context.Context, key string, min, max float64) error {
	err := r.client.ZRemRangeByScore(ctx, r.prefix+key, formatScore(min), formatScore(max)).Err()
	if err != nil {
		return fmt.Errorf("redis zremrangebyscore failed: %w", err)
	}
	return nil
}

func (r *Redis) ZCard(ctx context.Context, key string) (int64, error) {
	n, err := r.client.ZCard(ctx, r.prefix+key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis zcard failed: %w", err)
	}
	return n, nil
}

func (r *Redis) ZRangeWithScores(ctx context.Context, key string, start, stop int64) ([]ScoredMember, error) {
	zs, err := r.client.ZRangeWithScores(ctx, r.prefix+key, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrange failed: %w", err)
	}
	members := make([]ScoredMember, 0, len(zs))
	for _, z := range zs {
		m, _ := z.Member.(string)
		members = append(members, ScoredMember{Member: m, Score: z.Score})
	}
	return members, nil
}

// Close releases resources held by the Redis client.
func (r *Redis) Close() error {
	return r.client.Close()
}

func formatScore(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
