package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "ratelimit:"

// RedisStore backs the limiter bank with a shared Redis instance so that
// quotas hold across gateway replicas. Counters use INCR with a window-long
// expiry set on first hit, which gives the same fixed-window semantics as
// the in-memory store; Redis reclaims stale keys on its own.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed counter store.
func NewRedisStore(addr, password string, db int) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

// Ping verifies connectivity, intended for startup checks.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	rkey := redisKeyPrefix + key

	count, err := s.client.Incr(ctx, rkey).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("rate limit incr: %w", err)
	}

	if count == 1 {
		if err := s.client.PExpire(ctx, rkey, window).Err(); err != nil {
			return 0, time.Time{}, fmt.Errorf("rate limit expire: %w", err)
		}
		return count, time.Now().Add(window), nil
	}

	ttl, err := s.client.PTTL(ctx, rkey).Result()
	if err != nil || ttl < 0 {
		// Counter without an expiry (for example after a partial failure):
		// reattach the window rather than letting it live forever.
		_ = s.client.PExpire(ctx, rkey, window).Err()
		ttl = window
	}

	return count, time.Now().Add(ttl), nil
}

func (s *RedisStore) Decr(ctx context.Context, key string) error {
	rkey := redisKeyPrefix + key

	// Only refund counters that still exist; a vanished key means the
	// window already expired.
	exists, err := s.client.Exists(ctx, rkey).Result()
	if err != nil {
		return fmt.Errorf("rate limit exists: %w", err)
	}
	if exists == 0 {
		return nil
	}
	if err := s.client.Decr(ctx, rkey).Err(); err != nil {
		return fmt.Errorf("rate limit decr: %w", err)
	}
	return nil
}
