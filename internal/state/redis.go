package state

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const resendKeyPrefix = "opsmon:resend:"

// RedisLimiter shares resend windows between monitors through Redis,
// so several hosts reporting into one channel respect a single interval.
type RedisLimiter struct {
	client *redis.Client
	prefix string
}

// NewRedisLimiter creates a limiter backed by client
func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: resendKeyPrefix}
}

// NewRedisClient connects to addr and verifies the connection
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return client, nil
}

// Allow atomically claims the window for key using SET NX with a TTL of every
func (l *RedisLimiter) Allow(ctx context.Context, key string, every time.Duration) (bool, error) {
	if every <= 0 {
		return true, nil
	}
	acquired, err := l.client.SetNX(ctx, l.prefix+key, "1", every).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire resend window: %w", err)
	}
	return acquired, nil
}

// Close closes the underlying client
func (l *RedisLimiter) Close() error {
	return l.client.Close()
}
