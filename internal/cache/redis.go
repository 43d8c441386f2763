package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisBackend   = "redis"
	redisScanBatch = 200
)

// RedisCache stores entries under a namespace prefix in Redis.
type RedisCache struct {
	client     redis.UniversalClient
	namespace  string
	defaultTTL time.Duration
	counters
}

// NewRedisCache wraps an existing client. Keys are stored as
// "<namespace>:<key>".
func NewRedisCache(client redis.UniversalClient, namespace string, ttl time.Duration) *RedisCache {
	if namespace == "" {
		namespace = "atsboost"
	}
	return &RedisCache{client: client, namespace: namespace, defaultTTL: ttl}
}

func (c *RedisCache) key(k string) string {
	return c.namespace + ":" + k
}

// Get treats any Redis failure as a miss so callers fall through to the
// underlying computation. Failures other than a missing key are counted
// separately in Stats.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		c.miss()
		if !IsMiss(err) {
			c.failures.Add(1)
		}
		return nil, false
	}
	c.hit()
	return val, true
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	if err := c.client.Set(ctx, c.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Stats reports counters for this process. Entries is counted with a
// namespace SCAN and is -1 if Redis is unreachable.
func (c *RedisCache) Stats() Stats {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	n, err := c.count(ctx)
	if err != nil {
		n = -1
	}
	return c.snapshot(redisBackend, n)
}

func (c *RedisCache) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.key("*"), redisScanBatch).Iterator()
	batch := make([]string, 0, redisScanBatch)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == redisScanBatch {
			if err := c.client.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("redis clear: %w", err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	if len(batch) > 0 {
		if err := c.client.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("redis clear: %w", err)
		}
	}
	c.reset()
	return nil
}

// Ping checks connectivity
func (c *RedisCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (c *RedisCache) count(ctx context.Context) (int, error) {
	n := 0
	iter := c.client.Scan(ctx, 0, c.key("*"), redisScanBatch).Iterator()
	for iter.Next(ctx) {
		n++
	}
	return n, iter.Err()
}

// IsMiss reports whether err is a plain cache miss from Redis.
func IsMiss(err error) bool {
	return errors.Is(err, redis.Nil)
}
