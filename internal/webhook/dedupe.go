package webhook

import (
	"context"
	"fmt"
	"time"

	"atsboost/internal/types"

	"github.com/redis/go-redis/v9"
)

// Deduplicator guards against reprocessing a redelivered event
type Deduplicator interface {
	// Claim returns true when the caller is the first to see key.
	Claim(ctx context.Context, key string) (bool, error)
	// Release forgets key so a later redelivery is processed again.
	Release(ctx context.Context, key string) error
}

// DeliveryKey identifies an event for deduplication as
// event:checkoutId:status.
func DeliveryKey(event types.WebhookEvent) string {
	return event.Event + ":" + event.Data.ID + ":" + event.Data.Status
}

// RedisDeduplicator claims keys with SET NX and a TTL
type RedisDeduplicator struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisDeduplicator(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisDeduplicator {
	if prefix == "" {
		prefix = "atsboost:webhook"
	}
	return &RedisDeduplicator{client: client, prefix: prefix, ttl: ttl}
}

func (d *RedisDeduplicator) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.prefix+":"+key, time.Now().UTC().Format(time.RFC3339), d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim webhook delivery %s: %w", key, err)
	}
	return ok, nil
}

func (d *RedisDeduplicator) Release(ctx context.Context, key string) error {
	if err := d.client.Del(ctx, d.prefix+":"+key).Err(); err != nil {
		return fmt.Errorf("release webhook delivery %s: %w", key, err)
	}
	return nil
}
