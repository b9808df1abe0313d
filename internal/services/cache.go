package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"event-registration/internal/status"

	"github.com/redis/go-redis/v9"
)

const correlationKeyPrefix = "payment:ref:"

// CorrelationCache maps a gateway reference to the payer that opened it.
// Entries live in redis so they survive restarts within their TTL.
type CorrelationCache struct {
	redis redis.Cmdable
}

func NewCorrelationCache(client redis.Cmdable) *CorrelationCache {
	return &CorrelationCache{redis: client}
}

func correlationKey(reference string) string {
	return correlationKeyPrefix + reference
}

func (c *CorrelationCache) Put(ctx context.Context, reference, payerID string, ttl time.Duration) error {
	const op = "services.CorrelationCache.Put"

	if err := c.redis.Set(ctx, correlationKey(reference), payerID, ttl).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Get returns status.ErrCorrelationMiss when the entry is absent or expired.
func (c *CorrelationCache) Get(ctx context.Context, reference string) (string, error) {
	const op = "services.CorrelationCache.Get"

	payerID, err := c.redis.Get(ctx, correlationKey(reference)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", fmt.Errorf("%s: %w", op, status.ErrCorrelationMiss)
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return payerID, nil
}

func (c *CorrelationCache) Delete(ctx context.Context, reference string) error {
	const op = "services.CorrelationCache.Delete"

	if err := c.redis.Del(ctx, correlationKey(reference)).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
