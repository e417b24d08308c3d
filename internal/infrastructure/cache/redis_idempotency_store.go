package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/agrosupply/backend/internal/domain/shared"
	"github.com/redis/go-redis/v9"
)

const idempotencyKeyspace = "idempotency:"

// RedisIdempotencyStore implements IdempotencyStore using Redis, so retried
// payment requests are recognised whichever instance receives them
type RedisIdempotencyStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisIdempotencyStoreWithClient creates a store over an existing client.
// The caller keeps ownership of the client.
func NewRedisIdempotencyStoreWithClient(client *redis.Client, prefix string) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{
		client:    client,
		keyPrefix: prefix + idempotencyKeyspace,
	}
}

// MarkProcessed claims key with SET NX so only one caller wins
func (s *RedisIdempotencyStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	claimed, err := s.client.SetNX(ctx, s.keyPrefix+key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim idempotency key: %w", err)
	}
	return claimed, nil
}

// IsProcessed checks whether key is claimed
func (s *RedisIdempotencyStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	exists, err := s.client.Exists(ctx, s.keyPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check idempotency key: %w", err)
	}
	return exists > 0, nil
}

// Release drops the claim on key
func (s *RedisIdempotencyStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to release idempotency key: %w", err)
	}
	return nil
}

// Close is a no-op; the client belongs to the caller
func (s *RedisIdempotencyStore) Close() error {
	return nil
}

var _ shared.IdempotencyStore = (*RedisIdempotencyStore)(nil)
