// Package cache provides the look-aside cache and idempotency stores used by
// the ledger services, backed by Redis or by process memory.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agrosupply/backend/internal/domain/shared"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultScanBatchSize = 100

// RedisCache implements shared.Cache on Redis. Every key is namespaced with
// a prefix so that several deployments can share one Redis database.
type RedisCache struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// RedisCacheOption is a functional option for configuring the cache
type RedisCacheOption func(*RedisCache)

// WithRedisCacheLogger sets the logger for the cache
func WithRedisCacheLogger(logger *zap.Logger) RedisCacheOption {
	return func(c *RedisCache) {
		c.logger = logger
	}
}

// NewRedisCacheWithClient creates a cache over an existing client.
// The caller keeps ownership of the client.
func NewRedisCacheWithClient(client *redis.Client, prefix string, opts ...RedisCacheOption) *RedisCache {
	c := &RedisCache{
		client: client,
		prefix: prefix,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached value; a missing key is not an error
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.logger.Debug("cache miss", zap.String("key", key))
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get %s from cache: %w", key, err)
	}
	c.logger.Debug("cache hit", zap.String("key", key))
	return data, true, nil
}

// Put stores value for ttl. A zero ttl keeps the key until invalidated.
func (c *RedisCache) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s in cache: %w", key, err)
	}
	return nil
}

// Invalidate deletes every key matching pattern. It walks the keyspace with
// SCAN rather than KEYS so a large cache never blocks Redis.
func (c *RedisCache) Invalidate(ctx context.Context, pattern string) error {
	var (
		cursor  uint64
		deleted int64
	)
	for {
		keys, next, err := c.client.Scan(ctx, cursor, c.prefix+pattern, defaultScanBatchSize).Result()
		if err != nil {
			return fmt.Errorf("failed to scan cache keys %s: %w", pattern, err)
		}
		if len(keys) > 0 {
			n, err := c.client.Del(ctx, keys...).Result()
			if err != nil {
				return fmt.Errorf("failed to delete cache keys %s: %w", pattern, err)
			}
			deleted += n
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	c.logger.Debug("invalidated cache keys",
		zap.String("pattern", pattern),
		zap.Int64("deleted_count", deleted))
	return nil
}

// Ping checks the Redis connection
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

var _ shared.Cache = (*RedisCache)(nil)
