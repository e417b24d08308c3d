package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agrosupply/backend/internal/domain/shared"
	"github.com/agrosupply/backend/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Stores bundles the cache and idempotency store the services share.
// When Redis is enabled both sit on one client.
type Stores struct {
	Cache       shared.Cache
	Idempotency shared.IdempotencyStore
	Backend     string // "redis" or "memory"

	closers []func() error
}

// Close releases every store and the Redis client
func (s *Stores) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Factory creates stores based on configuration
type Factory struct {
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// FactoryOption is a functional option for configuring the factory
type FactoryOption func(*Factory)

// WithLogger sets the logger for the factory and the stores it builds
func WithLogger(logger *zap.Logger) FactoryOption {
	return func(f *Factory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether an unreachable Redis falls back to
// process memory. Default is true.
func WithInMemoryFallback(allow bool) FactoryOption {
	return func(f *Factory) {
		f.allowInMemoryFallback = allow
	}
}

// NewFactory creates a new factory
func NewFactory(cfg config.RedisConfig, opts ...FactoryOption) *Factory {
	f := &Factory{
		redisConfig:           cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Create returns Redis-backed stores when Redis is enabled and reachable,
// in-memory stores otherwise
func (f *Factory) Create(ctx context.Context) (*Stores, error) {
	if !f.redisConfig.Enabled {
		f.logger.Info("Redis disabled, using in-memory cache")
		return f.inMemory(), nil
	}

	stores, err := f.redis(ctx)
	if err == nil {
		f.logger.Info("using Redis cache", zap.String("addr", f.redisConfig.Addr()))
		return stores, nil
	}
	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("Redis required but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory cache. "+
		"Idempotency keys are not shared across instances.",
		zap.Error(err),
	)
	return f.inMemory(), nil
}

func (f *Factory) redis(ctx context.Context) (*Stores, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     f.redisConfig.Addr(),
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	prefix := f.redisConfig.KeyPrefix
	return &Stores{
		Cache:       NewRedisCacheWithClient(client, prefix, WithRedisCacheLogger(f.logger.Named("cache"))),
		Idempotency: NewRedisIdempotencyStoreWithClient(client, prefix),
		Backend:     "redis",
		closers:     []func() error{client.Close},
	}, nil
}

func (f *Factory) inMemory() *Stores {
	c := NewInMemoryCache()
	idem := NewInMemoryIdempotencyStore()
	return &Stores{
		Cache:       c,
		Idempotency: idem,
		Backend:     "memory",
		closers:     []func() error{c.Close, idem.Close},
	}
}
