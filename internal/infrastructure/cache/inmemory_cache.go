package cache

import (
	"context"
	"path"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agrosupply/backend/internal/domain/shared"
)

const defaultCleanupInterval = 30 * time.Second

type cacheEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

func (e cacheEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// InMemoryCache implements shared.Cache in process memory. It serves
// single-instance deployments and tests; instances do not share entries.
type InMemoryCache struct {
	mu        sync.RWMutex
	entries   map[string]cacheEntry
	now       func() time.Time
	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once

	hits   int64
	misses int64
}

// InMemoryCacheOption is a functional option for configuring the cache
type InMemoryCacheOption func(*InMemoryCache)

// WithInMemoryClock replaces time.Now, for tests
func WithInMemoryClock(now func() time.Time) InMemoryCacheOption {
	return func(c *InMemoryCache) {
		c.now = now
	}
}

// NewInMemoryCache creates the cache and starts its cleanup goroutine
func NewInMemoryCache(opts ...InMemoryCacheOption) *InMemoryCache {
	c := &InMemoryCache{
		entries: make(map[string]cacheEntry),
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.wg.Add(1)
	go c.cleanupLoop(defaultCleanupInterval)
	return c
}

// Get returns the cached value if present and not expired
func (c *InMemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || e.expired(c.now()) {
		atomic.AddInt64(&c.misses, 1)
		return nil, false, nil
	}
	atomic.AddInt64(&c.hits, 1)
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true, nil
}

// Put stores a copy of value for ttl; zero ttl never expires
func (c *InMemoryCache) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := cacheEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
	return nil
}

// Invalidate removes every key matching the glob pattern
func (c *InMemoryCache) Invalidate(_ context.Context, pattern string) error {
	if _, err := path.Match(pattern, ""); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if ok, _ := path.Match(pattern, key); ok {
			delete(c.entries, key)
		}
	}
	return nil
}

// Stats returns hit and miss counts
func (c *InMemoryCache) Stats() (hits, misses int64) {
	return atomic.LoadInt64(&c.hits), atomic.LoadInt64(&c.misses)
}

// Len returns the number of stored entries, expired ones included
func (c *InMemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (c *InMemoryCache) Close() error {
	c.closeOnce.Do(func() {
		close(c.stopCh)
		c.wg.Wait()
	})
	return nil
}

func (c *InMemoryCache) cleanupLoop(interval time.Duration) {
	defer c.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.removeExpired()
		}
	}
}

func (c *InMemoryCache) removeExpired() {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, key)
		}
	}
}

var _ shared.Cache = (*InMemoryCache)(nil)
