package shared

import (
	"context"
	"time"
)

// Cache key families invalidated by ledger mutations.
const (
	CacheFamilyProducts     = "products:*"
	CacheFamilyBills        = "bills:*"
	CacheFamilyInstallments = "installments:*"
	CacheFamilyBatches      = "batches:*"
)

// Cache is the look-aside cache collaborator. Mutating operations call
// Invalidate after their write commits. Implementations are best-effort:
// callers log failures and carry on, correctness never depends on the cache.
type Cache interface {
	// Get returns the cached value and whether it was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Put stores value under key for ttl.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Invalidate removes every key matching the glob pattern.
	Invalidate(ctx context.Context, pattern string) error
}
