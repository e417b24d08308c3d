package inventory

import (
	"context"
	"sync"
	"time"

	"github.com/agrosupply/backend/internal/domain/inventory"
	"github.com/agrosupply/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// memoryBatchRepo is a mutex-guarded BatchRepository for service tests.
// Conditional updates are atomic under the mutex, like the SQL statements.
type memoryBatchRepo struct {
	mu      sync.Mutex
	batches map[uuid.UUID]*inventory.Batch
	// beforeDecrement runs once per DecrementRemaining call, outside the lock
	beforeDecrement func(id uuid.UUID)
}

func newMemoryBatchRepo() *memoryBatchRepo {
	return &memoryBatchRepo{batches: make(map[uuid.UUID]*inventory.Batch)}
}

func (r *memoryBatchRepo) put(b *inventory.Batch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *b
	r.batches[b.ID] = &c
}

func (r *memoryBatchRepo) get(id uuid.UUID) inventory.Batch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.batches[id]
}

func (r *memoryBatchRepo) FindByID(_ context.Context, id uuid.UUID) (*inventory.Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	c := *b
	return &c, nil
}

func (r *memoryBatchRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*inventory.Batch, error) {
	return r.FindByID(ctx, id)
}

func (r *memoryBatchRepo) FindByProductAndNumber(_ context.Context, productID uuid.UUID, number string) (*inventory.Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.batches {
		if b.ProductID == productID && b.BatchNumber == number && !b.Lifecycle.IsDeleted() {
			c := *b
			return &c, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memoryBatchRepo) FindSellableByProduct(_ context.Context, productID uuid.UUID) ([]inventory.Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]inventory.Batch, 0)
	for _, b := range r.batches {
		if b.ProductID == productID && b.IsSellable() {
			out = append(out, *b)
		}
	}
	inventory.SortOldestFirst(out)
	return out, nil
}

func (r *memoryBatchRepo) matching(filter inventory.BatchFilter) []inventory.Batch {
	out := make([]inventory.Batch, 0)
	for _, b := range r.batches {
		if b.Lifecycle.IsDeleted() {
			continue
		}
		if filter.ProductID != nil && b.ProductID != *filter.ProductID {
			continue
		}
		if !filter.IncludeExpired && b.Expired {
			continue
		}
		out = append(out, *b)
	}
	inventory.SortOldestFirst(out)
	return out
}

func (r *memoryBatchRepo) FindAll(_ context.Context, filter inventory.BatchFilter) ([]inventory.Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := r.matching(filter)
	start := min(filter.Offset(), len(all))
	end := min(start+filter.PageSize, len(all))
	return all[start:end], nil
}

func (r *memoryBatchRepo) Count(_ context.Context, filter inventory.BatchFilter) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.matching(filter))), nil
}

func (r *memoryBatchRepo) Create(_ context.Context, b *inventory.Batch) error {
	r.put(b)
	return nil
}

func (r *memoryBatchRepo) DecrementRemaining(_ context.Context, id uuid.UUID, quantity int64) error {
	if r.beforeDecrement != nil {
		hook := r.beforeDecrement
		r.beforeDecrement = nil
		hook(id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[id]
	if !ok || b.Lifecycle != shared.LifecycleActive || b.Expired || b.RemainingStock < quantity {
		return shared.ErrInsufficientStock
	}
	b.SoldQuantity += quantity
	b.RemainingStock -= quantity
	b.UpdatedAt = time.Now()
	return nil
}

func (r *memoryBatchRepo) IncrementRemaining(_ context.Context, id uuid.UUID, quantity int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[id]
	if !ok || b.SoldQuantity < quantity {
		return shared.ErrNotFound
	}
	b.SoldQuantity -= quantity
	b.RemainingStock += quantity
	return nil
}

func (r *memoryBatchRepo) MarkExpired(_ context.Context, id uuid.UUID) (int64, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[id]
	if !ok {
		return 0, false, shared.ErrNotFound
	}
	if b.Expired {
		return b.RemainingStock, false, nil
	}
	b.Expired = true
	return b.RemainingStock, true, nil
}

func (r *memoryBatchRepo) UpdateLifecycle(_ context.Context, id uuid.UUID, lifecycle shared.Lifecycle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[id]
	if !ok {
		return shared.ErrNotFound
	}
	b.Lifecycle = lifecycle
	return nil
}

func (r *memoryBatchRepo) SumSellableByProduct(_ context.Context, productID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sum int64
	for _, b := range r.batches {
		if b.ProductID == productID {
			sum += b.SellableQuantity()
		}
	}
	return sum, nil
}

type memoryProductRepo struct {
	mu       sync.Mutex
	products map[uuid.UUID]*inventory.Product
}

func newMemoryProductRepo() *memoryProductRepo {
	return &memoryProductRepo{products: make(map[uuid.UUID]*inventory.Product)}
}

func (r *memoryProductRepo) stock(id uuid.UUID) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.products[id].RemainingStock
}

func (r *memoryProductRepo) FindByID(_ context.Context, id uuid.UUID) (*inventory.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	c := *p
	return &c, nil
}

func (r *memoryProductRepo) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]inventory.Product, error) {
	out := make([]inventory.Product, 0, len(ids))
	for _, id := range ids {
		if p, err := r.FindByID(ctx, id); err == nil {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *memoryProductRepo) Save(_ context.Context, p *inventory.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *p
	r.products[p.ID] = &c
	return nil
}

func (r *memoryProductRepo) DecrementStock(_ context.Context, id uuid.UUID, quantity int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok || p.RemainingStock < quantity {
		return shared.ErrInsufficientStock
	}
	p.RemainingStock -= quantity
	return nil
}

func (r *memoryProductRepo) IncrementStock(_ context.Context, id uuid.UUID, quantity int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return shared.ErrNotFound
	}
	p.RemainingStock += quantity
	return nil
}

func (r *memoryProductRepo) SetStock(_ context.Context, id uuid.UUID, quantity int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return shared.ErrNotFound
	}
	p.RemainingStock = quantity
	return nil
}

// recordingCache remembers invalidated patterns
type recordingCache struct {
	mu          sync.Mutex
	invalidated []string
	err         error
}

func (c *recordingCache) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, nil
}

func (c *recordingCache) Put(context.Context, string, []byte, time.Duration) error {
	return nil
}

func (c *recordingCache) Invalidate(_ context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, pattern)
	return c.err
}

func (c *recordingCache) patterns() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.invalidated...)
}
