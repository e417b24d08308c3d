package inventory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agrosupply/backend/internal/domain/inventory"
	"github.com/agrosupply/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type batchFixture struct {
	svc      *BatchService
	batches  *memoryBatchRepo
	products *memoryProductRepo
	cache    *recordingCache
	product  *inventory.Product
	base     time.Time
}

func newBatchFixture(t *testing.T) *batchFixture {
	t.Helper()
	batches := newMemoryBatchRepo()
	products := newMemoryProductRepo()
	cache := &recordingCache{}

	product, err := inventory.NewProduct("Urea 45kg", "URE-45", decimal.NewFromInt(266))
	require.NoError(t, err)
	require.NoError(t, products.Save(context.Background(), product))

	svc := NewBatchService(batches, products, NewNoOpTransactionScope(batches, products), WithCache(cache))
	return &batchFixture{
		svc:      svc,
		batches:  batches,
		products: products,
		cache:    cache,
		product:  product,
		base:     time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

// addBatch receives a lot through the service so the projection follows it
func (f *batchFixture) addBatch(t *testing.T, number string, stock int64, age time.Duration) uuid.UUID {
	t.Helper()
	receivedAt := f.base.Add(age)
	resp, err := f.svc.CreateBatch(context.Background(), CreateBatchRequest{
		ProductID:   f.product.ID,
		BatchNumber: number,
		Stock:       stock,
		ReceivedAt:  &receivedAt,
	})
	require.NoError(t, err)
	return resp.ID
}

func TestBatchService_CreateBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("adds stock to the projection", func(t *testing.T) {
		f := newBatchFixture(t)
		f.addBatch(t, "B1", 5, 0)
		f.addBatch(t, "B2", 10, time.Hour)

		assert.Equal(t, int64(15), f.products.stock(f.product.ID))
		assert.Contains(t, f.cache.patterns(), shared.CacheFamilyProducts)
		assert.Contains(t, f.cache.patterns(), shared.CacheFamilyBatches)
	})

	t.Run("duplicate number for the product is a conflict", func(t *testing.T) {
		f := newBatchFixture(t)
		f.addBatch(t, "B1", 5, 0)

		_, err := f.svc.CreateBatch(ctx, CreateBatchRequest{ProductID: f.product.ID, BatchNumber: "B1", Stock: 3})
		assert.ErrorIs(t, err, shared.ErrConflict)
		assert.Equal(t, int64(5), f.products.stock(f.product.ID))
	})

	t.Run("unknown product", func(t *testing.T) {
		f := newBatchFixture(t)
		_, err := f.svc.CreateBatch(ctx, CreateBatchRequest{ProductID: uuid.New(), BatchNumber: "B1", Stock: 3})
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("invalid lot size", func(t *testing.T) {
		f := newBatchFixture(t)
		_, err := f.svc.CreateBatch(ctx, CreateBatchRequest{ProductID: f.product.ID, BatchNumber: "B1", Stock: 0})
		assert.ErrorIs(t, err, shared.ErrValidation)
	})
}

func TestBatchService_SellFromBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("sells and keeps the projection in step", func(t *testing.T) {
		f := newBatchFixture(t)
		id := f.addBatch(t, "B1", 10, 0)

		resp, err := f.svc.SellFromBatch(ctx, SellFromBatchRequest{BatchID: id, Quantity: 4})
		require.NoError(t, err)
		assert.Equal(t, int64(6), resp.Batch.RemainingStock)
		assert.Equal(t, int64(4), resp.Batch.SoldQuantity)
		assert.Equal(t, int64(6), f.products.stock(f.product.ID))
	})

	t.Run("insufficient stock changes nothing", func(t *testing.T) {
		f := newBatchFixture(t)
		id := f.addBatch(t, "B1", 3, 0)

		_, err := f.svc.SellFromBatch(ctx, SellFromBatchRequest{BatchID: id, Quantity: 4})
		assert.ErrorIs(t, err, shared.ErrInsufficientStock)
		assert.Equal(t, int64(3), f.batches.get(id).RemainingStock)
		assert.Equal(t, int64(3), f.products.stock(f.product.ID))
	})

	t.Run("blocked lot", func(t *testing.T) {
		f := newBatchFixture(t)
		id := f.addBatch(t, "B1", 3, 0)
		_, err := f.svc.BlockBatch(ctx, id)
		require.NoError(t, err)

		_, err = f.svc.SellFromBatch(ctx, SellFromBatchRequest{BatchID: id, Quantity: 1})
		assert.ErrorIs(t, err, shared.ErrBlocked)
	})

	t.Run("expired lot has nothing to sell", func(t *testing.T) {
		f := newBatchFixture(t)
		id := f.addBatch(t, "B1", 3, 0)
		_, err := f.svc.MarkExpired(ctx, id)
		require.NoError(t, err)

		_, err = f.svc.SellFromBatch(ctx, SellFromBatchRequest{BatchID: id, Quantity: 1})
		assert.ErrorIs(t, err, shared.ErrInsufficientStock)
	})

	t.Run("deleted or unknown lot is not found", func(t *testing.T) {
		f := newBatchFixture(t)
		id := f.addBatch(t, "B1", 3, 0)
		require.NoError(t, f.svc.DeleteBatch(ctx, id))

		_, err := f.svc.SellFromBatch(ctx, SellFromBatchRequest{BatchID: id, Quantity: 1})
		assert.ErrorIs(t, err, shared.ErrNotFound)

		_, err = f.svc.SellFromBatch(ctx, SellFromBatchRequest{BatchID: uuid.New(), Quantity: 1})
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("concurrent sellers never oversell", func(t *testing.T) {
		f := newBatchFixture(t)
		id := f.addBatch(t, "B1", 10, 0)

		var (
			wg        sync.WaitGroup
			succeeded atomic.Int64
		)
		for i := 0; i < 25; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := f.svc.SellFromBatch(ctx, SellFromBatchRequest{BatchID: id, Quantity: 1}); err == nil {
					succeeded.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int64(10), succeeded.Load())
		lot := f.batches.get(id)
		assert.Equal(t, int64(0), lot.RemainingStock)
		assert.Equal(t, int64(10), lot.SoldQuantity)
		assert.Equal(t, int64(0), f.products.stock(f.product.ID))
	})
}

func TestBatchService_SellFromOldestBatches(t *testing.T) {
	ctx := context.Background()

	t.Run("drains the oldest lot before the next", func(t *testing.T) {
		f := newBatchFixture(t)
		b2 := f.addBatch(t, "B2", 10, time.Hour)
		b1 := f.addBatch(t, "B1", 5, 0)

		resp, err := f.svc.SellFromOldestBatches(ctx, SellFromOldestRequest{ProductID: f.product.ID, Quantity: 8})
		require.NoError(t, err)

		require.Len(t, resp.Allocations, 2)
		assert.Equal(t, b1, resp.Allocations[0].BatchID)
		assert.Equal(t, int64(5), resp.Allocations[0].SoldQuantity)
		assert.Equal(t, b2, resp.Allocations[1].BatchID)
		assert.Equal(t, int64(3), resp.Allocations[1].SoldQuantity)
		assert.True(t, resp.FullyFulfilled)

		assert.Equal(t, int64(0), f.batches.get(b1).RemainingStock)
		assert.Equal(t, int64(7), f.batches.get(b2).RemainingStock)
		assert.Equal(t, int64(7), f.products.stock(f.product.ID))
	})

	t.Run("partial fulfilment returns what was sold", func(t *testing.T) {
		f := newBatchFixture(t)
		f.addBatch(t, "B1", 5, 0)
		f.addBatch(t, "B2", 10, time.Hour)

		resp, err := f.svc.SellFromOldestBatches(ctx, SellFromOldestRequest{ProductID: f.product.ID, Quantity: 20})
		require.Error(t, err)
		assert.ErrorIs(t, err, shared.ErrPartialFulfillment)

		var derr *shared.DomainError
		require.True(t, errors.As(err, &derr))
		assert.Equal(t, int64(5), derr.Details["shortfall"])

		require.NotNil(t, resp)
		assert.Equal(t, int64(15), resp.Fulfilled)
		assert.Equal(t, int64(5), resp.Shortfall)
		assert.False(t, resp.FullyFulfilled)
		assert.Equal(t, int64(0), f.products.stock(f.product.ID))
	})

	t.Run("nothing sellable is insufficient stock", func(t *testing.T) {
		f := newBatchFixture(t)
		id := f.addBatch(t, "B1", 5, 0)
		_, err := f.svc.MarkExpired(ctx, id)
		require.NoError(t, err)

		resp, err := f.svc.SellFromOldestBatches(ctx, SellFromOldestRequest{ProductID: f.product.ID, Quantity: 1})
		assert.ErrorIs(t, err, shared.ErrInsufficientStock)
		assert.Nil(t, resp)
		assert.Contains(t, err.Error(), "Urea 45kg")
	})

	t.Run("skips blocked and expired lots", func(t *testing.T) {
		f := newBatchFixture(t)
		blocked := f.addBatch(t, "B1", 5, 0)
		expired := f.addBatch(t, "B2", 5, time.Hour)
		open := f.addBatch(t, "B3", 5, 2*time.Hour)
		_, err := f.svc.BlockBatch(ctx, blocked)
		require.NoError(t, err)
		_, err = f.svc.MarkExpired(ctx, expired)
		require.NoError(t, err)

		resp, err := f.svc.SellFromOldestBatches(ctx, SellFromOldestRequest{ProductID: f.product.ID, Quantity: 2})
		require.NoError(t, err)
		require.Len(t, resp.Allocations, 1)
		assert.Equal(t, open, resp.Allocations[0].BatchID)
	})

	t.Run("lost race on a lot moves on to the next", func(t *testing.T) {
		f := newBatchFixture(t)
		b1 := f.addBatch(t, "B1", 5, 0)
		b2 := f.addBatch(t, "B2", 10, time.Hour)

		f.batches.beforeDecrement = func(id uuid.UUID) {
			// another seller empties B1 between the read and the update
			f.batches.mu.Lock()
			lot := f.batches.batches[id]
			lot.SoldQuantity += lot.RemainingStock
			lot.RemainingStock = 0
			f.batches.mu.Unlock()
		}

		resp, err := f.svc.SellFromOldestBatches(ctx, SellFromOldestRequest{ProductID: f.product.ID, Quantity: 8})
		require.NoError(t, err)

		require.Len(t, resp.Allocations, 1)
		assert.Equal(t, b2, resp.Allocations[0].BatchID)
		assert.Equal(t, int64(8), resp.Allocations[0].SoldQuantity)
		assert.Equal(t, int64(0), f.batches.get(b1).RemainingStock)
		assert.Equal(t, int64(2), f.batches.get(b2).RemainingStock)
	})

	t.Run("blocked product", func(t *testing.T) {
		f := newBatchFixture(t)
		f.addBatch(t, "B1", 5, 0)
		p, _ := f.products.FindByID(ctx, f.product.ID)
		p.Lifecycle = shared.LifecycleBlocked
		require.NoError(t, f.products.Save(ctx, p))

		_, err := f.svc.SellFromOldestBatches(ctx, SellFromOldestRequest{ProductID: f.product.ID, Quantity: 1})
		assert.ErrorIs(t, err, shared.ErrBlocked)
	})

	t.Run("invalid quantity", func(t *testing.T) {
		f := newBatchFixture(t)
		_, err := f.svc.SellFromOldestBatches(ctx, SellFromOldestRequest{ProductID: f.product.ID, Quantity: 0})
		assert.ErrorIs(t, err, shared.ErrValidation)
	})
}

func TestBatchService_AllocateAndRestore(t *testing.T) {
	ctx := context.Background()

	t.Run("allocation is undone by restore", func(t *testing.T) {
		f := newBatchFixture(t)
		b1 := f.addBatch(t, "B1", 5, 0)
		b2 := f.addBatch(t, "B2", 10, time.Hour)

		alloc, err := f.svc.AllocateForSale(ctx, f.product.ID, 8)
		require.NoError(t, err)
		assert.True(t, alloc.FullyFulfilled)
		assert.Equal(t, int64(7), f.products.stock(f.product.ID))

		require.NoError(t, f.svc.RestoreToBatches(ctx, alloc))
		assert.Equal(t, int64(5), f.batches.get(b1).RemainingStock)
		assert.Equal(t, int64(10), f.batches.get(b2).RemainingStock)
		assert.Equal(t, int64(15), f.products.stock(f.product.ID))
	})

	t.Run("shortage names the product and takes nothing", func(t *testing.T) {
		f := newBatchFixture(t)
		b1 := f.addBatch(t, "B1", 5, 0)

		_, err := f.svc.AllocateForSale(ctx, f.product.ID, 6)
		assert.ErrorIs(t, err, shared.ErrInsufficientStock)
		assert.Contains(t, err.Error(), "Urea 45kg")
		assert.Equal(t, int64(5), f.batches.get(b1).RemainingStock)
		assert.Equal(t, int64(5), f.products.stock(f.product.ID))
	})

	t.Run("restored units on a blocked lot stay out of the projection", func(t *testing.T) {
		f := newBatchFixture(t)
		b1 := f.addBatch(t, "B1", 5, 0)

		alloc, err := f.svc.AllocateForSale(ctx, f.product.ID, 2)
		require.NoError(t, err)
		_, err = f.svc.BlockBatch(ctx, b1)
		require.NoError(t, err)
		assert.Equal(t, int64(0), f.products.stock(f.product.ID))

		require.NoError(t, f.svc.RestoreToBatches(ctx, alloc))
		assert.Equal(t, int64(5), f.batches.get(b1).RemainingStock)
		assert.Equal(t, int64(0), f.products.stock(f.product.ID))
	})

	t.Run("restoring nothing is a no-op", func(t *testing.T) {
		f := newBatchFixture(t)
		assert.NoError(t, f.svc.RestoreToBatches(ctx, nil))
	})
}

func TestBatchService_MarkExpired(t *testing.T) {
	ctx := context.Background()
	f := newBatchFixture(t)
	b1 := f.addBatch(t, "B1", 5, 0)
	f.addBatch(t, "B2", 10, time.Hour)

	resp, err := f.svc.MarkExpired(ctx, b1)
	require.NoError(t, err)
	assert.True(t, resp.Expired)
	assert.Equal(t, int64(10), f.products.stock(f.product.ID))

	// one-way and idempotent
	_, err = f.svc.MarkExpired(ctx, b1)
	require.NoError(t, err)
	assert.Equal(t, int64(10), f.products.stock(f.product.ID))

	_, err = f.svc.MarkExpired(ctx, uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestBatchService_Lifecycle(t *testing.T) {
	ctx := context.Background()
	f := newBatchFixture(t)
	id := f.addBatch(t, "B1", 5, 0)

	resp, err := f.svc.BlockBatch(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "BLOCKED", resp.Lifecycle)
	assert.Equal(t, int64(0), f.products.stock(f.product.ID))

	_, err = f.svc.UnblockBatch(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(5), f.products.stock(f.product.ID))

	require.NoError(t, f.svc.DeleteBatch(ctx, id))
	assert.Equal(t, int64(0), f.products.stock(f.product.ID))

	_, err = f.svc.GetBatch(ctx, id)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	_, err = f.svc.UnblockBatch(ctx, id)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestBatchService_ListBatches(t *testing.T) {
	ctx := context.Background()
	f := newBatchFixture(t)
	f.addBatch(t, "B1", 5, 0)
	f.addBatch(t, "B2", 5, time.Hour)
	expired := f.addBatch(t, "B3", 5, 2*time.Hour)
	_, err := f.svc.MarkExpired(ctx, expired)
	require.NoError(t, err)

	items, total, err := f.svc.ListBatches(ctx, BatchListFilter{ProductID: &f.product.ID, Page: 1, PageSize: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, items, 1)
	assert.Equal(t, "B1", items[0].BatchNumber)

	_, total, err = f.svc.ListBatches(ctx, BatchListFilter{ProductID: &f.product.ID, IncludeExpired: true})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
}

func TestBatchService_CacheFailureIsNotFatal(t *testing.T) {
	f := newBatchFixture(t)
	f.cache.err = errors.New("redis down")

	id := f.addBatch(t, "B1", 5, 0)
	_, err := f.svc.SellFromBatch(context.Background(), SellFromBatchRequest{BatchID: id, Quantity: 1})
	assert.NoError(t, err)
}
