package inventory

import (
	"context"

	"github.com/agrosupply/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// BatchFilter narrows batch list queries
type BatchFilter struct {
	shared.Filter
	ProductID      *uuid.UUID
	IncludeExpired bool
}

// BatchRepository defines the interface for batch persistence.
// Stock mutations are conditional single-statement updates so that
// concurrent sellers can never drive RemainingStock below zero.
type BatchRepository interface {
	// FindByID finds a batch by ID, deleted batches included
	FindByID(ctx context.Context, id uuid.UUID) (*Batch, error)

	// FindByIDForUpdate finds a batch and locks its row for the current transaction
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*Batch, error)

	// FindByProductAndNumber finds a non-deleted batch by its number within a product
	FindByProductAndNumber(ctx context.Context, productID uuid.UUID, batchNumber string) (*Batch, error)

	// FindSellableByProduct returns active, non-expired batches with stock,
	// ordered oldest intake first (received_at, created_at, id)
	FindSellableByProduct(ctx context.Context, productID uuid.UUID) ([]Batch, error)

	// FindAll finds non-deleted batches matching the filter
	FindAll(ctx context.Context, filter BatchFilter) ([]Batch, error)

	// Count counts non-deleted batches matching the filter
	Count(ctx context.Context, filter BatchFilter) (int64, error)

	// Create persists a new batch; CONFLICT when the number is taken for the product
	Create(ctx context.Context, batch *Batch) error

	// DecrementRemaining sells quantity from the batch only if it is active,
	// not expired and has at least quantity remaining. INSUFFICIENT_STOCK otherwise.
	DecrementRemaining(ctx context.Context, id uuid.UUID, quantity int64) error

	// IncrementRemaining returns quantity previously sold to the batch
	IncrementRemaining(ctx context.Context, id uuid.UUID, quantity int64) error

	// MarkExpired sets the expired flag if it was not already set and reports
	// the remaining stock at that instant. changed is false when already expired.
	MarkExpired(ctx context.Context, id uuid.UUID) (remaining int64, changed bool, err error)

	// UpdateLifecycle persists a lifecycle change
	UpdateLifecycle(ctx context.Context, id uuid.UUID, lifecycle shared.Lifecycle) error

	// SumSellableByProduct sums remaining stock of the product's sellable batches
	SumSellableByProduct(ctx context.Context, productID uuid.UUID) (int64, error)
}

// ProductRepository defines the interface for the product stock projection
type ProductRepository interface {
	// FindByID finds a product by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Product, error)

	// FindByIDs finds products by IDs
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]Product, error)

	// Save creates or updates a product
	Save(ctx context.Context, product *Product) error

	// DecrementStock lowers the projection only if it covers quantity.
	// INSUFFICIENT_STOCK otherwise.
	DecrementStock(ctx context.Context, id uuid.UUID, quantity int64) error

	// IncrementStock raises the projection
	IncrementStock(ctx context.Context, id uuid.UUID, quantity int64) error

	// SetStock overwrites the projection, used when resynchronising from batches
	SetStock(ctx context.Context, id uuid.UUID, quantity int64) error
}
