package inventory

import (
	"fmt"
	"strings"
	"time"

	"github.com/agrosupply/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// Batch is one inbound inventory lot of a product.
// RemainingStock is always Stock - SoldQuantity and never negative.
type Batch struct {
	shared.BaseEntity
	ProductID       uuid.UUID
	BatchNumber     string
	Stock           int64      // lot size at intake
	SoldQuantity    int64      // units sold out of this lot
	RemainingStock  int64      // Stock - SoldQuantity
	ManufactureDate *time.Time // optional
	ExpiryDate      *time.Time // optional
	Expired         bool       // one-way flag, never reset
	ReceivedAt      time.Time  // intake time, the oldest-first ordering key
	Lifecycle       shared.Lifecycle
}

// NewBatch creates a new lot received at receivedAt
func NewBatch(
	productID uuid.UUID,
	batchNumber string,
	stock int64,
	manufactureDate, expiryDate *time.Time,
	receivedAt time.Time,
) (*Batch, error) {
	if productID == uuid.Nil {
		return nil, shared.NewValidationError("product id is required")
	}
	batchNumber = strings.TrimSpace(batchNumber)
	if batchNumber == "" {
		return nil, shared.NewValidationError("batch number is required")
	}
	if len(batchNumber) > 64 {
		return nil, shared.NewValidationError("batch number cannot exceed 64 characters")
	}
	if stock <= 0 {
		return nil, shared.NewValidationError("batch stock must be positive")
	}
	if manufactureDate != nil && expiryDate != nil && expiryDate.Before(*manufactureDate) {
		return nil, shared.NewValidationError("expiry date cannot be before manufacture date")
	}
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}

	return &Batch{
		BaseEntity:      shared.NewBaseEntityAt(receivedAt),
		ProductID:       productID,
		BatchNumber:     batchNumber,
		Stock:           stock,
		SoldQuantity:    0,
		RemainingStock:  stock,
		ManufactureDate: manufactureDate,
		ExpiryDate:      expiryDate,
		Expired:         false,
		ReceivedAt:      receivedAt,
		Lifecycle:       shared.LifecycleActive,
	}, nil
}

// IsSellable reports whether the lot can contribute stock to a sale
func (b *Batch) IsSellable() bool {
	return b.Lifecycle == shared.LifecycleActive && !b.Expired && b.RemainingStock > 0
}

// IsPastExpiry reports whether the expiry date has passed at now.
// It does not flip the Expired flag; that is an explicit MarkExpired.
func (b *Batch) IsPastExpiry(now time.Time) bool {
	if b.ExpiryDate == nil {
		return false
	}
	return b.ExpiryDate.Before(now)
}

// Sell takes quantity out of this lot
func (b *Batch) Sell(quantity int64) error {
	if quantity <= 0 {
		return shared.NewValidationError("quantity must be positive")
	}
	if err := b.Lifecycle.EnsureMutable("batch", b.BatchNumber); err != nil {
		return err
	}
	if b.Expired {
		return shared.NewDomainError(shared.CodeInsufficientStock,
			fmt.Sprintf("batch %s is expired", b.BatchNumber))
	}
	if quantity > b.RemainingStock {
		return b.insufficient(quantity)
	}

	b.SoldQuantity += quantity
	b.RemainingStock = b.Stock - b.SoldQuantity
	b.Touch()
	return nil
}

// Restock puts back quantity previously sold from this lot.
// Used to compensate a sale that could not be completed.
func (b *Batch) Restock(quantity int64) error {
	if quantity <= 0 {
		return shared.NewValidationError("quantity must be positive")
	}
	if quantity > b.SoldQuantity {
		return shared.NewValidationError("cannot restock %d units, only %d sold from batch %s",
			quantity, b.SoldQuantity, b.BatchNumber)
	}
	b.SoldQuantity -= quantity
	b.RemainingStock = b.Stock - b.SoldQuantity
	b.Touch()
	return nil
}

// MarkExpired flags the lot as expired. It returns the quantity withdrawn from
// the sellable stock, which is zero when the lot was already expired.
func (b *Batch) MarkExpired() (int64, error) {
	if b.Lifecycle.IsDeleted() {
		return 0, shared.NewNotFoundError("batch", b.BatchNumber)
	}
	if b.Expired {
		return 0, nil
	}
	b.Expired = true
	b.Touch()
	if b.Lifecycle != shared.LifecycleActive {
		return 0, nil
	}
	return b.RemainingStock, nil
}

// SellableQuantity is what this lot adds to the product projection.
func (b *Batch) SellableQuantity() int64 {
	if b.Lifecycle != shared.LifecycleActive || b.Expired {
		return 0
	}
	return b.RemainingStock
}

// ChangeLifecycle moves the lot to next, enforcing the lifecycle state machine.
func (b *Batch) ChangeLifecycle(next shared.Lifecycle) error {
	state, err := b.Lifecycle.Transition(next)
	if err != nil {
		return err
	}
	b.Lifecycle = state
	b.Touch()
	return nil
}

func (b *Batch) insufficient(requested int64) *shared.DomainError {
	return shared.NewDomainError(shared.CodeInsufficientStock,
		fmt.Sprintf("batch %s has %d units remaining, %d requested", b.BatchNumber, b.RemainingStock, requested)).
		WithDetails(map[string]any{
			"batch_id":        b.ID.String(),
			"remaining_stock": b.RemainingStock,
			"requested":       requested,
		})
}
