package inventory

import (
	"bytes"
	"sort"

	"github.com/agrosupply/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// BatchAllocation is the quantity taken from a single lot
type BatchAllocation struct {
	BatchID      uuid.UUID `json:"batch_id"`
	BatchNumber  string    `json:"batch_number"`
	SoldQuantity int64     `json:"sold_quantity"`
}

// OldestFirstResult is the outcome of depleting a product's lots oldest-first
type OldestFirstResult struct {
	ProductID      uuid.UUID         `json:"product_id"`
	Allocations    []BatchAllocation `json:"allocations"`
	Requested      int64             `json:"requested"`
	Fulfilled      int64             `json:"fulfilled"`
	Shortfall      int64             `json:"shortfall"`
	FullyFulfilled bool              `json:"fully_fulfilled"`
}

// Add records quantity taken from batch, merging with an earlier entry for the same lot.
func (r *OldestFirstResult) Add(batch *Batch, quantity int64) {
	for i := range r.Allocations {
		if r.Allocations[i].BatchID == batch.ID {
			r.Allocations[i].SoldQuantity += quantity
			r.settle(quantity)
			return
		}
	}
	r.Allocations = append(r.Allocations, BatchAllocation{
		BatchID:      batch.ID,
		BatchNumber:  batch.BatchNumber,
		SoldQuantity: quantity,
	})
	r.settle(quantity)
}

func (r *OldestFirstResult) settle(quantity int64) {
	r.Fulfilled += quantity
	r.Shortfall = r.Requested - r.Fulfilled
	r.FullyFulfilled = r.Shortfall == 0
}

// IsPartial reports that some stock was taken but demand was not met
func (r *OldestFirstResult) IsPartial() bool {
	return r.Fulfilled > 0 && r.Shortfall > 0
}

// PartialFulfillmentError describes a partially fulfilled request, carrying the allocation made.
func (r *OldestFirstResult) PartialFulfillmentError() *shared.DomainError {
	return shared.ErrPartialFulfillment.WithDetails(map[string]any{
		"product_id":  r.ProductID.String(),
		"requested":   r.Requested,
		"fulfilled":   r.Fulfilled,
		"shortfall":   r.Shortfall,
		"allocations": r.Allocations,
	})
}

// NewOldestFirstResult starts an empty result for requested units of productID
func NewOldestFirstResult(productID uuid.UUID, requested int64) *OldestFirstResult {
	return &OldestFirstResult{
		ProductID:   productID,
		Allocations: make([]BatchAllocation, 0),
		Requested:   requested,
		Shortfall:   requested,
	}
}

// SortOldestFirst orders lots by intake time, then creation time, then id.
// The sort is stable so equal keys keep their incoming order.
func SortOldestFirst(batches []Batch) {
	sort.SliceStable(batches, func(i, j int) bool {
		a, b := batches[i], batches[j]
		if !a.ReceivedAt.Equal(b.ReceivedAt) {
			return a.ReceivedAt.Before(b.ReceivedAt)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return bytes.Compare(a.ID[:], b.ID[:]) < 0
	})
}

// PlanOldestFirst computes how much to take from each sellable lot, oldest
// first, without mutating anything. Each lot gives min(remaining, still needed).
func PlanOldestFirst(productID uuid.UUID, requested int64, batches []Batch) (*OldestFirstResult, error) {
	if requested <= 0 {
		return nil, shared.NewValidationError("quantity must be positive")
	}

	sellable := make([]Batch, 0, len(batches))
	for _, b := range batches {
		if b.ProductID == productID && b.IsSellable() {
			sellable = append(sellable, b)
		}
	}
	SortOldestFirst(sellable)

	result := NewOldestFirstResult(productID, requested)
	for i := range sellable {
		if result.Shortfall <= 0 {
			break
		}
		take := min(sellable[i].RemainingStock, result.Shortfall)
		result.Add(&sellable[i], take)
	}
	return result, nil
}
