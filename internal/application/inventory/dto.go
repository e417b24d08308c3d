package inventory

import (
	"time"

	"github.com/agrosupply/backend/internal/domain/inventory"
	"github.com/google/uuid"
)

// BatchResponse represents a batch in API responses
type BatchResponse struct {
	ID              uuid.UUID  `json:"id"`
	ProductID       uuid.UUID  `json:"product_id"`
	BatchNumber     string     `json:"batch_number"`
	Stock           int64      `json:"stock"`
	SoldQuantity    int64      `json:"sold_quantity"`
	RemainingStock  int64      `json:"remaining_stock"`
	ManufactureDate *time.Time `json:"manufacture_date,omitempty"`
	ExpiryDate      *time.Time `json:"expiry_date,omitempty"`
	Expired         bool       `json:"expired"`
	Lifecycle       string     `json:"lifecycle"`
	ReceivedAt      time.Time  `json:"received_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// ToBatchResponse converts a domain batch to its response form
func ToBatchResponse(b *inventory.Batch) BatchResponse {
	return BatchResponse{
		ID:              b.ID,
		ProductID:       b.ProductID,
		BatchNumber:     b.BatchNumber,
		Stock:           b.Stock,
		SoldQuantity:    b.SoldQuantity,
		RemainingStock:  b.RemainingStock,
		ManufactureDate: b.ManufactureDate,
		ExpiryDate:      b.ExpiryDate,
		Expired:         b.Expired,
		Lifecycle:       b.Lifecycle.String(),
		ReceivedAt:      b.ReceivedAt,
		CreatedAt:       b.CreatedAt,
		UpdatedAt:       b.UpdatedAt,
	}
}

// ToBatchResponses converts a slice of batches
func ToBatchResponses(batches []inventory.Batch) []BatchResponse {
	responses := make([]BatchResponse, len(batches))
	for i := range batches {
		responses[i] = ToBatchResponse(&batches[i])
	}
	return responses
}

// BatchListFilter represents filter options for the batch list
type BatchListFilter struct {
	ProductID      *uuid.UUID `form:"-"`
	IncludeExpired bool       `form:"includeExpired"`
	Page           int        `form:"page" binding:"omitempty,min=1"`
	PageSize       int        `form:"limit" binding:"omitempty,min=1,max=100"`
}

// CreateBatchRequest represents a request to receive a new lot
type CreateBatchRequest struct {
	ProductID       uuid.UUID  `json:"product_id" binding:"required"`
	BatchNumber     string     `json:"batch_number" binding:"required,max=64"`
	Stock           int64      `json:"stock" binding:"required,min=1"`
	ManufactureDate *time.Time `json:"manufacture_date"`
	ExpiryDate      *time.Time `json:"expiry_date"`
	ReceivedAt      *time.Time `json:"received_at"`
}

// SellFromBatchRequest represents a sale against one named lot
type SellFromBatchRequest struct {
	BatchID  uuid.UUID `json:"batch_id" binding:"required"`
	Quantity int64     `json:"quantity" binding:"required,min=1"`
}

// SellFromOldestRequest represents a sale depleting lots oldest-first
type SellFromOldestRequest struct {
	ProductID uuid.UUID `json:"product_id" binding:"required"`
	Quantity  int64     `json:"quantity" binding:"required,min=1"`
}

// SellFromBatchResponse reports the lot after the sale
type SellFromBatchResponse struct {
	Batch        BatchResponse `json:"batch"`
	SoldQuantity int64         `json:"sold_quantity"`
}

// OldestFirstResponse reports how a request was spread over the lots
type OldestFirstResponse struct {
	ProductID      uuid.UUID                   `json:"product_id"`
	Allocations    []inventory.BatchAllocation `json:"allocations"`
	Requested      int64                       `json:"requested"`
	Fulfilled      int64                       `json:"fulfilled"`
	Shortfall      int64                       `json:"shortfall"`
	FullyFulfilled bool                        `json:"fully_fulfilled"`
}

// ToOldestFirstResponse converts an allocation result
func ToOldestFirstResponse(r *inventory.OldestFirstResult) *OldestFirstResponse {
	if r == nil {
		return nil
	}
	allocations := r.Allocations
	if allocations == nil {
		allocations = []inventory.BatchAllocation{}
	}
	return &OldestFirstResponse{
		ProductID:      r.ProductID,
		Allocations:    allocations,
		Requested:      r.Requested,
		Fulfilled:      r.Fulfilled,
		Shortfall:      r.Shortfall,
		FullyFulfilled: r.FullyFulfilled,
	}
}
