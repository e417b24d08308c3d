package billing

import (
	"context"
	"time"

	"github.com/agrosupply/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// BillFilter narrows bill list queries. Deleted bills are always excluded.
type BillFilter struct {
	shared.Filter
	CustomerID  *uuid.UUID
	Status      BillStatus
	PaymentMode PaymentMode
	Year        int
	From        *time.Time
	To          *time.Time
}

// BillRepository defines the interface for bill persistence
type BillRepository interface {
	// FindByID finds a bill with its items, deleted bills included
	FindByID(ctx context.Context, id uuid.UUID) (*Bill, error)

	// FindByIDForUpdate finds a bill and locks its row for the current transaction
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*Bill, error)

	// FindByNumberAndCustomer finds a bill by its number for a customer
	FindByNumberAndCustomer(ctx context.Context, billNumber string, customerID uuid.UUID) (*Bill, error)

	// FindOpenByCustomer finds active bills with paid < total, oldest created first
	FindOpenByCustomer(ctx context.Context, customerID uuid.UUID) ([]Bill, error)

	// FindByCustomer finds all non-deleted bills of a customer, oldest created first
	FindByCustomer(ctx context.Context, customerID uuid.UUID) ([]Bill, error)

	// FindAll finds non-deleted bills matching the filter, with pagination
	FindAll(ctx context.Context, filter BillFilter) ([]Bill, error)

	// Count counts non-deleted bills matching the filter
	Count(ctx context.Context, filter BillFilter) (int64, error)

	// Create persists a new bill and its items
	Create(ctx context.Context, bill *Bill) error

	// Update persists the mutable fields of a bill (balance, status, details, lifecycle)
	Update(ctx context.Context, bill *Bill) error
}

// InstallmentRepository defines the interface for installment persistence
type InstallmentRepository interface {
	// FindByID finds an installment, deleted ones included
	FindByID(ctx context.Context, id uuid.UUID) (*Installment, error)

	// FindLiveByBill finds the non-deleted installments of a bill, oldest payment first
	FindLiveByBill(ctx context.Context, billID uuid.UUID) ([]Installment, error)

	// FindByBillNumber finds non-deleted installments tagged with a bill or receipt number
	FindByBillNumber(ctx context.Context, billNumber string) ([]Installment, error)

	// Create persists a new installment
	Create(ctx context.Context, installment *Installment) error

	// Update persists amount, payment details and lifecycle of an installment
	Update(ctx context.Context, installment *Installment) error
}
