package billing

import (
	"context"

	"github.com/agrosupply/backend/internal/domain/billing"
)

// TransactionScope provides transactional access to the ledger repositories.
type TransactionScope interface {
	// Execute runs fn within a database transaction.
	// If fn returns an error, the transaction is rolled back.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories provides the ledger repositories bound to one transaction.
// A bill and its installments are always changed together: every installment
// write is followed by a recalculation of its bill before commit.
type TransactionalRepositories interface {
	// BillRepo returns the bill repository scoped to the current transaction
	BillRepo() billing.BillRepository
	// InstallmentRepo returns the installment repository scoped to the current transaction
	InstallmentRepo() billing.InstallmentRepository
}

// NoOpTransactionScope runs fn directly against the given repositories.
// This is useful for testing or when transaction support is not required.
type NoOpTransactionScope struct {
	billRepo        billing.BillRepository
	installmentRepo billing.InstallmentRepository
}

// NewNoOpTransactionScope creates a NoOpTransactionScope with the given repositories.
func NewNoOpTransactionScope(billRepo billing.BillRepository, installmentRepo billing.InstallmentRepository) *NoOpTransactionScope {
	return &NoOpTransactionScope{
		billRepo:        billRepo,
		installmentRepo: installmentRepo,
	}
}

// Execute runs the function without a real transaction.
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s)
}

// BillRepo returns the bill repository.
func (s *NoOpTransactionScope) BillRepo() billing.BillRepository {
	return s.billRepo
}

// InstallmentRepo returns the installment repository.
func (s *NoOpTransactionScope) InstallmentRepo() billing.InstallmentRepository {
	return s.installmentRepo
}

var _ TransactionScope = (*NoOpTransactionScope)(nil)
var _ TransactionalRepositories = (*NoOpTransactionScope)(nil)
