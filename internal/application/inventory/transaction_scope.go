package inventory

import (
	"context"

	"github.com/agrosupply/backend/internal/domain/inventory"
)

// TransactionScope provides transactional access to inventory repositories.
// All repository operations inside fn share one database transaction and are
// committed or rolled back together.
type TransactionScope interface {
	// Execute runs fn within a database transaction.
	// If fn returns an error, the transaction is rolled back.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories provides the inventory repositories bound to one transaction.
//
// The batch ledger and the product projection are always written together:
// every change to a lot's sellable stock is mirrored on the product counter
// before the transaction commits.
type TransactionalRepositories interface {
	// BatchRepo returns the batch repository scoped to the current transaction
	BatchRepo() inventory.BatchRepository
	// ProductRepo returns the product repository scoped to the current transaction
	ProductRepo() inventory.ProductRepository
}

// NoOpTransactionScope runs fn directly against the given repositories.
// This is useful for testing or when transaction support is not required.
type NoOpTransactionScope struct {
	batchRepo   inventory.BatchRepository
	productRepo inventory.ProductRepository
}

// NewNoOpTransactionScope creates a NoOpTransactionScope with the given repositories.
func NewNoOpTransactionScope(
	batchRepo inventory.BatchRepository,
	productRepo inventory.ProductRepository,
) *NoOpTransactionScope {
	return &NoOpTransactionScope{
		batchRepo:   batchRepo,
		productRepo: productRepo,
	}
}

// Execute runs the function without a real transaction.
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s)
}

// BatchRepo returns the batch repository.
func (s *NoOpTransactionScope) BatchRepo() inventory.BatchRepository {
	return s.batchRepo
}

// ProductRepo returns the product repository.
func (s *NoOpTransactionScope) ProductRepo() inventory.ProductRepository {
	return s.productRepo
}

var _ TransactionScope = (*NoOpTransactionScope)(nil)
var _ TransactionalRepositories = (*NoOpTransactionScope)(nil)
