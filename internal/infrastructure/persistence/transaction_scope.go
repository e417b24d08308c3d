package persistence

import (
	"context"

	appbilling "github.com/agrosupply/backend/internal/application/billing"
	appinv "github.com/agrosupply/backend/internal/application/inventory"
	"github.com/agrosupply/backend/internal/domain/billing"
	"github.com/agrosupply/backend/internal/domain/inventory"
	"gorm.io/gorm"
)

// GormInventoryTransactionScope implements the inventory TransactionScope
// using GORM transactions: the batch ledger and the product projection
// commit together or not at all.
type GormInventoryTransactionScope struct {
	db *gorm.DB
}

// NewGormInventoryTransactionScope creates a new GormInventoryTransactionScope.
func NewGormInventoryTransactionScope(db *gorm.DB) *GormInventoryTransactionScope {
	return &GormInventoryTransactionScope{db: db}
}

// Execute runs fn within a database transaction, rolling back on error.
func (s *GormInventoryTransactionScope) Execute(ctx context.Context, fn func(repos appinv.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormInventoryRepositories{tx: tx})
	})
}

type gormInventoryRepositories struct {
	tx *gorm.DB
}

func (r *gormInventoryRepositories) BatchRepo() inventory.BatchRepository {
	return NewGormBatchRepository(r.tx)
}

func (r *gormInventoryRepositories) ProductRepo() inventory.ProductRepository {
	return NewGormProductRepository(r.tx)
}

// GormBillingTransactionScope implements the billing TransactionScope using
// GORM transactions: installment writes and the bill recalculation that
// follows them commit together.
type GormBillingTransactionScope struct {
	db *gorm.DB
}

// NewGormBillingTransactionScope creates a new GormBillingTransactionScope.
func NewGormBillingTransactionScope(db *gorm.DB) *GormBillingTransactionScope {
	return &GormBillingTransactionScope{db: db}
}

// Execute runs fn within a database transaction, rolling back on error.
func (s *GormBillingTransactionScope) Execute(ctx context.Context, fn func(repos appbilling.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormBillingRepositories{tx: tx})
	})
}

type gormBillingRepositories struct {
	tx *gorm.DB
}

func (r *gormBillingRepositories) BillRepo() billing.BillRepository {
	return NewGormBillRepository(r.tx)
}

func (r *gormBillingRepositories) InstallmentRepo() billing.InstallmentRepository {
	return NewGormInstallmentRepository(r.tx)
}

var (
	_ appinv.TransactionScope              = (*GormInventoryTransactionScope)(nil)
	_ appinv.TransactionalRepositories     = (*gormInventoryRepositories)(nil)
	_ appbilling.TransactionScope          = (*GormBillingTransactionScope)(nil)
	_ appbilling.TransactionalRepositories = (*gormBillingRepositories)(nil)
)
