package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/agrosupply/backend/internal/domain/billing"
	"github.com/agrosupply/backend/internal/domain/inventory"
	"github.com/agrosupply/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// StockAllocator takes stock out of the batch ledger for bill lines and puts
// it back when a bill cannot be completed. Implemented by the inventory BatchService.
type StockAllocator interface {
	// AllocateForSale takes quantity of the product, all or nothing
	AllocateForSale(ctx context.Context, productID uuid.UUID, quantity int64) (*inventory.OldestFirstResult, error)
	// RestoreToBatches reverses an earlier allocation
	RestoreToBatches(ctx context.Context, allocation *inventory.OldestFirstResult) error
}

// ProductReader resolves product names and list prices for bill lines
type ProductReader interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]inventory.Product, error)
}

// LedgerMetrics records ledger activity. Implemented by telemetry.LedgerMetrics.
type LedgerMetrics interface {
	RecordBillCreated(ctx context.Context, total decimal.Decimal, mode string)
	RecordInstallment(ctx context.Context, amount decimal.Decimal, mode string)
	RecordBulkPayment(ctx context.Context, allocated decimal.Decimal, billsTouched int)
	RecordCompensation(ctx context.Context, items int)
}

type noopLedgerMetrics struct{}

func (noopLedgerMetrics) RecordBillCreated(context.Context, decimal.Decimal, string)  {}
func (noopLedgerMetrics) RecordInstallment(context.Context, decimal.Decimal, string)  {}
func (noopLedgerMetrics) RecordBulkPayment(context.Context, decimal.Decimal, int)     {}
func (noopLedgerMetrics) RecordCompensation(context.Context, int)                     {}

// DefaultHistoryTTL is how long a customer history stays cached
const DefaultHistoryTTL = 5 * time.Minute

// serviceDeps carries the collaborators every ledger service shares
type serviceDeps struct {
	cache      shared.Cache
	metrics    LedgerMetrics
	logger     *zap.Logger
	now        func() time.Time
	historyTTL time.Duration
}

func defaultServiceDeps() serviceDeps {
	return serviceDeps{
		metrics:    noopLedgerMetrics{},
		logger:     zap.NewNop(),
		now:        time.Now,
		historyTTL: DefaultHistoryTTL,
	}
}

// ServiceOption configures a ledger service
type ServiceOption func(*serviceDeps)

// WithCache sets the cache invalidated after ledger mutations
func WithCache(cache shared.Cache) ServiceOption {
	return func(d *serviceDeps) {
		d.cache = cache
	}
}

// WithMetrics sets the metrics recorder
func WithMetrics(metrics LedgerMetrics) ServiceOption {
	return func(d *serviceDeps) {
		if metrics != nil {
			d.metrics = metrics
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) ServiceOption {
	return func(d *serviceDeps) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithClock overrides the time source for payment dates
func WithClock(now func() time.Time) ServiceOption {
	return func(d *serviceDeps) {
		d.now = now
	}
}

// WithHistoryTTL sets how long customer histories stay cached
func WithHistoryTTL(ttl time.Duration) ServiceOption {
	return func(d *serviceDeps) {
		if ttl > 0 {
			d.historyTTL = ttl
		}
	}
}

func newServiceDeps(opts []ServiceOption) serviceDeps {
	d := defaultServiceDeps()
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// invalidate drops the given key families; failures are logged, never returned
func (d serviceDeps) invalidate(ctx context.Context, patterns ...string) {
	if d.cache == nil {
		return
	}
	for _, pattern := range patterns {
		if err := d.cache.Invalidate(ctx, pattern); err != nil {
			d.logger.Warn("cache invalidation failed",
				zap.String("pattern", pattern),
				zap.Error(err),
			)
		}
	}
}

// recalculate re-derives the bill's balance from its live installments and
// persists it. Must run inside the transaction that changed the installments.
func recalculate(ctx context.Context, repos TransactionalRepositories, bill *billing.Bill) error {
	installments, err := repos.InstallmentRepo().FindLiveByBill(ctx, bill.ID)
	if err != nil {
		return err
	}
	bill.Recalculate(installments)
	if err := bill.CheckInvariant(); err != nil {
		return fmt.Errorf("recalculation rejected: %w", err)
	}
	return repos.BillRepo().Update(ctx, bill)
}

// lockBill loads a bill for update and rejects deleted ones
func lockBill(ctx context.Context, repos TransactionalRepositories, id uuid.UUID) (*billing.Bill, error) {
	bill, err := repos.BillRepo().FindByIDForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if bill.Lifecycle.IsDeleted() {
		return nil, shared.NewNotFoundError("bill", id.String())
	}
	return bill, nil
}
