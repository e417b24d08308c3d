package telemetry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// ErrMeterNil is returned when LedgerMetrics is built without a meter
var ErrMeterNil = errors.New("telemetry: meter cannot be nil")

// StockLevelProvider reports the sellable stock projection per product for
// the periodic stock gauge.
type StockLevelProvider interface {
	StockLevels(ctx context.Context) (map[uuid.UUID]int64, error)
}

// LedgerMetricsConfig configures LedgerMetrics
type LedgerMetricsConfig struct {
	Meter           metric.Meter
	Logger          *zap.Logger
	StockProvider   StockLevelProvider
	CollectInterval time.Duration
}

// LedgerMetrics records billing and stock activity. It satisfies both the
// billing services' and the batch service's metrics ports.
type LedgerMetrics struct {
	logger *zap.Logger

	billsCreated        *Counter
	billedAmount        *FloatCounter
	installments        *Counter
	collectedAmount     *FloatCounter
	bulkPayments        *Counter
	bulkBillsTouched    *Counter
	compensations       *Counter
	stockSold           *Counter
	partialFulfillments *Counter
	stockShortfall      *Counter
	expiredUnits        *Counter
	productStock        *Gauge

	stockProvider StockLevelProvider
	interval      time.Duration
	stopCh        chan struct{}
	stopOnce      sync.Once
	startOnce     sync.Once
	wg            sync.WaitGroup
}

// NewLedgerMetrics creates the ledger instruments on cfg.Meter
func NewLedgerMetrics(cfg LedgerMetricsConfig) (*LedgerMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := cfg.CollectInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	m := &LedgerMetrics{
		logger:        logger,
		stockProvider: cfg.StockProvider,
		interval:      interval,
		stopCh:        make(chan struct{}),
	}

	counters := []struct {
		dst              **Counter
		name, desc, unit string
	}{
		{&m.billsCreated, "ledger_bills_created_total", "Bills created", "{bills}"},
		{&m.installments, "ledger_installments_total", "Installments recorded against single bills", "{installments}"},
		{&m.bulkPayments, "ledger_bulk_payments_total", "Aggregate payments distributed across open bills", "{payments}"},
		{&m.bulkBillsTouched, "ledger_bulk_bills_touched_total", "Bills settled by aggregate payments", "{bills}"},
		{&m.compensations, "ledger_stock_compensations_total", "Bill creations whose stock depletion was reversed", "{bills}"},
		{&m.stockSold, "inventory_units_sold_total", "Units depleted from batches", "{units}"},
		{&m.partialFulfillments, "inventory_partial_fulfillments_total", "Oldest-first sales that could not be fully covered", "{sales}"},
		{&m.stockShortfall, "inventory_shortfall_units_total", "Units requested but not available", "{units}"},
		{&m.expiredUnits, "inventory_expired_units_total", "Units withdrawn by batch expiry", "{units}"},
	}
	for _, c := range counters {
		counter, err := NewCounter(cfg.Meter, c.name, c.desc, c.unit)
		if err != nil {
			return nil, err
		}
		*c.dst = counter
	}

	var err error
	if m.billedAmount, err = NewFloatCounter(cfg.Meter, "ledger_billed_amount_total", "Sum of bill totals", "{currency}"); err != nil {
		return nil, err
	}
	if m.collectedAmount, err = NewFloatCounter(cfg.Meter, "ledger_collected_amount_total", "Sum of installment amounts", "{currency}"); err != nil {
		return nil, err
	}
	if m.productStock, err = NewGauge(cfg.Meter, "inventory_product_stock", "Sellable units per product", "{units}"); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordBillCreated counts a bill and its total
func (m *LedgerMetrics) RecordBillCreated(ctx context.Context, total decimal.Decimal, mode string) {
	m.billsCreated.Inc(ctx, AttrPaymentMode.String(mode))
	m.billedAmount.Add(ctx, total.InexactFloat64(), AttrPaymentMode.String(mode))
}

// RecordInstallment counts a payment and the amount collected
func (m *LedgerMetrics) RecordInstallment(ctx context.Context, amount decimal.Decimal, mode string) {
	m.installments.Inc(ctx, AttrPaymentMode.String(mode))
	m.collectedAmount.Add(ctx, amount.InexactFloat64(), AttrPaymentMode.String(mode))
}

// RecordBulkPayment counts a distributed aggregate payment
func (m *LedgerMetrics) RecordBulkPayment(ctx context.Context, allocated decimal.Decimal, billsTouched int) {
	m.bulkPayments.Inc(ctx)
	m.bulkBillsTouched.Add(ctx, int64(billsTouched))
	m.collectedAmount.Add(ctx, allocated.InexactFloat64(), AttrPaymentMode.String("bulk"))
}

// RecordCompensation counts a reversed bill creation
func (m *LedgerMetrics) RecordCompensation(ctx context.Context, items int) {
	m.compensations.Inc(ctx)
	m.logger.Debug("stock compensation recorded", zap.Int("items", items))
}

// RecordStockSold counts units depleted, labelled by how the sale was made
func (m *LedgerMetrics) RecordStockSold(ctx context.Context, quantity int64, source string) {
	m.stockSold.Add(ctx, quantity, AttrSaleSource.String(source))
}

// RecordPartialFulfillment counts a short oldest-first sale
func (m *LedgerMetrics) RecordPartialFulfillment(ctx context.Context, shortfall int64) {
	m.partialFulfillments.Inc(ctx)
	m.stockShortfall.Add(ctx, shortfall)
}

// RecordBatchExpired counts units withdrawn by expiry
func (m *LedgerMetrics) RecordBatchExpired(ctx context.Context, quantity int64) {
	m.expiredUnits.Add(ctx, quantity)
}

// StartStockCollection samples the product stock projection every interval
// until Stop is called or ctx is done. It does nothing without a provider.
func (m *LedgerMetrics) StartStockCollection(ctx context.Context) {
	if m.stockProvider == nil {
		return
	}
	m.startOnce.Do(func() {
		m.wg.Add(1)
		go m.runStockCollection(ctx)
	})
}

func (m *LedgerMetrics) runStockCollection(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.CollectStockLevels(ctx)
	for {
		select {
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CollectStockLevels(ctx)
		}
	}
}

// CollectStockLevels records one sample of the stock gauge
func (m *LedgerMetrics) CollectStockLevels(ctx context.Context) {
	if m.stockProvider == nil {
		return
	}
	levels, err := m.stockProvider.StockLevels(ctx)
	if err != nil {
		m.logger.Warn("Failed to read stock levels for metrics", zap.Error(err))
		return
	}
	for productID, units := range levels {
		m.productStock.Record(ctx, units, AttrProductID.String(productID.String()))
	}
}

// Stop ends stock collection. Safe to call more than once.
func (m *LedgerMetrics) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		m.wg.Wait()
	})
}
