package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agrosupply/backend/internal/domain/inventory"
	"github.com/agrosupply/backend/internal/domain/shared"
	"github.com/agrosupply/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxDepletionPasses bounds how often an oldest-first sale re-reads the lots
// after losing a race on one of them.
const maxDepletionPasses = 3

// StockMetrics records stock movements. Implemented by telemetry.LedgerMetrics.
type StockMetrics interface {
	RecordStockSold(ctx context.Context, quantity int64, source string)
	RecordPartialFulfillment(ctx context.Context, shortfall int64)
	RecordBatchExpired(ctx context.Context, quantity int64)
}

type noopStockMetrics struct{}

func (noopStockMetrics) RecordStockSold(context.Context, int64, string)  {}
func (noopStockMetrics) RecordPartialFulfillment(context.Context, int64) {}
func (noopStockMetrics) RecordBatchExpired(context.Context, int64)       {}

// Sale sources reported to StockMetrics
const (
	SaleSourceBatch  = "batch"
	SaleSourceOldest = "oldest_first"
	SaleSourceBill   = "bill"
)

// BatchService handles the batch ledger and the product stock projection
type BatchService struct {
	batchRepo   inventory.BatchRepository
	productRepo inventory.ProductRepository
	txScope     TransactionScope
	cache       shared.Cache
	metrics     StockMetrics
	logger      *zap.Logger
	now         func() time.Time
}

// BatchServiceOption configures a BatchService
type BatchServiceOption func(*BatchService)

// WithCache sets the cache invalidated after stock changes
func WithCache(cache shared.Cache) BatchServiceOption {
	return func(s *BatchService) {
		s.cache = cache
	}
}

// WithStockMetrics sets the metrics recorder
func WithStockMetrics(metrics StockMetrics) BatchServiceOption {
	return func(s *BatchService) {
		if metrics != nil {
			s.metrics = metrics
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) BatchServiceOption {
	return func(s *BatchService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source used for intake timestamps
func WithClock(now func() time.Time) BatchServiceOption {
	return func(s *BatchService) {
		s.now = now
	}
}

// NewBatchService creates a new BatchService
func NewBatchService(
	batchRepo inventory.BatchRepository,
	productRepo inventory.ProductRepository,
	txScope TransactionScope,
	opts ...BatchServiceOption,
) *BatchService {
	s := &BatchService{
		batchRepo:   batchRepo,
		productRepo: productRepo,
		txScope:     txScope,
		metrics:     noopStockMetrics{},
		logger:      zap.NewNop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.txScope == nil {
		s.txScope = NewNoOpTransactionScope(batchRepo, productRepo)
	}
	return s
}

// CreateBatch receives a new lot and adds its stock to the product projection
func (s *BatchService) CreateBatch(ctx context.Context, req CreateBatchRequest) (*BatchResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "batch", "create")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrProductID, req.ProductID.String(),
		telemetry.SpanAttrBatchNumber, req.BatchNumber,
		telemetry.SpanAttrQuantity, req.Stock,
	)

	receivedAt := s.now()
	if req.ReceivedAt != nil && !req.ReceivedAt.IsZero() {
		receivedAt = *req.ReceivedAt
	}
	batch, err := inventory.NewBatch(req.ProductID, req.BatchNumber, req.Stock, req.ManufactureDate, req.ExpiryDate, receivedAt)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	err = s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		product, err := repos.ProductRepo().FindByID(ctx, req.ProductID)
		if err != nil {
			return err
		}
		if product.Lifecycle.IsDeleted() {
			return shared.NewNotFoundError("product", req.ProductID.String())
		}

		existing, err := repos.BatchRepo().FindByProductAndNumber(ctx, req.ProductID, batch.BatchNumber)
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return err
		}
		if existing != nil {
			return shared.NewDomainError(shared.CodeConflict,
				fmt.Sprintf("batch %s already exists for product %s", batch.BatchNumber, product.Name))
		}

		if err := repos.BatchRepo().Create(ctx, batch); err != nil {
			return err
		}
		return repos.ProductRepo().IncrementStock(ctx, req.ProductID, batch.Stock)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.invalidate(ctx, shared.CacheFamilyBatches, shared.CacheFamilyProducts)
	s.logger.Info("batch received",
		zap.String("batch_id", batch.ID.String()),
		zap.String("batch_number", batch.BatchNumber),
		zap.String("product_id", batch.ProductID.String()),
		zap.Int64("stock", batch.Stock),
	)

	response := ToBatchResponse(batch)
	return &response, nil
}

// GetBatch returns a batch; deleted batches are not found
func (s *BatchService) GetBatch(ctx context.Context, id uuid.UUID) (*BatchResponse, error) {
	batch, err := s.batchRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if batch.Lifecycle.IsDeleted() {
		return nil, shared.NewNotFoundError("batch", id.String())
	}
	response := ToBatchResponse(batch)
	return &response, nil
}

// ListBatches lists non-deleted batches, optionally narrowed to one product
func (s *BatchService) ListBatches(ctx context.Context, filter BatchListFilter) ([]BatchResponse, int64, error) {
	f := inventory.BatchFilter{
		Filter: shared.Filter{
			Page:     filter.Page,
			PageSize: filter.PageSize,
			OrderBy:  "received_at",
			OrderDir: "asc",
		}.Normalize(),
		ProductID:      filter.ProductID,
		IncludeExpired: filter.IncludeExpired,
	}

	batches, err := s.batchRepo.FindAll(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.batchRepo.Count(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	return ToBatchResponses(batches), total, nil
}

// SellFromBatch sells quantity from one named lot.
// The decrement is conditional on the lot still covering quantity, so two
// concurrent sellers can never oversell it.
func (s *BatchService) SellFromBatch(ctx context.Context, req SellFromBatchRequest) (*SellFromBatchResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "batch", "sell")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrBatchID, req.BatchID.String(),
		telemetry.SpanAttrQuantity, req.Quantity,
	)

	if req.Quantity <= 0 {
		err := shared.NewValidationError("quantity must be positive")
		telemetry.RecordError(span, err)
		return nil, err
	}

	var sold *inventory.Batch
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		batch, err := repos.BatchRepo().FindByID(ctx, req.BatchID)
		if err != nil {
			return err
		}
		// Sell on the loaded copy first: it explains the rejection with the
		// lot's own numbers. The conditional update below settles races.
		if err := batch.Sell(req.Quantity); err != nil {
			return err
		}
		product, err := repos.ProductRepo().FindByID(ctx, batch.ProductID)
		if err != nil {
			return err
		}
		if err := product.EnsureSellable(); err != nil {
			return err
		}

		if err := repos.BatchRepo().DecrementRemaining(ctx, batch.ID, req.Quantity); err != nil {
			return err
		}
		if err := s.withdrawProjection(ctx, repos, batch.ProductID, req.Quantity); err != nil {
			return err
		}

		sold, err = repos.BatchRepo().FindByID(ctx, batch.ID)
		return err
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.metrics.RecordStockSold(ctx, req.Quantity, SaleSourceBatch)
	s.invalidate(ctx, shared.CacheFamilyBatches, shared.CacheFamilyProducts)

	return &SellFromBatchResponse{
		Batch:        ToBatchResponse(sold),
		SoldQuantity: req.Quantity,
	}, nil
}

// SellFromOldestBatches depletes the product's sellable lots oldest-first.
//
// A request that can only be partly met still sells what is available: the
// result is returned together with a PARTIAL_FULFILLMENT error and the
// decrements stay committed. When nothing at all can be sold the call fails
// with INSUFFICIENT_STOCK and changes nothing.
func (s *BatchService) SellFromOldestBatches(ctx context.Context, req SellFromOldestRequest) (*OldestFirstResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "batch", "sell_from_oldest")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrProductID, req.ProductID.String(),
		telemetry.SpanAttrQuantity, req.Quantity,
	)

	if req.Quantity <= 0 {
		err := shared.NewValidationError("quantity must be positive")
		telemetry.RecordError(span, err)
		return nil, err
	}

	var result *inventory.OldestFirstResult
	var err error
	telemetry.WithProfilingLabels(ctx, telemetry.OperationLabels("sell_from_oldest", nil), func(c context.Context) {
		err = s.txScope.Execute(c, func(repos TransactionalRepositories) error {
			product, err := repos.ProductRepo().FindByID(c, req.ProductID)
			if err != nil {
				return err
			}
			if err := product.EnsureSellable(); err != nil {
				return err
			}

			result, err = s.depleteOldestFirst(c, repos, req.ProductID, req.Quantity)
			if err != nil {
				return err
			}
			if result.Fulfilled == 0 {
				return inventory.InsufficientProductStock(product, req.Quantity)
			}
			return s.withdrawProjection(c, repos, req.ProductID, result.Fulfilled)
		})
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.metrics.RecordStockSold(ctx, result.Fulfilled, SaleSourceOldest)
	s.invalidate(ctx, shared.CacheFamilyBatches, shared.CacheFamilyProducts)
	telemetry.SetAttributes(span,
		"fulfilled", result.Fulfilled,
		"lots_touched", len(result.Allocations),
	)

	if result.IsPartial() {
		s.metrics.RecordPartialFulfillment(ctx, result.Shortfall)
		s.logger.Warn("oldest-first sale partially fulfilled",
			zap.String("product_id", req.ProductID.String()),
			zap.Int64("requested", result.Requested),
			zap.Int64("fulfilled", result.Fulfilled),
		)
		perr := result.PartialFulfillmentError()
		telemetry.AddEvent(span, "partial_fulfillment", "shortfall", result.Shortfall)
		return ToOldestFirstResponse(result), perr
	}
	return ToOldestFirstResponse(result), nil
}

// AllocateForSale takes quantity of the product out of the batch ledger for a
// bill line, all or nothing, within one transaction. The product counter is
// checked and decremented first so a shortage is reported against the product.
func (s *BatchService) AllocateForSale(ctx context.Context, productID uuid.UUID, quantity int64) (*inventory.OldestFirstResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "batch", "allocate")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrProductID, productID.String(),
		telemetry.SpanAttrQuantity, quantity,
	)

	if quantity <= 0 {
		return nil, shared.NewValidationError("quantity must be positive")
	}

	var result *inventory.OldestFirstResult
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		product, err := repos.ProductRepo().FindByID(ctx, productID)
		if err != nil {
			return err
		}
		if err := product.EnsureSellable(); err != nil {
			return err
		}
		if err := repos.ProductRepo().DecrementStock(ctx, productID, quantity); err != nil {
			if errors.Is(err, shared.ErrInsufficientStock) {
				return inventory.InsufficientProductStock(product, quantity)
			}
			return err
		}

		result, err = s.depleteOldestFirst(ctx, repos, productID, quantity)
		if err != nil {
			return err
		}
		if !result.FullyFulfilled {
			s.logger.Warn("product projection ahead of batch ledger",
				zap.String("product_id", productID.String()),
				zap.Int64("requested", quantity),
				zap.Int64("available_in_batches", result.Fulfilled),
			)
			product.RemainingStock = result.Fulfilled
			return inventory.InsufficientProductStock(product, quantity)
		}
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.metrics.RecordStockSold(ctx, quantity, SaleSourceBill)
	return result, nil
}

// RestoreToBatches reverses an allocation, newest lot first. It is the
// compensation for a bill that could not be completed after its stock was taken.
func (s *BatchService) RestoreToBatches(ctx context.Context, allocation *inventory.OldestFirstResult) error {
	if allocation == nil || len(allocation.Allocations) == 0 {
		return nil
	}
	ctx, span := telemetry.StartServiceSpan(ctx, "batch", "restore")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrProductID, allocation.ProductID.String(),
		telemetry.SpanAttrQuantity, allocation.Fulfilled,
	)

	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		var sellable int64
		for i := len(allocation.Allocations) - 1; i >= 0; i-- {
			a := allocation.Allocations[i]
			if err := repos.BatchRepo().IncrementRemaining(ctx, a.BatchID, a.SoldQuantity); err != nil {
				return fmt.Errorf("failed to restore %d units to batch %s: %w", a.SoldQuantity, a.BatchNumber, err)
			}
			batch, err := repos.BatchRepo().FindByID(ctx, a.BatchID)
			if err != nil {
				return err
			}
			// A lot blocked or expired since the sale gets its units back
			// but they do not count toward the sellable projection.
			if batch.SellableQuantity() > 0 {
				sellable += a.SoldQuantity
			}
		}
		if sellable == 0 {
			return nil
		}
		return repos.ProductRepo().IncrementStock(ctx, allocation.ProductID, sellable)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	s.invalidate(ctx, shared.CacheFamilyBatches, shared.CacheFamilyProducts)
	return nil
}

// MarkExpired flags a lot as expired and removes its remaining stock from the
// product projection. Expiry is one-way; marking an expired lot again is a no-op.
func (s *BatchService) MarkExpired(ctx context.Context, id uuid.UUID) (*BatchResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "batch", "expire")
	defer span.End()
	telemetry.SetAttribute(span, telemetry.SpanAttrBatchID, id.String())

	var (
		expired   *inventory.Batch
		withdrawn int64
	)
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		batch, err := repos.BatchRepo().FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if batch.Lifecycle.IsDeleted() {
			return shared.NewNotFoundError("batch", id.String())
		}

		remaining, changed, err := repos.BatchRepo().MarkExpired(ctx, id)
		if err != nil {
			return err
		}
		if changed && batch.Lifecycle == shared.LifecycleActive && remaining > 0 {
			withdrawn = remaining
			if err := s.withdrawProjection(ctx, repos, batch.ProductID, remaining); err != nil {
				return err
			}
		}

		expired, err = repos.BatchRepo().FindByID(ctx, id)
		return err
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if withdrawn > 0 {
		s.metrics.RecordBatchExpired(ctx, withdrawn)
	}
	s.invalidate(ctx, shared.CacheFamilyBatches, shared.CacheFamilyProducts)

	response := ToBatchResponse(expired)
	return &response, nil
}

// BlockBatch freezes a lot; its stock leaves the sellable projection
func (s *BatchService) BlockBatch(ctx context.Context, id uuid.UUID) (*BatchResponse, error) {
	return s.changeLifecycle(ctx, id, shared.LifecycleBlocked)
}

// UnblockBatch returns a blocked lot to sale
func (s *BatchService) UnblockBatch(ctx context.Context, id uuid.UUID) (*BatchResponse, error) {
	return s.changeLifecycle(ctx, id, shared.LifecycleActive)
}

// DeleteBatch soft-deletes a lot
func (s *BatchService) DeleteBatch(ctx context.Context, id uuid.UUID) error {
	_, err := s.changeLifecycle(ctx, id, shared.LifecycleDeleted)
	return err
}

func (s *BatchService) changeLifecycle(ctx context.Context, id uuid.UUID, next shared.Lifecycle) (*BatchResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "batch", "lifecycle")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrBatchID, id.String(),
		"lifecycle", next.String(),
	)

	var batch *inventory.Batch
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		batch, err = repos.BatchRepo().FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if batch.Lifecycle.IsDeleted() {
			return shared.NewNotFoundError("batch", id.String())
		}

		before := batch.SellableQuantity()
		if err := batch.ChangeLifecycle(next); err != nil {
			return err
		}
		if err := repos.BatchRepo().UpdateLifecycle(ctx, id, batch.Lifecycle); err != nil {
			return err
		}

		switch after := batch.SellableQuantity(); {
		case after > before:
			return repos.ProductRepo().IncrementStock(ctx, batch.ProductID, after-before)
		case after < before:
			return s.withdrawProjection(ctx, repos, batch.ProductID, before-after)
		}
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.invalidate(ctx, shared.CacheFamilyBatches, shared.CacheFamilyProducts)
	response := ToBatchResponse(batch)
	return &response, nil
}

// depleteOldestFirst takes up to quantity from the product's sellable lots,
// oldest first, one conditional decrement per lot. A lot that was drained by
// a concurrent seller since it was read is skipped, and the lots are re-read
// for whatever is still owed.
func (s *BatchService) depleteOldestFirst(
	ctx context.Context,
	repos TransactionalRepositories,
	productID uuid.UUID,
	quantity int64,
) (*inventory.OldestFirstResult, error) {
	result := inventory.NewOldestFirstResult(productID, quantity)

	for pass := 0; pass < maxDepletionPasses && result.Shortfall > 0; pass++ {
		batches, err := repos.BatchRepo().FindSellableByProduct(ctx, productID)
		if err != nil {
			return nil, err
		}
		plan, err := inventory.PlanOldestFirst(productID, result.Shortfall, batches)
		if err != nil {
			return nil, err
		}
		if len(plan.Allocations) == 0 {
			break
		}

		byID := make(map[uuid.UUID]*inventory.Batch, len(batches))
		for i := range batches {
			byID[batches[i].ID] = &batches[i]
		}

		raced := false
		for _, a := range plan.Allocations {
			err := repos.BatchRepo().DecrementRemaining(ctx, a.BatchID, a.SoldQuantity)
			if errors.Is(err, shared.ErrInsufficientStock) {
				s.logger.Debug("lost race on batch, re-reading",
					zap.String("batch_id", a.BatchID.String()),
					zap.Int64("wanted", a.SoldQuantity),
				)
				raced = true
				continue
			}
			if err != nil {
				return nil, err
			}
			result.Add(byID[a.BatchID], a.SoldQuantity)
		}
		if !raced {
			break
		}
	}
	return result, nil
}

// withdrawProjection lowers the product counter after stock left the ledger.
// A counter that has drifted below the ledger is rebuilt from the lots.
func (s *BatchService) withdrawProjection(ctx context.Context, repos TransactionalRepositories, productID uuid.UUID, quantity int64) error {
	err := repos.ProductRepo().DecrementStock(ctx, productID, quantity)
	if err == nil {
		return nil
	}
	if !errors.Is(err, shared.ErrInsufficientStock) {
		return err
	}

	sum, err := repos.BatchRepo().SumSellableByProduct(ctx, productID)
	if err != nil {
		return err
	}
	s.logger.Warn("product projection drifted, resynchronising from batches",
		zap.String("product_id", productID.String()),
		zap.Int64("ledger_stock", sum),
	)
	return repos.ProductRepo().SetStock(ctx, productID, sum)
}

func (s *BatchService) invalidate(ctx context.Context, patterns ...string) {
	if s.cache == nil {
		return
	}
	for _, pattern := range patterns {
		if err := s.cache.Invalidate(ctx, pattern); err != nil {
			s.logger.Warn("cache invalidation failed",
				zap.String("pattern", pattern),
				zap.Error(err),
			)
		}
	}
}
