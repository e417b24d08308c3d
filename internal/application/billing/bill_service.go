package billing

import (
	"context"
	"encoding/json"

	"github.com/agrosupply/backend/internal/domain/billing"
	"github.com/agrosupply/backend/internal/domain/inventory"
	"github.com/agrosupply/backend/internal/domain/shared"
	"github.com/agrosupply/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// HistoryCacheKey is the cache key of a customer's purchase history
func HistoryCacheKey(customerID uuid.UUID) string {
	return "bills:history:" + customerID.String()
}

// BillService records sales and manages the bill lifecycle
type BillService struct {
	billRepo        billing.BillRepository
	installmentRepo billing.InstallmentRepository
	products        ProductReader
	stock           StockAllocator
	sequence        billing.SequenceGenerator
	txScope         TransactionScope
	serviceDeps
}

// NewBillService creates a new BillService
func NewBillService(
	billRepo billing.BillRepository,
	installmentRepo billing.InstallmentRepository,
	products ProductReader,
	stock StockAllocator,
	sequence billing.SequenceGenerator,
	txScope TransactionScope,
	opts ...ServiceOption,
) *BillService {
	if txScope == nil {
		txScope = NewNoOpTransactionScope(billRepo, installmentRepo)
	}
	return &BillService{
		billRepo:        billRepo,
		installmentRepo: installmentRepo,
		products:        products,
		stock:           stock,
		sequence:        sequence,
		txScope:         txScope,
		serviceDeps:     newServiceDeps(opts),
	}
}

// CreateBill records a sale.
//
// Everything that can be checked up front is validated before any stock
// moves. Stock is then taken per line, each line in its own transaction; if a
// later line fails, the lines already taken are put back newest first and
// the whole creation fails. The bill number is minted only once every line
// has its stock, and a failure to persist the bill puts the stock back too.
func (s *BillService) CreateBill(ctx context.Context, req CreateBillRequest) (*BillResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "bill", "create")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrCustomerID, req.CustomerID.String(),
		"items_count", len(req.Items),
	)

	mode, err := billing.ParsePaymentMode(req.PaymentMode)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	items, err := s.resolveItems(ctx, req.Items)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	bill, err := billing.NewBill(req.CustomerID, req.CustomerName, items, req.PaidAmount, mode)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	bill.Remark = req.Remark

	allocations := make([]*inventory.OldestFirstResult, 0, len(bill.Items))
	for _, item := range bill.Items {
		alloc, err := s.stock.AllocateForSale(ctx, item.ProductID, item.Quantity)
		if err != nil {
			s.restoreStock(ctx, allocations)
			telemetry.RecordError(span, err)
			return nil, err
		}
		allocations = append(allocations, alloc)
	}

	number, year, err := s.sequence.NextBillNumber(ctx)
	if err != nil {
		s.restoreStock(ctx, allocations)
		telemetry.RecordError(span, err)
		return nil, err
	}
	bill.AssignNumber(number, year)
	telemetry.SetAttribute(span, telemetry.SpanAttrBillNumber, number)

	// An amount paid at the counter is recorded as the bill's first
	// installment, so Recalculate stays the only derivation of the balance.
	var initial *billing.Installment
	if bill.PaidAmount.IsPositive() {
		initial, err = billing.NewInstallment(bill, "", bill.PaidAmount, s.now(), mode, "")
		if err != nil {
			s.restoreStock(ctx, allocations)
			telemetry.RecordError(span, err)
			return nil, err
		}
	}

	err = s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		if err := repos.BillRepo().Create(ctx, bill); err != nil {
			return err
		}
		if initial == nil {
			return nil
		}
		if err := repos.InstallmentRepo().Create(ctx, initial); err != nil {
			return err
		}
		return recalculate(ctx, repos, bill)
	})
	if err != nil {
		s.restoreStock(ctx, allocations)
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.metrics.RecordBillCreated(ctx, bill.TotalAmount, bill.PaymentMode.String())
	if initial != nil {
		s.metrics.RecordInstallment(ctx, initial.Amount, initial.PaymentMode.String())
	}
	s.invalidate(ctx, shared.CacheFamilyProducts, shared.CacheFamilyBills, shared.CacheFamilyInstallments)
	s.logger.Info("bill created",
		zap.String("bill_number", bill.BillNumber),
		zap.String("customer_id", bill.CustomerID.String()),
		zap.String("total", bill.TotalAmount.String()),
		zap.String("status", bill.Status.String()),
	)

	response := ToBillResponse(bill)
	return &response, nil
}

// resolveItems loads the products of the requested lines and fills in names
// and default prices.
func (s *BillService) resolveItems(ctx context.Context, lines []BillItemRequest) ([]billing.BillItem, error) {
	if len(lines) == 0 {
		return nil, shared.NewValidationError("a bill needs at least one item")
	}

	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}
	products, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*inventory.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}

	items := make([]billing.BillItem, 0, len(lines))
	for _, line := range lines {
		product, ok := byID[line.ProductID]
		if !ok || product.Lifecycle.IsDeleted() {
			return nil, shared.NewNotFoundError("product", line.ProductID.String())
		}
		if err := product.EnsureSellable(); err != nil {
			return nil, err
		}
		price := product.UnitPrice
		if line.UnitPrice != nil {
			price = *line.UnitPrice
		}
		items = append(items, billing.BillItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    line.Quantity,
			UnitPrice:   price,
		})
	}
	return items, nil
}

// restoreStock puts back the stock of the lines already taken, newest first.
// It runs detached from the request context so a cancelled caller still
// gets its stock returned.
func (s *BillService) restoreStock(ctx context.Context, allocations []*inventory.OldestFirstResult) {
	if len(allocations) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	s.metrics.RecordCompensation(ctx, len(allocations))

	for i := len(allocations) - 1; i >= 0; i-- {
		alloc := allocations[i]
		if err := s.stock.RestoreToBatches(ctx, alloc); err != nil {
			s.logger.Error("failed to restore stock for abandoned bill",
				zap.String("product_id", alloc.ProductID.String()),
				zap.Int64("quantity", alloc.Fulfilled),
				zap.Error(err),
			)
		}
	}
}

// GetBill returns a bill with its live installments
func (s *BillService) GetBill(ctx context.Context, id uuid.UUID) (*BillResponse, error) {
	bill, err := s.billRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if bill.Lifecycle.IsDeleted() {
		return nil, shared.NewNotFoundError("bill", id.String())
	}
	installments, err := s.installmentRepo.FindLiveByBill(ctx, id)
	if err != nil {
		return nil, err
	}

	response := ToBillResponse(bill)
	response.Installments = ToInstallmentResponses(installments)
	return &response, nil
}

// ListBills lists non-deleted bills matching the filter
func (s *BillService) ListBills(ctx context.Context, filter BillListFilter) ([]BillResponse, int64, error) {
	f := billing.BillFilter{
		Filter: shared.Filter{
			Page:     filter.Page,
			PageSize: filter.Limit,
			Search:   filter.SearchQuery,
			OrderBy:  "created_at",
			OrderDir: "desc",
		}.Normalize(),
		CustomerID: filter.CustomerID,
		Year:       filter.Year,
		From:       filter.From,
		To:         filter.To,
	}
	if filter.Status != "" {
		status := billing.BillStatus(filter.Status)
		if !status.IsValid() {
			return nil, 0, shared.NewValidationError("unknown bill status %q", filter.Status)
		}
		f.Status = status
	}
	if filter.PaymentMode != "" {
		mode, err := billing.ParsePaymentMode(filter.PaymentMode)
		if err != nil {
			return nil, 0, err
		}
		f.PaymentMode = mode
	}

	bills, err := s.billRepo.FindAll(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.billRepo.Count(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	return ToBillResponses(bills), total, nil
}

// UpdateBill changes the payment mode, customer name and remark of a bill
func (s *BillService) UpdateBill(ctx context.Context, id uuid.UUID, req UpdateBillRequest) (*BillResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "bill", "update")
	defer span.End()
	telemetry.SetAttribute(span, telemetry.SpanAttrBillID, id.String())

	var mode *billing.PaymentMode
	if req.PaymentMode != nil {
		m, err := billing.ParsePaymentMode(*req.PaymentMode)
		if err != nil {
			return nil, err
		}
		mode = &m
	}

	var bill *billing.Bill
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		bill, err = lockBill(ctx, repos, id)
		if err != nil {
			return err
		}
		if err := bill.UpdateDetails(mode, req.CustomerName, req.Remark); err != nil {
			return err
		}
		return repos.BillRepo().Update(ctx, bill)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.invalidate(ctx, shared.CacheFamilyBills)
	response := ToBillResponse(bill)
	return &response, nil
}

// DeleteBill soft-deletes a bill. Stock and installments are left as they are.
func (s *BillService) DeleteBill(ctx context.Context, id uuid.UUID) error {
	_, err := s.changeLifecycle(ctx, id, shared.LifecycleDeleted)
	return err
}

// BlockBill freezes a bill against further changes
func (s *BillService) BlockBill(ctx context.Context, id uuid.UUID) (*BillResponse, error) {
	return s.changeLifecycle(ctx, id, shared.LifecycleBlocked)
}

// UnblockBill lifts a block
func (s *BillService) UnblockBill(ctx context.Context, id uuid.UUID) (*BillResponse, error) {
	return s.changeLifecycle(ctx, id, shared.LifecycleActive)
}

func (s *BillService) changeLifecycle(ctx context.Context, id uuid.UUID, next shared.Lifecycle) (*BillResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "bill", "lifecycle")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrBillID, id.String(),
		"lifecycle", next.String(),
	)

	var bill *billing.Bill
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		bill, err = lockBill(ctx, repos, id)
		if err != nil {
			return err
		}
		if err := bill.ChangeLifecycle(next); err != nil {
			return err
		}
		return repos.BillRepo().Update(ctx, bill)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.invalidate(ctx, shared.CacheFamilyBills)
	s.logger.Info("bill lifecycle changed",
		zap.String("bill_number", bill.BillNumber),
		zap.String("lifecycle", bill.Lifecycle.String()),
	)
	response := ToBillResponse(bill)
	return &response, nil
}

// CustomerHistory returns all of a customer's bills, oldest first, with totals.
// Histories are served from the cache when present and cached after a miss.
func (s *BillService) CustomerHistory(ctx context.Context, customerID uuid.UUID) (*CustomerHistoryResponse, error) {
	if customerID == uuid.Nil {
		return nil, shared.NewValidationError("customer id is required")
	}
	key := HistoryCacheKey(customerID)

	if cached := s.cachedHistory(ctx, key); cached != nil {
		return cached, nil
	}

	bills, err := s.billRepo.FindByCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	history := buildHistory(customerID, bills)

	if s.cache != nil {
		if payload, err := json.Marshal(history); err == nil {
			if err := s.cache.Put(ctx, key, payload, s.historyTTL); err != nil {
				s.logger.Warn("failed to cache customer history", zap.String("key", key), zap.Error(err))
			}
		}
	}
	return history, nil
}

func (s *BillService) cachedHistory(ctx context.Context, key string) *CustomerHistoryResponse {
	if s.cache == nil {
		return nil
	}
	payload, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("customer history cache read failed", zap.String("key", key), zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}
	var history CustomerHistoryResponse
	if err := json.Unmarshal(payload, &history); err != nil {
		s.logger.Warn("discarding unreadable cached history", zap.String("key", key), zap.Error(err))
		return nil
	}
	return &history
}

func buildHistory(customerID uuid.UUID, bills []billing.Bill) *CustomerHistoryResponse {
	billing.SortOldestCreated(bills)

	history := &CustomerHistoryResponse{
		CustomerID:    customerID,
		Bills:         ToBillResponses(bills),
		BillCount:     len(bills),
		TotalAmount:   decimal.Zero,
		PaidAmount:    decimal.Zero,
		PendingAmount: decimal.Zero,
	}
	for _, b := range bills {
		history.TotalAmount = history.TotalAmount.Add(b.TotalAmount)
		history.PaidAmount = history.PaidAmount.Add(b.PaidAmount)
		history.PendingAmount = history.PendingAmount.Add(b.PendingAmount)
	}
	if len(bills) > 0 {
		first := bills[0].CreatedAt
		last := bills[len(bills)-1].CreatedAt
		history.FirstPurchaseAt = &first
		history.LastPurchaseAt = &last
	}
	return history
}
