package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agrosupply/backend/internal/domain/billing"
	"github.com/agrosupply/backend/internal/domain/shared"
	"github.com/agrosupply/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// BulkPaymentService spreads one customer payment over their open bills
type BulkPaymentService struct {
	billRepo        billing.BillRepository
	installmentRepo billing.InstallmentRepository
	sequence        billing.SequenceGenerator
	txScope         TransactionScope
	serviceDeps
}

// NewBulkPaymentService creates a new BulkPaymentService
func NewBulkPaymentService(
	billRepo billing.BillRepository,
	installmentRepo billing.InstallmentRepository,
	sequence billing.SequenceGenerator,
	txScope TransactionScope,
	opts ...ServiceOption,
) *BulkPaymentService {
	if txScope == nil {
		txScope = NewNoOpTransactionScope(billRepo, installmentRepo)
	}
	return &BulkPaymentService{
		billRepo:        billRepo,
		installmentRepo: installmentRepo,
		sequence:        sequence,
		txScope:         txScope,
		serviceDeps:     newServiceDeps(opts),
	}
}

// PayAcrossOpenBills distributes the payment over the customer's open bills,
// oldest first, each bill receiving min(due, remaining). All installments
// share one receipt number.
//
// The distribution is not atomic as a whole: each bill is settled in its own
// transaction. If one fails, the bills already paid stay paid and the partial
// response is returned together with the error. A bill paid down concurrently
// since planning takes less, and the difference moves on to the next open
// bill. Whatever could not be distributed is reported as Unallocated.
func (s *BulkPaymentService) PayAcrossOpenBills(ctx context.Context, req BulkPaymentRequest) (*BulkPaymentResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "bulk_payment", "pay_across_open_bills")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrCustomerID, req.CustomerID.String(),
		telemetry.SpanAttrAmount, req.Amount.String(),
	)

	mode, err := billing.ParsePaymentMode(req.PaymentMode)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if !req.Amount.IsPositive() {
		err := shared.NewValidationError("payment amount must be positive")
		telemetry.RecordError(span, err)
		return nil, err
	}
	paymentDate := s.now()
	if req.PaymentDate != nil && !req.PaymentDate.IsZero() {
		paymentDate = *req.PaymentDate
	}

	open, err := s.billRepo.FindOpenByCustomer(ctx, req.CustomerID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	plan, err := billing.PlanBulkAllocation(req.Amount, open)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	billing.SortOldestCreated(open)

	receipt, _, err := s.sequence.NextBillNumber(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetAttributes(span,
		telemetry.SpanAttrReceiptNumber, receipt,
		"bills_planned", len(plan.Allocations),
	)

	resp := &BulkPaymentResponse{
		ReceiptNumber:  receipt,
		CustomerID:     req.CustomerID,
		Amount:         req.Amount,
		TotalAllocated: decimal.Zero,
		Unallocated:    req.Amount,
		Allocations:    make([]BulkAllocationResponse, 0, len(plan.Allocations)),
		Installments:   make([]InstallmentResponse, 0, len(plan.Allocations)),
		Bills:          make([]BillResponse, 0, len(plan.Allocations)),
	}

	var failure error
	for i := range open {
		remaining := req.Amount.Sub(resp.TotalAllocated)
		if !remaining.IsPositive() {
			break
		}
		if !open[i].IsOpen() {
			continue
		}
		settled, err := s.settle(ctx, open[i].ID, remaining, receipt, paymentDate, mode, req.PaymentReference)
		if err != nil {
			failure = fmt.Errorf("bulk payment %s stopped at bill %s: %w", receipt, open[i].BillNumber, err)
			s.logger.Error("bulk payment interrupted",
				zap.String("receipt_number", receipt),
				zap.String("bill_number", open[i].BillNumber),
				zap.String("allocated_so_far", resp.TotalAllocated.String()),
				zap.Error(err),
			)
			break
		}
		if settled == nil {
			continue
		}
		resp.Allocations = append(resp.Allocations, settled.allocation)
		resp.Installments = append(resp.Installments, ToInstallmentResponse(settled.installment))
		resp.Bills = append(resp.Bills, ToBillResponse(settled.bill))
		resp.TotalAllocated = resp.TotalAllocated.Add(settled.allocation.Amount)
	}
	resp.Unallocated = req.Amount.Sub(resp.TotalAllocated)

	if len(resp.Allocations) > 0 {
		s.metrics.RecordBulkPayment(ctx, resp.TotalAllocated, len(resp.Allocations))
		s.invalidate(ctx, shared.CacheFamilyBills, shared.CacheFamilyInstallments)
	}
	telemetry.SetAttributes(span,
		"bills_touched", len(resp.Allocations),
		"unallocated", resp.Unallocated.String(),
	)
	if failure != nil {
		telemetry.RecordError(span, failure)
		return resp, failure
	}

	s.logger.Info("bulk payment distributed",
		zap.String("receipt_number", receipt),
		zap.String("customer_id", req.CustomerID.String()),
		zap.String("allocated", resp.TotalAllocated.String()),
		zap.String("unallocated", resp.Unallocated.String()),
		zap.Int("bills", len(resp.Allocations)),
	)
	return resp, nil
}

type settlement struct {
	allocation  BulkAllocationResponse
	installment *billing.Installment
	bill        *billing.Bill
}

// settle pays up to offered into one bill. The due is re-read under the row
// lock, so a bill paid down concurrently takes less, and one that is no
// longer open takes nothing (nil result).
func (s *BulkPaymentService) settle(
	ctx context.Context,
	billID uuid.UUID,
	offered decimal.Decimal,
	receipt string,
	paymentDate time.Time,
	mode billing.PaymentMode,
	reference string,
) (*settlement, error) {
	var settled *settlement
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		bill, err := lockBill(ctx, repos, billID)
		if errors.Is(err, shared.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if !bill.IsOpen() {
			return nil
		}
		amount := decimal.Min(offered, bill.Due())
		if !amount.IsPositive() {
			return nil
		}
		if err := bill.CheckPayment(amount); err != nil {
			return err
		}

		installment, err := billing.NewInstallment(bill, receipt, amount, paymentDate, mode, reference)
		if err != nil {
			return err
		}
		if err := repos.InstallmentRepo().Create(ctx, installment); err != nil {
			return err
		}
		if err := recalculate(ctx, repos, bill); err != nil {
			return err
		}

		settled = &settlement{
			allocation: BulkAllocationResponse{
				BillID:        bill.ID,
				BillNumber:    bill.BillNumber,
				InstallmentID: installment.ID,
				Amount:        amount,
				PendingAfter:  bill.PendingAmount,
				Status:        bill.Status.String(),
			},
			installment: installment,
			bill:        bill,
		}
		return nil
	})
	return settled, err
}
