package billing

import (
	"context"

	"github.com/agrosupply/backend/internal/domain/billing"
	"github.com/agrosupply/backend/internal/domain/shared"
	"github.com/agrosupply/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// InstallmentService records payments against single bills and keeps every
// bill's balance derived from its live installments.
type InstallmentService struct {
	billRepo        billing.BillRepository
	installmentRepo billing.InstallmentRepository
	txScope         TransactionScope
	serviceDeps
}

// NewInstallmentService creates a new InstallmentService
func NewInstallmentService(
	billRepo billing.BillRepository,
	installmentRepo billing.InstallmentRepository,
	txScope TransactionScope,
	opts ...ServiceOption,
) *InstallmentService {
	if txScope == nil {
		txScope = NewNoOpTransactionScope(billRepo, installmentRepo)
	}
	return &InstallmentService{
		billRepo:        billRepo,
		installmentRepo: installmentRepo,
		txScope:         txScope,
		serviceDeps:     newServiceDeps(opts),
	}
}

// AddInstallment records a payment against the bill identified by number and customer
func (s *InstallmentService) AddInstallment(ctx context.Context, req AddInstallmentRequest) (*InstallmentResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "installment", "add")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrBillNumber, req.BillNumber,
		telemetry.SpanAttrCustomerID, req.CustomerID.String(),
		telemetry.SpanAttrAmount, req.Amount.String(),
	)

	mode, err := billing.ParsePaymentMode(req.PaymentMode)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if !req.Amount.IsPositive() {
		err := shared.NewValidationError("installment amount must be positive")
		telemetry.RecordError(span, err)
		return nil, err
	}
	paymentDate := s.now()
	if req.PaymentDate != nil && !req.PaymentDate.IsZero() {
		paymentDate = *req.PaymentDate
	}

	var (
		bill        *billing.Bill
		installment *billing.Installment
	)
	err = s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		found, err := repos.BillRepo().FindByNumberAndCustomer(ctx, req.BillNumber, req.CustomerID)
		if err != nil {
			return err
		}
		bill, err = lockBill(ctx, repos, found.ID)
		if err != nil {
			return err
		}
		if err := bill.EnsureMutable(); err != nil {
			return err
		}
		if err := bill.CheckPayment(req.Amount); err != nil {
			return err
		}

		installment, err = billing.NewInstallment(bill, "", req.Amount, paymentDate, mode, req.PaymentReference)
		if err != nil {
			return err
		}
		if err := repos.InstallmentRepo().Create(ctx, installment); err != nil {
			return err
		}
		return recalculate(ctx, repos, bill)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.metrics.RecordInstallment(ctx, installment.Amount, installment.PaymentMode.String())
	s.invalidate(ctx, shared.CacheFamilyBills, shared.CacheFamilyInstallments)
	s.logger.Info("installment recorded",
		zap.String("bill_number", bill.BillNumber),
		zap.String("amount", installment.Amount.String()),
		zap.String("pending", bill.PendingAmount.String()),
	)

	return &InstallmentResult{
		Installment: ToInstallmentResponse(installment),
		Bill:        ToBillResponse(bill),
	}, nil
}

// Recalculate re-derives a bill's paid amount, pending amount and status
// from its live installments. Calling it twice changes nothing.
func (s *InstallmentService) Recalculate(ctx context.Context, billID uuid.UUID) (*BillResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "installment", "recalculate")
	defer span.End()
	telemetry.SetAttribute(span, telemetry.SpanAttrBillID, billID.String())

	var bill *billing.Bill
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		bill, err = lockBill(ctx, repos, billID)
		if err != nil {
			return err
		}
		return recalculate(ctx, repos, bill)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.invalidate(ctx, shared.CacheFamilyBills)
	response := ToBillResponse(bill)
	return &response, nil
}

// UpdateInstallment revises a payment. The bill's balance is moved by the
// difference first and then re-derived from all live installments.
func (s *InstallmentService) UpdateInstallment(ctx context.Context, id uuid.UUID, req UpdateInstallmentRequest) (*InstallmentResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "installment", "update")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrInstallmentID, id.String(),
		telemetry.SpanAttrAmount, req.Amount.String(),
	)

	var mode *billing.PaymentMode
	if req.PaymentMode != nil {
		m, err := billing.ParsePaymentMode(*req.PaymentMode)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
		mode = &m
	}

	var (
		bill        *billing.Bill
		installment *billing.Installment
	)
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		installment, err = repos.InstallmentRepo().FindByID(ctx, id)
		if err != nil {
			return err
		}
		if err := installment.EnsureMutable(); err != nil {
			return err
		}
		bill, err = lockBill(ctx, repos, installment.BillID)
		if err != nil {
			return err
		}
		if err := bill.EnsureMutable(); err != nil {
			return err
		}
		if err := bill.CheckReplacement(installment.Amount, req.Amount); err != nil {
			return err
		}

		bill.ApplyDelta(req.Amount.Sub(installment.Amount))
		if err := installment.Revise(req.Amount, req.PaymentDate, mode, req.PaymentReference); err != nil {
			return err
		}
		if err := repos.InstallmentRepo().Update(ctx, installment); err != nil {
			return err
		}
		return recalculate(ctx, repos, bill)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.invalidate(ctx, shared.CacheFamilyBills, shared.CacheFamilyInstallments)
	return &InstallmentResult{
		Installment: ToInstallmentResponse(installment),
		Bill:        ToBillResponse(bill),
	}, nil
}

// DeleteInstallment soft-deletes a payment and re-derives its bill's balance.
// A blocked installment must be unblocked first.
func (s *InstallmentService) DeleteInstallment(ctx context.Context, id uuid.UUID) (*BillResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "installment", "delete")
	defer span.End()
	telemetry.SetAttribute(span, telemetry.SpanAttrInstallmentID, id.String())

	var bill *billing.Bill
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		installment, err := repos.InstallmentRepo().FindByID(ctx, id)
		if err != nil {
			return err
		}
		if err := installment.EnsureMutable(); err != nil {
			return err
		}
		bill, err = lockBill(ctx, repos, installment.BillID)
		if err != nil {
			return err
		}
		if err := bill.EnsureMutable(); err != nil {
			return err
		}

		if err := installment.ChangeLifecycle(shared.LifecycleDeleted); err != nil {
			return err
		}
		if err := repos.InstallmentRepo().Update(ctx, installment); err != nil {
			return err
		}
		return recalculate(ctx, repos, bill)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.invalidate(ctx, shared.CacheFamilyBills, shared.CacheFamilyInstallments)
	response := ToBillResponse(bill)
	return &response, nil
}

// ListByBill lists the live installments of a bill, oldest payment first
func (s *InstallmentService) ListByBill(ctx context.Context, billID uuid.UUID) ([]InstallmentResponse, error) {
	bill, err := s.billRepo.FindByID(ctx, billID)
	if err != nil {
		return nil, err
	}
	if bill.Lifecycle.IsDeleted() {
		return nil, shared.NewNotFoundError("bill", billID.String())
	}
	installments, err := s.installmentRepo.FindLiveByBill(ctx, billID)
	if err != nil {
		return nil, err
	}
	return ToInstallmentResponses(installments), nil
}

// BlockInstallment freezes a payment against revision. It still counts
// toward the bill's paid amount.
func (s *InstallmentService) BlockInstallment(ctx context.Context, id uuid.UUID) (*InstallmentResponse, error) {
	return s.changeLifecycle(ctx, id, shared.LifecycleBlocked)
}

// UnblockInstallment lifts a block
func (s *InstallmentService) UnblockInstallment(ctx context.Context, id uuid.UUID) (*InstallmentResponse, error) {
	return s.changeLifecycle(ctx, id, shared.LifecycleActive)
}

func (s *InstallmentService) changeLifecycle(ctx context.Context, id uuid.UUID, next shared.Lifecycle) (*InstallmentResponse, error) {
	var installment *billing.Installment
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		installment, err = repos.InstallmentRepo().FindByID(ctx, id)
		if err != nil {
			return err
		}
		if installment.Lifecycle.IsDeleted() {
			return shared.NewNotFoundError("installment", id.String())
		}
		if err := installment.ChangeLifecycle(next); err != nil {
			return err
		}
		return repos.InstallmentRepo().Update(ctx, installment)
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, shared.CacheFamilyInstallments)
	response := ToInstallmentResponse(installment)
	return &response, nil
}
