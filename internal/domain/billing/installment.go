package billing

import (
	"strings"
	"time"

	"github.com/agrosupply/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Installment is one payment recorded against a bill.
// BillNumber normally copies the bill's number; installments created by a bulk
// payment carry the shared receipt number instead.
type Installment struct {
	shared.BaseEntity
	BillID           uuid.UUID
	CustomerID       uuid.UUID
	BillNumber       string
	Amount           decimal.Decimal
	PaymentDate      time.Time
	PaymentMode      PaymentMode
	PaymentReference string
	Lifecycle        shared.Lifecycle
}

// NewInstallment creates an installment against bill. The caller is expected to
// have run bill.CheckPayment first.
func NewInstallment(
	bill *Bill,
	billNumber string,
	amount decimal.Decimal,
	paymentDate time.Time,
	mode PaymentMode,
	reference string,
) (*Installment, error) {
	if bill == nil {
		return nil, shared.NewValidationError("bill is required")
	}
	if !amount.IsPositive() {
		return nil, shared.NewValidationError("installment amount must be positive")
	}
	if !mode.IsValid() {
		return nil, shared.NewValidationError("unknown payment mode %q", mode)
	}
	if paymentDate.IsZero() {
		paymentDate = time.Now()
	}
	if billNumber == "" {
		billNumber = bill.BillNumber
	}

	return &Installment{
		BaseEntity:       shared.NewBaseEntity(),
		BillID:           bill.ID,
		CustomerID:       bill.CustomerID,
		BillNumber:       billNumber,
		Amount:           amount,
		PaymentDate:      paymentDate,
		PaymentMode:      mode,
		PaymentReference: strings.TrimSpace(reference),
		Lifecycle:        shared.LifecycleActive,
	}, nil
}

// EnsureMutable fails for deleted (NOT_FOUND) and blocked (BLOCKED) installments
func (i *Installment) EnsureMutable() error {
	return i.Lifecycle.EnsureMutable("installment", i.ID.String())
}

// Revise changes the amount and, when given, the other payment details.
func (i *Installment) Revise(amount decimal.Decimal, paymentDate *time.Time, mode *PaymentMode, reference *string) error {
	if err := i.EnsureMutable(); err != nil {
		return err
	}
	if !amount.IsPositive() {
		return shared.NewValidationError("installment amount must be positive")
	}
	if mode != nil && !mode.IsValid() {
		return shared.NewValidationError("unknown payment mode %q", *mode)
	}

	i.Amount = amount
	if paymentDate != nil && !paymentDate.IsZero() {
		i.PaymentDate = *paymentDate
	}
	if mode != nil {
		i.PaymentMode = *mode
	}
	if reference != nil {
		i.PaymentReference = strings.TrimSpace(*reference)
	}
	i.Touch()
	return nil
}

// ChangeLifecycle moves the installment through the lifecycle state machine
func (i *Installment) ChangeLifecycle(next shared.Lifecycle) error {
	state, err := i.Lifecycle.Transition(next)
	if err != nil {
		return err
	}
	i.Lifecycle = state
	i.Touch()
	return nil
}
