package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/agrosupply/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BillItem is one line of a sale
type BillItem struct {
	ProductID   uuid.UUID
	ProductName string
	Quantity    int64
	UnitPrice   decimal.Decimal
}

// Amount returns quantity x unit price
func (i BillItem) Amount() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(i.Quantity))
}

// Bill is one sale with a running balance.
// TotalAmount is fixed at creation. PaidAmount, PendingAmount and Status are
// owned by the bill and change only through Recalculate and ApplyDelta.
type Bill struct {
	shared.BaseEntity
	BillNumber    string
	Year          int
	CustomerID    uuid.UUID
	CustomerName  string
	Items         []BillItem
	TotalAmount   decimal.Decimal
	PaidAmount    decimal.Decimal
	PendingAmount decimal.Decimal
	PaymentMode   PaymentMode
	Status        BillStatus
	Lifecycle     shared.Lifecycle
	Remark        string
}

// NewBill creates an unnumbered bill. The caller assigns the number once stock
// has been secured, see AssignNumber.
func NewBill(
	customerID uuid.UUID,
	customerName string,
	items []BillItem,
	paidAmount decimal.Decimal,
	mode PaymentMode,
) (*Bill, error) {
	if customerID == uuid.Nil {
		return nil, shared.NewValidationError("customer id is required")
	}
	if len(items) == 0 {
		return nil, shared.NewValidationError("a bill needs at least one item")
	}
	if !mode.IsValid() {
		return nil, shared.NewValidationError("unknown payment mode %q", mode)
	}
	if paidAmount.IsNegative() {
		return nil, shared.NewValidationError("paid amount cannot be negative")
	}

	total := decimal.Zero
	lines := make([]BillItem, len(items))
	for i, item := range items {
		if item.ProductID == uuid.Nil {
			return nil, shared.NewValidationError("item %d: product id is required", i+1)
		}
		if item.Quantity <= 0 {
			return nil, shared.NewValidationError("item %d: quantity must be positive", i+1)
		}
		if item.UnitPrice.IsNegative() {
			return nil, shared.NewValidationError("item %d: unit price cannot be negative", i+1)
		}
		lines[i] = item
		total = total.Add(item.Amount())
	}
	if !total.IsPositive() {
		return nil, shared.NewValidationError("bill total must be positive")
	}
	if paidAmount.GreaterThan(total) {
		return nil, exceedsBalance(decimal.Zero, paidAmount, total)
	}

	return &Bill{
		BaseEntity:    shared.NewBaseEntity(),
		CustomerID:    customerID,
		CustomerName:  strings.TrimSpace(customerName),
		Items:         lines,
		TotalAmount:   total,
		PaidAmount:    paidAmount,
		PendingAmount: total.Sub(paidAmount),
		PaymentMode:   mode,
		Status:        DeriveStatus(paidAmount, total),
		Lifecycle:     shared.LifecycleActive,
	}, nil
}

// DeriveStatus maps a paid amount onto the bill status
func DeriveStatus(paid, total decimal.Decimal) BillStatus {
	switch {
	case paid.IsZero():
		return BillStatusUnpaid
	case paid.GreaterThanOrEqual(total):
		return BillStatusPaid
	default:
		return BillStatusPartial
	}
}

// AssignNumber stamps the minted bill number and its year
func (b *Bill) AssignNumber(number string, year int) {
	b.BillNumber = number
	b.Year = year
}

// Due returns what is still owed on the bill
func (b *Bill) Due() decimal.Decimal {
	return b.TotalAmount.Sub(b.PaidAmount)
}

// IsOpen reports whether the bill is active and still owes money
func (b *Bill) IsOpen() bool {
	return b.Lifecycle == shared.LifecycleActive && b.PaidAmount.LessThan(b.TotalAmount)
}

// EnsureMutable fails for deleted (NOT_FOUND) and blocked (BLOCKED) bills
func (b *Bill) EnsureMutable() error {
	return b.Lifecycle.EnsureMutable("bill", b.BillNumber)
}

// CheckPayment rejects a payment that would push the paid amount above the total.
// The comparison is against TotalAmount, not PendingAmount.
func (b *Bill) CheckPayment(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return shared.NewValidationError("payment amount must be positive")
	}
	if b.PaidAmount.Add(amount).GreaterThan(b.TotalAmount) {
		return exceedsBalance(b.PaidAmount, amount, b.TotalAmount)
	}
	return nil
}

// CheckReplacement rejects changing an installment from oldAmount to newAmount
// when the result would exceed the total.
func (b *Bill) CheckReplacement(oldAmount, newAmount decimal.Decimal) error {
	if !newAmount.IsPositive() {
		return shared.NewValidationError("payment amount must be positive")
	}
	if b.PaidAmount.Sub(oldAmount).Add(newAmount).GreaterThan(b.TotalAmount) {
		return exceedsBalance(b.PaidAmount.Sub(oldAmount), newAmount, b.TotalAmount)
	}
	return nil
}

// ApplyDelta adjusts the paid amount speculatively ahead of a Recalculate.
func (b *Bill) ApplyDelta(delta decimal.Decimal) {
	b.setPaid(b.PaidAmount.Add(delta))
}

// Recalculate derives paid, pending and status from the bill's live installments.
// Installments that belong to another bill or are deleted are ignored, so the
// call is idempotent and self-heals after an installment is removed.
func (b *Bill) Recalculate(installments []Installment) {
	sum := decimal.Zero
	for _, inst := range installments {
		if inst.BillID != b.ID || inst.Lifecycle.IsDeleted() {
			continue
		}
		sum = sum.Add(inst.Amount)
	}
	b.setPaid(sum)
}

func (b *Bill) setPaid(paid decimal.Decimal) {
	b.PaidAmount = paid
	b.PendingAmount = b.TotalAmount.Sub(paid)
	b.Status = DeriveStatus(paid, b.TotalAmount)
	b.UpdatedAt = time.Now()
}

// UpdateDetails changes the descriptive fields of a bill
func (b *Bill) UpdateDetails(mode *PaymentMode, customerName *string, remark *string) error {
	if err := b.EnsureMutable(); err != nil {
		return err
	}
	if mode != nil {
		if !mode.IsValid() {
			return shared.NewValidationError("unknown payment mode %q", *mode)
		}
		b.PaymentMode = *mode
	}
	if customerName != nil {
		b.CustomerName = strings.TrimSpace(*customerName)
	}
	if remark != nil {
		b.Remark = *remark
	}
	b.Touch()
	return nil
}

// ChangeLifecycle moves the bill through the lifecycle state machine
func (b *Bill) ChangeLifecycle(next shared.Lifecycle) error {
	state, err := b.Lifecycle.Transition(next)
	if err != nil {
		return err
	}
	b.Lifecycle = state
	b.Touch()
	return nil
}

// CheckInvariant verifies 0 <= paid <= total and pending = total - paid
func (b *Bill) CheckInvariant() error {
	if b.PaidAmount.IsNegative() || b.PaidAmount.GreaterThan(b.TotalAmount) {
		return fmt.Errorf("bill %s: paid %s outside [0, %s]", b.BillNumber, b.PaidAmount, b.TotalAmount)
	}
	if !b.PendingAmount.Equal(b.TotalAmount.Sub(b.PaidAmount)) {
		return fmt.Errorf("bill %s: pending %s != total %s - paid %s", b.BillNumber, b.PendingAmount, b.TotalAmount, b.PaidAmount)
	}
	return nil
}

func exceedsBalance(paid, amount, total decimal.Decimal) *shared.DomainError {
	return shared.NewDomainError(shared.CodeExceedsBalance,
		fmt.Sprintf("payment of %s exceeds the bill balance: paid %s of %s", amount.StringFixed(2), paid.StringFixed(2), total.StringFixed(2))).
		WithDetails(map[string]any{
			"paid_amount":  paid.String(),
			"amount":       amount.String(),
			"total_amount": total.String(),
		})
}
