package billing

import (
	"strings"

	"github.com/agrosupply/backend/internal/domain/shared"
)

// PaymentMode is how a customer settled a bill or installment
type PaymentMode string

const (
	PaymentModeCash         PaymentMode = "CASH"
	PaymentModeUPI          PaymentMode = "UPI"
	PaymentModeBankTransfer PaymentMode = "BANK_TRANSFER"
	PaymentModeCredit       PaymentMode = "CREDIT"
	PaymentModeOther        PaymentMode = "OTHER"
)

// IsValid checks if the payment mode is valid
func (m PaymentMode) IsValid() bool {
	switch m {
	case PaymentModeCash, PaymentModeUPI, PaymentModeBankTransfer, PaymentModeCredit, PaymentModeOther:
		return true
	}
	return false
}

// String returns the string representation
func (m PaymentMode) String() string {
	return string(m)
}

// AllPaymentModes returns all valid payment modes
func AllPaymentModes() []PaymentMode {
	return []PaymentMode{
		PaymentModeCash,
		PaymentModeUPI,
		PaymentModeBankTransfer,
		PaymentModeCredit,
		PaymentModeOther,
	}
}

// ParsePaymentMode converts user input into a PaymentMode.
// Matching is case-insensitive; anything outside the closed set is a VALIDATION_ERROR.
func ParsePaymentMode(s string) (PaymentMode, error) {
	mode := PaymentMode(strings.ToUpper(strings.TrimSpace(s)))
	if !mode.IsValid() {
		return "", shared.NewValidationError("unknown payment mode %q", s)
	}
	return mode, nil
}

// BillStatus is derived from the paid amount, never set directly
type BillStatus string

const (
	BillStatusUnpaid  BillStatus = "UNPAID"
	BillStatusPartial BillStatus = "PARTIAL"
	BillStatusPaid    BillStatus = "PAID"
)

// IsValid checks if the status is valid
func (s BillStatus) IsValid() bool {
	switch s {
	case BillStatusUnpaid, BillStatusPartial, BillStatusPaid:
		return true
	}
	return false
}

// String returns the string representation
func (s BillStatus) String() string {
	return string(s)
}
