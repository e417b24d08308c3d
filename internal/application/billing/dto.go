package billing

import (
	"time"

	"github.com/agrosupply/backend/internal/domain/billing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BillItemRequest is one line of a new bill. UnitPrice defaults to the
// product's list price when omitted.
type BillItemRequest struct {
	ProductID uuid.UUID        `json:"product_id" binding:"required"`
	Quantity  int64            `json:"quantity" binding:"required,min=1"`
	UnitPrice *decimal.Decimal `json:"unit_price"`
}

// CreateBillRequest represents a request to record a sale
type CreateBillRequest struct {
	CustomerID   uuid.UUID         `json:"customer_id" binding:"required"`
	CustomerName string            `json:"customer_name" binding:"max=200"`
	Items        []BillItemRequest `json:"items" binding:"required,min=1,dive"`
	PaidAmount   decimal.Decimal   `json:"paid_amount"`
	PaymentMode  string            `json:"payment_mode" binding:"required,payment_mode"`
	Remark       string            `json:"remark" binding:"max=500"`
}

// UpdateBillRequest changes the descriptive fields of a bill. Money fields
// are owned by recalculation and cannot be set directly.
type UpdateBillRequest struct {
	PaymentMode  *string `json:"payment_mode" binding:"omitempty,payment_mode"`
	CustomerName *string `json:"customer_name" binding:"omitempty,max=200"`
	Remark       *string `json:"remark" binding:"omitempty,max=500"`
}

// BillListFilter represents filter options for the bill list
type BillListFilter struct {
	Page        int        `form:"page" binding:"omitempty,min=1"`
	Limit       int        `form:"limit" binding:"omitempty,min=1,max=100"`
	SearchQuery string     `form:"searchQuery"`
	CustomerID  *uuid.UUID `form:"-"`
	Status      string     `form:"status" binding:"omitempty,oneof=UNPAID PARTIAL PAID"`
	PaymentMode string     `form:"paymentMode" binding:"omitempty,payment_mode"`
	Year        int        `form:"year" binding:"omitempty,min=2000,max=9999"`
	From        *time.Time `form:"from" time_format:"2006-01-02"`
	To          *time.Time `form:"to" time_format:"2006-01-02"`
}

// BillItemResponse represents a bill line in API responses
type BillItemResponse struct {
	ProductID   uuid.UUID       `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int64           `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Amount      decimal.Decimal `json:"amount"`
}

// BillResponse represents a bill in API responses
type BillResponse struct {
	ID            uuid.UUID             `json:"id"`
	BillNumber    string                `json:"bill_number"`
	Year          int                   `json:"year"`
	CustomerID    uuid.UUID             `json:"customer_id"`
	CustomerName  string                `json:"customer_name,omitempty"`
	Items         []BillItemResponse    `json:"items"`
	TotalAmount   decimal.Decimal       `json:"total_amount"`
	PaidAmount    decimal.Decimal       `json:"paid_amount"`
	PendingAmount decimal.Decimal       `json:"pending_amount"`
	PaymentMode   string                `json:"payment_mode"`
	Status        string                `json:"status"`
	Lifecycle     string                `json:"lifecycle"`
	Remark        string                `json:"remark,omitempty"`
	Installments  []InstallmentResponse `json:"installments,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
}

// ToBillResponse converts a domain bill to its response form
func ToBillResponse(b *billing.Bill) BillResponse {
	items := make([]BillItemResponse, len(b.Items))
	for i, item := range b.Items {
		items[i] = BillItemResponse{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Amount:      item.Amount(),
		}
	}
	return BillResponse{
		ID:            b.ID,
		BillNumber:    b.BillNumber,
		Year:          b.Year,
		CustomerID:    b.CustomerID,
		CustomerName:  b.CustomerName,
		Items:         items,
		TotalAmount:   b.TotalAmount,
		PaidAmount:    b.PaidAmount,
		PendingAmount: b.PendingAmount,
		PaymentMode:   b.PaymentMode.String(),
		Status:        b.Status.String(),
		Lifecycle:     b.Lifecycle.String(),
		Remark:        b.Remark,
		CreatedAt:     b.CreatedAt,
		UpdatedAt:     b.UpdatedAt,
	}
}

// ToBillResponses converts a slice of bills
func ToBillResponses(bills []billing.Bill) []BillResponse {
	responses := make([]BillResponse, len(bills))
	for i := range bills {
		responses[i] = ToBillResponse(&bills[i])
	}
	return responses
}

// CustomerHistoryResponse summarises everything a customer has bought
type CustomerHistoryResponse struct {
	CustomerID      uuid.UUID       `json:"customer_id"`
	Bills           []BillResponse  `json:"bills"`
	BillCount       int             `json:"bill_count"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	PaidAmount      decimal.Decimal `json:"paid_amount"`
	PendingAmount   decimal.Decimal `json:"pending_amount"`
	FirstPurchaseAt *time.Time      `json:"first_purchase_at"`
	LastPurchaseAt  *time.Time      `json:"last_purchase_at"`
}

// AddInstallmentRequest records a payment against one bill
type AddInstallmentRequest struct {
	BillNumber       string          `json:"bill_number" binding:"required"`
	CustomerID       uuid.UUID       `json:"customer_id" binding:"required"`
	Amount           decimal.Decimal `json:"amount" binding:"required"`
	PaymentDate      *time.Time      `json:"payment_date"`
	PaymentMode      string          `json:"payment_mode" binding:"required,payment_mode"`
	PaymentReference string          `json:"payment_reference" binding:"max=100"`
}

// UpdateInstallmentRequest revises a recorded payment
type UpdateInstallmentRequest struct {
	Amount           decimal.Decimal `json:"amount" binding:"required"`
	PaymentDate      *time.Time      `json:"payment_date"`
	PaymentMode      *string         `json:"payment_mode" binding:"omitempty,payment_mode"`
	PaymentReference *string         `json:"payment_reference" binding:"omitempty,max=100"`
}

// InstallmentResponse represents an installment in API responses
type InstallmentResponse struct {
	ID               uuid.UUID       `json:"id"`
	BillID           uuid.UUID       `json:"bill_id"`
	CustomerID       uuid.UUID       `json:"customer_id"`
	BillNumber       string          `json:"bill_number"`
	Amount           decimal.Decimal `json:"amount"`
	PaymentDate      time.Time       `json:"payment_date"`
	PaymentMode      string          `json:"payment_mode"`
	PaymentReference string          `json:"payment_reference,omitempty"`
	Lifecycle        string          `json:"lifecycle"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// ToInstallmentResponse converts a domain installment
func ToInstallmentResponse(i *billing.Installment) InstallmentResponse {
	return InstallmentResponse{
		ID:               i.ID,
		BillID:           i.BillID,
		CustomerID:       i.CustomerID,
		BillNumber:       i.BillNumber,
		Amount:           i.Amount,
		PaymentDate:      i.PaymentDate,
		PaymentMode:      i.PaymentMode.String(),
		PaymentReference: i.PaymentReference,
		Lifecycle:        i.Lifecycle.String(),
		CreatedAt:        i.CreatedAt,
		UpdatedAt:        i.UpdatedAt,
	}
}

// ToInstallmentResponses converts a slice of installments
func ToInstallmentResponses(installments []billing.Installment) []InstallmentResponse {
	responses := make([]InstallmentResponse, len(installments))
	for i := range installments {
		responses[i] = ToInstallmentResponse(&installments[i])
	}
	return responses
}

// InstallmentResult reports an installment together with its bill's new balance
type InstallmentResult struct {
	Installment InstallmentResponse `json:"installment"`
	Bill        BillResponse        `json:"bill"`
}

// BulkPaymentRequest spreads one customer payment over their open bills
type BulkPaymentRequest struct {
	CustomerID       uuid.UUID       `json:"customer_id" binding:"required"`
	Amount           decimal.Decimal `json:"amount" binding:"required"`
	PaymentDate      *time.Time      `json:"payment_date"`
	PaymentMode      string          `json:"payment_mode" binding:"required,payment_mode"`
	PaymentReference string          `json:"payment_reference" binding:"max=100"`
}

// BulkAllocationResponse is the share of a bulk payment one bill received
type BulkAllocationResponse struct {
	BillID        uuid.UUID       `json:"bill_id"`
	BillNumber    string          `json:"bill_number"`
	InstallmentID uuid.UUID       `json:"installment_id"`
	Amount        decimal.Decimal `json:"amount"`
	PendingAfter  decimal.Decimal `json:"pending_after"`
	Status        string          `json:"status"`
}

// BulkPaymentResponse reports how a bulk payment was distributed: the
// installments it created and every touched bill with its new balance.
// A caller retrying after a failure should resend only Unallocated.
type BulkPaymentResponse struct {
	ReceiptNumber  string                   `json:"receipt_number"`
	CustomerID     uuid.UUID                `json:"customer_id"`
	Amount         decimal.Decimal          `json:"amount"`
	TotalAllocated decimal.Decimal          `json:"total_allocated"`
	Unallocated    decimal.Decimal          `json:"unallocated"`
	Installments   []InstallmentResponse    `json:"installments"`
	Bills          []BillResponse           `json:"bills"`
	Allocations    []BulkAllocationResponse `json:"allocations"`
}
