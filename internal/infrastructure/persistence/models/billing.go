package models

import (
	"time"

	"github.com/agrosupply/backend/internal/domain/billing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BillModel is the persistence model for the Bill aggregate
type BillModel struct {
	LifecycleModel
	BillNumber    string          `gorm:"type:varchar(32);not null;uniqueIndex"`
	Year          int             `gorm:"not null;index"`
	CustomerID    uuid.UUID       `gorm:"type:uuid;not null;index"`
	CustomerName  string          `gorm:"type:varchar(200)"`
	TotalAmount   decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	PaidAmount    decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	PendingAmount decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	PaymentMode   string          `gorm:"type:varchar(32);not null"`
	Status        string          `gorm:"type:varchar(16);not null;index"`
	Remark        string          `gorm:"type:text"`
	Items         []BillItemModel `gorm:"foreignKey:BillID;references:ID"`
}

// TableName returns the table name for GORM
func (BillModel) TableName() string {
	return "bills"
}

// ToDomain converts the model, and any loaded items, to a domain Bill
func (m *BillModel) ToDomain() *billing.Bill {
	bill := &billing.Bill{
		BaseEntity:    m.BaseModel.ToDomain(),
		BillNumber:    m.BillNumber,
		Year:          m.Year,
		CustomerID:    m.CustomerID,
		CustomerName:  m.CustomerName,
		TotalAmount:   m.TotalAmount,
		PaidAmount:    m.PaidAmount,
		PendingAmount: m.PendingAmount,
		PaymentMode:   billing.PaymentMode(m.PaymentMode),
		Status:        billing.BillStatus(m.Status),
		Lifecycle:     m.LifecycleValue(),
		Remark:        m.Remark,
		Items:         make([]billing.BillItem, len(m.Items)),
	}
	for i, item := range m.Items {
		bill.Items[i] = item.ToDomain()
	}
	return bill
}

// BillModelFromDomain creates a persistence model, items included
func BillModelFromDomain(b *billing.Bill) *BillModel {
	m := &BillModel{
		BillNumber:    b.BillNumber,
		Year:          b.Year,
		CustomerID:    b.CustomerID,
		CustomerName:  b.CustomerName,
		TotalAmount:   b.TotalAmount,
		PaidAmount:    b.PaidAmount,
		PendingAmount: b.PendingAmount,
		PaymentMode:   b.PaymentMode.String(),
		Status:        b.Status.String(),
		Remark:        b.Remark,
		Items:         make([]BillItemModel, len(b.Items)),
	}
	m.FromDomainBaseEntity(b.BaseEntity)
	m.Lifecycle = b.Lifecycle.String()
	for i, item := range b.Items {
		m.Items[i] = BillItemModel{
			BillID:      b.ID,
			LineNo:      i + 1,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		}
	}
	return m
}

// BillItemModel is one line of a bill; LineNo keeps the original order
type BillItemModel struct {
	ID          uint            `gorm:"primaryKey;autoIncrement"`
	BillID      uuid.UUID       `gorm:"type:uuid;not null;index"`
	LineNo      int             `gorm:"not null"`
	ProductID   uuid.UUID       `gorm:"type:uuid;not null"`
	ProductName string          `gorm:"type:varchar(200)"`
	Quantity    int64           `gorm:"not null"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(18,4);not null"`
}

// TableName returns the table name for GORM
func (BillItemModel) TableName() string {
	return "bill_items"
}

// ToDomain converts the model to a domain BillItem
func (m *BillItemModel) ToDomain() billing.BillItem {
	return billing.BillItem{
		ProductID:   m.ProductID,
		ProductName: m.ProductName,
		Quantity:    m.Quantity,
		UnitPrice:   m.UnitPrice,
	}
}

// InstallmentModel is the persistence model for one payment against a bill
type InstallmentModel struct {
	LifecycleModel
	BillID           uuid.UUID       `gorm:"type:uuid;not null;index"`
	CustomerID       uuid.UUID       `gorm:"type:uuid;not null;index"`
	BillNumber       string          `gorm:"type:varchar(32);not null;index"`
	Amount           decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	PaymentDate      time.Time       `gorm:"not null"`
	PaymentMode      string          `gorm:"type:varchar(32);not null"`
	PaymentReference string          `gorm:"type:varchar(128)"`
}

// TableName returns the table name for GORM
func (InstallmentModel) TableName() string {
	return "installments"
}

// ToDomain converts the model to a domain Installment
func (m *InstallmentModel) ToDomain() *billing.Installment {
	return &billing.Installment{
		BaseEntity:       m.BaseModel.ToDomain(),
		BillID:           m.BillID,
		CustomerID:       m.CustomerID,
		BillNumber:       m.BillNumber,
		Amount:           m.Amount,
		PaymentDate:      m.PaymentDate,
		PaymentMode:      billing.PaymentMode(m.PaymentMode),
		PaymentReference: m.PaymentReference,
		Lifecycle:        m.LifecycleValue(),
	}
}

// InstallmentModelFromDomain creates a persistence model from a domain Installment
func InstallmentModelFromDomain(i *billing.Installment) *InstallmentModel {
	m := &InstallmentModel{
		BillID:           i.BillID,
		CustomerID:       i.CustomerID,
		BillNumber:       i.BillNumber,
		Amount:           i.Amount,
		PaymentDate:      i.PaymentDate,
		PaymentMode:      i.PaymentMode.String(),
		PaymentReference: i.PaymentReference,
	}
	m.FromDomainBaseEntity(i.BaseEntity)
	m.Lifecycle = i.Lifecycle.String()
	return m
}
