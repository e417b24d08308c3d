package models

import (
	"time"

	"github.com/agrosupply/backend/internal/domain/inventory"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductModel is the persistence model for the product stock projection
type ProductModel struct {
	LifecycleModel
	Name           string          `gorm:"type:varchar(200);not null"`
	SKU            string          `gorm:"column:sku;type:varchar(64);index"`
	UnitPrice      decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	RemainingStock int64           `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM
func (ProductModel) TableName() string {
	return "products"
}

// ToDomain converts the model to a domain Product
func (m *ProductModel) ToDomain() *inventory.Product {
	return &inventory.Product{
		BaseEntity:     m.BaseModel.ToDomain(),
		Name:           m.Name,
		SKU:            m.SKU,
		UnitPrice:      m.UnitPrice,
		RemainingStock: m.RemainingStock,
		Lifecycle:      m.LifecycleValue(),
	}
}

// ProductModelFromDomain creates a persistence model from a domain Product
func ProductModelFromDomain(p *inventory.Product) *ProductModel {
	m := &ProductModel{
		Name:           p.Name,
		SKU:            p.SKU,
		UnitPrice:      p.UnitPrice,
		RemainingStock: p.RemainingStock,
	}
	m.FromDomainBaseEntity(p.BaseEntity)
	m.Lifecycle = p.Lifecycle.String()
	return m
}

// BatchModel is the persistence model for one inventory lot.
// The (product_id, batch_number) pair is unique among non-deleted batches.
type BatchModel struct {
	LifecycleModel
	ProductID       uuid.UUID  `gorm:"type:uuid;not null;index;uniqueIndex:uq_batches_product_number,where:lifecycle <> 'DELETED'"`
	BatchNumber     string     `gorm:"type:varchar(64);not null;uniqueIndex:uq_batches_product_number"`
	Stock           int64      `gorm:"not null"`
	SoldQuantity    int64      `gorm:"not null;default:0"`
	RemainingStock  int64      `gorm:"not null"`
	ManufactureDate *time.Time `gorm:"type:date"`
	ExpiryDate      *time.Time `gorm:"type:date"`
	Expired         bool       `gorm:"not null;default:false"`
	ReceivedAt      time.Time  `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (BatchModel) TableName() string {
	return "batches"
}

// ToDomain converts the model to a domain Batch
func (m *BatchModel) ToDomain() *inventory.Batch {
	return &inventory.Batch{
		BaseEntity:      m.BaseModel.ToDomain(),
		ProductID:       m.ProductID,
		BatchNumber:     m.BatchNumber,
		Stock:           m.Stock,
		SoldQuantity:    m.SoldQuantity,
		RemainingStock:  m.RemainingStock,
		ManufactureDate: m.ManufactureDate,
		ExpiryDate:      m.ExpiryDate,
		Expired:         m.Expired,
		ReceivedAt:      m.ReceivedAt,
		Lifecycle:       m.LifecycleValue(),
	}
}

// BatchModelFromDomain creates a persistence model from a domain Batch
func BatchModelFromDomain(b *inventory.Batch) *BatchModel {
	m := &BatchModel{
		ProductID:       b.ProductID,
		BatchNumber:     b.BatchNumber,
		Stock:           b.Stock,
		SoldQuantity:    b.SoldQuantity,
		RemainingStock:  b.RemainingStock,
		ManufactureDate: b.ManufactureDate,
		ExpiryDate:      b.ExpiryDate,
		Expired:         b.Expired,
		ReceivedAt:      b.ReceivedAt,
	}
	m.FromDomainBaseEntity(b.BaseEntity)
	m.Lifecycle = b.Lifecycle.String()
	return m
}
