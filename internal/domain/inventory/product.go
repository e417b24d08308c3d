package inventory

import (
	"fmt"
	"strings"

	"github.com/agrosupply/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Product carries the coarse stock counter checked at sale time.
// RemainingStock is a projection of the batch ledger: the sum of
// RemainingStock over the product's active, non-expired batches.
type Product struct {
	shared.BaseEntity
	Name           string
	SKU            string
	UnitPrice      decimal.Decimal
	RemainingStock int64
	Lifecycle      shared.Lifecycle
}

// NewProduct creates a product with an empty stock projection
func NewProduct(name, sku string, unitPrice decimal.Decimal) (*Product, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, shared.NewValidationError("product name is required")
	}
	if unitPrice.IsNegative() {
		return nil, shared.NewValidationError("unit price cannot be negative")
	}
	return &Product{
		BaseEntity: shared.NewBaseEntity(),
		Name:       name,
		SKU:        strings.TrimSpace(sku),
		UnitPrice:  unitPrice,
		Lifecycle:  shared.LifecycleActive,
	}, nil
}

// EnsureSellable fails when the product is deleted or blocked
func (p *Product) EnsureSellable() error {
	return p.Lifecycle.EnsureMutable("product", p.Name)
}

// CanSupply reports whether the projection covers quantity
func (p *Product) CanSupply(quantity int64) bool {
	return quantity > 0 && p.RemainingStock >= quantity
}

// Withdraw lowers the projection after stock left a batch
func (p *Product) Withdraw(quantity int64) error {
	if quantity <= 0 {
		return shared.NewValidationError("quantity must be positive")
	}
	if p.RemainingStock < quantity {
		return InsufficientProductStock(p, quantity)
	}
	p.RemainingStock -= quantity
	p.Touch()
	return nil
}

// Replenish raises the projection after stock entered or returned to a batch
func (p *Product) Replenish(quantity int64) {
	if quantity <= 0 {
		return
	}
	p.RemainingStock += quantity
	p.Touch()
}

// InsufficientProductStock builds the INSUFFICIENT_STOCK error naming the product.
func InsufficientProductStock(p *Product, requested int64) *shared.DomainError {
	return shared.NewDomainError(shared.CodeInsufficientStock,
		fmt.Sprintf("insufficient stock for product %s: %d available, %d requested", p.Name, p.RemainingStock, requested)).
		WithDetails(map[string]any{
			"product_id":   p.ID.String(),
			"product_name": p.Name,
			"available":    p.RemainingStock,
			"requested":    requested,
		})
}
