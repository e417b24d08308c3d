package persistence

import (
	"context"
	"time"

	"github.com/agrosupply/backend/internal/domain/inventory"
	"github.com/agrosupply/backend/internal/domain/shared"
	"github.com/agrosupply/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormProductRepository implements ProductRepository using GORM
type GormProductRepository struct {
	db *gorm.DB
}

// NewGormProductRepository creates a new GormProductRepository
func NewGormProductRepository(db *gorm.DB) *GormProductRepository {
	return &GormProductRepository{db: db}
}

// FindByID finds a product by its ID
func (r *GormProductRepository) FindByID(ctx context.Context, id uuid.UUID) (*inventory.Product, error) {
	var model models.ProductModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, translateError(err, "product", id.String())
	}
	return model.ToDomain(), nil
}

// FindByIDs finds products by IDs; unknown IDs are silently absent
func (r *GormProductRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]inventory.Product, error) {
	if len(ids) == 0 {
		return []inventory.Product{}, nil
	}
	var rows []models.ProductModel
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	products := make([]inventory.Product, len(rows))
	for i := range rows {
		products[i] = *rows[i].ToDomain()
	}
	return products, nil
}

// Save creates or updates a product
func (r *GormProductRepository) Save(ctx context.Context, product *inventory.Product) error {
	return r.db.WithContext(ctx).Save(models.ProductModelFromDomain(product)).Error
}

// DecrementStock lowers the projection in one conditional statement
func (r *GormProductRepository) DecrementStock(ctx context.Context, id uuid.UUID, quantity int64) error {
	if quantity <= 0 {
		return shared.NewValidationError("quantity must be positive")
	}
	result := r.db.WithContext(ctx).
		Model(&models.ProductModel{}).
		Where("id = ? AND remaining_stock >= ?", id, quantity).
		Updates(map[string]any{
			"remaining_stock": gorm.Expr("remaining_stock - ?", quantity),
			"updated_at":      time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		product, err := r.FindByID(ctx, id)
		if err != nil {
			return err
		}
		return inventory.InsufficientProductStock(product, quantity)
	}
	return nil
}

// IncrementStock raises the projection
func (r *GormProductRepository) IncrementStock(ctx context.Context, id uuid.UUID, quantity int64) error {
	if quantity <= 0 {
		return shared.NewValidationError("quantity must be positive")
	}
	return r.update(ctx, id, map[string]any{
		"remaining_stock": gorm.Expr("remaining_stock + ?", quantity),
		"updated_at":      time.Now(),
	})
}

// SetStock overwrites the projection
func (r *GormProductRepository) SetStock(ctx context.Context, id uuid.UUID, quantity int64) error {
	if quantity < 0 {
		return shared.NewValidationError("stock cannot be negative")
	}
	return r.update(ctx, id, map[string]any{
		"remaining_stock": quantity,
		"updated_at":      time.Now(),
	})
}

func (r *GormProductRepository) update(ctx context.Context, id uuid.UUID, values map[string]any) error {
	result := r.db.WithContext(ctx).Model(&models.ProductModel{}).Where("id = ?", id).Updates(values)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.NewNotFoundError("product", id.String())
	}
	return nil
}

// Ensure GormProductRepository implements ProductRepository
var _ inventory.ProductRepository = (*GormProductRepository)(nil)
