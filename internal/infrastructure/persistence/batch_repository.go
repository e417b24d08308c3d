package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/agrosupply/backend/internal/domain/inventory"
	"github.com/agrosupply/backend/internal/domain/shared"
	"github.com/agrosupply/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// oldestFirstOrder is the intake order used for allocation and listings
const oldestFirstOrder = "received_at ASC, created_at ASC, id ASC"

// GormBatchRepository implements BatchRepository using GORM.
// All stock changes are single conditional UPDATE statements checked
// through RowsAffected, so concurrent sellers cannot oversell a lot.
type GormBatchRepository struct {
	db *gorm.DB
}

// NewGormBatchRepository creates a new GormBatchRepository
func NewGormBatchRepository(db *gorm.DB) *GormBatchRepository {
	return &GormBatchRepository{db: db}
}

// FindByID finds a batch by its ID
func (r *GormBatchRepository) FindByID(ctx context.Context, id uuid.UUID) (*inventory.Batch, error) {
	return r.first(r.db.WithContext(ctx), id)
}

// FindByIDForUpdate finds a batch and locks its row
func (r *GormBatchRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*inventory.Batch, error) {
	return r.first(r.db.WithContext(ctx).Clauses(forUpdate), id)
}

func (r *GormBatchRepository) first(db *gorm.DB, id uuid.UUID) (*inventory.Batch, error) {
	var model models.BatchModel
	if err := db.First(&model, "id = ?", id).Error; err != nil {
		return nil, translateError(err, "batch", id.String())
	}
	return model.ToDomain(), nil
}

// FindByProductAndNumber finds a live batch by number within a product
func (r *GormBatchRepository) FindByProductAndNumber(ctx context.Context, productID uuid.UUID, batchNumber string) (*inventory.Batch, error) {
	var model models.BatchModel
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND batch_number = ? AND lifecycle <> ?", productID, batchNumber, shared.LifecycleDeleted.String()).
		First(&model).Error
	if err != nil {
		return nil, translateError(err, "batch", batchNumber)
	}
	return model.ToDomain(), nil
}

// FindSellableByProduct returns the sellable lots oldest first and locks
// them, so two oldest-first sales of one product queue behind each other.
func (r *GormBatchRepository) FindSellableByProduct(ctx context.Context, productID uuid.UUID) ([]inventory.Batch, error) {
	var rows []models.BatchModel
	err := r.db.WithContext(ctx).
		Clauses(forUpdate).
		Where("product_id = ? AND lifecycle = ? AND expired = ? AND remaining_stock > 0",
			productID, shared.LifecycleActive.String(), false).
		Order(oldestFirstOrder).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toBatches(rows), nil
}

// FindAll finds live batches matching the filter
func (r *GormBatchRepository) FindAll(ctx context.Context, filter inventory.BatchFilter) ([]inventory.Batch, error) {
	f := filter.Filter.Normalize()
	query := r.filtered(r.db.WithContext(ctx), filter)

	orderBy := ValidateSortField(f.OrderBy, BatchSortFields, "")
	if orderBy == "" {
		query = query.Order(oldestFirstOrder)
	} else {
		query = query.Order(orderBy + " " + ValidateSortOrder(f.OrderDir))
	}

	var rows []models.BatchModel
	if err := query.Offset(f.Offset()).Limit(f.PageSize).Find(&rows).Error; err != nil {
		return nil, err
	}
	return toBatches(rows), nil
}

// Count counts live batches matching the filter
func (r *GormBatchRepository) Count(ctx context.Context, filter inventory.BatchFilter) (int64, error) {
	var count int64
	err := r.filtered(r.db.WithContext(ctx), filter).Count(&count).Error
	return count, err
}

func (r *GormBatchRepository) filtered(db *gorm.DB, filter inventory.BatchFilter) *gorm.DB {
	query := db.Model(&models.BatchModel{}).Where("lifecycle <> ?", shared.LifecycleDeleted.String())
	if filter.ProductID != nil {
		query = query.Where("product_id = ?", *filter.ProductID)
	}
	if !filter.IncludeExpired {
		query = query.Where("expired = ?", false)
	}
	if filter.Search != "" {
		query = query.Where("LOWER(batch_number) LIKE ? ESCAPE '\\'", likePattern(filter.Search))
	}
	return query
}

// Create inserts a batch; a taken number for the product is a CONFLICT
func (r *GormBatchRepository) Create(ctx context.Context, batch *inventory.Batch) error {
	err := r.db.WithContext(ctx).Create(models.BatchModelFromDomain(batch)).Error
	return translateError(err, "batch", batch.BatchNumber)
}

// DecrementRemaining sells quantity if the lot is active, not expired and
// holds at least quantity. Anything else is INSUFFICIENT_STOCK.
func (r *GormBatchRepository) DecrementRemaining(ctx context.Context, id uuid.UUID, quantity int64) error {
	if quantity <= 0 {
		return shared.NewValidationError("quantity must be positive")
	}
	result := r.db.WithContext(ctx).
		Model(&models.BatchModel{}).
		Where("id = ? AND lifecycle = ? AND expired = ? AND remaining_stock >= ?",
			id, shared.LifecycleActive.String(), false, quantity).
		Updates(map[string]any{
			"remaining_stock": gorm.Expr("remaining_stock - ?", quantity),
			"sold_quantity":   gorm.Expr("sold_quantity + ?", quantity),
			"updated_at":      time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		batch, err := r.FindByID(ctx, id)
		if err != nil {
			return err
		}
		return shared.NewDomainError(shared.CodeInsufficientStock,
			fmt.Sprintf("batch %s cannot supply %d units", batch.BatchNumber, quantity)).
			WithDetails(map[string]any{
				"batch_id":        id.String(),
				"remaining_stock": batch.RemainingStock,
				"expired":         batch.Expired,
				"lifecycle":       batch.Lifecycle.String(),
				"requested":       quantity,
			})
	}
	return nil
}

// IncrementRemaining returns quantity to the lot. It never returns more
// than was sold from it.
func (r *GormBatchRepository) IncrementRemaining(ctx context.Context, id uuid.UUID, quantity int64) error {
	if quantity <= 0 {
		return shared.NewValidationError("quantity must be positive")
	}
	result := r.db.WithContext(ctx).
		Model(&models.BatchModel{}).
		Where("id = ? AND sold_quantity >= ?", id, quantity).
		Updates(map[string]any{
			"remaining_stock": gorm.Expr("remaining_stock + ?", quantity),
			"sold_quantity":   gorm.Expr("sold_quantity - ?", quantity),
			"updated_at":      time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		batch, err := r.FindByID(ctx, id)
		if err != nil {
			return err
		}
		return shared.NewValidationError("cannot return %d units to batch %s, only %d sold",
			quantity, batch.BatchNumber, batch.SoldQuantity)
	}
	return nil
}

// MarkExpired flips the expired flag once and reports the stock it held
func (r *GormBatchRepository) MarkExpired(ctx context.Context, id uuid.UUID) (int64, bool, error) {
	var remaining []int64
	err := r.db.WithContext(ctx).
		Raw(`UPDATE batches SET expired = ?, updated_at = ? WHERE id = ? AND expired = ? RETURNING remaining_stock`,
			true, time.Now(), id, false).
		Scan(&remaining).Error
	if err != nil {
		return 0, false, err
	}
	if len(remaining) == 1 {
		return remaining[0], true, nil
	}

	batch, err := r.FindByID(ctx, id)
	if err != nil {
		return 0, false, err
	}
	return batch.RemainingStock, false, nil
}

// UpdateLifecycle persists a lifecycle change
func (r *GormBatchRepository) UpdateLifecycle(ctx context.Context, id uuid.UUID, lifecycle shared.Lifecycle) error {
	result := r.db.WithContext(ctx).
		Model(&models.BatchModel{}).
		Where("id = ?", id).
		Updates(map[string]any{"lifecycle": lifecycle.String(), "updated_at": time.Now()})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.NewNotFoundError("batch", id.String())
	}
	return nil
}

// SumSellableByProduct sums the remaining stock of the sellable lots
func (r *GormBatchRepository) SumSellableByProduct(ctx context.Context, productID uuid.UUID) (int64, error) {
	var sum int64
	err := r.db.WithContext(ctx).
		Model(&models.BatchModel{}).
		Select("COALESCE(SUM(remaining_stock), 0)").
		Where("product_id = ? AND lifecycle = ? AND expired = ?", productID, shared.LifecycleActive.String(), false).
		Scan(&sum).Error
	return sum, err
}

func toBatches(rows []models.BatchModel) []inventory.Batch {
	batches := make([]inventory.Batch, len(rows))
	for i := range rows {
		batches[i] = *rows[i].ToDomain()
	}
	return batches
}

// Ensure GormBatchRepository implements BatchRepository
var _ inventory.BatchRepository = (*GormBatchRepository)(nil)
