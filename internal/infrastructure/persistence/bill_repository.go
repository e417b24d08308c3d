package persistence

import (
	"context"
	"time"

	"github.com/agrosupply/backend/internal/domain/billing"
	"github.com/agrosupply/backend/internal/domain/shared"
	"github.com/agrosupply/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormBillRepository implements BillRepository using GORM
type GormBillRepository struct {
	db *gorm.DB
}

// NewGormBillRepository creates a new GormBillRepository
func NewGormBillRepository(db *gorm.DB) *GormBillRepository {
	return &GormBillRepository{db: db}
}

func withItems(db *gorm.DB) *gorm.DB {
	return db.Preload("Items", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("line_no ASC")
	})
}

// FindByID finds a bill with its items
func (r *GormBillRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Bill, error) {
	return r.first(withItems(r.db.WithContext(ctx)), "id = ?", id)
}

// FindByIDForUpdate finds a bill and locks its row for the transaction
func (r *GormBillRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*billing.Bill, error) {
	return r.first(withItems(r.db.WithContext(ctx)).Clauses(forUpdate), "id = ?", id)
}

// FindByNumberAndCustomer finds a bill by number for a customer
func (r *GormBillRepository) FindByNumberAndCustomer(ctx context.Context, billNumber string, customerID uuid.UUID) (*billing.Bill, error) {
	return r.first(withItems(r.db.WithContext(ctx)), "bill_number = ? AND customer_id = ?", billNumber, customerID)
}

func (r *GormBillRepository) first(db *gorm.DB, query string, args ...any) (*billing.Bill, error) {
	var model models.BillModel
	if err := db.Where(query, args...).First(&model).Error; err != nil {
		return nil, translateError(err, "bill", keyOf(args))
	}
	return model.ToDomain(), nil
}

// FindOpenByCustomer finds active bills with money still owed, oldest first
func (r *GormBillRepository) FindOpenByCustomer(ctx context.Context, customerID uuid.UUID) ([]billing.Bill, error) {
	var rows []models.BillModel
	err := r.db.WithContext(ctx).
		Where("customer_id = ? AND lifecycle = ? AND paid_amount < total_amount", customerID, shared.LifecycleActive.String()).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toBills(rows), nil
}

// FindByCustomer finds the customer's live bills with items, oldest first
func (r *GormBillRepository) FindByCustomer(ctx context.Context, customerID uuid.UUID) ([]billing.Bill, error) {
	var rows []models.BillModel
	err := withItems(r.db.WithContext(ctx)).
		Where("customer_id = ? AND lifecycle <> ?", customerID, shared.LifecycleDeleted.String()).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toBills(rows), nil
}

// FindAll finds live bills matching the filter, newest first by default
func (r *GormBillRepository) FindAll(ctx context.Context, filter billing.BillFilter) ([]billing.Bill, error) {
	f := filter.Filter.Normalize()
	orderBy := ValidateSortField(f.OrderBy, BillSortFields, "created_at")
	query := withItems(r.filtered(r.db.WithContext(ctx), filter)).
		Order(orderBy + " " + ValidateSortOrder(f.OrderDir)).
		Order("id ASC").
		Offset(f.Offset()).
		Limit(f.PageSize)

	var rows []models.BillModel
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return toBills(rows), nil
}

// Count counts live bills matching the filter
func (r *GormBillRepository) Count(ctx context.Context, filter billing.BillFilter) (int64, error) {
	var count int64
	err := r.filtered(r.db.WithContext(ctx), filter).Count(&count).Error
	return count, err
}

func (r *GormBillRepository) filtered(db *gorm.DB, filter billing.BillFilter) *gorm.DB {
	query := db.Model(&models.BillModel{}).Where("lifecycle <> ?", shared.LifecycleDeleted.String())
	if filter.CustomerID != nil {
		query = query.Where("customer_id = ?", *filter.CustomerID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status.String())
	}
	if filter.PaymentMode != "" {
		query = query.Where("payment_mode = ?", filter.PaymentMode.String())
	}
	if filter.Year > 0 {
		query = query.Where("year = ?", filter.Year)
	}
	if filter.From != nil {
		query = query.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("created_at < ?", *filter.To)
	}
	if filter.Search != "" {
		pattern := likePattern(filter.Search)
		query = query.Where("(LOWER(bill_number) LIKE ? ESCAPE '\\' OR LOWER(customer_name) LIKE ? ESCAPE '\\')", pattern, pattern)
	}
	return query
}

// Create inserts the bill and its items
func (r *GormBillRepository) Create(ctx context.Context, bill *billing.Bill) error {
	err := r.db.WithContext(ctx).Create(models.BillModelFromDomain(bill)).Error
	return translateError(err, "bill", bill.BillNumber)
}

// Update persists balance, status, details and lifecycle. Items and the
// total are fixed at creation and never rewritten.
func (r *GormBillRepository) Update(ctx context.Context, bill *billing.Bill) error {
	updatedAt := bill.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	result := r.db.WithContext(ctx).
		Model(&models.BillModel{}).
		Where("id = ?", bill.ID).
		Updates(map[string]any{
			"paid_amount":    bill.PaidAmount,
			"pending_amount": bill.PendingAmount,
			"status":         bill.Status.String(),
			"payment_mode":   bill.PaymentMode.String(),
			"customer_name":  bill.CustomerName,
			"remark":         bill.Remark,
			"lifecycle":      bill.Lifecycle.String(),
			"updated_at":     updatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.NewNotFoundError("bill", bill.ID.String())
	}
	return nil
}

func toBills(rows []models.BillModel) []billing.Bill {
	bills := make([]billing.Bill, len(rows))
	for i := range rows {
		bills[i] = *rows[i].ToDomain()
	}
	return bills
}

func keyOf(args []any) string {
	if len(args) == 0 {
		return ""
	}
	if s, ok := args[0].(interface{ String() string }); ok {
		return s.String()
	}
	if s, ok := args[0].(string); ok {
		return s
	}
	return ""
}

// Ensure GormBillRepository implements BillRepository
var _ billing.BillRepository = (*GormBillRepository)(nil)
