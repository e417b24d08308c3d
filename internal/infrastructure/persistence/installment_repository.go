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

// GormInstallmentRepository implements InstallmentRepository using GORM
type GormInstallmentRepository struct {
	db *gorm.DB
}

// NewGormInstallmentRepository creates a new GormInstallmentRepository
func NewGormInstallmentRepository(db *gorm.DB) *GormInstallmentRepository {
	return &GormInstallmentRepository{db: db}
}

// FindByID finds an installment by its ID
func (r *GormInstallmentRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Installment, error) {
	var model models.InstallmentModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, translateError(err, "installment", id.String())
	}
	return model.ToDomain(), nil
}

// FindLiveByBill finds a bill's non-deleted installments, oldest payment first
func (r *GormInstallmentRepository) FindLiveByBill(ctx context.Context, billID uuid.UUID) ([]billing.Installment, error) {
	return r.find(ctx, "bill_id = ? AND lifecycle <> ?", billID, shared.LifecycleDeleted.String())
}

// FindByBillNumber finds non-deleted installments tagged with a bill or receipt number
func (r *GormInstallmentRepository) FindByBillNumber(ctx context.Context, billNumber string) ([]billing.Installment, error) {
	return r.find(ctx, "bill_number = ? AND lifecycle <> ?", billNumber, shared.LifecycleDeleted.String())
}

func (r *GormInstallmentRepository) find(ctx context.Context, query string, args ...any) ([]billing.Installment, error) {
	var rows []models.InstallmentModel
	err := r.db.WithContext(ctx).
		Where(query, args...).
		Order("payment_date ASC, created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	installments := make([]billing.Installment, len(rows))
	for i := range rows {
		installments[i] = *rows[i].ToDomain()
	}
	return installments, nil
}

// Create inserts an installment
func (r *GormInstallmentRepository) Create(ctx context.Context, installment *billing.Installment) error {
	err := r.db.WithContext(ctx).Create(models.InstallmentModelFromDomain(installment)).Error
	return translateError(err, "installment", installment.ID.String())
}

// Update persists amount, payment details and lifecycle
func (r *GormInstallmentRepository) Update(ctx context.Context, installment *billing.Installment) error {
	updatedAt := installment.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	result := r.db.WithContext(ctx).
		Model(&models.InstallmentModel{}).
		Where("id = ?", installment.ID).
		Updates(map[string]any{
			"amount":            installment.Amount,
			"payment_date":      installment.PaymentDate,
			"payment_mode":      installment.PaymentMode.String(),
			"payment_reference": installment.PaymentReference,
			"lifecycle":         installment.Lifecycle.String(),
			"updated_at":        updatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.NewNotFoundError("installment", installment.ID.String())
	}
	return nil
}

// Ensure GormInstallmentRepository implements InstallmentRepository
var _ billing.InstallmentRepository = (*GormInstallmentRepository)(nil)
