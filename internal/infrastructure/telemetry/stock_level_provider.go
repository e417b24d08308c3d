package telemetry

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormStockLevelProvider reads the product stock projection for the stock gauge
type GormStockLevelProvider struct {
	db *gorm.DB
}

// NewGormStockLevelProvider creates a GormStockLevelProvider
func NewGormStockLevelProvider(db *gorm.DB) *GormStockLevelProvider {
	return &GormStockLevelProvider{db: db}
}

// StockLevels returns remaining_stock for every live product
func (p *GormStockLevelProvider) StockLevels(ctx context.Context) (map[uuid.UUID]int64, error) {
	type row struct {
		ID             uuid.UUID `gorm:"column:id"`
		RemainingStock int64     `gorm:"column:remaining_stock"`
	}
	var rows []row
	err := p.db.WithContext(ctx).
		Table("products").
		Select("id, remaining_stock").
		Where("lifecycle <> ?", "DELETED").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	levels := make(map[uuid.UUID]int64, len(rows))
	for _, r := range rows {
		levels[r.ID] = r.RemainingStock
	}
	return levels, nil
}
