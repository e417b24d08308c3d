package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/agrosupply/backend/internal/domain/billing"
	"gorm.io/gorm"
)

// nextSequenceSQL increments or creates the counter in one statement, so two
// callers can never read the same value.
const nextSequenceSQL = `INSERT INTO sequence_counters (scope_key, seq, created_at, updated_at) VALUES (?, 1, ?, ?) ` +
	`ON CONFLICT (scope_key) DO UPDATE SET seq = sequence_counters.seq + 1, updated_at = excluded.updated_at ` +
	`RETURNING seq`

// GormSequenceRepository implements SequenceRepository with an atomic upsert
type GormSequenceRepository struct {
	db *gorm.DB
}

// NewGormSequenceRepository creates a new GormSequenceRepository
func NewGormSequenceRepository(db *gorm.DB) *GormSequenceRepository {
	return &GormSequenceRepository{db: db}
}

// Next returns the next value for scopeKey, starting at 1
func (r *GormSequenceRepository) Next(ctx context.Context, scopeKey string) (int64, error) {
	now := time.Now()
	var seq []int64
	if err := r.db.WithContext(ctx).Raw(nextSequenceSQL, scopeKey, now, now).Scan(&seq).Error; err != nil {
		return 0, fmt.Errorf("next sequence for %s: %w", scopeKey, err)
	}
	if len(seq) != 1 || seq[0] < 1 {
		return 0, fmt.Errorf("next sequence for %s: upsert returned no value", scopeKey)
	}
	return seq[0], nil
}

// Ensure GormSequenceRepository implements SequenceRepository
var _ billing.SequenceRepository = (*GormSequenceRepository)(nil)
