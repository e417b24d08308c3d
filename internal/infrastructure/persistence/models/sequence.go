package models

import "time"

// SequenceCounterModel holds the last number issued for a scope, e.g. a year
type SequenceCounterModel struct {
	ScopeKey  string    `gorm:"type:varchar(64);primaryKey"`
	Seq       int64     `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SequenceCounterModel) TableName() string {
	return "sequence_counters"
}

// All returns every ledger model, in dependency order, for AutoMigrate in tests
func All() []any {
	return []any{
		&ProductModel{},
		&BatchModel{},
		&BillModel{},
		&BillItemModel{},
		&InstallmentModel{},
		&SequenceCounterModel{},
	}
}
