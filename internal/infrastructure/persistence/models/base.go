package models

import (
	"time"

	"github.com/agrosupply/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// BaseModel provides the identity and timestamp columns of every table.
// It maps to the domain's BaseEntity.
type BaseModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// ToDomain converts BaseModel to domain BaseEntity
func (m *BaseModel) ToDomain() shared.BaseEntity {
	return shared.BaseEntity{
		ID:        m.ID,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// FromDomainBaseEntity populates BaseModel from domain BaseEntity
func (m *BaseModel) FromDomainBaseEntity(e shared.BaseEntity) {
	m.ID = e.ID
	m.CreatedAt = e.CreatedAt
	m.UpdatedAt = e.UpdatedAt
}

// LifecycleModel adds the ACTIVE/BLOCKED/DELETED column
type LifecycleModel struct {
	BaseModel
	Lifecycle string `gorm:"type:varchar(16);not null;default:'ACTIVE';index"`
}

// LifecycleValue returns the stored lifecycle as the domain type
func (m *LifecycleModel) LifecycleValue() shared.Lifecycle {
	return shared.Lifecycle(m.Lifecycle)
}
