package models

import (
	"time"

	"github.com/gamehub/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// BaseModel holds the identity and timestamp columns of every table
type BaseModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (m *BaseModel) entity() shared.BaseEntity {
	return shared.BaseEntity{ID: m.ID, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt}
}

// AggregateModel adds the version column that SaveWithLock compares against
type AggregateModel struct {
	BaseModel
	Version int `gorm:"not null;default:1"`
}

// aggregateRoot rebuilds the domain root; domain events are never persisted
func (m *AggregateModel) aggregateRoot() shared.BaseAggregateRoot {
	return shared.BaseAggregateRoot{BaseEntity: m.entity(), Version: m.Version}
}

// FromDomainAggregateRoot copies identity, timestamps and version from a
// domain root
func (m *AggregateModel) FromDomainAggregateRoot(a shared.BaseAggregateRoot) {
	m.ID = a.ID
	m.CreatedAt = a.CreatedAt
	m.UpdatedAt = a.UpdatedAt
	m.Version = a.Version
}
