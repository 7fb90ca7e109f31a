package models

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/feedsync/backend/internal/domain/shared"
)

// BaseModel provides common persistence fields for all models.
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

// tenantEntity builds the domain TenantEntity of a tenant-scoped row
func tenantEntity(base *BaseModel, tenantID uuid.UUID) shared.TenantEntity {
	return shared.TenantEntity{BaseEntity: base.ToDomain(), TenantID: tenantID}
}

// nullable maps the domain's "absent" empty string to NULL so partial
// unique indexes ignore it
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// encodeAttributes serializes an attribute map for a jsonb column
func encodeAttributes(attrs map[string]any) string {
	if len(attrs) == 0 {
		return "{}"
	}
	b, err := json.Marshal(attrs)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// decodeAttributes restores an attribute map. Integral numbers come back as
// int64, others as float64.
func decodeAttributes(raw string) map[string]any {
	attrs := make(map[string]any)
	if raw == "" {
		return attrs
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	if err := dec.Decode(&attrs); err != nil {
		return make(map[string]any)
	}
	for k, v := range attrs {
		n, ok := v.(json.Number)
		if !ok {
			continue
		}
		if i, err := n.Int64(); err == nil {
			attrs[k] = i
		} else if f, err := n.Float64(); err == nil {
			attrs[k] = f
		}
	}
	return attrs
}

func encodeStrings(m map[string]string) string {
	if len(m) == 0 {
		return "{}"
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func decodeStrings(raw string) map[string]string {
	m := make(map[string]string)
	if raw == "" {
		return m
	}
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return make(map[string]string)
	}
	return m
}
