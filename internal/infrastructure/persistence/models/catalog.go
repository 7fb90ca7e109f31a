package models

import (
	"github.com/google/uuid"

	"github.com/feedsync/backend/internal/domain/catalog"
	"github.com/feedsync/backend/internal/domain/integration"
)

// AttributeDefinitionModel is the persistence model for the AttributeDefinition entity
type AttributeDefinitionModel struct {
	BaseModel
	TenantID      uuid.UUID                 `gorm:"type:uuid;not null;index;uniqueIndex:idx_attribute_definitions_key,priority:1"`
	Connector     integration.ConnectorName `gorm:"type:varchar(32);not null;uniqueIndex:idx_attribute_definitions_key,priority:2"`
	EntityKind    catalog.EntityKind        `gorm:"type:varchar(32);not null;uniqueIndex:idx_attribute_definitions_key,priority:3"`
	Name          string                    `gorm:"type:varchar(255);not null;uniqueIndex:idx_attribute_definitions_key,priority:4"`
	FriendlyName  string                    `gorm:"type:varchar(255);not null"`
	ValueType     catalog.ValueType         `gorm:"type:varchar(16);not null"`
	Widget        catalog.Widget            `gorm:"type:varchar(32);not null"`
	IsMRR         bool                      `gorm:"column:is_mrr;not null;default:false"`
	IsPlan        bool                      `gorm:"column:is_plan;not null;default:false"`
	IsCustom      bool                      `gorm:"not null;default:true"`
	ShowInFilters bool                      `gorm:"not null;default:false"`
}

// TableName returns the table name for GORM
func (AttributeDefinitionModel) TableName() string {
	return "attribute_definitions"
}

// ToDomain converts the persistence model to a domain AttributeDefinition
func (m *AttributeDefinitionModel) ToDomain() *catalog.AttributeDefinition {
	return &catalog.AttributeDefinition{
		TenantEntity:  tenantEntity(&m.BaseModel, m.TenantID),
		Connector:     m.Connector,
		EntityKind:    m.EntityKind,
		Name:          m.Name,
		FriendlyName:  m.FriendlyName,
		ValueType:     m.ValueType,
		Widget:        m.Widget,
		IsMRR:         m.IsMRR,
		IsPlan:        m.IsPlan,
		IsCustom:      m.IsCustom,
		ShowInFilters: m.ShowInFilters,
	}
}

// FromDomain populates the persistence model from a domain AttributeDefinition
func (m *AttributeDefinitionModel) FromDomain(d *catalog.AttributeDefinition) {
	m.FromDomainBaseEntity(d.BaseEntity)
	m.TenantID = d.TenantID
	m.Connector = d.Connector
	m.EntityKind = d.EntityKind
	m.Name = d.Name
	m.FriendlyName = d.FriendlyName
	m.ValueType = d.ValueType
	m.Widget = d.Widget
	m.IsMRR = d.IsMRR
	m.IsPlan = d.IsPlan
	m.IsCustom = d.IsCustom
	m.ShowInFilters = d.ShowInFilters
}

// AttributeDefinitionModelFromDomain creates a persistence model from a domain AttributeDefinition
func AttributeDefinitionModelFromDomain(d *catalog.AttributeDefinition) *AttributeDefinitionModel {
	m := &AttributeDefinitionModel{}
	m.FromDomain(d)
	return m
}
