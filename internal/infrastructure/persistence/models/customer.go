package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/feedsync/backend/internal/domain/customer"
)

// PersonModel is the persistence model for the Person entity
type PersonModel struct {
	BaseModel
	TenantID       uuid.UUID  `gorm:"type:uuid;not null;index;uniqueIndex:idx_people_tenant_source,priority:1;uniqueIndex:idx_people_tenant_external,priority:1;uniqueIndex:idx_people_tenant_email,priority:1"`
	SourceID       *string    `gorm:"type:varchar(255);uniqueIndex:idx_people_tenant_source,priority:2,where:source_id IS NOT NULL"`
	ExternalID     *string    `gorm:"type:varchar(255);uniqueIndex:idx_people_tenant_external,priority:2,where:external_id IS NOT NULL"`
	Email          *string    `gorm:"type:varchar(320);uniqueIndex:idx_people_tenant_email,priority:2,where:email IS NOT NULL"`
	Name           string     `gorm:"type:varchar(255)"`
	Phone          string     `gorm:"type:varchar(64)"`
	OrganizationID *uuid.UUID `gorm:"type:uuid;index"`
	AttributesJSON string     `gorm:"type:jsonb;column:attributes;not null;default:'{}'"`
	LastSeenAt     *time.Time
}

// TableName returns the table name for GORM
func (PersonModel) TableName() string {
	return "people"
}

// ToDomain converts the persistence model to a domain Person
func (m *PersonModel) ToDomain() *customer.Person {
	return &customer.Person{
		TenantEntity:   tenantEntity(&m.BaseModel, m.TenantID),
		SourceID:       deref(m.SourceID),
		ExternalID:     deref(m.ExternalID),
		Email:          deref(m.Email),
		Name:           m.Name,
		Phone:          m.Phone,
		OrganizationID: m.OrganizationID,
		Attributes:     decodeAttributes(m.AttributesJSON),
		LastSeenAt:     m.LastSeenAt,
	}
}

// FromDomain populates the persistence model from a domain Person
func (m *PersonModel) FromDomain(p *customer.Person) {
	m.FromDomainBaseEntity(p.BaseEntity)
	m.TenantID = p.TenantID
	m.SourceID = nullable(p.SourceID)
	m.ExternalID = nullable(p.ExternalID)
	m.Email = nullable(p.Email)
	m.Name = p.Name
	m.Phone = p.Phone
	m.OrganizationID = p.OrganizationID
	m.AttributesJSON = encodeAttributes(p.Attributes)
	m.LastSeenAt = p.LastSeenAt
}

// PersonModelFromDomain creates a persistence model from a domain Person
func PersonModelFromDomain(p *customer.Person) *PersonModel {
	m := &PersonModel{}
	m.FromDomain(p)
	return m
}

// OrganizationModel is the persistence model for the Organization entity
type OrganizationModel struct {
	BaseModel
	TenantID       uuid.UUID       `gorm:"type:uuid;not null;index;uniqueIndex:idx_organizations_tenant_source,priority:1;uniqueIndex:idx_organizations_tenant_external,priority:1;index:idx_organizations_tenant_name,priority:1"`
	SourceID       *string         `gorm:"type:varchar(255);uniqueIndex:idx_organizations_tenant_source,priority:2,where:source_id IS NOT NULL"`
	ExternalID     *string         `gorm:"type:varchar(255);uniqueIndex:idx_organizations_tenant_external,priority:2,where:external_id IS NOT NULL"`
	Name           string          `gorm:"type:varchar(255)"`
	NormalizedName string          `gorm:"type:varchar(255);index:idx_organizations_tenant_name,priority:2"`
	Plan           string          `gorm:"type:varchar(255)"`
	MonthlySpend   decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	AttributesJSON string          `gorm:"type:jsonb;column:attributes;not null;default:'{}'"`
}

// TableName returns the table name for GORM
func (OrganizationModel) TableName() string {
	return "organizations"
}

// ToDomain converts the persistence model to a domain Organization
func (m *OrganizationModel) ToDomain() *customer.Organization {
	return &customer.Organization{
		TenantEntity: tenantEntity(&m.BaseModel, m.TenantID),
		SourceID:     deref(m.SourceID),
		ExternalID:   deref(m.ExternalID),
		Name:         m.Name,
		Plan:         m.Plan,
		MonthlySpend: m.MonthlySpend,
		Attributes:   decodeAttributes(m.AttributesJSON),
	}
}

// FromDomain populates the persistence model from a domain Organization
func (m *OrganizationModel) FromDomain(o *customer.Organization) {
	m.FromDomainBaseEntity(o.BaseEntity)
	m.TenantID = o.TenantID
	m.SourceID = nullable(o.SourceID)
	m.ExternalID = nullable(o.ExternalID)
	m.Name = o.Name
	m.NormalizedName = o.NormalizedName()
	m.Plan = o.Plan
	m.MonthlySpend = o.MonthlySpend
	m.AttributesJSON = encodeAttributes(o.Attributes)
}

// OrganizationModelFromDomain creates a persistence model from a domain Organization
func OrganizationModelFromDomain(o *customer.Organization) *OrganizationModel {
	m := &OrganizationModel{}
	m.FromDomain(o)
	return m
}
