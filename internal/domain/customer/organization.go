package customer

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/feedsync/backend/internal/domain/shared"
)

// Organization groups persons of a tenant (a company account)
type Organization struct {
	shared.TenantEntity
	SourceID     string
	ExternalID   string
	Name         string
	Plan         string
	MonthlySpend decimal.Decimal
	Attributes   map[string]any
}

// OrganizationInput is what a connector knows about an organization
type OrganizationInput struct {
	SourceID     string
	ExternalID   string
	Name         string
	Plan         string
	MonthlySpend *decimal.Decimal
	Attributes   map[string]any
}

// NewOrganization creates an organization; a key or a name is required
func NewOrganization(tenantID uuid.UUID, in OrganizationInput) (*Organization, error) {
	if strings.TrimSpace(in.SourceID) == "" && strings.TrimSpace(in.ExternalID) == "" && strings.TrimSpace(in.Name) == "" {
		return nil, ErrInsufficientKeyMaterial
	}
	o := &Organization{
		TenantEntity: shared.NewTenantEntity(tenantID),
		Attributes:   make(map[string]any),
	}
	o.Apply(in)
	return o, nil
}

// Apply overwrites fields with the non-empty values of the input
func (o *Organization) Apply(in OrganizationInput) {
	if v := strings.TrimSpace(in.SourceID); v != "" {
		o.SourceID = v
	}
	if v := strings.TrimSpace(in.ExternalID); v != "" {
		o.ExternalID = v
	}
	if v := strings.TrimSpace(in.Name); v != "" {
		o.Name = v
	}
	if v := strings.TrimSpace(in.Plan); v != "" {
		o.Plan = v
	}
	if in.MonthlySpend != nil {
		o.MonthlySpend = *in.MonthlySpend
	}
	if len(in.Attributes) > 0 {
		o.SetAttributes(in.Attributes)
	}
	o.Touch()
}

// NormalizedName is the case-insensitive matching key for the name
func (o *Organization) NormalizedName() string {
	return NormalizeOrganizationName(o.Name)
}

// NormalizeOrganizationName upper-cases and trims an organization name
func NormalizeOrganizationName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// SetAttributes writes values over existing keys (last write wins)
func (o *Organization) SetAttributes(values map[string]any) {
	if o.Attributes == nil {
		o.Attributes = make(map[string]any, len(values))
	}
	for k, v := range values {
		o.Attributes[k] = v
	}
}
