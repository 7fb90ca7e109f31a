package customer

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/feedsync/backend/internal/domain/shared"
)

// Person is an end-customer of a tenant
type Person struct {
	shared.TenantEntity
	SourceID       string
	ExternalID     string
	Email          string
	Name           string
	Phone          string
	OrganizationID *uuid.UUID
	Attributes     map[string]any
	LastSeenAt     *time.Time
}

// PersonInput is what a connector knows about a person
type PersonInput struct {
	Keys           CandidateKeys
	Name           string
	Phone          string
	OrganizationID *uuid.UUID
	LastSeenAt     *time.Time
	Attributes     map[string]any
}

// NewPerson creates a person from connector input.
// With no candidate key at all, a name is required.
func NewPerson(tenantID uuid.UUID, in PersonInput) (*Person, error) {
	keys := in.Keys.Normalize()
	name := strings.TrimSpace(in.Name)
	if keys.IsEmpty() && name == "" {
		return nil, ErrInsufficientKeyMaterial
	}
	p := &Person{
		TenantEntity: shared.NewTenantEntity(tenantID),
		Attributes:   make(map[string]any),
	}
	p.Apply(in)
	return p, nil
}

// Keys returns the person's candidate keys
func (p *Person) Keys() CandidateKeys {
	return CandidateKeys{SourceID: p.SourceID, ExternalID: p.ExternalID, Email: p.Email}
}

// Apply overwrites fields with the non-empty values of the input
func (p *Person) Apply(in PersonInput) {
	keys := in.Keys.Normalize()
	if keys.SourceID != "" {
		p.SourceID = keys.SourceID
	}
	if keys.ExternalID != "" {
		p.ExternalID = keys.ExternalID
	}
	if keys.Email != "" {
		p.Email = keys.Email
	}
	if name := strings.TrimSpace(in.Name); name != "" {
		p.Name = name
	}
	if phone := strings.TrimSpace(in.Phone); phone != "" {
		p.Phone = phone
	}
	if in.OrganizationID != nil {
		id := *in.OrganizationID
		p.OrganizationID = &id
	}
	if in.LastSeenAt != nil {
		t := *in.LastSeenAt
		p.LastSeenAt = &t
	}
	if len(in.Attributes) > 0 {
		p.SetAttributes(in.Attributes)
	}
	p.Touch()
}

// SetAttributes writes values over existing keys (last write wins)
func (p *Person) SetAttributes(values map[string]any) {
	if p.Attributes == nil {
		p.Attributes = make(map[string]any, len(values))
	}
	for k, v := range values {
		p.Attributes[k] = v
	}
}

// AbsorbFrom copies discard's values onto p wherever p has nothing
func (p *Person) AbsorbFrom(discard *Person) {
	if p.Email == "" {
		p.Email = discard.Email
	}
	if p.Name == "" {
		p.Name = discard.Name
	}
	if p.Phone == "" {
		p.Phone = discard.Phone
	}
	if p.SourceID == "" {
		p.SourceID = discard.SourceID
	}
	if p.ExternalID == "" {
		p.ExternalID = discard.ExternalID
	}
	if p.OrganizationID == nil && discard.OrganizationID != nil {
		id := *discard.OrganizationID
		p.OrganizationID = &id
	}
	if p.LastSeenAt == nil && discard.LastSeenAt != nil {
		t := *discard.LastSeenAt
		p.LastSeenAt = &t
	}
	if p.Attributes == nil {
		p.Attributes = make(map[string]any, len(discard.Attributes))
	}
	for k, v := range discard.Attributes {
		if _, ok := p.Attributes[k]; !ok {
			p.Attributes[k] = v
		}
	}
	p.Touch()
}
