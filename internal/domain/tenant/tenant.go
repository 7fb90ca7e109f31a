// Package tenant holds the isolation boundary every other record is scoped to.
package tenant

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/feedsync/backend/internal/domain/shared"
)

// Tenant is a customer account of the hosting system
type Tenant struct {
	shared.BaseEntity
	Name string
	Slug string
}

// NewTenant creates a tenant with a normalized slug
func NewTenant(name, slug string) (*Tenant, error) {
	name = strings.TrimSpace(name)
	slug = strings.ToLower(strings.TrimSpace(slug))
	if name == "" || slug == "" {
		return nil, shared.NewDomainError("INVALID_TENANT", "Tenant name and slug are required")
	}
	return &Tenant{
		BaseEntity: shared.NewBaseEntity(),
		Name:       name,
		Slug:       slug,
	}, nil
}

// Repository persists tenants
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Tenant, error)
	FindBySlug(ctx context.Context, slug string) (*Tenant, error)
	FindBySlugs(ctx context.Context, slugs []string) ([]Tenant, error)
	FindAll(ctx context.Context) ([]Tenant, error)
	Save(ctx context.Context, t *Tenant) error
}
