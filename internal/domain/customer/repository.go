package customer

import (
	"context"

	"github.com/google/uuid"
)

// PersonRepository persists persons. Every lookup is tenant scoped.
// Create and Update return ErrIdentityConflict when a candidate key is taken.
type PersonRepository interface {
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*Person, error)
	FindBySourceID(ctx context.Context, tenantID uuid.UUID, sourceID string) (*Person, error)
	FindByExternalID(ctx context.Context, tenantID uuid.UUID, externalID string) (*Person, error)
	FindByEmail(ctx context.Context, tenantID uuid.UUID, email string) (*Person, error)
	FindByEmailDomain(ctx context.Context, tenantID uuid.UUID, domain string) ([]Person, error)
	CountByOrganization(ctx context.Context, tenantID, organizationID uuid.UUID) (int64, error)
	Create(ctx context.Context, p *Person) error
	Update(ctx context.Context, p *Person) error

	// ApplyMerge persists a merge atomically: feedback owned by discard moves to
	// keep, discard is deleted, keep is saved and discard's organization is
	// deleted when it has no members left. Reports whether it was deleted.
	ApplyMerge(ctx context.Context, keep, discard *Person) (orgDeleted bool, err error)
}

// OrganizationRepository persists organizations. Every lookup is tenant scoped.
type OrganizationRepository interface {
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*Organization, error)
	FindBySourceID(ctx context.Context, tenantID uuid.UUID, sourceID string) (*Organization, error)
	FindByExternalID(ctx context.Context, tenantID uuid.UUID, externalID string) (*Organization, error)
	FindByNormalizedName(ctx context.Context, tenantID uuid.UUID, name string) (*Organization, error)
	Create(ctx context.Context, o *Organization) error
	Update(ctx context.Context, o *Organization) error
}
