package catalog

import (
	"context"

	"github.com/google/uuid"

	"github.com/feedsync/backend/internal/domain/shared"
)

// AttributeRepository persists attribute definitions
type AttributeRepository interface {
	// FindByID finds a definition within a tenant
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*AttributeDefinition, error)

	// FindByKey finds a definition by its unique key
	FindByKey(ctx context.Context, key AttributeKey) (*AttributeDefinition, error)

	// FindFlagHolder finds the definition currently holding a singleton flag
	FindFlagHolder(ctx context.Context, tenantID uuid.UUID, flag Flag) (*AttributeDefinition, error)

	// FindAllForTenant lists definitions of a tenant
	FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]AttributeDefinition, error)

	// CountForTenant counts definitions of a tenant
	CountForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) (int64, error)

	// Save creates or updates a definition. A concurrent creation of the same
	// key surfaces as shared.ErrAlreadyExists.
	Save(ctx context.Context, def *AttributeDefinition) error

	// SaveExclusive clears flag on every other definition of the tenant and
	// saves def in the same transaction.
	SaveExclusive(ctx context.Context, def *AttributeDefinition, flag Flag) error
}
