package persistence

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/feedsync/backend/internal/domain/customer"
	"github.com/feedsync/backend/internal/domain/shared"
)

// ErrTenantIDRequired is returned when a tenant-scoped query has no tenant
var ErrTenantIDRequired = errors.New("tenant_id is required")

// tenantScope restricts a query to one tenant. A nil tenant fails the
// statement instead of silently querying every tenant.
func tenantScope(tenantID uuid.UUID) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if tenantID == uuid.Nil {
			_ = db.AddError(ErrTenantIDRequired)
			return db
		}
		return db.Where("tenant_id = ?", tenantID)
	}
}

// notFound maps gorm's missing-row error to the domain's
func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return shared.ErrNotFound
	}
	return err
}

// identityConflict maps a unique violation on a person or organization key
func identityConflict(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %v", customer.ErrIdentityConflict, err)
	}
	return err
}

// alreadyExists maps a unique violation to shared.ErrAlreadyExists
func alreadyExists(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return shared.ErrAlreadyExists
	}
	return err
}
