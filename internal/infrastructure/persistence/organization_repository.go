package persistence

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/feedsync/backend/internal/domain/customer"
	"github.com/feedsync/backend/internal/domain/shared"
	"github.com/feedsync/backend/internal/infrastructure/persistence/models"
)

// GormOrganizationRepository implements customer.OrganizationRepository using GORM
type GormOrganizationRepository struct {
	db *gorm.DB
}

// NewGormOrganizationRepository creates a new GormOrganizationRepository
func NewGormOrganizationRepository(db *gorm.DB) *GormOrganizationRepository {
	return &GormOrganizationRepository{db: db}
}

// FindByID finds an organization within a tenant
func (r *GormOrganizationRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*customer.Organization, error) {
	return r.findOne(ctx, tenantID, "id = ?", id)
}

// FindBySourceID finds an organization by the connector-assigned id
func (r *GormOrganizationRepository) FindBySourceID(ctx context.Context, tenantID uuid.UUID, sourceID string) (*customer.Organization, error) {
	if sourceID == "" {
		return nil, shared.ErrNotFound
	}
	return r.findOne(ctx, tenantID, "source_id = ?", sourceID)
}

// FindByExternalID finds an organization by the tenant-assigned id
func (r *GormOrganizationRepository) FindByExternalID(ctx context.Context, tenantID uuid.UUID, externalID string) (*customer.Organization, error) {
	if externalID == "" {
		return nil, shared.ErrNotFound
	}
	return r.findOne(ctx, tenantID, "external_id = ?", externalID)
}

// FindByNormalizedName finds the oldest organization with the name, ignoring case
func (r *GormOrganizationRepository) FindByNormalizedName(ctx context.Context, tenantID uuid.UUID, name string) (*customer.Organization, error) {
	name = customer.NormalizeOrganizationName(name)
	if name == "" {
		return nil, shared.ErrNotFound
	}
	return r.findOne(ctx, tenantID, "normalized_name = ?", name)
}

// Create inserts an organization
func (r *GormOrganizationRepository) Create(ctx context.Context, o *customer.Organization) error {
	return identityConflict(r.db.WithContext(ctx).Create(models.OrganizationModelFromDomain(o)).Error)
}

// Update saves every column of an organization
func (r *GormOrganizationRepository) Update(ctx context.Context, o *customer.Organization) error {
	result := r.db.WithContext(ctx).
		Model(&models.OrganizationModel{}).
		Scopes(tenantScope(o.TenantID)).
		Where("id = ?", o.ID).
		Select("*").
		Omit("id", "tenant_id", "created_at").
		Updates(models.OrganizationModelFromDomain(o))
	if result.Error != nil {
		return identityConflict(result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *GormOrganizationRepository) findOne(ctx context.Context, tenantID uuid.UUID, query string, arg any) (*customer.Organization, error) {
	var model models.OrganizationModel
	if err := r.db.WithContext(ctx).
		Scopes(tenantScope(tenantID)).
		Where(query, arg).
		Order("created_at ASC").
		First(&model).Error; err != nil {
		return nil, notFound(err)
	}
	return model.ToDomain(), nil
}

// Ensure GormOrganizationRepository implements customer.OrganizationRepository
var _ customer.OrganizationRepository = (*GormOrganizationRepository)(nil)
