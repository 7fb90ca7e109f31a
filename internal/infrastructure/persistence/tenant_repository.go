package persistence

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/feedsync/backend/internal/domain/tenant"
	"github.com/feedsync/backend/internal/infrastructure/persistence/models"
)

// GormTenantRepository implements tenant.Repository using GORM
type GormTenantRepository struct {
	db *gorm.DB
}

// NewGormTenantRepository creates a new GormTenantRepository
func NewGormTenantRepository(db *gorm.DB) *GormTenantRepository {
	return &GormTenantRepository{db: db}
}

// FindByID finds a tenant by its ID
func (r *GormTenantRepository) FindByID(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error) {
	var model models.TenantModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return model.ToDomain(), nil
}

// FindBySlug finds a tenant by its slug
func (r *GormTenantRepository) FindBySlug(ctx context.Context, slug string) (*tenant.Tenant, error) {
	var model models.TenantModel
	if err := r.db.WithContext(ctx).
		Where("slug = ?", strings.ToLower(strings.TrimSpace(slug))).
		First(&model).Error; err != nil {
		return nil, notFound(err)
	}
	return model.ToDomain(), nil
}

// FindBySlugs finds the tenants with any of the slugs; unknown slugs are skipped
func (r *GormTenantRepository) FindBySlugs(ctx context.Context, slugs []string) ([]tenant.Tenant, error) {
	normalized := make([]string, 0, len(slugs))
	for _, s := range slugs {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			normalized = append(normalized, s)
		}
	}
	if len(normalized) == 0 {
		return []tenant.Tenant{}, nil
	}

	var tenantModels []models.TenantModel
	if err := r.db.WithContext(ctx).
		Where("slug IN ?", normalized).
		Order("slug ASC").
		Find(&tenantModels).Error; err != nil {
		return nil, err
	}
	return toTenants(tenantModels), nil
}

// FindAll lists every tenant
func (r *GormTenantRepository) FindAll(ctx context.Context) ([]tenant.Tenant, error) {
	var tenantModels []models.TenantModel
	if err := r.db.WithContext(ctx).Order("slug ASC").Find(&tenantModels).Error; err != nil {
		return nil, err
	}
	return toTenants(tenantModels), nil
}

// Save creates or updates a tenant
func (r *GormTenantRepository) Save(ctx context.Context, t *tenant.Tenant) error {
	return alreadyExists(r.db.WithContext(ctx).Save(models.TenantModelFromDomain(t)).Error)
}

func toTenants(tenantModels []models.TenantModel) []tenant.Tenant {
	tenants := make([]tenant.Tenant, len(tenantModels))
	for i := range tenantModels {
		tenants[i] = *tenantModels[i].ToDomain()
	}
	return tenants
}

// Ensure GormTenantRepository implements tenant.Repository
var _ tenant.Repository = (*GormTenantRepository)(nil)
