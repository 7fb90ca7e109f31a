package persistence

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/feedsync/backend/internal/domain/catalog"
	"github.com/feedsync/backend/internal/domain/shared"
	"github.com/feedsync/backend/internal/infrastructure/persistence/models"
)

// AttributeSortFields contains allowed sort fields for attribute definitions
var AttributeSortFields = map[string]bool{
	"id":          true,
	"created_at":  true,
	"updated_at":  true,
	"name":        true,
	"connector":   true,
	"entity_kind": true,
	"value_type":  true,
}

// GormAttributeRepository implements catalog.AttributeRepository using GORM
type GormAttributeRepository struct {
	db *gorm.DB
}

// NewGormAttributeRepository creates a new GormAttributeRepository
func NewGormAttributeRepository(db *gorm.DB) *GormAttributeRepository {
	return &GormAttributeRepository{db: db}
}

// FindByID finds a definition within a tenant
func (r *GormAttributeRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*catalog.AttributeDefinition, error) {
	var model models.AttributeDefinitionModel
	if err := r.db.WithContext(ctx).
		Scopes(tenantScope(tenantID)).
		Where("id = ?", id).
		First(&model).Error; err != nil {
		return nil, notFound(err)
	}
	return model.ToDomain(), nil
}

// FindByKey finds a definition by (tenant, connector, kind, name)
func (r *GormAttributeRepository) FindByKey(ctx context.Context, key catalog.AttributeKey) (*catalog.AttributeDefinition, error) {
	var model models.AttributeDefinitionModel
	if err := r.db.WithContext(ctx).
		Scopes(tenantScope(key.TenantID)).
		Where("connector = ? AND entity_kind = ? AND name = ?", key.Connector, key.Kind, key.Name).
		First(&model).Error; err != nil {
		return nil, notFound(err)
	}
	return model.ToDomain(), nil
}

// FindFlagHolder finds the definition holding a singleton flag
func (r *GormAttributeRepository) FindFlagHolder(ctx context.Context, tenantID uuid.UUID, flag catalog.Flag) (*catalog.AttributeDefinition, error) {
	if !flag.IsValid() {
		return nil, fmt.Errorf("unknown attribute flag %q", flag)
	}
	var model models.AttributeDefinitionModel
	if err := r.db.WithContext(ctx).
		Scopes(tenantScope(tenantID)).
		Where(string(flag)+" = ?", true).
		First(&model).Error; err != nil {
		return nil, notFound(err)
	}
	return model.ToDomain(), nil
}

// FindAllForTenant lists a tenant's definitions
func (r *GormAttributeRepository) FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]catalog.AttributeDefinition, error) {
	var defModels []models.AttributeDefinitionModel
	query := r.applyFilter(r.db.WithContext(ctx).Model(&models.AttributeDefinitionModel{}).Scopes(tenantScope(tenantID)), filter)
	if err := query.Find(&defModels).Error; err != nil {
		return nil, err
	}
	defs := make([]catalog.AttributeDefinition, len(defModels))
	for i := range defModels {
		defs[i] = *defModels[i].ToDomain()
	}
	return defs, nil
}

// CountForTenant counts a tenant's definitions
func (r *GormAttributeRepository) CountForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) (int64, error) {
	var count int64
	err := r.applySearch(r.db.WithContext(ctx).Model(&models.AttributeDefinitionModel{}).Scopes(tenantScope(tenantID)), filter).
		Count(&count).Error
	return count, err
}

// Save creates or updates a definition
func (r *GormAttributeRepository) Save(ctx context.Context, def *catalog.AttributeDefinition) error {
	return alreadyExists(r.db.WithContext(ctx).Save(models.AttributeDefinitionModelFromDomain(def)).Error)
}

// SaveExclusive clears the flag on the tenant's other definitions and saves
// def, in one transaction
func (r *GormAttributeRepository) SaveExclusive(ctx context.Context, def *catalog.AttributeDefinition, flag catalog.Flag) error {
	if !flag.IsValid() {
		return fmt.Errorf("unknown attribute flag %q", flag)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.AttributeDefinitionModel{}).
			Scopes(tenantScope(def.TenantID)).
			Where("id <> ? AND "+string(flag)+" = ?", def.ID, true).
			Update(string(flag), false).Error; err != nil {
			return fmt.Errorf("clear %s: %w", flag, err)
		}
		return alreadyExists(tx.Save(models.AttributeDefinitionModelFromDomain(def)).Error)
	})
}

func (r *GormAttributeRepository) applyFilter(query *gorm.DB, filter shared.Filter) *gorm.DB {
	query = r.applySearch(query, filter)

	if filter.Page > 0 && filter.PageSize > 0 {
		query = query.Offset(filter.Offset()).Limit(filter.PageSize)
	}

	return query.Order(orderClause(filter, AttributeSortFields, "name"))
}

func (r *GormAttributeRepository) applySearch(query *gorm.DB, filter shared.Filter) *gorm.DB {
	if filter.Search != "" {
		pattern := "%" + strings.ToLower(filter.Search) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(friendly_name) LIKE ?", pattern, pattern)
	}
	return query
}

// Ensure GormAttributeRepository implements catalog.AttributeRepository
var _ catalog.AttributeRepository = (*GormAttributeRepository)(nil)
