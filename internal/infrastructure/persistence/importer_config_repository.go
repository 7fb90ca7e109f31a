package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/feedsync/backend/internal/domain/integration"
	"github.com/feedsync/backend/internal/domain/shared"
	"github.com/feedsync/backend/internal/infrastructure/persistence/models"
)

// GormImporterConfigRepository implements integration.ImporterConfigRepository using GORM
type GormImporterConfigRepository struct {
	db *gorm.DB
}

// NewGormImporterConfigRepository creates a new GormImporterConfigRepository
func NewGormImporterConfigRepository(db *gorm.DB) *GormImporterConfigRepository {
	return &GormImporterConfigRepository{db: db}
}

// FindByID finds a config within a tenant
func (r *GormImporterConfigRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*integration.ImporterConfig, error) {
	var model models.ImporterConfigModel
	if err := r.db.WithContext(ctx).
		Scopes(tenantScope(tenantID)).
		Where("id = ?", id).
		First(&model).Error; err != nil {
		return nil, notFound(err)
	}
	return model.ToDomain(), nil
}

// FindByTenantAndConnector finds the config of a tenant for a connector
func (r *GormImporterConfigRepository) FindByTenantAndConnector(ctx context.Context, tenantID uuid.UUID, connector integration.ConnectorName) (*integration.ImporterConfig, error) {
	var model models.ImporterConfigModel
	if err := r.db.WithContext(ctx).
		Scopes(tenantScope(tenantID)).
		Where("connector = ?", connector).
		First(&model).Error; err != nil {
		return nil, notFound(err)
	}
	return model.ToDomain(), nil
}

// FindByWebhookSecret finds the config owning a webhook secret. The secret is
// globally unique, so this is the one lookup that is not tenant scoped.
func (r *GormImporterConfigRepository) FindByWebhookSecret(ctx context.Context, connector integration.ConnectorName, secret string) (*integration.ImporterConfig, error) {
	if secret == "" {
		return nil, shared.ErrNotFound
	}
	var model models.ImporterConfigModel
	if err := r.db.WithContext(ctx).
		Where("connector = ? AND webhook_secret = ?", connector, secret).
		First(&model).Error; err != nil {
		return nil, notFound(err)
	}
	return model.ToDomain(), nil
}

// FindByWorkspaceID finds every enabled config connected to a source workspace
func (r *GormImporterConfigRepository) FindByWorkspaceID(ctx context.Context, connector integration.ConnectorName, workspaceID string) ([]integration.ImporterConfig, error) {
	if workspaceID == "" {
		return []integration.ImporterConfig{}, nil
	}
	var configModels []models.ImporterConfigModel
	if err := r.db.WithContext(ctx).
		Where("connector = ? AND workspace_id = ? AND enabled = ?", connector, workspaceID, true).
		Order("created_at ASC").
		Find(&configModels).Error; err != nil {
		return nil, err
	}
	return toImporterConfigs(configModels), nil
}

// FindForTenant lists a tenant's configs
func (r *GormImporterConfigRepository) FindForTenant(ctx context.Context, tenantID uuid.UUID) ([]integration.ImporterConfig, error) {
	var configModels []models.ImporterConfigModel
	if err := r.db.WithContext(ctx).
		Scopes(tenantScope(tenantID)).
		Order("connector ASC").
		Find(&configModels).Error; err != nil {
		return nil, err
	}
	return toImporterConfigs(configModels), nil
}

// FindEnabled lists enabled configs, narrowed to the tenants and connectors when given
func (r *GormImporterConfigRepository) FindEnabled(ctx context.Context, tenantIDs []uuid.UUID, connectors []integration.ConnectorName) ([]integration.ImporterConfig, error) {
	query := r.db.WithContext(ctx).Where("enabled = ?", true)
	if len(tenantIDs) > 0 {
		query = query.Where("tenant_id IN ?", tenantIDs)
	}
	if len(connectors) > 0 {
		query = query.Where("connector IN ?", connectors)
	}

	var configModels []models.ImporterConfigModel
	if err := query.Order("tenant_id ASC, connector ASC").Find(&configModels).Error; err != nil {
		return nil, err
	}
	return toImporterConfigs(configModels), nil
}

// Create inserts a config
func (r *GormImporterConfigRepository) Create(ctx context.Context, cfg *integration.ImporterConfig) error {
	return alreadyExists(r.db.WithContext(ctx).Create(models.ImporterConfigModelFromDomain(cfg)).Error)
}

// Update saves every column of a config
func (r *GormImporterConfigRepository) Update(ctx context.Context, cfg *integration.ImporterConfig) error {
	result := r.db.WithContext(ctx).
		Model(&models.ImporterConfigModel{}).
		Scopes(tenantScope(cfg.TenantID)).
		Where("id = ?", cfg.ID).
		Select("*").
		Omit("id", "tenant_id", "created_at").
		Updates(models.ImporterConfigModelFromDomain(cfg))
	if result.Error != nil {
		return alreadyExists(result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// UpdateSyncState writes only the watermark and status columns, so settings
// edited during a run are not overwritten
func (r *GormImporterConfigRepository) UpdateSyncState(ctx context.Context, cfg *integration.ImporterConfig) error {
	result := r.db.WithContext(ctx).
		Model(&models.ImporterConfigModel{}).
		Scopes(tenantScope(cfg.TenantID)).
		Where("id = ?", cfg.ID).
		Updates(map[string]any{
			"last_synced_at":   cfg.LastSyncedAt,
			"last_sync_status": cfg.LastSyncStatus,
			"last_sync_error":  cfg.LastSyncError,
			"updated_at":       time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// SaveCredentials persists refreshed OAuth credentials
func (r *GormImporterConfigRepository) SaveCredentials(ctx context.Context, configID uuid.UUID, creds integration.Credentials) error {
	result := r.db.WithContext(ctx).
		Model(&models.ImporterConfigModel{}).
		Where("id = ?", configID).
		Updates(map[string]any{
			"credentials": models.EncodeCredentials(creds),
			"updated_at":  time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete removes a config
func (r *GormImporterConfigRepository) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Scopes(tenantScope(tenantID)).
		Where("id = ?", id).
		Delete(&models.ImporterConfigModel{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func toImporterConfigs(configModels []models.ImporterConfigModel) []integration.ImporterConfig {
	configs := make([]integration.ImporterConfig, len(configModels))
	for i := range configModels {
		configs[i] = *configModels[i].ToDomain()
	}
	return configs
}

// Ensure GormImporterConfigRepository implements integration.ImporterConfigRepository
var _ integration.ImporterConfigRepository = (*GormImporterConfigRepository)(nil)
