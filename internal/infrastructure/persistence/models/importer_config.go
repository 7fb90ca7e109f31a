package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/feedsync/backend/internal/domain/integration"
)

// ImporterConfigModel is the persistence model for the ImporterConfig entity
type ImporterConfigModel struct {
	BaseModel
	TenantID            uuid.UUID                 `gorm:"type:uuid;not null;index;uniqueIndex:idx_importer_configs_tenant_connector,priority:1"`
	Connector           integration.ConnectorName `gorm:"type:varchar(32);not null;uniqueIndex:idx_importer_configs_tenant_connector,priority:2;index:idx_importer_configs_workspace,priority:1"`
	CredentialsJSON     string                    `gorm:"type:jsonb;column:credentials;not null;default:'{}'"`
	WebhookSecret       string                    `gorm:"type:varchar(128);not null;uniqueIndex:idx_importer_configs_webhook_secret"`
	WorkspaceID         string                    `gorm:"type:varchar(255);index:idx_importer_configs_workspace,priority:2"`
	LastSyncedAt        *time.Time
	SettingsJSON        string                 `gorm:"type:jsonb;column:settings;not null;default:'{}'"`
	Enabled             bool                   `gorm:"not null;default:true;index"`
	SyncIntervalMinutes int                    `gorm:"not null;default:60"`
	LastSyncStatus      integration.SyncStatus `gorm:"type:varchar(20);not null;default:'NEVER'"`
	LastSyncError       string                 `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (ImporterConfigModel) TableName() string {
	return "importer_configs"
}

// ToDomain converts the persistence model to a domain ImporterConfig
func (m *ImporterConfigModel) ToDomain() *integration.ImporterConfig {
	cfg := &integration.ImporterConfig{
		TenantEntity:        tenantEntity(&m.BaseModel, m.TenantID),
		Connector:           m.Connector,
		WebhookSecret:       m.WebhookSecret,
		WorkspaceID:         m.WorkspaceID,
		LastSyncedAt:        m.LastSyncedAt,
		Settings:            decodeStrings(m.SettingsJSON),
		Enabled:             m.Enabled,
		SyncIntervalMinutes: m.SyncIntervalMinutes,
		LastSyncStatus:      m.LastSyncStatus,
		LastSyncError:       m.LastSyncError,
	}
	if m.CredentialsJSON != "" {
		var creds integration.Credentials
		if err := json.Unmarshal([]byte(m.CredentialsJSON), &creds); err == nil {
			cfg.Credentials = creds
		}
	}
	return cfg
}

// FromDomain populates the persistence model from a domain ImporterConfig
func (m *ImporterConfigModel) FromDomain(c *integration.ImporterConfig) {
	m.FromDomainBaseEntity(c.BaseEntity)
	m.TenantID = c.TenantID
	m.Connector = c.Connector
	m.CredentialsJSON = EncodeCredentials(c.Credentials)
	m.WebhookSecret = c.WebhookSecret
	m.WorkspaceID = c.WorkspaceID
	m.LastSyncedAt = c.LastSyncedAt
	m.SettingsJSON = encodeStrings(c.Settings)
	m.Enabled = c.Enabled
	m.SyncIntervalMinutes = c.SyncIntervalMinutes
	m.LastSyncStatus = c.LastSyncStatus
	m.LastSyncError = c.LastSyncError
}

// ImporterConfigModelFromDomain creates a persistence model from a domain ImporterConfig
func ImporterConfigModelFromDomain(c *integration.ImporterConfig) *ImporterConfigModel {
	m := &ImporterConfigModel{}
	m.FromDomain(c)
	return m
}

// EncodeCredentials serializes credentials for the credentials column
func EncodeCredentials(creds integration.Credentials) string {
	b, err := json.Marshal(creds)
	if err != nil {
		return "{}"
	}
	return string(b)
}
