package integration

import (
	"time"

	"github.com/google/uuid"

	"github.com/feedsync/backend/internal/domain/integration"
)

// ---------------------------------------------------------------------------
// Importer Config DTOs
// ---------------------------------------------------------------------------

// ImporterConfigResponse is an importer config as shown to operators.
// Credentials never leave the service; only whether they are present.
type ImporterConfigResponse struct {
	ID                  uuid.UUID                 `json:"id"`
	TenantID            uuid.UUID                 `json:"tenant_id"`
	Connector           integration.ConnectorName `json:"connector"`
	DisplayName         string                    `json:"display_name"`
	Enabled             bool                      `json:"enabled"`
	Authorized          bool                      `json:"authorized"`
	WorkspaceID         string                    `json:"workspace_id,omitempty"`
	WebhookURL          string                    `json:"webhook_url,omitempty"`
	Settings            map[string]string         `json:"settings"`
	SyncIntervalMinutes int                       `json:"sync_interval_minutes"`
	LastSyncedAt        *time.Time                `json:"last_synced_at,omitempty"`
	LastSyncStatus      integration.SyncStatus    `json:"last_sync_status"`
	LastSyncError       string                    `json:"last_sync_error,omitempty"`
	CreatedAt           time.Time                 `json:"created_at"`
	UpdatedAt           time.Time                 `json:"updated_at"`
}

// ToImporterConfigResponse converts a config; webhookURL is empty for
// connectors that are not addressed by a per-config URL
func ToImporterConfigResponse(cfg *integration.ImporterConfig, webhookURL string) ImporterConfigResponse {
	settings := make(map[string]string, len(cfg.Settings))
	for k, v := range cfg.Settings {
		settings[k] = v
	}
	return ImporterConfigResponse{
		ID:                  cfg.ID,
		TenantID:            cfg.TenantID,
		Connector:           cfg.Connector,
		DisplayName:         cfg.Connector.DisplayName(),
		Enabled:             cfg.Enabled,
		Authorized:          cfg.Credentials.Token() != "",
		WorkspaceID:         cfg.WorkspaceID,
		WebhookURL:          webhookURL,
		Settings:            settings,
		SyncIntervalMinutes: cfg.SyncIntervalMinutes,
		LastSyncedAt:        cfg.LastSyncedAt,
		LastSyncStatus:      cfg.LastSyncStatus,
		LastSyncError:       cfg.LastSyncError,
		CreatedAt:           cfg.CreatedAt,
		UpdatedAt:           cfg.UpdatedAt,
	}
}
