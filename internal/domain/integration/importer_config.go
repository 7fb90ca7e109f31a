package integration

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/feedsync/backend/internal/domain/shared"
)

// Setting keys understood by the connectors
const (
	SettingFeedbackTag      = "feedback_tag"
	SettingNotePrefix       = "note_prefix"
	SettingSignatureVersion = "signature_version"
	SettingMailboxID        = "mailbox_id"
)

const (
	// DefaultFeedbackTag is the tag that marks a conversation part as feedback
	DefaultFeedbackTag = "feedback"
	// DefaultNotePrefix is the note prefix that marks a note as feedback
	DefaultNotePrefix = "#feedback"
	// DefaultSyncIntervalMinutes is how often an enabled config is pulled
	DefaultSyncIntervalMinutes = 60
)

// ---------------------------------------------------------------------------
// SyncStatus
// ---------------------------------------------------------------------------

// SyncStatus is the outcome of the last bulk run of a config
type SyncStatus string

const (
	SyncStatusNever      SyncStatus = "NEVER"
	SyncStatusSucceeded  SyncStatus = "SUCCEEDED"
	SyncStatusFailed     SyncStatus = "FAILED"
	SyncStatusAuthFailed SyncStatus = "AUTH_FAILED"
)

// String returns the string representation of SyncStatus
func (s SyncStatus) String() string {
	return string(s)
}

// ---------------------------------------------------------------------------
// Credentials
// ---------------------------------------------------------------------------

// Credentials authorize calls to the source API
type Credentials struct {
	AccessToken  string     `json:"access_token,omitempty"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	APIKey       string     `json:"api_key,omitempty"`
}

// IsExpired reports whether the access token is past its expiry
func (c Credentials) IsExpired(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}

// Token returns the bearer token to send, preferring the OAuth access token
func (c Credentials) Token() string {
	if c.AccessToken != "" {
		return c.AccessToken
	}
	return c.APIKey
}

// ---------------------------------------------------------------------------
// ImporterConfig
// ---------------------------------------------------------------------------

// ImporterConfig pairs a tenant with a connected source
type ImporterConfig struct {
	shared.TenantEntity
	Connector           ConnectorName
	Credentials         Credentials
	WebhookSecret       string
	WorkspaceID         string
	LastSyncedAt        *time.Time
	Settings            map[string]string
	Enabled             bool
	SyncIntervalMinutes int
	LastSyncStatus      SyncStatus
	LastSyncError       string
}

// NewImporterConfig creates an enabled config with a fresh webhook secret
func NewImporterConfig(tenantID uuid.UUID, connector ConnectorName) (*ImporterConfig, error) {
	if tenantID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_TENANT", "Tenant ID cannot be empty")
	}
	if !connector.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrConnectorNotFound, connector)
	}
	secret, err := GenerateWebhookSecret()
	if err != nil {
		return nil, err
	}
	return &ImporterConfig{
		TenantEntity:        shared.NewTenantEntity(tenantID),
		Connector:           connector,
		WebhookSecret:       secret,
		Settings:            make(map[string]string),
		Enabled:             true,
		SyncIntervalMinutes: DefaultSyncIntervalMinutes,
		LastSyncStatus:      SyncStatusNever,
	}, nil
}

// GenerateWebhookSecret returns 32 random bytes hex encoded
func GenerateWebhookSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate webhook secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Setting returns a setting or the fallback when unset
func (c *ImporterConfig) Setting(key, fallback string) string {
	if v, ok := c.Settings[key]; ok && strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}

// FeedbackTag is the tag name that designates feedback
func (c *ImporterConfig) FeedbackTag() string {
	return c.Setting(SettingFeedbackTag, DefaultFeedbackTag)
}

// NotePrefix is the prefix that designates a feedback note
func (c *ImporterConfig) NotePrefix() string {
	return c.Setting(SettingNotePrefix, DefaultNotePrefix)
}

// SyncInterval is the time between scheduled runs
func (c *ImporterConfig) SyncInterval() time.Duration {
	if c.SyncIntervalMinutes <= 0 {
		return DefaultSyncIntervalMinutes * time.Minute
	}
	return time.Duration(c.SyncIntervalMinutes) * time.Minute
}

// Watermark returns the time records must be newer than, or nil for everything
func (c *ImporterConfig) Watermark(fullResync bool) *time.Time {
	if fullResync || c.LastSyncedAt == nil {
		return nil
	}
	t := *c.LastSyncedAt
	return &t
}

// MarkSynced advances the watermark to the run's start time
func (c *ImporterConfig) MarkSynced(runStart time.Time) {
	t := runStart
	c.LastSyncedAt = &t
	c.LastSyncStatus = SyncStatusSucceeded
	c.LastSyncError = ""
	c.Touch()
}

// MarkSyncFailed records a failed run; the watermark is left alone
func (c *ImporterConfig) MarkSyncFailed(err error) {
	c.LastSyncStatus = SyncStatusFailed
	c.LastSyncError = errorText(err)
	c.Touch()
}

// MarkAuthFailed records that the tenant has to re-authenticate
func (c *ImporterConfig) MarkAuthFailed(err error) {
	c.LastSyncStatus = SyncStatusAuthFailed
	c.LastSyncError = errorText(err)
	c.Touch()
}

// UpdateCredentials replaces the stored credentials
func (c *ImporterConfig) UpdateCredentials(creds Credentials) {
	c.Credentials = creds
	if c.LastSyncStatus == SyncStatusAuthFailed {
		c.LastSyncStatus = SyncStatusNever
		c.LastSyncError = ""
	}
	c.Touch()
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) > 1024 {
		msg = msg[:1024]
	}
	return msg
}

// ---------------------------------------------------------------------------
// Repository
// ---------------------------------------------------------------------------

// ImporterConfigRepository persists importer configs
type ImporterConfigRepository interface {
	TokenStore

	// FindByID finds a config within a tenant
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*ImporterConfig, error)

	// FindByTenantAndConnector finds the config of a tenant for a connector
	FindByTenantAndConnector(ctx context.Context, tenantID uuid.UUID, connector ConnectorName) (*ImporterConfig, error)

	// FindByWebhookSecret finds the config owning a webhook secret
	FindByWebhookSecret(ctx context.Context, connector ConnectorName, secret string) (*ImporterConfig, error)

	// FindByWorkspaceID finds every config connected to a source workspace
	FindByWorkspaceID(ctx context.Context, connector ConnectorName, workspaceID string) ([]ImporterConfig, error)

	// FindForTenant lists a tenant's configs
	FindForTenant(ctx context.Context, tenantID uuid.UUID) ([]ImporterConfig, error)

	// FindEnabled lists enabled configs, optionally narrowed to tenants and connectors
	FindEnabled(ctx context.Context, tenantIDs []uuid.UUID, connectors []ConnectorName) ([]ImporterConfig, error)

	// Create inserts a config; a second config for the same tenant and
	// connector is shared.ErrAlreadyExists
	Create(ctx context.Context, cfg *ImporterConfig) error

	// Update saves every column of the config
	Update(ctx context.Context, cfg *ImporterConfig) error

	// UpdateSyncState writes only the watermark and status columns
	UpdateSyncState(ctx context.Context, cfg *ImporterConfig) error

	// Delete removes a config
	Delete(ctx context.Context, tenantID, id uuid.UUID) error
}
