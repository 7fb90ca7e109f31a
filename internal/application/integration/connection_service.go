package integration

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/feedsync/backend/internal/domain/integration"
	"github.com/feedsync/backend/internal/domain/shared"
	"github.com/feedsync/backend/internal/infrastructure/scheduler"
)

// ConnectInput is what an operator supplies when connecting a source
type ConnectInput struct {
	APIKey              string `json:"api_key" validate:"omitempty,min=8,max=512"`
	AccessToken         string `json:"access_token" validate:"omitempty,min=8,max=2048"`
	WorkspaceID         string `json:"workspace_id" validate:"omitempty,max=128"`
	FeedbackTag         string `json:"feedback_tag" validate:"omitempty,max=100"`
	NotePrefix          string `json:"note_prefix" validate:"omitempty,max=50"`
	MailboxID           string `json:"mailbox_id" validate:"omitempty,numeric"`
	SyncIntervalMinutes int    `json:"sync_interval_minutes" validate:"omitempty,min=5,max=10080"`
}

// JobScheduler queues sync jobs
type JobScheduler interface {
	Schedule(cfg *integration.ImporterConfig, fullResync bool, trigger string) (*scheduler.SyncJob, error)
}

// ConnectionService connects, authorizes and disconnects sources for a tenant
type ConnectionService struct {
	registry      integration.ConnectorRegistry
	configs       integration.ImporterConfigRepository
	jobs          JobScheduler
	validate      *validator.Validate
	publicBaseURL string
	logger        *zap.Logger
}

// NewConnectionService creates a new ConnectionService. jobs may be nil, in
// which case the first sync waits for the scheduler's next tick.
func NewConnectionService(
	registry integration.ConnectorRegistry,
	configs integration.ImporterConfigRepository,
	jobs JobScheduler,
	publicBaseURL string,
	logger *zap.Logger,
) *ConnectionService {
	return &ConnectionService{
		registry:      registry,
		configs:       configs,
		jobs:          jobs,
		validate:      validator.New(validator.WithRequiredStructEnabled()),
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		logger:        logger,
	}
}

// Validate checks input against its constraints
func (s *ConnectionService) Validate(in ConnectInput) error {
	if err := s.validate.Struct(in); err != nil {
		return fmt.Errorf("%w: %w", integration.ErrInvalidSettings, err)
	}
	return nil
}

// Connect creates the tenant's importer config for a connector with a fresh
// webhook secret. OAuth connectors without a token still need CompleteOAuth.
func (s *ConnectionService) Connect(ctx context.Context, tenantID uuid.UUID, name integration.ConnectorName, in ConnectInput) (*integration.ImporterConfig, error) {
	if err := s.Validate(in); err != nil {
		return nil, err
	}
	conn, err := s.registry.Get(name)
	if err != nil {
		return nil, err
	}

	if _, err := s.configs.FindByTenantAndConnector(ctx, tenantID, name); err == nil {
		return nil, shared.ErrAlreadyExists
	} else if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	cfg, err := integration.NewImporterConfig(tenantID, name)
	if err != nil {
		return nil, err
	}
	cfg.Credentials = integration.Credentials{APIKey: in.APIKey, AccessToken: in.AccessToken}
	cfg.WorkspaceID = in.WorkspaceID
	applySettings(cfg, in)

	if cfg.Credentials.Token() != "" && cfg.WorkspaceID == "" {
		if err := s.lookupWorkspace(ctx, conn, cfg); err != nil {
			return nil, err
		}
	}

	if err := s.configs.Create(ctx, cfg); err != nil {
		return nil, err
	}
	s.logger.Info("Connector connected",
		zap.String("tenant_id", tenantID.String()),
		zap.String("connector", name.String()),
		zap.String("config_id", cfg.ID.String()),
	)

	if cfg.Credentials.Token() != "" {
		s.registerWebhooks(ctx, conn, cfg)
		s.scheduleInitialSync(cfg)
	}
	return cfg, nil
}

// CompleteOAuth exchanges an authorization code, stores the tokens on the
// tenant's config (creating it when needed) and starts a full sync
func (s *ConnectionService) CompleteOAuth(ctx context.Context, tenantID uuid.UUID, name integration.ConnectorName, code string) (*integration.ImporterConfig, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("%w: missing authorization code", integration.ErrInvalidSettings)
	}
	conn, err := s.registry.Get(name)
	if err != nil {
		return nil, err
	}
	oauth, ok := conn.(integration.OAuthConnector)
	if !ok {
		return nil, fmt.Errorf("%w: %s does not use OAuth", integration.ErrNotConfigured, name)
	}

	cfg, err := s.configs.FindByTenantAndConnector(ctx, tenantID, name)
	created := false
	if errors.Is(err, shared.ErrNotFound) {
		cfg, err = integration.NewImporterConfig(tenantID, name)
		created = true
	}
	if err != nil {
		return nil, err
	}

	creds, err := oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, err
	}
	cfg.UpdateCredentials(creds)
	if err := s.lookupWorkspace(ctx, conn, cfg); err != nil {
		return nil, err
	}

	if created {
		err = s.configs.Create(ctx, cfg)
	} else {
		err = s.configs.Update(ctx, cfg)
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info("Connector authorized",
		zap.String("tenant_id", tenantID.String()),
		zap.String("connector", name.String()),
		zap.String("workspace_id", cfg.WorkspaceID),
	)

	s.registerWebhooks(ctx, conn, cfg)
	s.scheduleInitialSync(cfg)
	return cfg, nil
}

// Disconnect removes remote webhooks (best effort) and deletes the config
func (s *ConnectionService) Disconnect(ctx context.Context, tenantID uuid.UUID, name integration.ConnectorName) error {
	cfg, err := s.configs.FindByTenantAndConnector(ctx, tenantID, name)
	if err != nil {
		return err
	}
	conn, err := s.registry.Get(name)
	if err != nil {
		return err
	}

	if mgr, ok := conn.(integration.RemoteWebhookManager); ok && cfg.Credentials.Token() != "" {
		if err := mgr.DeleteWebhooks(ctx, cfg); err != nil {
			s.logger.Warn("Failed to delete remote webhooks",
				zap.String("tenant_id", tenantID.String()),
				zap.String("connector", name.String()),
				zap.Error(err),
			)
		}
	}

	if err := s.configs.Delete(ctx, tenantID, cfg.ID); err != nil {
		return err
	}
	s.logger.Info("Connector disconnected",
		zap.String("tenant_id", tenantID.String()),
		zap.String("connector", name.String()),
	)
	return nil
}

// CallbackURL is the public webhook address of a path-secret config
func (s *ConnectionService) CallbackURL(cfg *integration.ImporterConfig) string {
	if s.publicBaseURL == "" {
		return ""
	}
	return s.publicBaseURL + "/webhooks/" + cfg.Connector.String() + "/" + cfg.WebhookSecret
}

func (s *ConnectionService) lookupWorkspace(ctx context.Context, conn integration.Connector, cfg *integration.ImporterConfig) error {
	lookup, ok := conn.(integration.WorkspaceLookup)
	if !ok {
		return nil
	}
	id, err := lookup.LookupWorkspace(ctx, cfg.Credentials)
	if err != nil {
		if errors.Is(err, integration.ErrAuth) {
			return err
		}
		s.logger.Warn("Failed to look up source workspace",
			zap.String("connector", cfg.Connector.String()),
			zap.Error(err),
		)
		return nil
	}
	cfg.WorkspaceID = id
	return nil
}

func (s *ConnectionService) registerWebhooks(ctx context.Context, conn integration.Connector, cfg *integration.ImporterConfig) {
	mgr, ok := conn.(integration.RemoteWebhookManager)
	if !ok {
		return
	}
	callback := s.CallbackURL(cfg)
	if callback == "" {
		s.logger.Warn("webhook.public_base_url is not set, remote webhooks not registered",
			zap.String("connector", cfg.Connector.String()))
		return
	}
	if err := mgr.RegisterWebhooks(ctx, cfg, callback); err != nil {
		s.logger.Error("Failed to register remote webhooks",
			zap.String("tenant_id", cfg.TenantID.String()),
			zap.String("connector", cfg.Connector.String()),
			zap.Error(err),
		)
	}
}

func (s *ConnectionService) scheduleInitialSync(cfg *integration.ImporterConfig) {
	if s.jobs == nil {
		return
	}
	if _, err := s.jobs.Schedule(cfg, true, scheduler.TriggerConnect); err != nil {
		s.logger.Warn("Initial sync not scheduled",
			zap.String("config_id", cfg.ID.String()),
			zap.Error(err),
		)
	}
}

func applySettings(cfg *integration.ImporterConfig, in ConnectInput) {
	if in.FeedbackTag != "" {
		cfg.Settings[integration.SettingFeedbackTag] = strings.TrimSpace(in.FeedbackTag)
	}
	if in.NotePrefix != "" {
		cfg.Settings[integration.SettingNotePrefix] = strings.TrimSpace(in.NotePrefix)
	}
	if in.MailboxID != "" {
		if _, err := strconv.ParseInt(in.MailboxID, 10, 64); err == nil {
			cfg.Settings[integration.SettingMailboxID] = in.MailboxID
		}
	}
	if in.SyncIntervalMinutes > 0 {
		cfg.SyncIntervalMinutes = in.SyncIntervalMinutes
	}
}
