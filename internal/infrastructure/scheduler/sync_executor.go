package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/feedsync/backend/internal/domain/integration"
	"github.com/feedsync/backend/internal/domain/tenant"
	"github.com/feedsync/backend/internal/infrastructure/logger"
	"github.com/feedsync/backend/internal/infrastructure/telemetry"
)

// BulkSyncExecutor runs the bulk pull of one importer config and owns the
// watermark: connectors never advance LastSyncedAt themselves.
type BulkSyncExecutor struct {
	configs  integration.ImporterConfigRepository
	tenants  tenant.Repository
	registry integration.ConnectorRegistry
	logger   *zap.Logger
	now      func() time.Time
}

// NewBulkSyncExecutor creates a new executor
func NewBulkSyncExecutor(
	configs integration.ImporterConfigRepository,
	tenants tenant.Repository,
	registry integration.ConnectorRegistry,
	logger *zap.Logger,
) *BulkSyncExecutor {
	return &BulkSyncExecutor{
		configs:  configs,
		tenants:  tenants,
		registry: registry,
		logger:   logger,
		now:      time.Now,
	}
}

// Execute implements SyncExecutor
func (e *BulkSyncExecutor) Execute(ctx context.Context, job SyncJob) (*integration.SyncResult, error) {
	cfg, err := e.configs.FindByID(ctx, job.TenantID, job.ConfigID)
	if err != nil {
		return nil, fmt.Errorf("load importer config: %w", err)
	}
	if !cfg.Enabled {
		return nil, ErrSyncConfigDisabled
	}

	ctx = logger.WithContext(ctx, e.logger)
	ctx = logger.WithJobID(ctx, job.ID.String())
	return e.RunConfig(ctx, cfg, job.FullResync)
}

// RunConfig pulls cfg and persists the outcome. On success the watermark
// becomes the time the run started so records changed during the run are
// picked up again next time. An authentication failure marks the config
// AUTH_FAILED and leaves the watermark alone.
func (e *BulkSyncExecutor) RunConfig(ctx context.Context, cfg *integration.ImporterConfig, fullResync bool) (*integration.SyncResult, error) {
	t, err := e.tenants.FindByID(ctx, cfg.TenantID)
	if err != nil {
		return nil, fmt.Errorf("load tenant: %w", err)
	}
	conn, err := e.registry.Get(cfg.Connector)
	if err != nil {
		return nil, err
	}

	if logger.GetJobID(ctx) == "" {
		ctx = logger.WithContext(ctx, e.logger)
	}
	ctx = logger.WithTenant(ctx, t.Slug)
	ctx = logger.WithConnector(ctx, cfg.Connector.String())
	log := logger.FromContext(ctx)

	ctx, span := telemetry.StartSpan(ctx, "sync.execute",
		telemetry.AttrTenant.String(t.Slug),
		telemetry.AttrConnector.String(cfg.Connector.String()),
		telemetry.AttrJobID.String(logger.GetJobID(ctx)),
	)

	runStart := e.now().UTC()
	log.Info("Bulk sync started",
		zap.Bool("full_resync", fullResync || cfg.LastSyncedAt == nil),
		zap.Timep("watermark", cfg.Watermark(fullResync)),
	)

	result, runErr := conn.BulkSync(ctx, integration.TenantRef{ID: t.ID, Slug: t.Slug}, cfg, fullResync)
	telemetry.End(span, runErr)

	switch {
	case runErr == nil:
		cfg.MarkSynced(runStart)
	case errors.Is(runErr, integration.ErrAuth):
		cfg.MarkAuthFailed(runErr)
	default:
		cfg.MarkSyncFailed(runErr)
	}

	// The run's own context may be past its deadline; the outcome must still land.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := e.configs.UpdateSyncState(saveCtx, cfg); err != nil {
		log.Error("Failed to persist sync state", zap.Error(err))
		if runErr == nil {
			return nil, fmt.Errorf("persist sync state: %w", err)
		}
	}

	if runErr != nil {
		return nil, runErr
	}
	if result == nil {
		result = &integration.SyncResult{}
	}
	log.Info("Bulk sync finished",
		zap.Int("people", result.PeopleUpserted),
		zap.Int("organizations", result.OrganizationsUpserted),
		zap.Int("feedback", result.FeedbackCreated),
		zap.Int("pages", result.Pages),
		zap.Int("skipped", result.Skipped),
		zap.Duration("elapsed", e.now().UTC().Sub(runStart)),
	)
	return result, nil
}
