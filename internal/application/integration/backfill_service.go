package integration

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/feedsync/backend/internal/domain/integration"
	"github.com/feedsync/backend/internal/domain/tenant"
)

// ConfigSyncer runs one bulk pull of a config and persists its outcome
type ConfigSyncer interface {
	RunConfig(ctx context.Context, cfg *integration.ImporterConfig, fullResync bool) (*integration.SyncResult, error)
}

// BackfillRequest narrows a backfill. Empty lists mean everything.
type BackfillRequest struct {
	TenantSlugs []string
	Connectors  []integration.ConnectorName
}

// BackfillFailure is one config that did not finish
type BackfillFailure struct {
	TenantSlug string
	Connector  integration.ConnectorName
	Err        error
}

// BackfillReport summarizes a backfill run
type BackfillReport struct {
	Synced  int
	Skipped []BackfillFailure // auth and rate limit failures
	Failed  []BackfillFailure // everything else
	Total   integration.SyncResult
}

// Err returns the unexpected failures joined, or nil
func (r *BackfillReport) Err() error {
	errs := make([]error, 0, len(r.Failed))
	for _, f := range r.Failed {
		errs = append(errs, fmt.Errorf("%s/%s: %w", f.TenantSlug, f.Connector, f.Err))
	}
	return errors.Join(errs...)
}

// BackfillService re-imports everything for a selection of tenants
type BackfillService struct {
	tenants tenant.Repository
	configs integration.ImporterConfigRepository
	syncer  ConfigSyncer
	logger  *zap.Logger
}

// NewBackfillService creates a new BackfillService
func NewBackfillService(tenants tenant.Repository, configs integration.ImporterConfigRepository, syncer ConfigSyncer, logger *zap.Logger) *BackfillService {
	return &BackfillService{
		tenants: tenants,
		configs: configs,
		syncer:  syncer,
		logger:  logger,
	}
}

// Run performs a full resync of every matching enabled config, one after the
// other. A config failing with an auth or rate-limit error is logged and
// skipped; other errors are collected in the report and the run continues.
// The returned error is non-nil only when the selection itself fails.
func (s *BackfillService) Run(ctx context.Context, req BackfillRequest) (*BackfillReport, error) {
	for _, name := range req.Connectors {
		if !name.IsValid() {
			return nil, fmt.Errorf("%w: %s", integration.ErrConnectorNotFound, name)
		}
	}

	tenants, err := s.selectTenants(ctx, req.TenantSlugs)
	if err != nil {
		return nil, err
	}
	if len(tenants) == 0 {
		s.logger.Warn("No tenants matched the backfill selection", zap.Strings("tenants", req.TenantSlugs))
		return &BackfillReport{}, nil
	}

	slugs := make(map[uuid.UUID]string, len(tenants))
	ids := make([]uuid.UUID, 0, len(tenants))
	for _, t := range tenants {
		slugs[t.ID] = t.Slug
		ids = append(ids, t.ID)
	}

	configs, err := s.configs.FindEnabled(ctx, ids, req.Connectors)
	if err != nil {
		return nil, fmt.Errorf("load importer configs: %w", err)
	}

	report := &BackfillReport{}
	for i := range configs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		cfg := &configs[i]
		slug := slugs[cfg.TenantID]
		log := s.logger.With(zap.String("tenant", slug), zap.String("connector", cfg.Connector.String()))

		result, err := s.syncer.RunConfig(ctx, cfg, true)
		switch {
		case err == nil:
			report.Synced++
			report.Total.Add(*result)
		case integration.IsExpected(err):
			log.Warn("Backfill skipped", zap.Error(err))
			report.Skipped = append(report.Skipped, BackfillFailure{TenantSlug: slug, Connector: cfg.Connector, Err: err})
		default:
			log.Error("Backfill failed", zap.Error(err))
			report.Failed = append(report.Failed, BackfillFailure{TenantSlug: slug, Connector: cfg.Connector, Err: err})
		}
	}

	s.logger.Info("Backfill finished",
		zap.Int("configs", len(configs)),
		zap.Int("synced", report.Synced),
		zap.Int("skipped", len(report.Skipped)),
		zap.Int("failed", len(report.Failed)),
		zap.Int("people", report.Total.PeopleUpserted),
		zap.Int("organizations", report.Total.OrganizationsUpserted),
	)
	return report, nil
}

func (s *BackfillService) selectTenants(ctx context.Context, slugs []string) ([]tenant.Tenant, error) {
	cleaned := make([]string, 0, len(slugs))
	for _, slug := range slugs {
		if slug = strings.TrimSpace(slug); slug != "" {
			cleaned = append(cleaned, slug)
		}
	}
	if len(cleaned) == 0 {
		return s.tenants.FindAll(ctx)
	}

	found, err := s.tenants.FindBySlugs(ctx, cleaned)
	if err != nil {
		return nil, err
	}
	if len(found) < len(cleaned) {
		known := make(map[string]struct{}, len(found))
		for _, t := range found {
			known[t.Slug] = struct{}{}
		}
		for _, slug := range cleaned {
			if _, ok := known[strings.ToLower(slug)]; !ok {
				s.logger.Warn("Unknown tenant in backfill selection", zap.String("tenant", slug))
			}
		}
	}
	return found, nil
}
