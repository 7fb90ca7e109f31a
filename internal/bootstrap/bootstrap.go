// Package bootstrap assembles the database, repositories, connectors and
// sync executor shared by the server and the backfill command.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	appcatalog "github.com/feedsync/backend/internal/application/catalog"
	appfeedback "github.com/feedsync/backend/internal/application/feedback"
	"github.com/feedsync/backend/internal/application/identity"
	appintegration "github.com/feedsync/backend/internal/application/integration"
	"github.com/feedsync/backend/internal/domain/integration"
	"github.com/feedsync/backend/internal/infrastructure/config"
	"github.com/feedsync/backend/internal/infrastructure/connector"
	"github.com/feedsync/backend/internal/infrastructure/logger"
	"github.com/feedsync/backend/internal/infrastructure/persistence"
	"github.com/feedsync/backend/internal/infrastructure/scheduler"
	"github.com/feedsync/backend/internal/infrastructure/telemetry"
)

// Repositories groups the gorm repositories
type Repositories struct {
	Tenants       *persistence.GormTenantRepository
	Configs       *persistence.GormImporterConfigRepository
	Attributes    *persistence.GormAttributeRepository
	People        *persistence.GormPersonRepository
	Organizations *persistence.GormOrganizationRepository
	Feedback      *persistence.GormFeedbackRepository
}

// Services groups the application services connectors are built with
type Services struct {
	Catalog    *appcatalog.Service
	Normalizer *appcatalog.Normalizer
	Feedback   *appfeedback.Service
	Resolver   *identity.Resolver
}

// Core is everything a process needs to pull from sources
type Core struct {
	DB       *persistence.Database
	Tracer   *telemetry.TracerProvider
	Repos    Repositories
	Services Services
	Registry *connector.Registry
	Executor *scheduler.BulkSyncExecutor
	logger   *zap.Logger
}

// Open connects to the database, installs tracing and builds the connector
// registry. The caller owns the returned Core and must Close it.
func Open(ctx context.Context, cfg *config.Config, version string, log *zap.Logger) (*Core, error) {
	tp, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, version, log)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	gormLog := logger.NewGormLogger(log, cfg.Log.Level, cfg.Telemetry.DBSlowQueryThresh)
	db, err := persistence.Open(ctx, &cfg.Database, gormLog)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}
	if err := telemetry.InstrumentDB(db.DB, cfg.Telemetry, log); err != nil {
		_ = db.Close()
		_ = tp.Shutdown(ctx)
		return nil, fmt.Errorf("instrument database: %w", err)
	}

	c := &Core{DB: db, Tracer: tp, logger: log}
	c.Repos = Repositories{
		Tenants:       persistence.NewGormTenantRepository(db.DB),
		Configs:       persistence.NewGormImporterConfigRepository(db.DB),
		Attributes:    persistence.NewGormAttributeRepository(db.DB),
		People:        persistence.NewGormPersonRepository(db.DB),
		Organizations: persistence.NewGormOrganizationRepository(db.DB),
		Feedback:      persistence.NewGormFeedbackRepository(db.DB),
	}

	catalogSvc := appcatalog.NewService(c.Repos.Attributes, log)
	c.Services = Services{
		Catalog:    catalogSvc,
		Normalizer: appcatalog.NewNormalizer(catalogSvc, log),
		Feedback:   appfeedback.NewService(c.Repos.Feedback, log),
		Resolver:   identity.NewResolver(c.Repos.People, c.Repos.Organizations, log),
	}

	c.Registry, err = NewRegistry(cfg, connector.Deps{
		Resolver:   c.Services.Resolver,
		Normalizer: c.Services.Normalizer,
		Feedback:   c.Services.Feedback,
		Tokens:     c.Repos.Configs,
		Policy:     connector.NewPagePolicy(cfg.Sync),
		Logger:     log.Named("connector"),
	})
	if err != nil {
		_ = c.Close(ctx)
		return nil, err
	}
	c.Executor = scheduler.NewBulkSyncExecutor(c.Repos.Configs, c.Repos.Tenants, c.Registry, log.Named("sync"))
	return c, nil
}

// NewRegistry builds the intercom, helpscout and segment connectors
func NewRegistry(cfg *config.Config, deps connector.Deps) (*connector.Registry, error) {
	segment, err := connector.NewSegmentConnector(deps)
	if err != nil {
		return nil, err
	}
	return connector.NewRegistry(
		connector.NewIntercomConnector(cfg.Connector("intercom"), cfg.Sync, deps),
		connector.NewHelpScoutConnector(cfg.Connector("helpscout"), cfg.Sync, deps),
		segment,
	), nil
}

// SigningKeys returns the shared webhook secrets of the HMAC connectors
func SigningKeys(cfg *config.Config) map[integration.ConnectorName]appintegration.SigningKey {
	ic := cfg.Connector("intercom")
	return map[integration.ConnectorName]appintegration.SigningKey{
		integration.ConnectorIntercom: {Secret: ic.ClientSecret, Version: ic.SignatureVersion},
	}
}

// Close flushes spans and closes the database
func (c *Core) Close(ctx context.Context) error {
	var errs []error
	if err := c.Tracer.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if st, err := c.DB.Stats(); err == nil {
		c.logger.Info("Database pool at shutdown",
			zap.Int("open", st.OpenConnections),
			zap.Int("in_use", st.InUse),
			zap.Int64("wait_count", st.WaitCount),
			zap.Duration("wait_duration", st.WaitDuration))
	}
	if err := c.DB.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close database: %w", err))
	}
	return errors.Join(errs...)
}
