// Command server runs the feedsync webhook gateway, the admin API and the
// background sync scheduler.
package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/feedsync/backend/internal/application/identity"
	appintegration "github.com/feedsync/backend/internal/application/integration"
	"github.com/feedsync/backend/internal/bootstrap"
	"github.com/feedsync/backend/internal/domain/integration"
	"github.com/feedsync/backend/internal/infrastructure/auth"
	"github.com/feedsync/backend/internal/infrastructure/cache"
	"github.com/feedsync/backend/internal/infrastructure/config"
	"github.com/feedsync/backend/internal/infrastructure/logger"
	"github.com/feedsync/backend/internal/infrastructure/scheduler"
	"github.com/feedsync/backend/internal/infrastructure/storage"
	"github.com/feedsync/backend/internal/interfaces/http/handler"
	"github.com/feedsync/backend/internal/interfaces/http/middleware"
	"github.com/feedsync/backend/internal/interfaces/http/router"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	}, cfg.App.Name)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting server",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	core, err := bootstrap.Open(ctx, cfg, version, log)
	if err != nil {
		log.Fatal("Failed to initialize", zap.Error(err))
	}
	defer func() {
		if err := core.Close(context.Background()); err != nil {
			log.Error("Error during cleanup", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	dedupe, err := cache.NewIdempotencyStore(ctx, cfg.Webhook.DedupeBackend, cfg.Redis, log)
	if err != nil {
		log.Fatal("Failed to initialize delivery dedupe", zap.Error(err))
	}
	if closer, ok := dedupe.(io.Closer); ok {
		defer closer.Close()
	}

	archive := newArchive(ctx, cfg, log)

	// Sync scheduler and cron trigger
	var (
		syncScheduler *scheduler.SyncScheduler
		cronTrigger   *scheduler.SyncCronTrigger
	)
	if cfg.Scheduler.Enabled {
		syncScheduler, err = scheduler.NewSyncScheduler(scheduler.SyncSchedulerConfigFrom(cfg.Scheduler), core.Executor, log.Named("scheduler"))
		if err != nil {
			log.Fatal("Failed to create sync scheduler", zap.Error(err))
		}
		cronTrigger = scheduler.NewSyncCronTrigger(cfg.Scheduler.TickInterval, syncScheduler, core.Repos.Configs, log.Named("cron"))
	} else {
		log.Info("Sync scheduler disabled")
	}

	// Application services
	webhookService := appintegration.NewWebhookService(appintegration.WebhookServiceConfig{
		Registry:           core.Registry,
		Configs:            core.Repos.Configs,
		Tenants:            core.Repos.Tenants,
		Dedupe:             dedupe,
		Archive:            archive,
		SigningKeys:        bootstrap.SigningKeys(cfg),
		TimestampTolerance: cfg.Webhook.TimestampTolerance,
		DedupeTTL:          cfg.Webhook.DedupeTTL,
		Logger:             log.Named("webhook"),
	})

	var jobs appintegration.JobScheduler
	if syncScheduler != nil {
		jobs = syncScheduler
	}
	connectionService := appintegration.NewConnectionService(core.Registry, core.Repos.Configs, jobs, cfg.Webhook.PublicBaseURL, log)

	jwtService := auth.NewJWTService(cfg.JWT)
	authService := identity.NewAuthService(cfg.Admin, jwtService, identity.DefaultAuthServiceConfig(), log)

	// Handlers
	checks := map[string]handler.Pinger{"database": handler.PingerFunc(core.DB.Ping)}
	if rs, ok := dedupe.(*cache.RedisIdempotencyStore); ok {
		checks["redis"] = handler.PingerFunc(func() error { return rs.Ping(context.Background()) })
	}

	handlers := router.Handlers{
		System:    handler.NewSystemHandler(version, checks),
		Webhook:   handler.NewWebhookHandler(webhookService),
		Auth:      handler.NewAuthHandler(authService),
		Tenant:    handler.NewTenantHandler(core.Repos.Tenants),
		Attribute: handler.NewAttributeHandler(core.Repos.Tenants, core.Services.Catalog),
		People:    handler.NewPeopleHandler(core.Repos.Tenants, core.Services.Resolver),
	}
	if cronTrigger != nil {
		handlers.Connection = handler.NewConnectionHandler(core.Repos.Tenants, connectionService, core.Repos.Configs, cronTrigger)
		handlers.Sync = handler.NewSyncHandler(core.Repos.Tenants, syncScheduler, cronTrigger)
	} else {
		handlers.Connection = handler.NewConnectionHandler(core.Repos.Tenants, connectionService, core.Repos.Configs, nil)
	}

	loginLimiter := middleware.NewRateLimiter(cfg.HTTP.LoginRateLimit, cfg.HTTP.LoginRateWindow)
	defer loginLimiter.Stop()

	engine, err := router.New(router.Options{
		HTTP:    cfg.HTTP,
		Webhook: cfg.Webhook,
		Tracing: middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     core.Tracer.Enabled(),
			SkipPaths:   []string{"/health", "/ready"},
		},
		Authenticator: authService,
		LoginLimiter:  loginLimiter,
		Logger:        log,
	}, handlers)
	if err != nil {
		log.Fatal("Failed to build router", zap.Error(err))
	}

	if syncScheduler != nil {
		if err := syncScheduler.Start(ctx); err != nil {
			log.Fatal("Failed to start sync scheduler", zap.Error(err))
		}
		if err := cronTrigger.Start(ctx); err != nil {
			log.Fatal("Failed to start sync cron trigger", zap.Error(err))
		}
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if cronTrigger != nil {
		if err := cronTrigger.Stop(shutdownCtx); err != nil {
			log.Warn("Sync cron trigger stop", zap.Error(err))
		}
		if err := syncScheduler.Stop(shutdownCtx); err != nil {
			log.Warn("Sync scheduler stop", zap.Error(err))
		}
	}
	cancel()

	log.Info("Server exited gracefully")
}

// newArchive returns the S3 payload archive, or a discarding one when
// archiving is off or the bucket cannot be reached
func newArchive(ctx context.Context, cfg *config.Config, log *zap.Logger) integration.PayloadArchive {
	if !cfg.Webhook.ArchiveRejected || !cfg.Storage.Enabled {
		return storage.DiscardArchive{}
	}
	archive, err := storage.NewS3PayloadArchive(ctx, cfg.Storage, log)
	if err != nil {
		log.Warn("Payload archive unavailable, rejected payloads will be dropped", zap.Error(err))
		return storage.DiscardArchive{}
	}
	if err := archive.EnsureBucket(ctx); err != nil {
		log.Warn("Payload archive bucket unavailable, rejected payloads will be dropped", zap.Error(err))
		return storage.DiscardArchive{}
	}
	return archive
}
