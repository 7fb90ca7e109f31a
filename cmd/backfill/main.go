// Command backfill re-imports people, organizations and feedback for a
// selection of tenants by running a full resync of their importer configs.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	appintegration "github.com/feedsync/backend/internal/application/integration"
	"github.com/feedsync/backend/internal/bootstrap"
	"github.com/feedsync/backend/internal/domain/integration"
	"github.com/feedsync/backend/internal/infrastructure/config"
	"github.com/feedsync/backend/internal/infrastructure/logger"
)

func main() {
	var (
		configPath string
		tenants    string
		connectors string
	)
	flag.StringVar(&configPath, "config", "", "path to config.toml")
	flag.StringVar(&tenants, "tenants", "", "comma separated tenant slugs, empty for all tenants")
	flag.StringVar(&connectors, "connectors", "", "comma separated connector names, empty for all connectors")
	flag.Parse()

	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	}, "feedsync-backfill")
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, parseRequest(tenants, connectors), log); err != nil {
		log.Error("Backfill failed", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, req appintegration.BackfillRequest, log *zap.Logger) error {
	core, err := bootstrap.Open(ctx, cfg, "backfill", log)
	if err != nil {
		return err
	}
	defer func() {
		if err := core.Close(context.Background()); err != nil {
			log.Warn("Cleanup", zap.Error(err))
		}
	}()

	svc := appintegration.NewBackfillService(core.Repos.Tenants, core.Repos.Configs, core.Executor, log)
	report, err := svc.Run(ctx, req)
	if err != nil {
		return err
	}
	for _, s := range report.Skipped {
		log.Warn("Skipped", zap.String("tenant", s.TenantSlug), zap.String("connector", s.Connector.String()), zap.Error(s.Err))
	}
	return report.Err()
}

func parseRequest(tenants, connectors string) appintegration.BackfillRequest {
	var req appintegration.BackfillRequest
	for _, slug := range splitList(tenants) {
		req.TenantSlugs = append(req.TenantSlugs, strings.ToLower(slug))
	}
	for _, name := range splitList(connectors) {
		req.Connectors = append(req.Connectors, integration.ConnectorName(strings.ToLower(name)))
	}
	return req
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
