package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/feedsync/backend/internal/infrastructure/config"
	"github.com/feedsync/backend/internal/infrastructure/logger"
)

type startKey struct{}

// InstrumentDB registers the otelgorm plugin plus callbacks that tag every
// statement span with tenant and connector and flag slow statements. It does
// nothing when db tracing is disabled.
func InstrumentDB(db *gorm.DB, cfg config.TelemetryConfig, log *zap.Logger) error {
	if !cfg.Enabled || !cfg.DBTraceEnabled {
		return nil
	}

	opts := []otelgorm.Option{otelgorm.WithDBName("postgresql")}
	if !cfg.DBLogFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	slow := cfg.DBSlowQueryThresh
	if slow <= 0 {
		slow = 200 * time.Millisecond
	}
	if err := registerStatementCallbacks(db, slow); err != nil {
		return err
	}

	log.Info("database tracing enabled",
		zap.Bool("full_sql", cfg.DBLogFullSQL),
		zap.Duration("slow_threshold", slow),
	)
	return nil
}

func registerStatementCallbacks(db *gorm.DB, slow time.Duration) error {
	cb := db.Callback()
	after := func(db *gorm.DB) { annotateStatement(db, slow) }

	regs := []struct {
		name string
		fn   func() error
	}{
		{"create", func() error {
			if err := cb.Create().Before("gorm:create").Register("feedsync:start_create", markStart); err != nil {
				return err
			}
			return cb.Create().After("gorm:create").Register("feedsync:annotate_create", after)
		}},
		{"query", func() error {
			if err := cb.Query().Before("gorm:query").Register("feedsync:start_query", markStart); err != nil {
				return err
			}
			return cb.Query().After("gorm:query").Register("feedsync:annotate_query", after)
		}},
		{"update", func() error {
			if err := cb.Update().Before("gorm:update").Register("feedsync:start_update", markStart); err != nil {
				return err
			}
			return cb.Update().After("gorm:update").Register("feedsync:annotate_update", after)
		}},
		{"delete", func() error {
			if err := cb.Delete().Before("gorm:delete").Register("feedsync:start_delete", markStart); err != nil {
				return err
			}
			return cb.Delete().After("gorm:delete").Register("feedsync:annotate_delete", after)
		}},
		{"raw", func() error {
			if err := cb.Raw().Before("gorm:raw").Register("feedsync:start_raw", markStart); err != nil {
				return err
			}
			return cb.Raw().After("gorm:raw").Register("feedsync:annotate_raw", after)
		}},
	}
	for _, r := range regs {
		if err := r.fn(); err != nil {
			return fmt.Errorf("register %s callbacks: %w", r.name, err)
		}
	}
	return nil
}

func markStart(db *gorm.DB) {
	if db.Statement.Context != nil {
		db.Statement.Context = context.WithValue(db.Statement.Context, startKey{}, time.Now())
	}
}

func annotateStatement(db *gorm.DB, slow time.Duration) {
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	attrs := []attribute.KeyValue{attribute.Int64("db.rows_affected", db.Statement.RowsAffected)}
	if db.Statement.Table != "" {
		attrs = append(attrs, attribute.String("db.sql.table", db.Statement.Table))
	}
	if t := logger.GetTenant(ctx); t != "" {
		attrs = append(attrs, AttrTenant.String(t))
	}
	if c := logger.GetConnector(ctx); c != "" {
		attrs = append(attrs, AttrConnector.String(c))
	}
	span.SetAttributes(attrs...)

	if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
		span.RecordError(db.Error)
		span.SetStatus(codes.Error, db.Error.Error())
	}

	if start, ok := ctx.Value(startKey{}).(time.Time); ok {
		if elapsed := time.Since(start); elapsed > slow {
			span.SetAttributes(
				attribute.Bool("db.slow_query", true),
				attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
			)
		}
	}
}
