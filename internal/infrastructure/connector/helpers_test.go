package connector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	appcatalog "github.com/feedsync/backend/internal/application/catalog"
	appfeedback "github.com/feedsync/backend/internal/application/feedback"
	"github.com/feedsync/backend/internal/application/identity"
	"github.com/feedsync/backend/internal/domain/integration"
	"github.com/feedsync/backend/internal/infrastructure/config"
	"github.com/feedsync/backend/internal/infrastructure/persistence"
	"github.com/feedsync/backend/internal/infrastructure/persistence/models"
)

// testEnv wires the connectors to real services over an in-memory database
type testEnv struct {
	db      *gorm.DB
	people  *persistence.GormPersonRepository
	orgs    *persistence.GormOrganizationRepository
	records *persistence.GormFeedbackRepository
	attrs   *persistence.GormAttributeRepository
	configs *persistence.GormImporterConfigRepository
	deps    Deps
	tenant  integration.TenantRef
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), persistence.GormConfig(logger.Default.LogMode(logger.Silent)))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.All()...))

	log := zap.NewNop()
	env := &testEnv{
		db:      db,
		people:  persistence.NewGormPersonRepository(db),
		orgs:    persistence.NewGormOrganizationRepository(db),
		records: persistence.NewGormFeedbackRepository(db),
		attrs:   persistence.NewGormAttributeRepository(db),
		configs: persistence.NewGormImporterConfigRepository(db),
		tenant:  integration.TenantRef{ID: uuid.New(), Slug: "acme"},
	}
	env.deps = Deps{
		Resolver:   identity.NewResolver(env.people, env.orgs, log),
		Normalizer: appcatalog.NewNormalizer(appcatalog.NewService(env.attrs, log), log),
		Feedback:   appfeedback.NewService(env.records, log),
		Tokens:     env.configs,
		Policy:     PagePolicy{MaxAttempts: 3, sleep: noSleep},
		Logger:     log,
	}
	return env
}

// importerConfig stores a config for the env's tenant
func (e *testEnv) importerConfig(t *testing.T, name integration.ConnectorName, creds integration.Credentials) *integration.ImporterConfig {
	t.Helper()
	cfg, err := integration.NewImporterConfig(e.tenant.ID, name)
	require.NoError(t, err)
	cfg.Credentials = creds
	require.NoError(t, e.configs.Create(context.Background(), cfg))
	return cfg
}

func noSleep(context.Context, time.Duration) error { return nil }

// testSyncConfig keeps API clients from ever pausing
func testSyncConfig() config.SyncConfig {
	return config.SyncConfig{
		PageRetryAttempts: 3,
		HTTPTimeout:       5 * time.Second,
		PageSize:          2,
	}
}

// newSourceServer starts a fake source API
func newSourceServer(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
