package integration

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	appfeedback "github.com/feedsync/backend/internal/application/feedback"
	"github.com/feedsync/backend/internal/domain/integration"
	"github.com/feedsync/backend/internal/domain/tenant"
	"github.com/feedsync/backend/internal/infrastructure/persistence"
	"github.com/feedsync/backend/internal/infrastructure/persistence/models"
	"github.com/feedsync/backend/internal/infrastructure/scheduler"
)

type testEnv struct {
	db       *gorm.DB
	configs  *persistence.GormImporterConfigRepository
	tenants  *persistence.GormTenantRepository
	records  *persistence.GormFeedbackRepository
	feedback *appfeedback.Service
	acme     *tenant.Tenant
	globex   *tenant.Tenant
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

	env := &testEnv{
		db:      db,
		configs: persistence.NewGormImporterConfigRepository(db),
		tenants: persistence.NewGormTenantRepository(db),
		records: persistence.NewGormFeedbackRepository(db),
	}
	env.feedback = appfeedback.NewService(env.records, zap.NewNop())
	env.acme = env.tenant(t, "Acme", "acme")
	env.globex = env.tenant(t, "Globex", "globex")
	return env
}

func (e *testEnv) tenant(t *testing.T, name, slug string) *tenant.Tenant {
	t.Helper()
	tn, err := tenant.NewTenant(name, slug)
	require.NoError(t, err)
	require.NoError(t, e.tenants.Save(context.Background(), tn))
	return tn
}

func (e *testEnv) importerConfig(t *testing.T, tenantID uuid.UUID, name integration.ConnectorName, mutate func(*integration.ImporterConfig)) *integration.ImporterConfig {
	t.Helper()
	cfg, err := integration.NewImporterConfig(tenantID, name)
	require.NoError(t, err)
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, e.configs.Create(context.Background(), cfg))
	return cfg
}

func (e *testEnv) countFeedback(t *testing.T, tenantID uuid.UUID) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&models.FeedbackRecordModel{}).Where("tenant_id = ?", tenantID).Count(&n).Error)
	return n
}

// stubConnector turns every payload into feedback with the body as content
// unless handle is set
type stubConnector struct {
	name   integration.ConnectorName
	scheme integration.WebhookAuthScheme
	env    *testEnv
	handle func(cfg *integration.ImporterConfig, eventType string, payload []byte) (*integration.WebhookResult, error)

	mu       sync.Mutex
	calls    int
	tenants  []string
	deleted  int
	regURLs  []string
	regErr   error
	delErr   error
	exchange integration.Credentials
	exchErr  error
	ws       string
}

func (c *stubConnector) Name() integration.ConnectorName            { return c.name }
func (c *stubConnector) AuthScheme() integration.WebhookAuthScheme { return c.scheme }

func (c *stubConnector) BulkSync(context.Context, integration.TenantRef, *integration.ImporterConfig, bool) (*integration.SyncResult, error) {
	return &integration.SyncResult{}, nil
}

func (c *stubConnector) HandleWebhook(ctx context.Context, t integration.TenantRef, cfg *integration.ImporterConfig, eventType string, payload []byte) (*integration.WebhookResult, error) {
	c.mu.Lock()
	c.calls++
	c.tenants = append(c.tenants, t.Slug)
	c.mu.Unlock()
	if c.handle != nil {
		return c.handle(cfg, eventType, payload)
	}
	rec, created, err := c.env.feedback.Ingest(ctx, appfeedback.IngestInput{
		TenantID:  t.ID,
		Connector: c.name,
		Content:   string(payload),
	})
	if err != nil {
		return nil, err
	}
	return &integration.WebhookResult{EventKind: "note", FeedbackID: &rec.ID, FeedbackCreated: created}, nil
}

func (c *stubConnector) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// hmacConnector adds workspace attribution
type hmacConnector struct {
	*stubConnector
}

func (c hmacConnector) WorkspaceID(payload []byte) (string, error) {
	s := string(payload)
	if len(s) < 4 || s[:3] != "ws=" {
		return "", integration.ErrMalformedPayload
	}
	end := len(s)
	for i := 3; i < len(s); i++ {
		if s[i] == ';' {
			end = i
			break
		}
	}
	return s[3:end], nil
}

// oauthConnector adds code exchange, workspace lookup and remote webhooks
type oauthConnector struct {
	*stubConnector
}

func (c oauthConnector) ExchangeCode(context.Context, string) (integration.Credentials, error) {
	return c.exchange, c.exchErr
}

func (c oauthConnector) LookupWorkspace(context.Context, integration.Credentials) (string, error) {
	return c.ws, nil
}

func (c oauthConnector) RegisterWebhooks(_ context.Context, _ *integration.ImporterConfig, url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.regURLs = append(c.regURLs, url)
	return c.regErr
}

func (c oauthConnector) DeleteWebhooks(context.Context, *integration.ImporterConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted++
	return c.delErr
}

type stubRegistry map[integration.ConnectorName]integration.Connector

func (r stubRegistry) Get(name integration.ConnectorName) (integration.Connector, error) {
	c, ok := r[name]
	if !ok {
		return nil, integration.ErrConnectorNotFound
	}
	return c, nil
}

func (r stubRegistry) List() []integration.ConnectorName {
	out := make([]integration.ConnectorName, 0, len(r))
	for n := range r {
		out = append(out, n)
	}
	return out
}

type recordingArchive struct {
	mu       sync.Mutex
	payloads []integration.ArchivedPayload
}

func (a *recordingArchive) Archive(_ context.Context, p integration.ArchivedPayload) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.payloads = append(a.payloads, p)
	return "mem://" + string(p.Reason), nil
}

// MockJobScheduler is a mock implementation of JobScheduler
type MockJobScheduler struct {
	mock.Mock
}

func (m *MockJobScheduler) Schedule(cfg *integration.ImporterConfig, fullResync bool, trigger string) (*scheduler.SyncJob, error) {
	args := m.Called(cfg, fullResync, trigger)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*scheduler.SyncJob), args.Error(1)
}

// MockConfigSyncer is a mock implementation of ConfigSyncer
type MockConfigSyncer struct {
	mock.Mock
}

func (m *MockConfigSyncer) RunConfig(ctx context.Context, cfg *integration.ImporterConfig, fullResync bool) (*integration.SyncResult, error) {
	args := m.Called(ctx, cfg, fullResync)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.SyncResult), args.Error(1)
}
