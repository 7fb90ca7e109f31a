package identity

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/feedsync/backend/internal/domain/customer"
	"github.com/feedsync/backend/internal/infrastructure/persistence"
	"github.com/feedsync/backend/internal/infrastructure/persistence/models"
)

// MockPersonRepository is a mock implementation of customer.PersonRepository
type MockPersonRepository struct {
	mock.Mock
}

func (m *MockPersonRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*customer.Person, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*customer.Person), args.Error(1)
}

func (m *MockPersonRepository) FindBySourceID(ctx context.Context, tenantID uuid.UUID, sourceID string) (*customer.Person, error) {
	args := m.Called(ctx, tenantID, sourceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*customer.Person), args.Error(1)
}

func (m *MockPersonRepository) FindByExternalID(ctx context.Context, tenantID uuid.UUID, externalID string) (*customer.Person, error) {
	args := m.Called(ctx, tenantID, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*customer.Person), args.Error(1)
}

func (m *MockPersonRepository) FindByEmail(ctx context.Context, tenantID uuid.UUID, email string) (*customer.Person, error) {
	args := m.Called(ctx, tenantID, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*customer.Person), args.Error(1)
}

func (m *MockPersonRepository) FindByEmailDomain(ctx context.Context, tenantID uuid.UUID, domain string) ([]customer.Person, error) {
	args := m.Called(ctx, tenantID, domain)
	return args.Get(0).([]customer.Person), args.Error(1)
}

func (m *MockPersonRepository) CountByOrganization(ctx context.Context, tenantID, organizationID uuid.UUID) (int64, error) {
	args := m.Called(ctx, tenantID, organizationID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockPersonRepository) Create(ctx context.Context, p *customer.Person) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockPersonRepository) Update(ctx context.Context, p *customer.Person) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockPersonRepository) ApplyMerge(ctx context.Context, keep, discard *customer.Person) (bool, error) {
	args := m.Called(ctx, keep, discard)
	return args.Bool(0), args.Error(1)
}

// repos bundles sqlite-backed repositories
type repos struct {
	db       *gorm.DB
	people   *persistence.GormPersonRepository
	orgs     *persistence.GormOrganizationRepository
	feedback *persistence.GormFeedbackRepository
}

func newSQLiteRepos(t *testing.T) repos {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), persistence.GormConfig(logger.Default.LogMode(logger.Silent)))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.All()...))

	return repos{
		db:       db,
		people:   persistence.NewGormPersonRepository(db),
		orgs:     persistence.NewGormOrganizationRepository(db),
		feedback: persistence.NewGormFeedbackRepository(db),
	}
}

func (r repos) resolver() *Resolver {
	return NewResolver(r.people, r.orgs, zap.NewNop())
}

func mustPerson(t *testing.T, r repos, tenantID uuid.UUID, in customer.PersonInput) *customer.Person {
	t.Helper()
	p, err := customer.NewPerson(tenantID, in)
	require.NoError(t, err)
	require.NoError(t, r.people.Create(context.Background(), p))
	return p
}
