package persistence

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedsync/backend/internal/domain/customer"
	"github.com/feedsync/backend/internal/domain/feedback"
	"github.com/feedsync/backend/internal/domain/shared"
)

func newPerson(t *testing.T, tenantID uuid.UUID, in customer.PersonInput) *customer.Person {
	t.Helper()
	p, err := customer.NewPerson(tenantID, in)
	require.NoError(t, err)
	return p
}

func TestGormPersonRepository_FindByEmail_SQL(t *testing.T) {
	db, mock, mockDB := newMockPostgres(t)
	defer mockDB.Close()
	repo := NewGormPersonRepository(db)

	tenantID := uuid.New()
	personID := uuid.New()

	rows := sqlmock.NewRows([]string{"id", "tenant_id", "email", "name", "attributes"}).
		AddRow(personID.String(), tenantID.String(), "a@x.com", "Ada", `{"seats":3}`)

	mock.ExpectQuery(`SELECT \* FROM "people" WHERE email = \$1 AND tenant_id = \$2 ORDER BY .* LIMIT .*`).
		WithArgs("a@x.com", tenantID, 1).
		WillReturnRows(rows)

	p, err := repo.FindByEmail(context.Background(), tenantID, " A@X.com ")
	require.NoError(t, err)
	assert.Equal(t, personID, p.ID)
	assert.Equal(t, int64(3), p.Attributes["seats"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormPersonRepository_RequiresTenant(t *testing.T) {
	db, mock, mockDB := newMockPostgres(t)
	defer mockDB.Close()
	repo := NewGormPersonRepository(db)

	_, err := repo.FindBySourceID(context.Background(), uuid.Nil, "123")
	assert.ErrorIs(t, err, ErrTenantIDRequired)
	assert.NoError(t, mock.ExpectationsWereMet(), "no query may reach the database")
}

func TestGormPersonRepository_CandidateKeys(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormPersonRepository(db)
	ctx := context.Background()
	tenantID := uuid.New()

	t.Run("finds by every key", func(t *testing.T) {
		p := newPerson(t, tenantID, customer.PersonInput{
			Keys: customer.CandidateKeys{SourceID: "src-1", ExternalID: "ext-1", Email: "one@x.com"},
			Name: "One",
		})
		require.NoError(t, repo.Create(ctx, p))

		bySource, err := repo.FindBySourceID(ctx, tenantID, "src-1")
		require.NoError(t, err)
		assert.Equal(t, p.ID, bySource.ID)

		byExternal, err := repo.FindByExternalID(ctx, tenantID, "ext-1")
		require.NoError(t, err)
		assert.Equal(t, p.ID, byExternal.ID)

		byEmail, err := repo.FindByEmail(ctx, tenantID, "ONE@x.com")
		require.NoError(t, err)
		assert.Equal(t, p.ID, byEmail.ID)
	})

	t.Run("absent keys do not collide", func(t *testing.T) {
		a := newPerson(t, tenantID, customer.PersonInput{Name: "Anonymous A"})
		b := newPerson(t, tenantID, customer.PersonInput{Name: "Anonymous B"})
		require.NoError(t, repo.Create(ctx, a))
		require.NoError(t, repo.Create(ctx, b))
	})

	t.Run("taken key is an identity conflict", func(t *testing.T) {
		dup := newPerson(t, tenantID, customer.PersonInput{Keys: customer.CandidateKeys{Email: "one@x.com"}})
		err := repo.Create(ctx, dup)
		assert.ErrorIs(t, err, customer.ErrIdentityConflict)

		other := newPerson(t, tenantID, customer.PersonInput{Keys: customer.CandidateKeys{Email: "two@x.com"}})
		require.NoError(t, repo.Create(ctx, other))
		other.Email = "one@x.com"
		assert.ErrorIs(t, repo.Update(ctx, other), customer.ErrIdentityConflict)
	})

	t.Run("same keys in another tenant are independent", func(t *testing.T) {
		otherTenant := uuid.New()
		p := newPerson(t, otherTenant, customer.PersonInput{Keys: customer.CandidateKeys{SourceID: "src-1", Email: "one@x.com"}})
		require.NoError(t, repo.Create(ctx, p))

		found, err := repo.FindBySourceID(ctx, otherTenant, "src-1")
		require.NoError(t, err)
		assert.Equal(t, p.ID, found.ID)
	})

	t.Run("missing person", func(t *testing.T) {
		_, err := repo.FindBySourceID(ctx, tenantID, "nope")
		assert.ErrorIs(t, err, shared.ErrNotFound)

		ghost := newPerson(t, tenantID, customer.PersonInput{Name: "Ghost"})
		assert.ErrorIs(t, repo.Update(ctx, ghost), shared.ErrNotFound)
	})
}

func TestGormPersonRepository_FindByEmailDomain(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormPersonRepository(db)
	ctx := context.Background()
	tenantID := uuid.New()

	for _, email := range []string{"a@acme.io", "b@acme.io", "c@other.io"} {
		require.NoError(t, repo.Create(ctx, newPerson(t, tenantID, customer.PersonInput{Keys: customer.CandidateKeys{Email: email}})))
	}

	people, err := repo.FindByEmailDomain(ctx, tenantID, "acme.io")
	require.NoError(t, err)
	assert.Len(t, people, 2)

	people, err = repo.FindByEmailDomain(ctx, uuid.New(), "acme.io")
	require.NoError(t, err)
	assert.Empty(t, people)
}

func TestGormPersonRepository_FindByEmailDomain_Wildcards(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormPersonRepository(db)
	ctx := context.Background()
	tenantID := uuid.New()

	for _, email := range []string{"a@abc.com", "b@a_c.com", "c@x%y.com"} {
		require.NoError(t, repo.Create(ctx, newPerson(t, tenantID, customer.PersonInput{Keys: customer.CandidateKeys{Email: email}})))
	}

	people, err := repo.FindByEmailDomain(ctx, tenantID, "a_c.com")
	require.NoError(t, err)
	require.Len(t, people, 1)
	assert.Equal(t, "b@a_c.com", people[0].Email)

	people, err = repo.FindByEmailDomain(ctx, tenantID, "x%y.com")
	require.NoError(t, err)
	require.Len(t, people, 1)
	assert.Equal(t, "c@x%y.com", people[0].Email)

	people, err = repo.FindByEmailDomain(ctx, tenantID, "%.com")
	require.NoError(t, err)
	assert.Empty(t, people)
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `a\_c\%d\\e`, escapeLike(`a_c%d\e`))
}

func TestGormPersonRepository_ApplyMerge(t *testing.T) {
	db := setupTestDB(t)
	people := NewGormPersonRepository(db)
	orgs := NewGormOrganizationRepository(db)
	records := NewGormFeedbackRepository(db)
	ctx := context.Background()
	tenantID := uuid.New()

	org, err := customer.NewOrganization(tenantID, customer.OrganizationInput{Name: "Acme"})
	require.NoError(t, err)
	require.NoError(t, orgs.Create(ctx, org))

	keep := newPerson(t, tenantID, customer.PersonInput{Keys: customer.CandidateKeys{Email: "keep@acme.io"}})
	discard := newPerson(t, tenantID, customer.PersonInput{
		Keys:           customer.CandidateKeys{SourceID: "src-9", Email: "old@acme.io"},
		Name:           "Old",
		OrganizationID: &org.ID,
	})
	require.NoError(t, people.Create(ctx, keep))
	require.NoError(t, people.Create(ctx, discard))

	rec, err := feedback.NewRecord(tenantID, "intercom", "Export to CSV please")
	require.NoError(t, err)
	rec.PersonID = &discard.ID
	_, _, err = records.GetOrCreate(ctx, rec)
	require.NoError(t, err)

	keep.AbsorbFrom(discard)
	orgDeleted, err := people.ApplyMerge(ctx, keep, discard)
	require.NoError(t, err)
	assert.False(t, orgDeleted, "keep took over the organization")

	moved, err := records.FindByID(ctx, tenantID, rec.ID)
	require.NoError(t, err)
	require.NotNil(t, moved.PersonID)
	assert.Equal(t, keep.ID, *moved.PersonID)

	_, err = people.FindByID(ctx, tenantID, discard.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	bySource, err := people.FindBySourceID(ctx, tenantID, "src-9")
	require.NoError(t, err)
	assert.Equal(t, keep.ID, bySource.ID, "discard's source id now resolves to keep")
}

func TestGormPersonRepository_ApplyMerge_DeletesEmptyOrganization(t *testing.T) {
	db := setupTestDB(t)
	people := NewGormPersonRepository(db)
	orgs := NewGormOrganizationRepository(db)
	ctx := context.Background()
	tenantID := uuid.New()

	keepOrg, err := customer.NewOrganization(tenantID, customer.OrganizationInput{Name: "Keep Inc"})
	require.NoError(t, err)
	lonelyOrg, err := customer.NewOrganization(tenantID, customer.OrganizationInput{Name: "Lonely Inc"})
	require.NoError(t, err)
	require.NoError(t, orgs.Create(ctx, keepOrg))
	require.NoError(t, orgs.Create(ctx, lonelyOrg))

	keep := newPerson(t, tenantID, customer.PersonInput{Name: "Keep", OrganizationID: &keepOrg.ID})
	discard := newPerson(t, tenantID, customer.PersonInput{Name: "Discard", OrganizationID: &lonelyOrg.ID})
	require.NoError(t, people.Create(ctx, keep))
	require.NoError(t, people.Create(ctx, discard))

	keep.AbsorbFrom(discard)
	orgDeleted, err := people.ApplyMerge(ctx, keep, discard)
	require.NoError(t, err)
	assert.True(t, orgDeleted)

	_, err = orgs.FindByID(ctx, tenantID, lonelyOrg.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	_, err = orgs.FindByID(ctx, tenantID, keepOrg.ID)
	assert.NoError(t, err)
}
