//go:build integration

package integration

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/feedsync/backend/internal/application/identity"
	"github.com/feedsync/backend/internal/domain/customer"
	"github.com/feedsync/backend/internal/infrastructure/persistence"
)

type resolverSetup struct {
	db       *TestDB
	people   *persistence.GormPersonRepository
	resolver *identity.Resolver
}

func newResolverSetup(t *testing.T) *resolverSetup {
	tdb := NewSharedTestDB(t)
	people := persistence.NewGormPersonRepository(tdb.DB)
	return &resolverSetup{
		db:       tdb,
		people:   people,
		resolver: identity.NewResolver(people, persistence.NewGormOrganizationRepository(tdb.DB), zap.NewNop()),
	}
}

func TestResolver_ConcurrentUpsertOfSameEmail(t *testing.T) {
	s := newResolverSetup(t)
	ten := s.db.CreateTenant("race")
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := s.resolver.UpsertPerson(ctx, ten.ID, customer.PersonInput{
				Keys: customer.CandidateKeys{Email: "Race@Example.com"},
				Name: "Racer",
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	var count int64
	require.NoError(t, s.db.DB.Table("people").
		Where("tenant_id = ? AND email = ?", ten.ID, "race@example.com").
		Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestResolver_EmailOwnedByAnotherPerson(t *testing.T) {
	s := newResolverSetup(t)
	ten := s.db.CreateTenant("conflict")
	ctx := context.Background()

	bySource, created, err := s.resolver.UpsertPerson(ctx, ten.ID, customer.PersonInput{
		Keys: customer.CandidateKeys{SourceID: "ic-1"},
		Name: "Ada",
	})
	require.NoError(t, err)
	require.True(t, created)
	byEmail, _, err := s.resolver.UpsertPerson(ctx, ten.ID, customer.PersonInput{
		Keys: customer.CandidateKeys{Email: "ada@example.com"},
	})
	require.NoError(t, err)

	// the partial unique index on email rejects the update; the write is
	// retried keyed by source id and leaves the email alone
	got, created, err := s.resolver.UpsertPerson(ctx, ten.ID, customer.PersonInput{
		Keys: customer.CandidateKeys{SourceID: "ic-1", Email: "ada@example.com"},
		Name: "Ada Lovelace",
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, bySource.ID, got.ID)

	stored, err := s.people.FindByID(ctx, ten.ID, bySource.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", stored.Name)
	owner, err := s.people.FindByEmail(ctx, ten.ID, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, byEmail.ID, owner.ID)
}

func TestResolver_TenantsAreIsolated(t *testing.T) {
	s := newResolverSetup(t)
	a := s.db.CreateTenant("tenant-a")
	b := s.db.CreateTenant("tenant-b")
	ctx := context.Background()
	in := customer.PersonInput{Keys: customer.CandidateKeys{Email: "shared@example.com"}}

	pa, createdA, err := s.resolver.UpsertPerson(ctx, a.ID, in)
	require.NoError(t, err)
	pb, createdB, err := s.resolver.UpsertPerson(ctx, b.ID, in)
	require.NoError(t, err)

	assert.True(t, createdA)
	assert.True(t, createdB)
	assert.NotEqual(t, pa.ID, pb.ID)
	_, err = s.people.FindByID(ctx, a.ID, pb.ID)
	assert.Error(t, err)
}

func TestResolver_Merge(t *testing.T) {
	s := newResolverSetup(t)
	ten := s.db.CreateTenant("merge")
	ctx := context.Background()

	keep, _, err := s.resolver.UpsertPerson(ctx, ten.ID, customer.PersonInput{Keys: customer.CandidateKeys{SourceID: "hs-9"}})
	require.NoError(t, err)
	discard, _, err := s.resolver.UpsertPerson(ctx, ten.ID, customer.PersonInput{Keys: customer.CandidateKeys{Email: "grace@example.com"}, Name: "Grace"})
	require.NoError(t, err)

	res, err := s.resolver.Merge(ctx, ten.ID, keep.ID, discard.ID)
	require.NoError(t, err)
	assert.Equal(t, keep.ID, res.Person.ID)
	assert.Equal(t, "grace@example.com", res.Person.Email)

	_, err = s.people.FindByID(ctx, ten.ID, discard.ID)
	assert.Error(t, err)
	found, err := s.resolver.Resolve(ctx, ten.ID, customer.CandidateKeys{Email: "grace@example.com"})
	require.NoError(t, err)
	assert.Equal(t, keep.ID, found.ID)
}
