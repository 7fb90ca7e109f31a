package identity

import (
	"context"

	"github.com/google/uuid"

	"github.com/feedsync/backend/internal/domain/customer"
	"github.com/feedsync/backend/internal/domain/shared"
)

// Matcher finds the person a set of candidate keys refers to.
// A matcher whose key is absent returns shared.ErrNotFound without querying.
type Matcher interface {
	Name() string
	Match(ctx context.Context, tenantID uuid.UUID, keys customer.CandidateKeys) (*customer.Person, error)
}

// SourceIDMatcher matches on the source platform's own id
type SourceIDMatcher struct {
	people customer.PersonRepository
}

// Name implements Matcher
func (m SourceIDMatcher) Name() string { return "source_id" }

// Match implements Matcher
func (m SourceIDMatcher) Match(ctx context.Context, tenantID uuid.UUID, keys customer.CandidateKeys) (*customer.Person, error) {
	if keys.SourceID == "" {
		return nil, shared.ErrNotFound
	}
	return m.people.FindBySourceID(ctx, tenantID, keys.SourceID)
}

// ExternalIDMatcher matches on the tenant's own user id
type ExternalIDMatcher struct {
	people customer.PersonRepository
}

// Name implements Matcher
func (m ExternalIDMatcher) Name() string { return "external_id" }

// Match implements Matcher
func (m ExternalIDMatcher) Match(ctx context.Context, tenantID uuid.UUID, keys customer.CandidateKeys) (*customer.Person, error) {
	if keys.ExternalID == "" {
		return nil, shared.ErrNotFound
	}
	return m.people.FindByExternalID(ctx, tenantID, keys.ExternalID)
}

// EmailMatcher matches on the lower-cased email
type EmailMatcher struct {
	people customer.PersonRepository
}

// Name implements Matcher
func (m EmailMatcher) Name() string { return "email" }

// Match implements Matcher
func (m EmailMatcher) Match(ctx context.Context, tenantID uuid.UUID, keys customer.CandidateKeys) (*customer.Person, error) {
	if keys.Email == "" {
		return nil, shared.ErrNotFound
	}
	return m.people.FindByEmail(ctx, tenantID, keys.Email)
}

// DefaultMatchers is the resolution order: source id, external id, email
func DefaultMatchers(people customer.PersonRepository) []Matcher {
	return []Matcher{
		SourceIDMatcher{people: people},
		ExternalIDMatcher{people: people},
		EmailMatcher{people: people},
	}
}
