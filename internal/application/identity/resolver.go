package identity

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/feedsync/backend/internal/domain/customer"
	"github.com/feedsync/backend/internal/domain/shared"
)

// Resolver reconciles incoming person and organization records with the
// ones already stored for a tenant
type Resolver struct {
	people   customer.PersonRepository
	orgs     customer.OrganizationRepository
	matchers []Matcher
	logger   *zap.Logger
}

// NewResolver creates a Resolver using DefaultMatchers
func NewResolver(people customer.PersonRepository, orgs customer.OrganizationRepository, logger *zap.Logger) *Resolver {
	return &Resolver{
		people:   people,
		orgs:     orgs,
		matchers: DefaultMatchers(people),
		logger:   logger,
	}
}

// Resolve runs the matchers in order; the first hit wins
func (r *Resolver) Resolve(ctx context.Context, tenantID uuid.UUID, keys customer.CandidateKeys) (*customer.Person, error) {
	keys = keys.Normalize()
	for _, m := range r.matchers {
		p, err := m.Match(ctx, tenantID, keys)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("match by %s: %w", m.Name(), err)
		}
	}
	return nil, shared.ErrNotFound
}

// UpsertPerson updates the person the input resolves to, or creates one.
// A unique-key conflict on that write triggers one independent write keyed
// by source id (or external id); a conflict there is returned as
// customer.ErrIdentityConflict.
func (r *Resolver) UpsertPerson(ctx context.Context, tenantID uuid.UUID, in customer.PersonInput) (*customer.Person, bool, error) {
	in.Keys = in.Keys.Normalize()

	existing, err := r.Resolve(ctx, tenantID, in.Keys)
	switch {
	case err == nil:
		existing.Apply(in)
		if err := r.people.Update(ctx, existing); err != nil {
			if errors.Is(err, customer.ErrIdentityConflict) {
				return r.fallbackUpsert(ctx, tenantID, in, err)
			}
			return nil, false, err
		}
		return existing, false, nil
	case !errors.Is(err, shared.ErrNotFound):
		return nil, false, err
	}

	p, err := customer.NewPerson(tenantID, in)
	if err != nil {
		return nil, false, err
	}
	if err := r.people.Create(ctx, p); err != nil {
		if errors.Is(err, customer.ErrIdentityConflict) {
			return r.fallbackUpsert(ctx, tenantID, in, err)
		}
		return nil, false, err
	}
	return p, true, nil
}

// fallbackUpsert writes by source id, else external id, leaving the email
// with whoever owns it. With neither key it retries the email lookup once,
// which settles a concurrent create of the same address.
func (r *Resolver) fallbackUpsert(ctx context.Context, tenantID uuid.UUID, in customer.PersonInput, cause error) (*customer.Person, bool, error) {
	r.logger.Warn("Identity conflict, retrying by stable id",
		zap.String("tenant_id", tenantID.String()),
		zap.String("source_id", in.Keys.SourceID),
		zap.String("external_id", in.Keys.ExternalID),
		zap.Error(cause))

	var (
		p   *customer.Person
		err error
	)
	switch {
	case in.Keys.SourceID != "":
		p, err = r.people.FindBySourceID(ctx, tenantID, in.Keys.SourceID)
		in.Keys.Email = ""
	case in.Keys.ExternalID != "":
		p, err = r.people.FindByExternalID(ctx, tenantID, in.Keys.ExternalID)
		in.Keys.Email = ""
	case in.Keys.Email != "":
		p, err = r.people.FindByEmail(ctx, tenantID, in.Keys.Email)
		if errors.Is(err, shared.ErrNotFound) {
			return nil, false, fmt.Errorf("upsert person %s: %w", in.Keys.Email, cause)
		}
	default:
		return nil, false, cause
	}

	created := false
	switch {
	case err == nil:
		p.Apply(in)
		err = r.people.Update(ctx, p)
	case errors.Is(err, shared.ErrNotFound):
		p, err = customer.NewPerson(tenantID, in)
		if err != nil {
			return nil, false, err
		}
		created = true
		err = r.people.Create(ctx, p)
	}
	if err != nil {
		if errors.Is(err, customer.ErrIdentityConflict) {
			return nil, false, fmt.Errorf("fallback upsert of source_id=%q external_id=%q: %w",
				in.Keys.SourceID, in.Keys.ExternalID, err)
		}
		return nil, false, err
	}
	return p, created, nil
}

// UpsertOrganization matches by source id, external id, then name
// (case-insensitive), updating the hit or creating a new organization
func (r *Resolver) UpsertOrganization(ctx context.Context, tenantID uuid.UUID, in customer.OrganizationInput) (*customer.Organization, bool, error) {
	existing, err := r.resolveOrganization(ctx, tenantID, in)
	switch {
	case err == nil:
		existing.Apply(in)
		if err := r.orgs.Update(ctx, existing); err != nil {
			return nil, false, err
		}
		return existing, false, nil
	case !errors.Is(err, shared.ErrNotFound):
		return nil, false, err
	}

	org, err := customer.NewOrganization(tenantID, in)
	if err != nil {
		return nil, false, err
	}
	if err := r.orgs.Create(ctx, org); err != nil {
		if !errors.Is(err, customer.ErrIdentityConflict) {
			return nil, false, err
		}
		// lost a create race; the winner is now visible
		winner, findErr := r.resolveOrganization(ctx, tenantID, in)
		if findErr != nil {
			return nil, false, err
		}
		winner.Apply(in)
		if err := r.orgs.Update(ctx, winner); err != nil {
			return nil, false, err
		}
		return winner, false, nil
	}
	return org, true, nil
}

// FindOrganization looks an organization up by source id, external id, then
// name without creating one
func (r *Resolver) FindOrganization(ctx context.Context, tenantID uuid.UUID, in customer.OrganizationInput) (*customer.Organization, error) {
	return r.resolveOrganization(ctx, tenantID, in)
}

func (r *Resolver) resolveOrganization(ctx context.Context, tenantID uuid.UUID, in customer.OrganizationInput) (*customer.Organization, error) {
	lookups := []struct {
		key  string
		find func(context.Context, uuid.UUID, string) (*customer.Organization, error)
	}{
		{in.SourceID, r.orgs.FindBySourceID},
		{in.ExternalID, r.orgs.FindByExternalID},
		{customer.NormalizeOrganizationName(in.Name), r.orgs.FindByNormalizedName},
	}
	for _, l := range lookups {
		if l.key == "" {
			continue
		}
		org, err := l.find(ctx, tenantID, l.key)
		if err == nil {
			return org, nil
		}
		if !errors.Is(err, shared.ErrNotFound) {
			return nil, err
		}
	}
	return nil, shared.ErrNotFound
}

// GuessOrganization finds the organization whose members share the email's
// domain. Free-mail domains never match. More than one candidate returns a
// *customer.AmbiguousMatchError for a human to settle.
func (r *Resolver) GuessOrganization(ctx context.Context, tenantID uuid.UUID, email string) (*customer.Organization, error) {
	domain := customer.EmailDomain(email)
	if domain == "" || customer.IsFreeMailDomain(domain) {
		return nil, shared.ErrNotFound
	}

	members, err := r.people.FindByEmailDomain(ctx, tenantID, domain)
	if err != nil {
		return nil, err
	}
	seen := make(map[uuid.UUID]struct{})
	var candidates []uuid.UUID
	for _, p := range members {
		if p.OrganizationID == nil {
			continue
		}
		if _, ok := seen[*p.OrganizationID]; ok {
			continue
		}
		seen[*p.OrganizationID] = struct{}{}
		candidates = append(candidates, *p.OrganizationID)
	}

	switch len(candidates) {
	case 0:
		return nil, shared.ErrNotFound
	case 1:
		return r.orgs.FindByID(ctx, tenantID, candidates[0])
	default:
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].String() < candidates[j].String() })
		return nil, &customer.AmbiguousMatchError{
			Reason:     "email domain " + domain,
			Candidates: candidates,
		}
	}
}

// MergeResult is the outcome of Merge
type MergeResult struct {
	Person              *customer.Person
	OrganizationDeleted bool
}

// Merge folds discard into keep. Calling it with the same id twice or a nil
// tenant is a programming error and panics.
func (r *Resolver) Merge(ctx context.Context, tenantID, keepID, discardID uuid.UUID) (*MergeResult, error) {
	if tenantID == uuid.Nil {
		panic("identity: merge without tenant")
	}
	if keepID == discardID {
		panic("identity: merge of a person into itself")
	}

	keep, err := r.people.FindByID(ctx, tenantID, keepID)
	if err != nil {
		return nil, fmt.Errorf("load person to keep: %w", err)
	}
	discard, err := r.people.FindByID(ctx, tenantID, discardID)
	if err != nil {
		return nil, fmt.Errorf("load person to discard: %w", err)
	}
	if keep.TenantID != discard.TenantID {
		panic("identity: merge across tenants")
	}

	keep.AbsorbFrom(discard)
	orgDeleted, err := r.people.ApplyMerge(ctx, keep, discard)
	if err != nil {
		return nil, err
	}

	r.logger.Info("Merged people",
		zap.String("tenant_id", tenantID.String()),
		zap.String("keep_id", keepID.String()),
		zap.String("discard_id", discardID.String()),
		zap.Bool("organization_deleted", orgDeleted))

	return &MergeResult{Person: keep, OrganizationDeleted: orgDeleted}, nil
}
