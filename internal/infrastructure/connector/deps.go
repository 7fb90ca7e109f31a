package connector

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	appcatalog "github.com/feedsync/backend/internal/application/catalog"
	appfeedback "github.com/feedsync/backend/internal/application/feedback"
	"github.com/feedsync/backend/internal/domain/catalog"
	"github.com/feedsync/backend/internal/domain/customer"
	"github.com/feedsync/backend/internal/domain/feedback"
	"github.com/feedsync/backend/internal/domain/integration"
	"github.com/feedsync/backend/internal/domain/shared"
)

// PersonResolver reconciles people and organizations
type PersonResolver interface {
	Resolve(ctx context.Context, tenantID uuid.UUID, keys customer.CandidateKeys) (*customer.Person, error)
	UpsertPerson(ctx context.Context, tenantID uuid.UUID, in customer.PersonInput) (*customer.Person, bool, error)
	UpsertOrganization(ctx context.Context, tenantID uuid.UUID, in customer.OrganizationInput) (*customer.Organization, bool, error)
	FindOrganization(ctx context.Context, tenantID uuid.UUID, in customer.OrganizationInput) (*customer.Organization, error)
}

// AttributeNormalizer turns raw traits into catalog-typed attributes
type AttributeNormalizer interface {
	Normalize(ctx context.Context, in appcatalog.NormalizeInput) (map[string]any, error)
}

// FeedbackSink records feedback found in webhook events
type FeedbackSink interface {
	Ingest(ctx context.Context, in appfeedback.IngestInput) (*feedback.Record, bool, error)
}

// Deps are the collaborators every connector is built with
type Deps struct {
	Resolver   PersonResolver
	Normalizer AttributeNormalizer
	Feedback   FeedbackSink
	Tokens     integration.TokenStore
	Policy     PagePolicy
	Logger     *zap.Logger
}

// upsertPerson normalizes traits then upserts; input with no usable key is
// skipped and reported as nil
func (d Deps) upsertPerson(ctx context.Context, tenant integration.TenantRef, name integration.ConnectorName, in customer.PersonInput, traits map[string]any, reserved map[string]struct{}) (*customer.Person, bool, error) {
	if len(traits) > 0 {
		attrs, err := d.Normalizer.Normalize(ctx, appcatalog.NormalizeInput{
			TenantID:  tenant.ID,
			Connector: name,
			Kind:      catalog.EntityKindPerson,
			Traits:    traits,
			Reserved:  reserved,
		})
		if err != nil {
			return nil, false, err
		}
		in.Attributes = attrs
	}
	p, created, err := d.Resolver.UpsertPerson(ctx, tenant.ID, in)
	if errors.Is(err, customer.ErrInsufficientKeyMaterial) {
		d.Logger.Info("Skipped person without key material",
			zap.String("tenant", tenant.Slug),
			zap.String("connector", name.String()))
		return nil, false, nil
	}
	return p, created, err
}

// upsertOrganization normalizes traits with the connector's stock mappings
// then upserts
func (d Deps) upsertOrganization(ctx context.Context, tenant integration.TenantRef, name integration.ConnectorName, in customer.OrganizationInput, traits map[string]any, reserved map[string]struct{}, stock catalog.StockMappings) (*customer.Organization, bool, error) {
	if len(traits) > 0 {
		attrs, err := d.Normalizer.Normalize(ctx, appcatalog.NormalizeInput{
			TenantID:  tenant.ID,
			Connector: name,
			Kind:      catalog.EntityKindOrganization,
			Traits:    traits,
			Reserved:  reserved,
			Stock:     stock,
		})
		if err != nil {
			return nil, false, err
		}
		in.Attributes = attrs
	}
	return d.Resolver.UpsertOrganization(ctx, tenant.ID, in)
}

// findOrganizationID returns the id of a stored organization, nil when unknown
func (d Deps) findOrganizationID(ctx context.Context, tenantID uuid.UUID, in customer.OrganizationInput) (*uuid.UUID, error) {
	org, err := d.Resolver.FindOrganization(ctx, tenantID, in)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	id := org.ID
	return &id, nil
}

func (d Deps) recordFeedback(ctx context.Context, tenant integration.TenantRef, name integration.ConnectorName, kind string, in appfeedback.IngestInput) (*integration.WebhookResult, error) {
	in.TenantID = tenant.ID
	in.Connector = name
	rec, created, err := d.Feedback.Ingest(ctx, in)
	if err != nil {
		return nil, err
	}
	id := rec.ID
	return &integration.WebhookResult{
		EventKind:       kind,
		FeedbackID:      &id,
		FeedbackCreated: created,
		PersonID:        in.PersonID,
	}, nil
}

// lineEnding are the elements whose end starts a new line of text
var lineEnding = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Li: true, atom.Tr: true, atom.Blockquote: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
}

// htmlToText flattens the HTML help desks put in message bodies into plain
// text: entities decoded, script and style dropped, at most one blank line
// in a row
func htmlToText(s string) string {
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	skip := 0
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return tidyLines(b.String())
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch a := atom.Lookup(name); {
			case a == atom.Br:
				b.WriteByte('\n')
			case (a == atom.Script || a == atom.Style) && tt == html.StartTagToken:
				skip++
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch a := atom.Lookup(name); {
			case a == atom.Script || a == atom.Style:
				if skip > 0 {
					skip--
				}
			case lineEnding[a]:
				b.WriteByte('\n')
			}
		}
	}
}

func tidyLines(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	blank := 0
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" {
			blank++
			if blank > 1 {
				continue
			}
		} else {
			blank = 0
		}
		out = append(out, l)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// feedbackText strips the note prefix so a tagged note and the note event
// yield identical content
func feedbackText(body, prefix string) string {
	text := htmlToText(body)
	if prefix != "" && strings.HasPrefix(text, prefix) {
		text = strings.TrimPrefix(text, prefix)
	}
	return strings.TrimSpace(text)
}

// hasNotePrefix reports whether a note body starts with the feedback prefix
func hasNotePrefix(body, prefix string) bool {
	return prefix != "" && strings.HasPrefix(htmlToText(body), prefix)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
