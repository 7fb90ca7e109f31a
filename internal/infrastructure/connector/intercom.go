package connector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	appfeedback "github.com/feedsync/backend/internal/application/feedback"
	"github.com/feedsync/backend/internal/domain/catalog"
	"github.com/feedsync/backend/internal/domain/customer"
	"github.com/feedsync/backend/internal/domain/integration"
	"github.com/feedsync/backend/internal/domain/shared"
	"github.com/feedsync/backend/internal/infrastructure/config"
	"github.com/feedsync/backend/internal/infrastructure/logger"
)

const intercomAPIVersion = "2.10"

var intercomReserved = map[string]struct{}{
	"name": {}, "email": {}, "user_id": {}, "id": {}, "company_id": {},
	"created_at": {}, "updated_at": {}, "phone": {}, "type": {},
}

var intercomStock = catalog.StockMappings{
	"monthly_spend": {
		Name:         "monthly_spend",
		Kind:         catalog.EntityKindOrganization,
		FriendlyName: "Monthly Spend",
		ValueType:    catalog.ValueTypeFloat,
		Widget:       catalog.WidgetGroupedSelect,
		IsMRR:        true,
	},
	"plan": {
		Name:         "plan",
		Kind:         catalog.EntityKindOrganization,
		FriendlyName: "Plan",
		ValueType:    catalog.ValueTypeString,
		Widget:       catalog.WidgetSelect,
		IsPlan:       true,
	},
}

type intercomCompanyList struct {
	Data  []intercomCompany `json:"data"`
	Pages struct {
		Page       int `json:"page"`
		TotalPages int `json:"total_pages"`
	} `json:"pages"`
}

type intercomContactList struct {
	Data  []intercomContact `json:"data"`
	Pages struct {
		Next *struct {
			StartingAfter string `json:"starting_after"`
		} `json:"next"`
	} `json:"pages"`
}

// IntercomConnector syncs companies and contacts from Intercom and turns
// tagged conversation parts and admin notes into feedback
type IntercomConnector struct {
	Deps
	api      *APIClient
	oauth    *OAuthClient
	pageSize int
}

// NewIntercomConnector creates the intercom connector
func NewIntercomConnector(cfg config.ConnectorConfig, sync config.SyncConfig, deps Deps) *IntercomConnector {
	api := NewAPIClient(cfg.BaseURL, ClientOptions{
		Timeout:            sync.HTTPTimeout,
		RateLimitThreshold: sync.RateLimitThreshold,
		RateLimitCoolOff:   sync.RateLimitCoolOff,
	}, deps.Logger)
	pageSize := sync.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	return &IntercomConnector{
		Deps: deps,
		api:  api,
		oauth: NewOAuthClient(OAuthConfig{
			TokenURL:     cfg.TokenURL,
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
		}, api, deps.Tokens, deps.Logger),
		pageSize: pageSize,
	}
}

// Name implements integration.Connector
func (c *IntercomConnector) Name() integration.ConnectorName {
	return integration.ConnectorIntercom
}

// AuthScheme implements integration.Connector
func (c *IntercomConnector) AuthScheme() integration.WebhookAuthScheme {
	return integration.WebhookAuthHMAC
}

// ExchangeCode implements integration.OAuthConnector. Intercom issues a
// non-expiring token with no refresh token.
func (c *IntercomConnector) ExchangeCode(ctx context.Context, code string) (integration.Credentials, error) {
	return c.oauth.Exchange(ctx, code)
}

// LookupWorkspace implements integration.WorkspaceLookup with the app id
// webhooks are addressed by
func (c *IntercomConnector) LookupWorkspace(ctx context.Context, creds integration.Credentials) (string, error) {
	var me struct {
		App struct {
			IDCode string `json:"id_code"`
		} `json:"app"`
	}
	if err := c.get(ctx, creds.Token(), "/me", nil, &me); err != nil {
		return "", err
	}
	if me.App.IDCode == "" {
		return "", fmt.Errorf("intercom: /me returned no app id")
	}
	return me.App.IDCode, nil
}

// WorkspaceID implements integration.WorkspaceResolver
func (c *IntercomConnector) WorkspaceID(payload []byte) (string, error) {
	var n intercomNotification
	if err := decodeJSON(payload, &n); err != nil {
		return "", fmt.Errorf("%w: %v", integration.ErrMalformedPayload, err)
	}
	if strings.TrimSpace(n.AppID) == "" {
		return "", fmt.Errorf("%w: missing app_id", integration.ErrMalformedPayload)
	}
	return n.AppID, nil
}

// BulkSync imports companies, then contacts with role user, newest first,
// stopping at the first record not newer than the watermark
func (c *IntercomConnector) BulkSync(ctx context.Context, tenant integration.TenantRef, cfg *integration.ImporterConfig, fullResync bool) (*integration.SyncResult, error) {
	token := cfg.Credentials.Token()
	if token == "" {
		return nil, fmt.Errorf("%w: intercom access token missing", integration.ErrAuth)
	}
	watermark := cfg.Watermark(fullResync)
	log := logger.FromContext(ctx)
	log.Info("Starting intercom sync", zap.Bool("full_resync", watermark == nil))

	result := &integration.SyncResult{}
	orgIDs, err := c.syncCompanies(ctx, tenant, token, watermark, result)
	if err != nil {
		return result, fmt.Errorf("intercom companies: %w", err)
	}
	if err := c.syncContacts(ctx, tenant, token, watermark, orgIDs, result); err != nil {
		return result, fmt.Errorf("intercom contacts: %w", err)
	}

	log.Info("Finished intercom sync",
		zap.Int("organizations", result.OrganizationsUpserted),
		zap.Int("people", result.PeopleUpserted),
		zap.Int("pages", result.Pages),
		zap.Int("skipped", result.Skipped))
	return result, nil
}

func (c *IntercomConnector) syncCompanies(ctx context.Context, tenant integration.TenantRef, token string, watermark *time.Time, result *integration.SyncResult) (map[string]uuid.UUID, error) {
	orgIDs := make(map[string]uuid.UUID)
	for page := 1; ; page++ {
		query := url.Values{
			"order":    {"desc"},
			"sort":     {"updated_at"},
			"page":     {strconv.Itoa(page)},
			"per_page": {strconv.Itoa(c.pageSize)},
		}
		var list intercomCompanyList
		err := c.Policy.Fetch(ctx, "companies:"+strconv.Itoa(page), func(ctx context.Context) error {
			list = intercomCompanyList{}
			return c.get(ctx, token, "/companies", query, &list)
		})
		if err != nil {
			return nil, err
		}
		result.Pages++

		for _, co := range list.Data {
			if watermark != nil && !unixTime(co.UpdatedAt).After(*watermark) {
				return orgIDs, nil
			}
			org, err := c.importCompany(ctx, tenant, co)
			if err != nil {
				if errors.Is(err, customer.ErrIdentityConflict) {
					c.Logger.Warn("Skipped company with conflicting keys",
						zap.String("tenant", tenant.Slug), zap.String("company", co.ID), zap.Error(err))
					result.Skipped++
					continue
				}
				return nil, err
			}
			if org == nil {
				result.Skipped++
				continue
			}
			orgIDs[co.ID] = org.ID
			result.OrganizationsUpserted++
		}

		if len(list.Data) == 0 || page >= list.Pages.TotalPages {
			return orgIDs, nil
		}
	}
}

func (c *IntercomConnector) syncContacts(ctx context.Context, tenant integration.TenantRef, token string, watermark *time.Time, orgIDs map[string]uuid.UUID, result *integration.SyncResult) error {
	cursor := ""
	for page := 1; ; page++ {
		pagination := map[string]any{"per_page": c.pageSize}
		if cursor != "" {
			pagination["starting_after"] = cursor
		}
		body := map[string]any{
			"query":      map[string]any{"field": "role", "operator": "=", "value": "user"},
			"sort":       map[string]any{"field": "updated_at", "order": "descending"},
			"pagination": pagination,
		}

		var list intercomContactList
		err := c.Policy.Fetch(ctx, "contacts:"+strconv.Itoa(page), func(ctx context.Context) error {
			list = intercomContactList{}
			resp, err := c.api.Do(ctx, Request{
				Method:  http.MethodPost,
				Path:    "/contacts/search",
				JSON:    body,
				Token:   token,
				Headers: map[string]string{"Intercom-Version": intercomAPIVersion},
			})
			if err != nil {
				return err
			}
			return resp.Decode(&list)
		})
		if err != nil {
			return err
		}
		result.Pages++

		for _, contact := range list.Data {
			if watermark != nil && !unixTime(contact.UpdatedAt).After(*watermark) {
				return nil
			}
			p, _, err := c.importContact(ctx, tenant, contact, orgIDs)
			if err != nil {
				if errors.Is(err, customer.ErrIdentityConflict) {
					c.Logger.Warn("Skipped contact with conflicting keys",
						zap.String("tenant", tenant.Slug), zap.String("contact", contact.ID), zap.Error(err))
					result.Skipped++
					continue
				}
				return err
			}
			if p == nil {
				result.Skipped++
				continue
			}
			result.PeopleUpserted++
		}

		if list.Pages.Next == nil || list.Pages.Next.StartingAfter == "" || len(list.Data) == 0 {
			return nil
		}
		cursor = list.Pages.Next.StartingAfter
	}
}

// importCompany upserts a company; nameless companies are skipped
func (c *IntercomConnector) importCompany(ctx context.Context, tenant integration.TenantRef, co intercomCompany) (*customer.Organization, error) {
	name := strings.TrimSpace(co.Name)
	if name == "" {
		c.Logger.Debug("Skipped company without a name", zap.String("company", co.ID))
		return nil, nil
	}

	traits := make(map[string]any, len(co.CustomAttributes)+2)
	for k, v := range co.CustomAttributes {
		traits[k] = v
	}
	in := customer.OrganizationInput{
		SourceID:   co.ID,
		ExternalID: co.CompanyID,
		Name:       truncate(name, 255),
		Plan:       co.planName(),
	}
	if co.MonthlySpend != nil {
		spend := decimal.NewFromFloat(*co.MonthlySpend)
		in.MonthlySpend = &spend
		traits["monthly_spend"] = *co.MonthlySpend
	}
	if in.Plan != "" {
		traits["plan"] = in.Plan
	}

	org, _, err := c.upsertOrganization(ctx, tenant, c.Name(), in, traits, intercomReserved, intercomStock)
	return org, err
}

func (c *IntercomConnector) importContact(ctx context.Context, tenant integration.TenantRef, contact intercomContact, orgIDs map[string]uuid.UUID) (*customer.Person, bool, error) {
	var orgID *uuid.UUID
	if ref, ok := contact.Companies.first(); ok {
		if id, ok := orgIDs[ref.ID]; ok {
			orgID = &id
		} else {
			found, err := c.findOrganizationID(ctx, tenant.ID, customer.OrganizationInput{SourceID: ref.ID, ExternalID: ref.CompanyID})
			if err != nil {
				return nil, false, err
			}
			orgID = found
		}
	}

	in := customer.PersonInput{
		Keys: customer.CandidateKeys{
			SourceID:   contact.ID,
			ExternalID: contact.externalID(),
			Email:      contact.Email,
		},
		Name:           truncate(contact.Name, 255),
		Phone:          truncate(contact.Phone, 30),
		OrganizationID: orgID,
	}
	if contact.LastSeenAt > 0 {
		seen := unixTime(contact.LastSeenAt)
		in.LastSeenAt = &seen
	}
	return c.upsertPerson(ctx, tenant, c.Name(), in, contact.CustomAttributes, intercomReserved)
}

// HandleWebhook implements integration.Connector
func (c *IntercomConnector) HandleWebhook(ctx context.Context, tenant integration.TenantRef, cfg *integration.ImporterConfig, eventType string, payload []byte) (*integration.WebhookResult, error) {
	ev, err := DecodeIntercomEvent(payload)
	if err != nil {
		return nil, err
	}

	switch e := ev.(type) {
	case IntercomPing:
		return integration.IgnoredResult(e.Kind()), nil
	case IntercomContactCreated:
		return c.handleContactCreated(ctx, tenant, cfg, e)
	case IntercomPartTagged:
		if !e.HasTag(cfg.FeedbackTag()) {
			return integration.IgnoredResult(e.Kind()), nil
		}
		return c.feedbackFromConversation(ctx, tenant, cfg, e.Kind(), e.AppID, e.Conversation, "tag")
	case IntercomAdminNoted:
		part, ok := e.Conversation.firstPart()
		if !ok {
			return nil, fmt.Errorf("%w: note without conversation parts", integration.ErrMalformedPayload)
		}
		if (part.PartType != "note" && part.PartType != "note_and_reopen") || !hasNotePrefix(part.Body, cfg.NotePrefix()) {
			return integration.IgnoredResult(e.Kind()), nil
		}
		return c.feedbackFromConversation(ctx, tenant, cfg, e.Kind(), e.AppID, e.Conversation, "note")
	default:
		return nil, fmt.Errorf("%w: intercom topic %q", integration.ErrUnknownEventType, ev.Kind())
	}
}

func (c *IntercomConnector) handleContactCreated(ctx context.Context, tenant integration.TenantRef, cfg *integration.ImporterConfig, e IntercomContactCreated) (*integration.WebhookResult, error) {
	if e.Contact.Role == "lead" {
		return integration.IgnoredResult(e.Kind()), nil
	}

	orgIDs := make(map[string]uuid.UUID)
	if ref, ok := e.Contact.Companies.first(); ok && ref.ID != "" {
		var co intercomCompany
		err := c.get(ctx, cfg.Credentials.Token(), "/companies/"+url.PathEscape(ref.ID), nil, &co)
		switch {
		case err == nil:
			org, err := c.importCompany(ctx, tenant, co)
			if err != nil && !errors.Is(err, customer.ErrIdentityConflict) {
				return nil, err
			}
			if org != nil {
				orgIDs[co.ID] = org.ID
			}
		case errors.Is(err, shared.ErrNotFound):
			c.Logger.Info("Company of new contact not found", zap.String("company", ref.ID))
		default:
			return nil, err
		}
	}

	p, _, err := c.importContact(ctx, tenant, e.Contact, orgIDs)
	if err != nil {
		return nil, err
	}
	res := &integration.WebhookResult{EventKind: e.Kind()}
	if p == nil {
		res.Ignored = true
		return res, nil
	}
	id := p.ID
	res.PersonID = &id
	return res, nil
}

func (c *IntercomConnector) feedbackFromConversation(ctx context.Context, tenant integration.TenantRef, cfg *integration.ImporterConfig, kind, appID string, conv intercomConversation, trigger string) (*integration.WebhookResult, error) {
	part, ok := conv.firstPart()
	if !ok {
		return nil, fmt.Errorf("%w: conversation without parts", integration.ErrMalformedPayload)
	}
	content := feedbackText(part.Body, cfg.NotePrefix())
	if content == "" {
		return integration.IgnoredResult(kind), nil
	}

	var personID *uuid.UUID
	if cust, ok := conv.customer(); ok {
		p, _, err := c.upsertPerson(ctx, tenant, c.Name(), customer.PersonInput{
			Keys: customer.CandidateKeys{
				SourceID:   cust.ID,
				ExternalID: cust.externalID(),
				Email:      cust.Email,
			},
			Name: cust.Name,
		}, nil, nil)
		switch {
		case errors.Is(err, customer.ErrIdentityConflict):
			c.Logger.Warn("Feedback recorded without person", zap.String("conversation", conv.ID), zap.Error(err))
		case err != nil:
			return nil, err
		case p != nil:
			id := p.ID
			personID = &id
		}
	}

	return c.recordFeedback(ctx, tenant, c.Name(), kind, appfeedback.IngestInput{
		PersonID:  personID,
		Content:   content,
		SourceURL: conv.sourceURL(appID),
		Metadata: map[string]string{
			"conversation_id": conv.ID,
			"part_id":         part.ID,
			"author_id":       part.Author.ID,
			"trigger":         trigger,
		},
	})
}

func (c *IntercomConnector) get(ctx context.Context, token, path string, query url.Values, out any) error {
	resp, err := c.api.Do(ctx, Request{
		Method:  http.MethodGet,
		Path:    path,
		Query:   query,
		Token:   token,
		Headers: map[string]string{"Intercom-Version": intercomAPIVersion},
	})
	if err != nil {
		return err
	}
	if err := resp.Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

var (
	_ integration.Connector         = (*IntercomConnector)(nil)
	_ integration.OAuthConnector    = (*IntercomConnector)(nil)
	_ integration.WorkspaceResolver = (*IntercomConnector)(nil)
	_ integration.WorkspaceLookup   = (*IntercomConnector)(nil)
)
