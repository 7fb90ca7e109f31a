package connector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	appfeedback "github.com/feedsync/backend/internal/application/feedback"
	"github.com/feedsync/backend/internal/domain/customer"
	"github.com/feedsync/backend/internal/domain/integration"
	"github.com/feedsync/backend/internal/domain/shared"
	"github.com/feedsync/backend/internal/infrastructure/config"
	"github.com/feedsync/backend/internal/infrastructure/logger"
)

// helpscoutWebhookPath is the callback path prefix our subscriptions use
const helpscoutWebhookPath = "/webhooks/helpscout/"

// helpscoutSecretLimit is the longest signing secret Help Scout accepts
const helpscoutSecretLimit = 40

var helpscoutWebhookEvents = []string{HelpScoutEventTags, HelpScoutEventNoteCreated, HelpScoutEventCreated}

var helpscoutReserved = map[string]struct{}{
	"id": {}, "firstName": {}, "lastName": {}, "organization": {},
	"createdAt": {}, "updatedAt": {}, "photoUrl": {}, "photoType": {},
	"emails": {}, "phones": {}, "_embedded": {}, "_links": {},
}

type helpscoutValue struct {
	Value string `json:"value"`
}

type helpscoutCustomer struct {
	ID           int64  `json:"id"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	Organization string `json:"organization"`
	UpdatedAt    string `json:"updatedAt"`
	Embedded     struct {
		Emails []helpscoutValue `json:"emails"`
		Phones []helpscoutValue `json:"phones"`
	} `json:"_embedded"`

	traits map[string]any
}

func (c helpscoutCustomer) email() string {
	if len(c.Embedded.Emails) == 0 {
		return ""
	}
	return c.Embedded.Emails[0].Value
}

func (c helpscoutCustomer) phone() string {
	if len(c.Embedded.Phones) == 0 {
		return ""
	}
	return c.Embedded.Phones[0].Value
}

func decodeHelpScoutCustomer(raw rawJSON) (helpscoutCustomer, error) {
	var cust helpscoutCustomer
	if err := decodeJSON(raw, &cust); err != nil {
		return cust, err
	}
	if err := decodeJSON(raw, &cust.traits); err != nil {
		return cust, err
	}
	return cust, nil
}

type helpscoutCustomerPage struct {
	Embedded struct {
		Customers []rawJSON `json:"customers"`
	} `json:"_embedded"`
	Page struct {
		Number     int `json:"number"`
		TotalPages int `json:"totalPages"`
	} `json:"page"`
}

// HelpScoutConnector syncs customers from Help Scout and turns tagged
// conversations and feedback notes into feedback. It is authorized with
// OAuth and every call refreshes the token once on a 401.
type HelpScoutConnector struct {
	Deps
	api   *APIClient
	oauth *OAuthClient
}

// NewHelpScoutConnector creates the helpscout connector
func NewHelpScoutConnector(cfg config.ConnectorConfig, sync config.SyncConfig, deps Deps) *HelpScoutConnector {
	api := NewAPIClient(cfg.BaseURL, ClientOptions{
		Timeout:            sync.HTTPTimeout,
		RateLimitThreshold: sync.RateLimitThreshold,
		RateLimitCoolOff:   sync.RateLimitCoolOff,
	}, deps.Logger)
	return &HelpScoutConnector{
		Deps: deps,
		api:  api,
		oauth: NewOAuthClient(OAuthConfig{
			TokenURL:     cfg.TokenURL,
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
		}, api, deps.Tokens, deps.Logger),
	}
}

// Name implements integration.Connector
func (c *HelpScoutConnector) Name() integration.ConnectorName {
	return integration.ConnectorHelpScout
}

// AuthScheme implements integration.Connector
func (c *HelpScoutConnector) AuthScheme() integration.WebhookAuthScheme {
	return integration.WebhookAuthPathSecret
}

// ExchangeCode implements integration.OAuthConnector
func (c *HelpScoutConnector) ExchangeCode(ctx context.Context, code string) (integration.Credentials, error) {
	return c.oauth.Exchange(ctx, code)
}

// LookupWorkspace implements integration.WorkspaceLookup with the account's company id
func (c *HelpScoutConnector) LookupWorkspace(ctx context.Context, creds integration.Credentials) (string, error) {
	var me struct {
		CompanyID json.Number `json:"companyId"`
	}
	if err := c.api.GetJSON(ctx, "/v2/users/me", nil, creds.Token(), &me); err != nil {
		return "", err
	}
	return me.CompanyID.String(), nil
}

// BulkSync pages through customers by modification time, newest first
func (c *HelpScoutConnector) BulkSync(ctx context.Context, tenant integration.TenantRef, cfg *integration.ImporterConfig, fullResync bool) (*integration.SyncResult, error) {
	if cfg.Credentials.Token() == "" {
		return nil, fmt.Errorf("%w: helpscout access token missing", integration.ErrAuth)
	}
	watermark := cfg.Watermark(fullResync)
	log := logger.FromContext(ctx)
	log.Info("Starting helpscout sync", zap.Bool("full_resync", watermark == nil))

	result := &integration.SyncResult{}
	for page := 1; ; page++ {
		query := url.Values{
			"sortField": {"modifiedAt"},
			"sortOrder": {"desc"},
			"page":      {strconv.Itoa(page)},
		}
		var list helpscoutCustomerPage
		err := c.Policy.Fetch(ctx, "customers:"+strconv.Itoa(page), func(ctx context.Context) error {
			list = helpscoutCustomerPage{}
			return c.oauth.GetJSON(ctx, cfg, "/v2/customers", query, &list)
		})
		if err != nil {
			return result, fmt.Errorf("helpscout customers: %w", err)
		}
		result.Pages++

		for _, raw := range list.Embedded.Customers {
			cust, err := decodeHelpScoutCustomer(raw)
			if err != nil {
				return result, fmt.Errorf("decode helpscout customer: %w", err)
			}
			if watermark != nil && !parseHelpScoutTime(cust.UpdatedAt).After(*watermark) {
				log.Info("Finished helpscout sync", zap.Int("people", result.PeopleUpserted), zap.Int("pages", result.Pages))
				return result, nil
			}
			p, err := c.importCustomer(ctx, tenant, cust, result)
			if err != nil {
				if errors.Is(err, customer.ErrIdentityConflict) {
					c.Logger.Warn("Skipped customer with conflicting keys",
						zap.String("tenant", tenant.Slug), zap.Int64("customer", cust.ID), zap.Error(err))
					result.Skipped++
					continue
				}
				return result, err
			}
			if p == nil {
				result.Skipped++
				continue
			}
			result.PeopleUpserted++
		}

		if len(list.Embedded.Customers) == 0 || page >= list.Page.TotalPages {
			log.Info("Finished helpscout sync", zap.Int("people", result.PeopleUpserted), zap.Int("pages", result.Pages))
			return result, nil
		}
	}
}

// importCustomer upserts the customer and the organization named on it.
// Help Scout has no organization ids, so the upper-cased name is the key.
func (c *HelpScoutConnector) importCustomer(ctx context.Context, tenant integration.TenantRef, cust helpscoutCustomer, result *integration.SyncResult) (*customer.Person, error) {
	var orgID *uuid.UUID
	if name := strings.TrimSpace(cust.Organization); name != "" {
		org, _, err := c.upsertOrganization(ctx, tenant, c.Name(), customer.OrganizationInput{
			SourceID: customer.NormalizeOrganizationName(name),
			Name:     truncate(name, 255),
		}, nil, nil, nil)
		switch {
		case errors.Is(err, customer.ErrIdentityConflict):
			c.Logger.Warn("Skipped organization with conflicting keys", zap.String("organization", name), zap.Error(err))
		case err != nil:
			return nil, err
		default:
			id := org.ID
			orgID = &id
			if result != nil {
				result.OrganizationsUpserted++
			}
		}
	}

	in := customer.PersonInput{
		Keys: customer.CandidateKeys{
			SourceID: strconv.FormatInt(cust.ID, 10),
			Email:    cust.email(),
		},
		Name:           truncate(strings.TrimSpace(cust.FirstName+" "+cust.LastName), 255),
		Phone:          truncate(cust.phone(), 30),
		OrganizationID: orgID,
	}
	p, _, err := c.upsertPerson(ctx, tenant, c.Name(), in, cust.traits, helpscoutReserved)
	return p, err
}

// HandleWebhook implements integration.Connector
func (c *HelpScoutConnector) HandleWebhook(ctx context.Context, tenant integration.TenantRef, cfg *integration.ImporterConfig, eventType string, payload []byte) (*integration.WebhookResult, error) {
	ev, err := DecodeHelpScoutEvent(eventType, payload)
	if err != nil {
		return nil, err
	}

	switch e := ev.(type) {
	case HelpScoutConversationTagged:
		return c.handleTagged(ctx, tenant, cfg, e.Kind(), e.Conversation, nil)
	case HelpScoutNoteCreated:
		return c.handleNote(ctx, tenant, cfg, e.Kind(), e.Conversation, nil)
	case HelpScoutConversationCreated:
		personID, err := c.conversationPerson(ctx, tenant, cfg, e.Conversation)
		if err != nil {
			return nil, err
		}
		// chats arrive complete, so their notes and tags are already present
		if e.Conversation.Type == "chat" {
			res, err := c.handleNote(ctx, tenant, cfg, e.Kind(), e.Conversation, personID)
			if err != nil || !res.Ignored {
				return res, err
			}
			res, err = c.handleTagged(ctx, tenant, cfg, e.Kind(), e.Conversation, personID)
			if err != nil || !res.Ignored {
				return res, err
			}
		}
		if personID == nil {
			return integration.IgnoredResult(e.Kind()), nil
		}
		return &integration.WebhookResult{EventKind: e.Kind(), PersonID: personID}, nil
	default:
		return nil, fmt.Errorf("%w: helpscout event %q", integration.ErrUnknownEventType, ev.Kind())
	}
}

func (c *HelpScoutConnector) handleTagged(ctx context.Context, tenant integration.TenantRef, cfg *integration.ImporterConfig, kind string, conv helpscoutConversation, personID *uuid.UUID) (*integration.WebhookResult, error) {
	if !conv.hasTag(cfg.FeedbackTag()) {
		return integration.IgnoredResult(kind), nil
	}
	content := conv.customerMessage()
	if content == "" {
		return integration.IgnoredResult(kind), nil
	}
	return c.conversationFeedback(ctx, tenant, cfg, kind, conv, content, "tag", personID)
}

func (c *HelpScoutConnector) handleNote(ctx context.Context, tenant integration.TenantRef, cfg *integration.ImporterConfig, kind string, conv helpscoutConversation, personID *uuid.UUID) (*integration.WebhookResult, error) {
	note, ok := conv.latestNote()
	if !ok || !hasNotePrefix(note.Body, cfg.NotePrefix()) {
		return integration.IgnoredResult(kind), nil
	}
	content := feedbackText(note.Body, cfg.NotePrefix())
	if content == "" {
		return integration.IgnoredResult(kind), nil
	}
	return c.conversationFeedback(ctx, tenant, cfg, kind, conv, content, "note", personID)
}

func (c *HelpScoutConnector) conversationFeedback(ctx context.Context, tenant integration.TenantRef, cfg *integration.ImporterConfig, kind string, conv helpscoutConversation, content, trigger string, personID *uuid.UUID) (*integration.WebhookResult, error) {
	if personID == nil {
		var err error
		personID, err = c.conversationPerson(ctx, tenant, cfg, conv)
		if err != nil {
			return nil, err
		}
	}
	return c.recordFeedback(ctx, tenant, c.Name(), kind, appfeedback.IngestInput{
		PersonID:  personID,
		Content:   content,
		SourceURL: conv.sourceURL(),
		Metadata: map[string]string{
			"conversation_id": strconv.FormatInt(conv.ID, 10),
			"number":          strconv.FormatInt(conv.Number, 10),
			"status":          conv.Status,
			"trigger":         trigger,
		},
	})
}

// conversationPerson upserts the conversation's customer from the API,
// falling back to the fields in the payload when the lookup 404s
func (c *HelpScoutConnector) conversationPerson(ctx context.Context, tenant integration.TenantRef, cfg *integration.ImporterConfig, conv helpscoutConversation) (*uuid.UUID, error) {
	ref, ok := conv.customer()
	if !ok {
		return nil, nil
	}

	var raw rawJSON
	err := c.oauth.GetJSON(ctx, cfg, "/v2/customers/"+strconv.FormatInt(ref.ID, 10), nil, &raw)
	var cust helpscoutCustomer
	switch {
	case err == nil:
		if cust, err = decodeHelpScoutCustomer(raw); err != nil {
			return nil, fmt.Errorf("decode helpscout customer: %w", err)
		}
	case errors.Is(err, shared.ErrNotFound):
		cust = helpscoutCustomer{ID: ref.ID, FirstName: firstNonEmpty(ref.First, ref.FirstName), LastName: firstNonEmpty(ref.Last, ref.LastName)}
		if ref.Email != "" {
			cust.Embedded.Emails = []helpscoutValue{{Value: ref.Email}}
		}
	default:
		return nil, err
	}

	p, err := c.importCustomer(ctx, tenant, cust, nil)
	if errors.Is(err, customer.ErrIdentityConflict) {
		c.Logger.Warn("Customer not linked", zap.Int64("customer", ref.ID), zap.Error(err))
		return nil, nil
	}
	if err != nil || p == nil {
		return nil, err
	}
	id := p.ID
	return &id, nil
}

// RegisterWebhooks implements integration.RemoteWebhookManager
func (c *HelpScoutConnector) RegisterWebhooks(ctx context.Context, cfg *integration.ImporterConfig, callbackURL string) error {
	secret := cfg.WebhookSecret
	if len(secret) > helpscoutSecretLimit {
		secret = secret[:helpscoutSecretLimit]
	}
	_, err := c.oauth.Do(ctx, cfg, Request{
		Method: http.MethodPost,
		Path:   "/v2/webhooks",
		JSON: map[string]any{
			"url":    callbackURL,
			"events": helpscoutWebhookEvents,
			"secret": secret,
			"label":  "feedsync feedback",
		},
	})
	if err != nil {
		return fmt.Errorf("register helpscout webhook: %w", err)
	}
	return nil
}

// DeleteWebhooks implements integration.RemoteWebhookManager. Only
// subscriptions pointing at this config's callback are removed.
func (c *HelpScoutConnector) DeleteWebhooks(ctx context.Context, cfg *integration.ImporterConfig) error {
	var list struct {
		Embedded struct {
			Webhooks []struct {
				ID  json.Number `json:"id"`
				URL string      `json:"url"`
			} `json:"webhooks"`
		} `json:"_embedded"`
	}
	if err := c.oauth.GetJSON(ctx, cfg, "/v2/webhooks", nil, &list); err != nil {
		return fmt.Errorf("list helpscout webhooks: %w", err)
	}

	suffix := helpscoutWebhookPath + cfg.WebhookSecret
	var errs []error
	for _, wh := range list.Embedded.Webhooks {
		if !strings.HasSuffix(strings.TrimRight(wh.URL, "/"), suffix) {
			continue
		}
		_, err := c.oauth.Do(ctx, cfg, Request{Method: http.MethodDelete, Path: "/v2/webhooks/" + wh.ID.String()})
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			errs = append(errs, fmt.Errorf("delete helpscout webhook %s: %w", wh.ID, err))
		}
	}
	return errors.Join(errs...)
}

var (
	_ integration.Connector            = (*HelpScoutConnector)(nil)
	_ integration.OAuthConnector       = (*HelpScoutConnector)(nil)
	_ integration.RemoteWebhookManager = (*HelpScoutConnector)(nil)
	_ integration.WorkspaceLookup      = (*HelpScoutConnector)(nil)
)
