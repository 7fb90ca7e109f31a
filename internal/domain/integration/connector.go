package integration

import (
	"context"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// ConnectorName
// ---------------------------------------------------------------------------

// ConnectorName identifies a source adapter
type ConnectorName string

const (
	// ConnectorIntercom is the conversation/tag driven chat help desk
	ConnectorIntercom ConnectorName = "intercom"
	// ConnectorHelpScout is the ticket/note driven help desk
	ConnectorHelpScout ConnectorName = "helpscout"
	// ConnectorSegment is the push-only identity stream
	ConnectorSegment ConnectorName = "segment"
)

// AllConnectorNames lists every known connector
func AllConnectorNames() []ConnectorName {
	return []ConnectorName{ConnectorIntercom, ConnectorHelpScout, ConnectorSegment}
}

// IsValid returns true if the connector name is known
func (n ConnectorName) IsValid() bool {
	switch n {
	case ConnectorIntercom, ConnectorHelpScout, ConnectorSegment:
		return true
	default:
		return false
	}
}

// String returns the string representation of ConnectorName
func (n ConnectorName) String() string {
	return string(n)
}

// DisplayName returns a human-readable name for the connector
func (n ConnectorName) DisplayName() string {
	switch n {
	case ConnectorIntercom:
		return "Intercom"
	case ConnectorHelpScout:
		return "Help Scout"
	case ConnectorSegment:
		return "Segment"
	default:
		return string(n)
	}
}

// ---------------------------------------------------------------------------
// WebhookAuthScheme
// ---------------------------------------------------------------------------

// WebhookAuthScheme is how inbound pushes of a connector are authenticated
type WebhookAuthScheme string

const (
	// WebhookAuthPathSecret embeds the per-config secret in the URL path
	WebhookAuthPathSecret WebhookAuthScheme = "PATH_SECRET"
	// WebhookAuthHMAC signs the body with a connector-level shared secret
	WebhookAuthHMAC WebhookAuthScheme = "HMAC"
	// WebhookAuthBasicSecret sends the per-config secret as basic-auth user
	WebhookAuthBasicSecret WebhookAuthScheme = "BASIC_SECRET"
)

// ---------------------------------------------------------------------------
// Connector port
// ---------------------------------------------------------------------------

// TenantRef is the tenant a connector call runs for
type TenantRef struct {
	ID   uuid.UUID
	Slug string
}

// SyncResult summarizes a bulk run
type SyncResult struct {
	PeopleUpserted        int
	OrganizationsUpserted int
	FeedbackCreated       int
	Pages                 int
	Skipped               int
}

// Add accumulates another result into r
func (r *SyncResult) Add(other SyncResult) {
	r.PeopleUpserted += other.PeopleUpserted
	r.OrganizationsUpserted += other.OrganizationsUpserted
	r.FeedbackCreated += other.FeedbackCreated
	r.Pages += other.Pages
	r.Skipped += other.Skipped
}

// WebhookResult is the outcome of one webhook event
type WebhookResult struct {
	EventKind string
	Ignored   bool
	// FeedbackID is set when the event produced or matched a feedback record
	FeedbackID *uuid.UUID
	// FeedbackCreated is false when an existing record was matched
	FeedbackCreated bool
	PersonID        *uuid.UUID
}

// IgnoredResult is the result for events that are deliberately not handled
func IgnoredResult(kind string) *WebhookResult {
	return &WebhookResult{EventKind: kind, Ignored: true}
}

// Connector is the uniform contract of a source adapter. Callers never branch
// on which connector they hold.
type Connector interface {
	// Name identifies the connector
	Name() ConnectorName

	// AuthScheme is how the gateway authenticates this connector's webhooks
	AuthScheme() WebhookAuthScheme

	// BulkSync pulls everything changed since cfg.LastSyncedAt, or everything
	// when fullResync is set or no watermark exists. It never advances the
	// watermark itself.
	BulkSync(ctx context.Context, tenant TenantRef, cfg *ImporterConfig, fullResync bool) (*SyncResult, error)

	// HandleWebhook processes exactly one inbound event
	HandleWebhook(ctx context.Context, tenant TenantRef, cfg *ImporterConfig, eventType string, payload []byte) (*WebhookResult, error)
}

// RemoteWebhookManager is implemented by connectors that register webhook
// subscriptions with the source
type RemoteWebhookManager interface {
	RegisterWebhooks(ctx context.Context, cfg *ImporterConfig, callbackURL string) error
	DeleteWebhooks(ctx context.Context, cfg *ImporterConfig) error
}

// OAuthConnector is implemented by connectors authorized with an OAuth code
type OAuthConnector interface {
	ExchangeCode(ctx context.Context, code string) (Credentials, error)
}

// WorkspaceResolver is implemented by HMAC connectors whose payload names the
// workspace (and therefore the configs) it belongs to
type WorkspaceResolver interface {
	WorkspaceID(payload []byte) (string, error)
}

// WorkspaceLookup is implemented by connectors that can name the source
// workspace a set of credentials belongs to
type WorkspaceLookup interface {
	LookupWorkspace(ctx context.Context, creds Credentials) (string, error)
}

// ConnectorRegistry resolves connectors by name
type ConnectorRegistry interface {
	Get(name ConnectorName) (Connector, error)
	List() []ConnectorName
}

// ---------------------------------------------------------------------------
// Events
// ---------------------------------------------------------------------------

// Event is a decoded webhook payload. Each connector defines its own variants.
type Event interface {
	Kind() string
}

// UnknownEvent is any event type a connector does not recognize
type UnknownEvent struct {
	Type string
}

// Kind implements Event
func (e UnknownEvent) Kind() string {
	return e.Type
}

// ---------------------------------------------------------------------------
// TokenStore
// ---------------------------------------------------------------------------

// TokenStore persists refreshed OAuth credentials
type TokenStore interface {
	SaveCredentials(ctx context.Context, configID uuid.UUID, creds Credentials) error
}
