package connector

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.uber.org/zap"

	"github.com/feedsync/backend/internal/domain/catalog"
	"github.com/feedsync/backend/internal/domain/customer"
	"github.com/feedsync/backend/internal/domain/integration"
	"github.com/feedsync/backend/internal/domain/shared"
)

//go:embed schema/segment.json
var segmentSchemaJSON []byte

const segmentSchemaURL = "https://feedsync.local/schema/segment.json"

var segmentIdentifyReserved = map[string]struct{}{
	"address": {}, "avatar": {}, "birthday": {}, "company": {}, "createdAt": {},
	"description": {}, "email": {}, "firstName": {}, "id": {}, "lastName": {},
	"name": {}, "phone": {}, "username": {}, "website": {},
}

var segmentGroupReserved = map[string]struct{}{
	"address": {}, "avatar": {}, "createdAt": {}, "description": {}, "email": {},
	"id": {}, "name": {}, "phone": {}, "website": {},
}

var segmentStock = catalog.StockMappings{
	"plan": {
		Name:         "plan",
		Kind:         catalog.EntityKindOrganization,
		FriendlyName: "Plan",
		ValueType:    catalog.ValueTypeString,
		Widget:       catalog.WidgetSelect,
		IsPlan:       true,
	},
	"total billed": {
		Name:         "total billed",
		Kind:         catalog.EntityKindOrganization,
		FriendlyName: "Total Billed",
		ValueType:    catalog.ValueTypeFloat,
		Widget:       catalog.WidgetGroupedSelect,
		IsMRR:        true,
	},
}

// SegmentConnector receives identify and group calls pushed by Segment.
// There is nothing to pull, so BulkSync succeeds without doing anything.
type SegmentConnector struct {
	Deps
	schema *jsonschema.Schema
}

// NewSegmentConnector creates the segment connector with its message schema
func NewSegmentConnector(deps Deps) (*SegmentConnector, error) {
	sch, err := compileSegmentSchema()
	if err != nil {
		return nil, fmt.Errorf("compile segment schema: %w", err)
	}
	return &SegmentConnector{Deps: deps, schema: sch}, nil
}

func compileSegmentSchema() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(segmentSchemaJSON))
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(segmentSchemaURL, doc); err != nil {
		return nil, err
	}
	return c.Compile(segmentSchemaURL)
}

// Name implements integration.Connector
func (c *SegmentConnector) Name() integration.ConnectorName {
	return integration.ConnectorSegment
}

// AuthScheme implements integration.Connector
func (c *SegmentConnector) AuthScheme() integration.WebhookAuthScheme {
	return integration.WebhookAuthBasicSecret
}

// BulkSync implements integration.Connector
func (c *SegmentConnector) BulkSync(ctx context.Context, tenant integration.TenantRef, cfg *integration.ImporterConfig, fullResync bool) (*integration.SyncResult, error) {
	return &integration.SyncResult{}, nil
}

// Validate checks a message against the schema
func (c *SegmentConnector) Validate(payload []byte) error {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: %v", integration.ErrMalformedPayload, err)
	}
	if err := c.schema.Validate(inst); err != nil {
		return fmt.Errorf("%w: %v", integration.ErrMalformedPayload, err)
	}
	return nil
}

// HandleWebhook implements integration.Connector. The event type is read
// from the message itself.
func (c *SegmentConnector) HandleWebhook(ctx context.Context, tenant integration.TenantRef, cfg *integration.ImporterConfig, eventType string, payload []byte) (*integration.WebhookResult, error) {
	if err := c.Validate(payload); err != nil {
		return nil, err
	}
	ev, err := decodeSegmentEvent(payload)
	if err != nil {
		return nil, err
	}

	switch e := ev.(type) {
	case SegmentIdentify:
		return c.handleIdentify(ctx, tenant, e)
	case SegmentGroup:
		return c.handleGroup(ctx, tenant, e)
	case SegmentDelete:
		// deleting people is a deliberate action taken outside the sync
		return integration.IgnoredResult(e.Kind()), nil
	default:
		return nil, fmt.Errorf("%w: segment type %q", integration.ErrUnknownEventType, ev.Kind())
	}
}

func (c *SegmentConnector) handleIdentify(ctx context.Context, tenant integration.TenantRef, e SegmentIdentify) (*integration.WebhookResult, error) {
	if e.UserID == "" && e.Email == "" {
		c.Logger.Info("Skipped identify without userId or email", zap.String("tenant", tenant.Slug))
		return integration.IgnoredResult(e.Kind()), nil
	}

	p, _, err := c.upsertPerson(ctx, tenant, c.Name(), customer.PersonInput{
		Keys:  customer.CandidateKeys{ExternalID: e.UserID, Email: e.Email},
		Name:  truncate(e.Name, 255),
		Phone: truncate(e.Phone, 30),
	}, e.Traits, segmentIdentifyReserved)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return integration.IgnoredResult(e.Kind()), nil
	}
	id := p.ID
	return &integration.WebhookResult{EventKind: e.Kind(), PersonID: &id}, nil
}

func (c *SegmentConnector) handleGroup(ctx context.Context, tenant integration.TenantRef, e SegmentGroup) (*integration.WebhookResult, error) {
	org, _, err := c.upsertOrganization(ctx, tenant, c.Name(), customer.OrganizationInput{
		ExternalID:   e.GroupID,
		Name:         truncate(e.Name, 255),
		Plan:         e.Plan,
		MonthlySpend: e.MonthlySpend,
	}, e.Traits, segmentGroupReserved, segmentStock)
	if err != nil {
		return nil, err
	}

	res := &integration.WebhookResult{EventKind: e.Kind()}
	if e.UserID == "" {
		return res, nil
	}

	p, err := c.Resolver.Resolve(ctx, tenant.ID, customer.CandidateKeys{ExternalID: e.UserID})
	if errors.Is(err, shared.ErrNotFound) {
		c.Logger.Info("Group user not known yet, not linked",
			zap.String("tenant", tenant.Slug), zap.String("group_id", e.GroupID))
		return res, nil
	}
	if err != nil {
		return nil, err
	}

	orgID := org.ID
	linked, _, err := c.Resolver.UpsertPerson(ctx, tenant.ID, customer.PersonInput{Keys: p.Keys(), OrganizationID: &orgID})
	if err != nil {
		return nil, err
	}
	id := linked.ID
	res.PersonID = &id
	return res, nil
}

var _ integration.Connector = (*SegmentConnector)(nil)
