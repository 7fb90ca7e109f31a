package integration

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/feedsync/backend/internal/domain/integration"
	"github.com/feedsync/backend/internal/domain/shared"
	"github.com/feedsync/backend/internal/domain/tenant"
	"github.com/feedsync/backend/internal/infrastructure/logger"
	"github.com/feedsync/backend/internal/infrastructure/telemetry"
)

// DefaultTimestampTolerance bounds the clock skew of versioned signatures
const DefaultTimestampTolerance = 10 * time.Second

// DefaultDedupeTTL is how long a delivery is remembered
const DefaultDedupeTTL = 24 * time.Hour

// Delivery is one inbound webhook request as read by the gateway
type Delivery struct {
	Connector integration.ConnectorName
	// PathSecret is the secret segment of /webhooks/{connector}/{secret}
	PathSecret string
	// BasicUser is the basic-auth username
	BasicUser string
	// HubSignature is X-Hub-Signature (body-only scheme)
	HubSignature string
	// Signature and Timestamp are X-Signature and X-Request-Timestamp
	Signature string
	Timestamp string
	// EventType is the event header of connectors that send one
	EventType string
	Body      []byte
}

// DeliveryStatus is the gateway's verdict on a delivery
type DeliveryStatus int

const (
	// DeliveryIgnored means nothing was done (unknown type, ignored event, disabled config)
	DeliveryIgnored DeliveryStatus = iota
	// DeliveryDuplicate means every target config had already seen the body
	DeliveryDuplicate
	// DeliveryProcessed means at least one config handled the event
	DeliveryProcessed
	// DeliveryMalformed means the payload could not be decoded
	DeliveryMalformed
	// DeliveryRetryLater means a transient failure; the sender should retry
	DeliveryRetryLater
)

// String returns the status name used in logs
func (s DeliveryStatus) String() string {
	switch s {
	case DeliveryDuplicate:
		return "duplicate"
	case DeliveryProcessed:
		return "processed"
	case DeliveryMalformed:
		return "malformed"
	case DeliveryRetryLater:
		return "retry_later"
	default:
		return "ignored"
	}
}

// ReceiveResult summarizes a delivery across the configs it was routed to
type ReceiveResult struct {
	Status      DeliveryStatus
	EventKind   string
	Configs     int
	FeedbackIDs []uuid.UUID
}

// merge keeps the most significant status
func (r *ReceiveResult) merge(status DeliveryStatus) {
	if status > r.Status {
		r.Status = status
	}
}

// WebhookService authenticates inbound deliveries, routes them to importer
// configs and dispatches them to the owning connector
type WebhookService struct {
	registry  integration.ConnectorRegistry
	configs   integration.ImporterConfigRepository
	tenants   tenant.Repository
	dedupe    shared.IdempotencyStore
	archive   integration.PayloadArchive
	keys      map[integration.ConnectorName]SigningKey
	tolerance time.Duration
	dedupeTTL time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// WebhookServiceConfig contains configuration for WebhookService
type WebhookServiceConfig struct {
	Registry integration.ConnectorRegistry
	Configs  integration.ImporterConfigRepository
	Tenants  tenant.Repository
	// Dedupe is optional; without it every delivery is dispatched
	Dedupe shared.IdempotencyStore
	// Archive is optional; rejected payloads are dropped without it
	Archive            integration.PayloadArchive
	SigningKeys        map[integration.ConnectorName]SigningKey
	TimestampTolerance time.Duration
	DedupeTTL          time.Duration
	Logger             *zap.Logger
}

// NewWebhookService creates a new WebhookService
func NewWebhookService(cfg WebhookServiceConfig) *WebhookService {
	if cfg.TimestampTolerance <= 0 {
		cfg.TimestampTolerance = DefaultTimestampTolerance
	}
	if cfg.DedupeTTL <= 0 {
		cfg.DedupeTTL = DefaultDedupeTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &WebhookService{
		registry:  cfg.Registry,
		configs:   cfg.Configs,
		tenants:   cfg.Tenants,
		dedupe:    cfg.Dedupe,
		archive:   cfg.Archive,
		keys:      cfg.SigningKeys,
		tolerance: cfg.TimestampTolerance,
		dedupeTTL: cfg.DedupeTTL,
		logger:    cfg.Logger,
		now:       time.Now,
	}
}

// Receive handles one delivery. The only errors returned are
// ErrWebhookUnauthorized and ErrConnectorNotFound; every other outcome is
// expressed in the result's status.
func (s *WebhookService) Receive(ctx context.Context, d Delivery) (result *ReceiveResult, err error) {
	ctx, span := telemetry.StartSpan(ctx, "webhook.receive",
		telemetry.AttrConnector.String(d.Connector.String()),
		telemetry.AttrEventType.String(d.EventType),
	)
	defer func() { telemetry.End(span, err) }()

	conn, err := s.registry.Get(d.Connector)
	if err != nil {
		return nil, err
	}
	ctx = logger.WithConnector(ctx, d.Connector.String())
	log := s.logger.With(zap.String("connector", d.Connector.String()))
	if rid := logger.GetRequestID(ctx); rid != "" {
		log = log.With(zap.String("request_id", rid))
	}
	log = log.With(logger.TraceFields(ctx)...)

	configs, status, err := s.attribute(ctx, conn, d)
	if err != nil {
		if errors.Is(err, integration.ErrWebhookUnauthorized) {
			log.Warn("Rejected webhook delivery", zap.Error(err))
			return nil, integration.ErrWebhookUnauthorized
		}
		log.Error("Failed to route webhook delivery", zap.Error(err))
		return &ReceiveResult{Status: DeliveryRetryLater}, nil
	}
	if status == DeliveryMalformed {
		s.archivePayload(ctx, d, "", integration.ArchiveMalformed)
		return &ReceiveResult{Status: DeliveryMalformed}, nil
	}

	result = &ReceiveResult{Status: DeliveryIgnored}
	archived := false
	for i := range configs {
		cfg := &configs[i]
		if !cfg.Enabled {
			continue
		}
		result.Configs++

		st, wr, slug := s.dispatch(ctx, log, conn, cfg, d)
		result.merge(st)
		if wr != nil {
			result.EventKind = wr.EventKind
			if wr.FeedbackID != nil {
				result.FeedbackIDs = append(result.FeedbackIDs, *wr.FeedbackID)
			}
		}
		if !archived && (st == DeliveryMalformed || (st == DeliveryIgnored && wr == nil)) {
			reason := integration.ArchiveUnknown
			if st == DeliveryMalformed {
				reason = integration.ArchiveMalformed
			}
			s.archivePayload(ctx, d, slug, reason)
			archived = true
		}
	}
	return result, nil
}

// attribute authenticates d and returns the configs it addresses
func (s *WebhookService) attribute(ctx context.Context, conn integration.Connector, d Delivery) ([]integration.ImporterConfig, DeliveryStatus, error) {
	switch conn.AuthScheme() {
	case integration.WebhookAuthPathSecret:
		cfg, err := s.bySecret(ctx, conn.Name(), d.PathSecret)
		if err != nil {
			return nil, 0, err
		}
		return []integration.ImporterConfig{*cfg}, DeliveryProcessed, nil

	case integration.WebhookAuthBasicSecret:
		cfg, err := s.bySecret(ctx, conn.Name(), d.BasicUser)
		if err != nil {
			return nil, 0, err
		}
		return []integration.ImporterConfig{*cfg}, DeliveryProcessed, nil

	case integration.WebhookAuthHMAC:
		if err := verifySignature(s.keys[conn.Name()], d, s.now(), s.tolerance); err != nil {
			return nil, 0, fmt.Errorf("%w: %v", integration.ErrWebhookUnauthorized, err)
		}
		resolver, ok := conn.(integration.WorkspaceResolver)
		if !ok {
			return nil, 0, fmt.Errorf("%w: connector cannot attribute deliveries", integration.ErrWebhookUnauthorized)
		}
		workspaceID, err := resolver.WorkspaceID(d.Body)
		if err != nil {
			if errors.Is(err, integration.ErrMalformedPayload) {
				return nil, DeliveryMalformed, nil
			}
			return nil, 0, err
		}
		configs, err := s.configs.FindByWorkspaceID(ctx, conn.Name(), workspaceID)
		if err != nil {
			return nil, 0, err
		}
		if len(configs) == 0 {
			return nil, 0, fmt.Errorf("%w: unknown workspace %s", integration.ErrWebhookUnauthorized, workspaceID)
		}
		return configs, DeliveryProcessed, nil

	default:
		return nil, 0, fmt.Errorf("%w: unsupported auth scheme %s", integration.ErrWebhookUnauthorized, conn.AuthScheme())
	}
}

func (s *WebhookService) bySecret(ctx context.Context, name integration.ConnectorName, secret string) (*integration.ImporterConfig, error) {
	if secret == "" {
		return nil, fmt.Errorf("%w: missing secret", integration.ErrWebhookUnauthorized)
	}
	cfg, err := s.configs.FindByWebhookSecret(ctx, name, secret)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown secret", integration.ErrWebhookUnauthorized)
		}
		return nil, err
	}
	return cfg, nil
}

// dispatch runs the delivery against one config and classifies the outcome
func (s *WebhookService) dispatch(
	ctx context.Context,
	log *zap.Logger,
	conn integration.Connector,
	cfg *integration.ImporterConfig,
	d Delivery,
) (DeliveryStatus, *integration.WebhookResult, string) {
	t, err := s.tenants.FindByID(ctx, cfg.TenantID)
	if err != nil {
		log.Error("Failed to load tenant of importer config",
			zap.String("config_id", cfg.ID.String()), zap.Error(err))
		return DeliveryRetryLater, nil, ""
	}
	ctx = logger.WithTenant(ctx, t.Slug)
	log = log.With(zap.String("tenant", t.Slug))

	key := deliveryKey(conn.Name(), cfg.ID, d.Body)
	if s.dedupe != nil {
		fresh, err := s.dedupe.Claim(ctx, key, s.dedupeTTL)
		if err != nil {
			log.Warn("Delivery dedupe unavailable", zap.Error(err))
		} else if !fresh {
			log.Debug("Duplicate webhook delivery")
			return DeliveryDuplicate, nil, t.Slug
		}
	}

	wr, err := conn.HandleWebhook(ctx, integration.TenantRef{ID: t.ID, Slug: t.Slug}, cfg, d.EventType, d.Body)
	switch {
	case err == nil:
		if wr == nil || wr.Ignored {
			if wr == nil {
				wr = &integration.WebhookResult{Ignored: true}
			}
			return DeliveryIgnored, wr, t.Slug
		}
		log.Info("Webhook event handled",
			zap.String("event", wr.EventKind),
			zap.Bool("feedback_created", wr.FeedbackCreated),
		)
		return DeliveryProcessed, wr, t.Slug
	case errors.Is(err, integration.ErrUnknownEventType):
		log.Info("Ignored unknown webhook event", zap.Error(err))
		return DeliveryIgnored, nil, t.Slug
	case errors.Is(err, integration.ErrMalformedPayload):
		log.Warn("Malformed webhook payload", zap.Error(err))
		return DeliveryMalformed, nil, t.Slug
	case errors.Is(err, integration.ErrTransientIO), errors.Is(err, integration.ErrRateLimited):
		s.release(ctx, log, key)
		log.Warn("Webhook event failed transiently", zap.Error(err))
		return DeliveryRetryLater, nil, t.Slug
	default:
		// sender retries would fail the same way
		log.Error("Webhook event failed", zap.Error(err))
		return DeliveryProcessed, nil, t.Slug
	}
}

func (s *WebhookService) release(ctx context.Context, log *zap.Logger, key string) {
	if s.dedupe == nil {
		return
	}
	if err := s.dedupe.Release(ctx, key); err != nil {
		log.Warn("Failed to release delivery claim", zap.Error(err))
	}
}

func (s *WebhookService) archivePayload(ctx context.Context, d Delivery, tenantSlug string, reason integration.ArchiveReason) {
	if s.archive == nil {
		return
	}
	location, err := s.archive.Archive(ctx, integration.ArchivedPayload{
		Connector:  d.Connector,
		TenantSlug: tenantSlug,
		EventType:  d.EventType,
		Reason:     reason,
		ReceivedAt: s.now().UTC(),
		Body:       d.Body,
	})
	if err != nil {
		s.logger.Warn("Failed to archive webhook payload",
			zap.String("connector", d.Connector.String()),
			zap.String("reason", string(reason)),
			zap.Error(err),
		)
		return
	}
	if location != "" {
		s.logger.Info("Archived webhook payload",
			zap.String("connector", d.Connector.String()),
			zap.String("reason", string(reason)),
			zap.String("location", location),
		)
	}
}

// deliveryKey identifies a body delivered to one config
func deliveryKey(name integration.ConnectorName, configID uuid.UUID, body []byte) string {
	h := sha256.New()
	h.Write([]byte(name))
	h.Write([]byte{0})
	h.Write(configID[:])
	h.Write([]byte{0})
	h.Write(body)
	return "webhook:" + hex.EncodeToString(h.Sum(nil))
}
