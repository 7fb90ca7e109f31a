package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appintegration "github.com/feedsync/backend/internal/application/integration"
	"github.com/feedsync/backend/internal/domain/integration"
	"github.com/feedsync/backend/internal/infrastructure/logger"
	"github.com/feedsync/backend/internal/interfaces/http/dto"
)

// Webhook request headers
const (
	HeaderHubSignature     = "X-Hub-Signature"
	HeaderSignature        = "X-Signature"
	HeaderRequestTimestamp = "X-Request-Timestamp"
	HeaderHelpScoutEvent   = "X-HelpScout-Event"
)

// WebhookReceiver is the gateway's view of the webhook service
type WebhookReceiver interface {
	Receive(ctx context.Context, d appintegration.Delivery) (*appintegration.ReceiveResult, error)
}

// WebhookHandler is the public ingestion endpoint for pushed source events
type WebhookHandler struct {
	BaseHandler
	service WebhookReceiver
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(service WebhookReceiver) *WebhookHandler {
	return &WebhookHandler{service: service}
}

// WebhookAck is the body of a 200 reply. Callers are not authenticated
// users, so it carries no stored record ids.
type WebhookAck struct {
	Status string `json:"status"`
	Event  string `json:"event,omitempty"`
}

// Intercom handles POST /webhooks/intercom
func (h *WebhookHandler) Intercom(c *gin.Context) {
	h.receive(c, integration.ConnectorIntercom)
}

// HelpScout handles POST /webhooks/helpscout/:secret
func (h *WebhookHandler) HelpScout(c *gin.Context) {
	h.receive(c, integration.ConnectorHelpScout)
}

// Segment handles POST /webhooks/segment
func (h *WebhookHandler) Segment(c *gin.Context) {
	h.receive(c, integration.ConnectorSegment)
}

func (h *WebhookHandler) receive(c *gin.Context, name integration.ConnectorName) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.Error(c, dto.ErrCodePayloadTooLarge, "Request body exceeds maximum allowed size")
			return
		}
		h.BadRequest(c, "Could not read request body")
		return
	}

	basicUser, _, _ := c.Request.BasicAuth()
	d := appintegration.Delivery{
		Connector:    name,
		PathSecret:   c.Param("secret"),
		BasicUser:    basicUser,
		HubSignature: c.GetHeader(HeaderHubSignature),
		Signature:    c.GetHeader(HeaderSignature),
		Timestamp:    c.GetHeader(HeaderRequestTimestamp),
		EventType:    c.GetHeader(HeaderHelpScoutEvent),
		Body:         body,
	}

	result, err := h.service.Receive(c.Request.Context(), d)
	switch {
	case errors.Is(err, integration.ErrWebhookUnauthorized):
		h.Error(c, dto.ErrCodeUnauthorized, "Unauthorized")
		return
	case err != nil:
		h.HandleError(c, err)
		return
	}

	logger.FromContext(c.Request.Context()).Debug("Webhook delivery handled",
		zap.String("connector", name.String()),
		zap.String("status", result.Status.String()),
		zap.Int("configs", result.Configs),
		zap.Int("feedback", len(result.FeedbackIDs)))

	switch result.Status {
	case appintegration.DeliveryIgnored:
		h.NoContent(c)
	case appintegration.DeliveryMalformed:
		h.Error(c, dto.ErrCodeBadRequest, "Malformed payload")
	case appintegration.DeliveryRetryLater:
		c.Header("Retry-After", "30")
		h.Error(c, dto.ErrCodeUnavailable, "Temporarily unable to process the delivery")
	default:
		h.Success(c, WebhookAck{
			Status: result.Status.String(),
			Event:  result.EventKind,
		})
	}
}
