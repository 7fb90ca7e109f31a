package handler

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appintegration "github.com/feedsync/backend/internal/application/integration"
	"github.com/feedsync/backend/internal/domain/integration"
	"github.com/feedsync/backend/internal/domain/tenant"
	"github.com/feedsync/backend/internal/infrastructure/scheduler"
	"github.com/feedsync/backend/internal/interfaces/http/dto"
)

// SyncTrigger starts manual syncs
type SyncTrigger interface {
	TriggerManualSync(ctx context.Context, tenantID uuid.UUID, connector integration.ConnectorName, fullResync bool) (*scheduler.SyncJob, error)
}

// ConnectionHandler manages a tenant's connectors
type ConnectionHandler struct {
	BaseHandler
	scope    tenantScope
	service  *appintegration.ConnectionService
	configs  integration.ImporterConfigRepository
	triggers SyncTrigger
}

// NewConnectionHandler creates a new ConnectionHandler. triggers may be nil
// when the scheduler is disabled; manual syncs are then rejected.
func NewConnectionHandler(
	tenants tenant.Repository,
	service *appintegration.ConnectionService,
	configs integration.ImporterConfigRepository,
	triggers SyncTrigger,
) *ConnectionHandler {
	return &ConnectionHandler{
		scope:    tenantScope{tenants},
		service:  service,
		configs:  configs,
		triggers: triggers,
	}
}

// ConnectResponse is returned once, when a connector is connected. The
// webhook secret is shown only here.
type ConnectResponse struct {
	appintegration.ImporterConfigResponse
	WebhookSecret string `json:"webhook_secret"`
}

// OAuthCallbackRequest carries the authorization code of the OAuth redirect
type OAuthCallbackRequest struct {
	Code string `json:"code" binding:"required,max=2048"`
}

// SyncRequest is the optional body of a manual sync
type SyncRequest struct {
	FullResync bool `json:"full_resync"`
}

// SyncJobResponse is the API view of a sync job
type SyncJobResponse struct {
	ID          uuid.UUID                 `json:"id"`
	TenantID    uuid.UUID                 `json:"tenant_id"`
	ConfigID    uuid.UUID                 `json:"config_id"`
	Connector   integration.ConnectorName `json:"connector"`
	FullResync  bool                      `json:"full_resync"`
	Trigger     string                    `json:"trigger"`
	Status      scheduler.SyncJobStatus   `json:"status"`
	Error       string                    `json:"error,omitempty"`
	RetryCount  int                       `json:"retry_count"`
	SubmittedAt time.Time                 `json:"submitted_at"`
	StartedAt   *time.Time                `json:"started_at,omitempty"`
	CompletedAt *time.Time                `json:"completed_at,omitempty"`
	Result      SyncResultResponse        `json:"result"`
}

// SyncResultResponse counts what a finished job wrote
type SyncResultResponse struct {
	PeopleUpserted        int `json:"people_upserted"`
	OrganizationsUpserted int `json:"organizations_upserted"`
	FeedbackCreated       int `json:"feedback_created"`
	Pages                 int `json:"pages"`
	Skipped               int `json:"skipped"`
}

func toSyncJobResponse(j *scheduler.SyncJob) SyncJobResponse {
	return SyncJobResponse{
		ID:          j.ID,
		TenantID:    j.TenantID,
		ConfigID:    j.ConfigID,
		Connector:   j.Connector,
		FullResync:  j.FullResync,
		Trigger:     j.Trigger,
		Status:      j.Status,
		Error:       j.Error,
		RetryCount:  j.RetryCount,
		SubmittedAt: j.SubmittedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
		Result: SyncResultResponse{
			PeopleUpserted:        j.Result.PeopleUpserted,
			OrganizationsUpserted: j.Result.OrganizationsUpserted,
			FeedbackCreated:       j.Result.FeedbackCreated,
			Pages:                 j.Result.Pages,
			Skipped:               j.Result.Skipped,
		},
	}
}

// List returns the tenant's importer configs
func (h *ConnectionHandler) List(c *gin.Context) {
	t, ok := h.scope.resolve(&h.BaseHandler, c)
	if !ok {
		return
	}
	configs, err := h.configs.FindForTenant(c.Request.Context(), t.ID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	out := make([]appintegration.ImporterConfigResponse, len(configs))
	for i := range configs {
		out[i] = appintegration.ToImporterConfigResponse(&configs[i], h.webhookURL(&configs[i]))
	}
	h.SuccessList(c, out, len(out), 0)
}

// Connect creates the tenant's config for a connector
func (h *ConnectionHandler) Connect(c *gin.Context) {
	t, ok := h.scope.resolve(&h.BaseHandler, c)
	if !ok {
		return
	}
	name, ok := h.connectorParam(c)
	if !ok {
		return
	}
	var in appintegration.ConnectInput
	if !h.bindJSON(c, &in) {
		return
	}

	cfg, err := h.service.Connect(c.Request.Context(), t.ID, name, in)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, ConnectResponse{
		ImporterConfigResponse: appintegration.ToImporterConfigResponse(cfg, h.webhookURL(cfg)),
		WebhookSecret:          cfg.WebhookSecret,
	})
}

// CompleteOAuth finishes the OAuth flow with the code the source redirected with
func (h *ConnectionHandler) CompleteOAuth(c *gin.Context) {
	t, ok := h.scope.resolve(&h.BaseHandler, c)
	if !ok {
		return
	}
	name, ok := h.connectorParam(c)
	if !ok {
		return
	}
	var req OAuthCallbackRequest
	if !h.bindJSON(c, &req) {
		return
	}

	cfg, err := h.service.CompleteOAuth(c.Request.Context(), t.ID, name, req.Code)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, appintegration.ToImporterConfigResponse(cfg, h.webhookURL(cfg)))
}

// Disconnect deletes the tenant's config for a connector
func (h *ConnectionHandler) Disconnect(c *gin.Context) {
	t, ok := h.scope.resolve(&h.BaseHandler, c)
	if !ok {
		return
	}
	name, ok := h.connectorParam(c)
	if !ok {
		return
	}
	if err := h.service.Disconnect(c.Request.Context(), t.ID, name); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// Sync queues a manual sync of one connector
func (h *ConnectionHandler) Sync(c *gin.Context) {
	t, ok := h.scope.resolve(&h.BaseHandler, c)
	if !ok {
		return
	}
	name, ok := h.connectorParam(c)
	if !ok {
		return
	}
	var req SyncRequest
	if c.Request.ContentLength > 0 && !h.bindJSON(c, &req) {
		return
	}
	if h.triggers == nil {
		h.Error(c, dto.ErrCodeUnavailable, "The sync scheduler is disabled")
		return
	}

	job, err := h.triggers.TriggerManualSync(c.Request.Context(), t.ID, name, req.FullResync)
	if err != nil {
		h.handleSyncError(c, err)
		return
	}
	h.Accepted(c, toSyncJobResponse(job))
}

func (h *ConnectionHandler) handleSyncError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, scheduler.ErrSyncInProgress):
		h.Error(c, dto.ErrCodeSyncInProgress, "A sync is already queued or running for this connector")
	case errors.Is(err, scheduler.ErrSyncConfigDisabled):
		h.Error(c, dto.ErrCodeInvalidState, "The connector is disabled")
	case errors.Is(err, scheduler.ErrSchedulerNotRunning), errors.Is(err, scheduler.ErrJobQueueFull):
		h.Error(c, dto.ErrCodeUnavailable, "The sync scheduler cannot accept jobs right now")
	default:
		h.HandleError(c, err)
	}
}

// webhookURL is set only for connectors addressed by a per-config URL
func (h *ConnectionHandler) webhookURL(cfg *integration.ImporterConfig) string {
	if cfg.Connector != integration.ConnectorHelpScout {
		return ""
	}
	return h.service.CallbackURL(cfg)
}
