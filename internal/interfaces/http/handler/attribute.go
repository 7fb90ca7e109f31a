package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appcatalog "github.com/feedsync/backend/internal/application/catalog"
	"github.com/feedsync/backend/internal/domain/catalog"
	"github.com/feedsync/backend/internal/domain/integration"
	"github.com/feedsync/backend/internal/domain/shared"
	"github.com/feedsync/backend/internal/domain/tenant"
	"github.com/feedsync/backend/internal/interfaces/http/dto"
)

// AttributeHandler exposes a tenant's attribute catalog
type AttributeHandler struct {
	BaseHandler
	scope   tenantScope
	service *appcatalog.Service
}

// NewAttributeHandler creates a new AttributeHandler
func NewAttributeHandler(tenants tenant.Repository, service *appcatalog.Service) *AttributeHandler {
	return &AttributeHandler{scope: tenantScope{tenants}, service: service}
}

// AttributeResponse is the API view of an attribute definition
type AttributeResponse struct {
	ID            uuid.UUID                 `json:"id"`
	Connector     integration.ConnectorName `json:"connector"`
	EntityKind    catalog.EntityKind        `json:"entity_kind"`
	Name          string                    `json:"name"`
	FriendlyName  string                    `json:"friendly_name"`
	ValueType     catalog.ValueType         `json:"value_type"`
	Widget        catalog.Widget            `json:"widget"`
	IsMRR         bool                      `json:"is_mrr"`
	IsPlan        bool                      `json:"is_plan"`
	IsCustom      bool                      `json:"is_custom"`
	ShowInFilters bool                      `json:"show_in_filters"`
	UpdatedAt     time.Time                 `json:"updated_at"`
}

func toAttributeResponse(d *catalog.AttributeDefinition) AttributeResponse {
	return AttributeResponse{
		ID:            d.ID,
		Connector:     d.Connector,
		EntityKind:    d.EntityKind,
		Name:          d.Name,
		FriendlyName:  d.FriendlyName,
		ValueType:     d.ValueType,
		Widget:        d.Widget,
		IsMRR:         d.IsMRR,
		IsPlan:        d.IsPlan,
		IsCustom:      d.IsCustom,
		ShowInFilters: d.ShowInFilters,
		UpdatedAt:     d.UpdatedAt,
	}
}

// List returns a page of the tenant's attribute definitions
func (h *AttributeHandler) List(c *gin.Context) {
	t, ok := h.scope.resolve(&h.BaseHandler, c)
	if !ok {
		return
	}
	req := dto.DefaultListRequest()
	req.OrderBy = "name"
	req.OrderDir = "asc"
	if !h.bindQuery(c, &req) {
		return
	}

	filter := shared.Filter{
		Page:     req.Page,
		PageSize: req.PageSize,
		OrderBy:  req.OrderBy,
		OrderDir: req.OrderDir,
		Search:   req.Search,
	}
	defs, total, err := h.service.ListDefinitions(c.Request.Context(), t.ID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	out := make([]AttributeResponse, len(defs))
	for i := range defs {
		out[i] = toAttributeResponse(&defs[i])
	}
	h.SuccessWithMeta(c, out, total, req.Page, req.PageSize)
}

// SetMRR makes the attribute the tenant's revenue attribute
func (h *AttributeHandler) SetMRR(c *gin.Context) {
	h.setFlag(c, h.service.SetMRR)
}

// SetPlan makes the attribute the tenant's plan attribute
func (h *AttributeHandler) SetPlan(c *gin.Context) {
	h.setFlag(c, h.service.SetPlan)
}

func (h *AttributeHandler) setFlag(c *gin.Context, set func(ctx context.Context, tenantID, definitionID uuid.UUID) (*catalog.AttributeDefinition, error)) {
	t, ok := h.scope.resolve(&h.BaseHandler, c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	def, err := set(c.Request.Context(), t.ID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toAttributeResponse(def))
}
