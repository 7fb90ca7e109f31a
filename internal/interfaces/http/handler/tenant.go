package handler

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/feedsync/backend/internal/domain/shared"
	"github.com/feedsync/backend/internal/domain/tenant"
	"github.com/feedsync/backend/internal/interfaces/http/dto"
)

// TenantHandler manages the tenants of the hosting system
type TenantHandler struct {
	BaseHandler
	tenants tenant.Repository
}

// NewTenantHandler creates a new TenantHandler
func NewTenantHandler(tenants tenant.Repository) *TenantHandler {
	return &TenantHandler{tenants: tenants}
}

// CreateTenantRequest is the body of POST /tenants
type CreateTenantRequest struct {
	Name string `json:"name" binding:"required,max=200"`
	Slug string `json:"slug" binding:"required,min=2,max=63,hostname_rfc1123"`
}

// TenantResponse is the API view of a tenant
type TenantResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
}

func toTenantResponse(t *tenant.Tenant) TenantResponse {
	return TenantResponse{
		ID:        t.ID,
		Name:      t.Name,
		Slug:      t.Slug,
		CreatedAt: t.CreatedAt,
	}
}

// Create registers a tenant
func (h *TenantHandler) Create(c *gin.Context) {
	var req CreateTenantRequest
	if !h.bindJSON(c, &req) {
		return
	}

	t, err := tenant.NewTenant(req.Name, req.Slug)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	ctx := c.Request.Context()
	if _, err := h.tenants.FindBySlug(ctx, t.Slug); err == nil {
		h.Error(c, dto.ErrCodeAlreadyExists, "A tenant with this slug already exists")
		return
	} else if !errors.Is(err, shared.ErrNotFound) {
		h.HandleError(c, err)
		return
	}

	if err := h.tenants.Save(ctx, t); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, toTenantResponse(t))
}

// List returns every tenant
func (h *TenantHandler) List(c *gin.Context) {
	tenants, err := h.tenants.FindAll(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	out := make([]TenantResponse, len(tenants))
	for i := range tenants {
		out[i] = toTenantResponse(&tenants[i])
	}
	h.SuccessList(c, out, len(out), 0)
}

// Get returns one tenant by slug
func (h *TenantHandler) Get(c *gin.Context) {
	t, ok := tenantScope{h.tenants}.resolve(&h.BaseHandler, c)
	if !ok {
		return
	}
	h.Success(c, toTenantResponse(t))
}
