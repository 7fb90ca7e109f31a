package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/feedsync/backend/internal/application/identity"
	"github.com/feedsync/backend/internal/domain/customer"
	"github.com/feedsync/backend/internal/domain/tenant"
	"github.com/feedsync/backend/internal/interfaces/http/dto"
)

// PeopleHandler exposes manual identity reconciliation
type PeopleHandler struct {
	BaseHandler
	scope    tenantScope
	resolver *identity.Resolver
}

// NewPeopleHandler creates a new PeopleHandler
func NewPeopleHandler(tenants tenant.Repository, resolver *identity.Resolver) *PeopleHandler {
	return &PeopleHandler{scope: tenantScope{tenants}, resolver: resolver}
}

// MergeRequest names the two people to merge
type MergeRequest struct {
	KeepID    uuid.UUID `json:"keep_id"`
	DiscardID uuid.UUID `json:"discard_id"`
}

// PersonResponse is the API view of a person
type PersonResponse struct {
	ID             uuid.UUID      `json:"id"`
	SourceID       string         `json:"source_id,omitempty"`
	ExternalID     string         `json:"external_id,omitempty"`
	Email          string         `json:"email,omitempty"`
	Name           string         `json:"name,omitempty"`
	Phone          string         `json:"phone,omitempty"`
	OrganizationID *uuid.UUID     `json:"organization_id,omitempty"`
	Attributes     map[string]any `json:"attributes,omitempty"`
	LastSeenAt     *time.Time     `json:"last_seen_at,omitempty"`
}

// MergeResponse is the outcome of a merge
type MergeResponse struct {
	Person              PersonResponse `json:"person"`
	OrganizationDeleted bool           `json:"organization_deleted"`
}

func toPersonResponse(p *customer.Person) PersonResponse {
	return PersonResponse{
		ID:             p.ID,
		SourceID:       p.SourceID,
		ExternalID:     p.ExternalID,
		Email:          p.Email,
		Name:           p.Name,
		Phone:          p.Phone,
		OrganizationID: p.OrganizationID,
		Attributes:     p.Attributes,
		LastSeenAt:     p.LastSeenAt,
	}
}

// Merge folds one person into another
func (h *PeopleHandler) Merge(c *gin.Context) {
	t, ok := h.scope.resolve(&h.BaseHandler, c)
	if !ok {
		return
	}
	var req MergeRequest
	if !h.bindJSON(c, &req) {
		return
	}
	if req.KeepID == uuid.Nil || req.DiscardID == uuid.Nil {
		h.Error(c, dto.ErrCodeInvalidInput, "keep_id and discard_id are required")
		return
	}
	if req.KeepID == req.DiscardID {
		h.Error(c, dto.ErrCodeInvalidInput, "A person cannot be merged into itself")
		return
	}

	result, err := h.resolver.Merge(c.Request.Context(), t.ID, req.KeepID, req.DiscardID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, MergeResponse{
		Person:              toPersonResponse(result.Person),
		OrganizationDeleted: result.OrganizationDeleted,
	})
}
