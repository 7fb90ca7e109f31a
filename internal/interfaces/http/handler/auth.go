package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/feedsync/backend/internal/application/identity"
	"github.com/feedsync/backend/internal/interfaces/http/dto"
	"github.com/feedsync/backend/internal/interfaces/http/middleware"
)

// AuthHandler handles operator login for the admin API
type AuthHandler struct {
	BaseHandler
	authService *identity.AuthService
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *identity.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// LoginRequest is the body of POST /auth/login
type LoginRequest struct {
	Username string `json:"username" binding:"required,max=100"`
	Password string `json:"password" binding:"required,max=200"`
}

// CurrentOperatorResponse describes the caller of GET /auth/me
type CurrentOperatorResponse struct {
	Operator  string `json:"operator"`
	Role      string `json:"role"`
	ExpiresAt int64  `json:"expires_at"`
}

// Login exchanges the admin credentials for an access token
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if !h.bindJSON(c, &req) {
		return
	}

	result, err := h.authService.Login(c.Request.Context(), identity.LoginInput{
		Username: req.Username,
		Password: req.Password,
		IP:       c.ClientIP(),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// Me returns the authenticated operator
func (h *AuthHandler) Me(c *gin.Context) {
	claims := middleware.GetJWTClaims(c)
	if claims == nil {
		h.Error(c, dto.ErrCodeUnauthorized, "Authentication required")
		return
	}
	resp := CurrentOperatorResponse{
		Operator: claims.Operator(),
		Role:     claims.Role,
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		resp.ExpiresAt = exp.Unix()
	}
	h.Success(c, resp)
}
