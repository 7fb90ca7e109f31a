package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedsync/backend/internal/interfaces/http/dto"
)

type validationProbe struct {
	Username string `json:"username" binding:"required"`
	Interval int    `json:"sync_interval_minutes" binding:"omitempty,min=5"`
	Mailbox  string `json:"mailbox_id" binding:"omitempty,numeric"`
}

func newValidationRouter() *gin.Engine {
	SetupValidator()
	router := gin.New()
	router.Use(RequestID())
	router.POST("/test", func(c *gin.Context) {
		var req validationProbe
		if err := c.ShouldBindJSON(&req); err != nil {
			HandleValidationError(c, err)
			return
		}
		c.Status(http.StatusOK)
	})
	return router
}

func postJSON(router *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandleValidationError_FieldErrors(t *testing.T) {
	w := postJSON(newValidationRouter(), `{"sync_interval_minutes": 1, "mailbox_id": "inbox"}`)

	require.Equal(t, http.StatusBadRequest, w.Code)
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
	assert.Equal(t, w.Header().Get(RequestIDHeader), resp.Error.RequestID)

	byField := map[string]dto.ValidationDetail{}
	for _, d := range resp.Error.Details {
		byField[d.Field] = d
	}
	require.Len(t, byField, 3)
	assert.Equal(t, dto.ErrCodeValidationRequired, byField["username"].Code)
	assert.Equal(t, "Must be at least 5", byField["sync_interval_minutes"].Message)
	assert.Equal(t, dto.ErrCodeValidationRange, byField["sync_interval_minutes"].Code)
	assert.Equal(t, "Must be numeric", byField["mailbox_id"].Message)
}

func TestHandleValidationError_MalformedJSON(t *testing.T) {
	w := postJSON(newValidationRouter(), `{"username":`)

	require.Equal(t, http.StatusBadRequest, w.Code)
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, dto.ErrCodeInvalidJSON, resp.Error.Code)
	assert.Empty(t, resp.Error.Details)
}

func TestHandleValidationError_Valid(t *testing.T) {
	w := postJSON(newValidationRouter(), `{"username":"ops","mailbox_id":"42"}`)

	assert.Equal(t, http.StatusOK, w.Code)
}
