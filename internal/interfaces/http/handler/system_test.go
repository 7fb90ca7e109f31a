package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemHandler_Health(t *testing.T) {
	h := NewSystemHandler("1.2.3", nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/health", nil)
	h.Health(c)

	require.Equal(t, http.StatusOK, w.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)
	assert.NotEmpty(t, resp.GoVersion)
}

func TestSystemHandler_Ready(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]Pinger
		status int
		want   map[string]string
	}{
		{
			name:   "no checks",
			status: http.StatusOK,
			want:   map[string]string{},
		},
		{
			name: "all healthy",
			checks: map[string]Pinger{
				"database": PingerFunc(func() error { return nil }),
				"redis":    PingerFunc(func() error { return nil }),
			},
			status: http.StatusOK,
			want:   map[string]string{"database": "ok", "redis": "ok"},
		},
		{
			name: "one failing",
			checks: map[string]Pinger{
				"database": PingerFunc(func() error { return nil }),
				"redis":    PingerFunc(func() error { return errors.New("connection refused") }),
			},
			status: http.StatusServiceUnavailable,
			want:   map[string]string{"database": "ok", "redis": "connection refused"},
		},
		{
			name: "hanging check",
			checks: map[string]Pinger{
				"database": PingerFunc(func() error { time.Sleep(5 * time.Second); return nil }),
			},
			status: http.StatusServiceUnavailable,
			want:   map[string]string{"database": "timeout"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewSystemHandler("dev", tt.checks)
			r := gin.New()
			r.GET("/ready", h.Ready)

			w := perform(r, http.MethodGet, "/ready", nil)

			assert.Equal(t, tt.status, w.Code)
			var resp ReadyResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.want, resp.Checks)
		})
	}
}
