package connector

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/feedsync/backend/internal/domain/integration"
	"github.com/feedsync/backend/internal/domain/shared"
)

func TestAPIClient_Do_MapsStatusCodes(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		headers map[string]string
		want    error
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, want: integration.ErrAuth},
		{name: "forbidden", status: http.StatusForbidden, want: integration.ErrAuth},
		{name: "not found", status: http.StatusNotFound, want: shared.ErrNotFound},
		{name: "rate limited", status: http.StatusTooManyRequests, headers: map[string]string{"Retry-After": "3"}, want: integration.ErrRateLimited},
		{name: "server error", status: http.StatusInternalServerError, want: integration.ErrTransientIO},
		{name: "bad gateway", status: http.StatusBadGateway, want: integration.ErrTransientIO},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newSourceServer(t, func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.headers {
					w.Header().Set(k, v)
				}
				writeJSON(w, tt.status, `{"errors":[{"code":"x"}]}`)
			})
			c := NewAPIClient(srv.URL, ClientOptions{}, zap.NewNop())

			_, err := c.Do(context.Background(), Request{Path: "/anything"})

			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestAPIClient_Do_RateLimitCarriesRetryAfter(t *testing.T) {
	srv := newSourceServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		writeJSON(w, http.StatusTooManyRequests, `{}`)
	})
	c := NewAPIClient(srv.URL, ClientOptions{}, zap.NewNop())

	_, err := c.Do(context.Background(), Request{Path: "/contacts"})

	wait, ok := integration.RetryAfter(err)
	require.True(t, ok)
	assert.Equal(t, 7*time.Second, wait)
}

func TestAPIClient_Do_ClientErrorKeepsStatus(t *testing.T) {
	srv := newSourceServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, `{"message":"bad sort field"}`)
	})
	c := NewAPIClient(srv.URL, ClientOptions{}, zap.NewNop())

	_, err := c.Do(context.Background(), Request{Path: "/customers"})

	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, StatusCode(err))
	assert.False(t, errors.Is(err, integration.ErrTransientIO))
	assert.Contains(t, err.(*HTTPError).Body, "bad sort field")
}

func TestAPIClient_Do_SendsAuthQueryAndBody(t *testing.T) {
	var got *http.Request
	var body []byte
	srv := newSourceServer(t, func(w http.ResponseWriter, r *http.Request) {
		got = r
		body, _ = io.ReadAll(r.Body)
		writeJSON(w, http.StatusOK, `{"total": 12}`)
	})
	c := NewAPIClient(srv.URL+"/", ClientOptions{}, zap.NewNop())

	resp, err := c.Do(context.Background(), Request{
		Method:  http.MethodPost,
		Path:    "contacts/search",
		Query:   map[string][]string{"page": {"2"}},
		JSON:    map[string]any{"q": "x"},
		Token:   "tok",
		Headers: map[string]string{"Intercom-Version": "2.10"},
	})
	require.NoError(t, err)

	assert.Equal(t, "/contacts/search", got.URL.Path)
	assert.Equal(t, "2", got.URL.Query().Get("page"))
	assert.Equal(t, "Bearer tok", got.Header.Get("Authorization"))
	assert.Equal(t, "2.10", got.Header.Get("Intercom-Version"))
	assert.Equal(t, "application/json", got.Header.Get("Content-Type"))
	assert.JSONEq(t, `{"q":"x"}`, string(body))

	var out map[string]any
	require.NoError(t, resp.Decode(&out))
	assert.Equal(t, json.Number("12"), out["total"])
}

func TestAPIClient_Do_BasicAuth(t *testing.T) {
	var user, pass string
	srv := newSourceServer(t, func(w http.ResponseWriter, r *http.Request) {
		user, pass, _ = r.BasicAuth()
		writeJSON(w, http.StatusOK, `{}`)
	})
	c := NewAPIClient(srv.URL, ClientOptions{}, zap.NewNop())

	_, err := c.Do(context.Background(), Request{Path: "/", BasicUser: "key", Token: "ignored"})

	require.NoError(t, err)
	assert.Equal(t, "key", user)
	assert.Empty(t, pass)
}

func TestAPIClient_Do_CoolsOffNearRateLimit(t *testing.T) {
	remaining := "2"
	srv := newSourceServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", remaining)
		writeJSON(w, http.StatusOK, `{}`)
	})
	c := NewAPIClient(srv.URL, ClientOptions{RateLimitThreshold: 5, RateLimitCoolOff: 11 * time.Second}, zap.NewNop())
	var slept []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	_, err := c.Do(context.Background(), Request{Path: "/"})
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{11 * time.Second}, slept)

	remaining = "50"
	_, err = c.Do(context.Background(), Request{Path: "/"})
	require.NoError(t, err)
	assert.Len(t, slept, 1)
}

func TestAPIClient_Do_TransportFailureIsTransient(t *testing.T) {
	srv := newSourceServer(t, func(w http.ResponseWriter, r *http.Request) {})
	url := srv.URL
	srv.Close()
	c := NewAPIClient(url, ClientOptions{Timeout: time.Second}, zap.NewNop())

	_, err := c.Do(context.Background(), Request{Path: "/"})

	assert.ErrorIs(t, err, integration.ErrTransientIO)
}

func TestAPIClient_Do_CanceledContext(t *testing.T) {
	srv := newSourceServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{}`)
	})
	c := NewAPIClient(srv.URL, ClientOptions{}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Do(ctx, Request{Path: "/"})

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, integration.ErrTransientIO))
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"short input unchanged", "Zoë", 255, "Zoë"},
		{"ascii cut at limit", "abcdef", 4, "abcd"},
		{"limit inside two-byte rune", strings.Repeat("a", 254) + "é", 255, strings.Repeat("a", 254)},
		{"limit inside four-byte rune", "ab😀", 4, "ab"},
		{"limit on rune boundary", "éé", 2, "é"},
		{"nothing fits", "😀", 3, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.in, tt.n)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
			assert.LessOrEqual(t, len(got), tt.n)
		})
	}
}
