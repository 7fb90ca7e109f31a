package connector

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/feedsync/backend/internal/domain/integration"
)

// MockTokenStore is a mock implementation of integration.TokenStore
type MockTokenStore struct {
	mock.Mock
}

func (m *MockTokenStore) SaveCredentials(ctx context.Context, configID uuid.UUID, creds integration.Credentials) error {
	args := m.Called(ctx, configID, creds)
	return args.Error(0)
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestOAuthClient(srvURL string, store integration.TokenStore) *OAuthClient {
	api := NewAPIClient(srvURL, ClientOptions{}, zap.NewNop())
	o := NewOAuthClient(OAuthConfig{
		TokenURL:     srvURL + "/oauth2/token",
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "https://app.example.com/callback",
	}, api, store, zap.NewNop())
	o.now = func() time.Time { return fixedNow }
	return o
}

func TestOAuthClient_Exchange(t *testing.T) {
	srv := newSourceServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "/oauth2/token", r.URL.Path)
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		assert.Equal(t, "the-code", r.PostForm.Get("code"))
		assert.Equal(t, "client", r.PostForm.Get("client_id"))
		assert.Equal(t, "https://app.example.com/callback", r.PostForm.Get("redirect_uri"))
		writeJSON(w, http.StatusOK, `{"access_token":"at","refresh_token":"rt","expires_in":7200}`)
	})
	o := newTestOAuthClient(srv.URL, &MockTokenStore{})

	creds, err := o.Exchange(context.Background(), "the-code")

	require.NoError(t, err)
	assert.Equal(t, "at", creds.AccessToken)
	assert.Equal(t, "rt", creds.RefreshToken)
	require.NotNil(t, creds.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(2*time.Hour), *creds.ExpiresAt, time.Minute)
}

func TestOAuthClient_Exchange_LongLivedToken(t *testing.T) {
	srv := newSourceServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"token":"forever","access_token":"forever","token_type":"Bearer"}`)
	})
	o := newTestOAuthClient(srv.URL, &MockTokenStore{})

	creds, err := o.Exchange(context.Background(), "code")

	require.NoError(t, err)
	assert.Equal(t, "forever", creds.AccessToken)
	assert.Nil(t, creds.ExpiresAt)
}

func TestOAuthClient_Exchange_RejectedCodeIsAuthError(t *testing.T) {
	srv := newSourceServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, `{"error":"invalid_grant"}`)
	})
	o := newTestOAuthClient(srv.URL, &MockTokenStore{})

	_, err := o.Exchange(context.Background(), "stale")
	assert.ErrorIs(t, err, integration.ErrAuth)

	_, err = o.Exchange(context.Background(), " ")
	assert.ErrorIs(t, err, integration.ErrAuth)
}

func TestOAuthClient_Exchange_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"server error is transient", http.StatusBadGateway, `{}`, integration.ErrTransientIO},
		{"throttled is transient", http.StatusTooManyRequests, `{}`, integration.ErrTransientIO},
		{"revoked client is auth", http.StatusUnauthorized, `{"error":"invalid_client"}`, integration.ErrAuth},
		{"missing access token is auth", http.StatusOK, `{"token_type":"Bearer"}`, integration.ErrAuth},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newSourceServer(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, tt.body)
			})
			o := newTestOAuthClient(srv.URL, &MockTokenStore{})

			_, err := o.Exchange(context.Background(), "code")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestOAuthClient_Refresh_KeepsRefreshTokenWhenNotRotated(t *testing.T) {
	srv := newSourceServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "rt", r.PostForm.Get("refresh_token"))
		writeJSON(w, http.StatusOK, `{"access_token":"new","expires_in":60}`)
	})
	o := newTestOAuthClient(srv.URL, &MockTokenStore{})

	creds, err := o.Refresh(context.Background(), "rt")

	require.NoError(t, err)
	assert.Equal(t, "new", creds.AccessToken)
	assert.Equal(t, "rt", creds.RefreshToken)

	_, err = o.Refresh(context.Background(), "")
	assert.ErrorIs(t, err, integration.ErrAuth)
}

func TestOAuthClient_Do_RefreshesOnceOn401AndPersists(t *testing.T) {
	var apiCalls atomic.Int32
	srv := newSourceServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth2/token":
			writeJSON(w, http.StatusOK, `{"access_token":"fresh","refresh_token":"rt2","expires_in":7200}`)
		case "/v2/customers":
			apiCalls.Add(1)
			if r.Header.Get("Authorization") != "Bearer fresh" {
				writeJSON(w, http.StatusUnauthorized, `{}`)
				return
			}
			writeJSON(w, http.StatusOK, `{"ok":true}`)
		}
	})

	store := &MockTokenStore{}
	cfg := &integration.ImporterConfig{Connector: integration.ConnectorHelpScout}
	cfg.ID = uuid.New()
	cfg.Credentials = integration.Credentials{AccessToken: "stale", RefreshToken: "rt", APIKey: "kept"}
	store.On("SaveCredentials", mock.Anything, cfg.ID, mock.MatchedBy(func(c integration.Credentials) bool {
		return c.AccessToken == "fresh" && c.RefreshToken == "rt2" && c.APIKey == "kept"
	})).Return(nil).Once()

	o := newTestOAuthClient(srv.URL, store)
	resp, err := o.Do(context.Background(), cfg, Request{Method: http.MethodGet, Path: "/v2/customers"})

	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(resp.Body))
	assert.Equal(t, int32(2), apiCalls.Load())
	assert.Equal(t, "fresh", cfg.Credentials.AccessToken)
	store.AssertExpectations(t)
}

func TestOAuthClient_Do_SecondRejectionIsAuthError(t *testing.T) {
	var apiCalls atomic.Int32
	srv := newSourceServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth2/token" {
			writeJSON(w, http.StatusOK, `{"access_token":"still-bad"}`)
			return
		}
		apiCalls.Add(1)
		writeJSON(w, http.StatusUnauthorized, `{}`)
	})

	store := &MockTokenStore{}
	store.On("SaveCredentials", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	cfg := &integration.ImporterConfig{Connector: integration.ConnectorHelpScout}
	cfg.ID = uuid.New()
	cfg.Credentials = integration.Credentials{AccessToken: "stale", RefreshToken: "rt"}

	o := newTestOAuthClient(srv.URL, store)
	_, err := o.Do(context.Background(), cfg, Request{Path: "/v2/customers"})

	assert.ErrorIs(t, err, integration.ErrAuth)
	assert.Contains(t, err.Error(), "rejected after token refresh")
	assert.Equal(t, int32(2), apiCalls.Load())
	store.AssertNumberOfCalls(t, "SaveCredentials", 1)
}

func TestOAuthClient_Do_RefreshesExpiredTokenUpFront(t *testing.T) {
	var tokenCalls atomic.Int32
	srv := newSourceServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth2/token" {
			tokenCalls.Add(1)
			writeJSON(w, http.StatusOK, `{"access_token":"fresh","expires_in":7200}`)
			return
		}
		assert.Equal(t, "Bearer fresh", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, `{}`)
	})

	store := &MockTokenStore{}
	store.On("SaveCredentials", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	expired := fixedNow.Add(-time.Minute)
	cfg := &integration.ImporterConfig{}
	cfg.ID = uuid.New()
	cfg.Credentials = integration.Credentials{AccessToken: "old", RefreshToken: "rt", ExpiresAt: &expired}

	o := newTestOAuthClient(srv.URL, store)
	_, err := o.Do(context.Background(), cfg, Request{Path: "/v2/users/me"})

	require.NoError(t, err)
	assert.Equal(t, int32(1), tokenCalls.Load())
}

func TestOAuthClient_Do_NoRefreshTokenFailsAuth(t *testing.T) {
	srv := newSourceServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, `{}`)
	})
	cfg := &integration.ImporterConfig{}
	cfg.Credentials = integration.Credentials{APIKey: "revoked"}

	o := newTestOAuthClient(srv.URL, &MockTokenStore{})
	_, err := o.Do(context.Background(), cfg, Request{Path: "/me"})

	assert.ErrorIs(t, err, integration.ErrAuth)
}

func TestOAuthClient_Do_PersistFailureStopsTheCall(t *testing.T) {
	var apiCalls atomic.Int32
	srv := newSourceServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth2/token" {
			writeJSON(w, http.StatusOK, `{"access_token":"fresh"}`)
			return
		}
		apiCalls.Add(1)
		writeJSON(w, http.StatusUnauthorized, `{}`)
	})

	store := &MockTokenStore{}
	store.On("SaveCredentials", mock.Anything, mock.Anything, mock.Anything).Return(assert.AnError)
	cfg := &integration.ImporterConfig{}
	cfg.ID = uuid.New()
	cfg.Credentials = integration.Credentials{AccessToken: "stale", RefreshToken: "rt"}

	o := newTestOAuthClient(srv.URL, store)
	_, err := o.Do(context.Background(), cfg, Request{Path: "/v2/customers"})

	assert.ErrorIs(t, err, assert.AnError)
	assert.NotErrorIs(t, err, integration.ErrAuth)
	assert.Equal(t, int32(1), apiCalls.Load())
	assert.Equal(t, "stale", cfg.Credentials.AccessToken, "unsaved credentials are not used")
}
