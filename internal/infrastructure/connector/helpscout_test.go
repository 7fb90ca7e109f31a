package connector

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedsync/backend/internal/domain/customer"
	"github.com/feedsync/backend/internal/domain/integration"
	"github.com/feedsync/backend/internal/domain/shared"
	"github.com/feedsync/backend/internal/infrastructure/config"
)

const helpscoutCustomersPage = `{
  "_embedded": {"customers": [
    {"id": 77, "firstName": "Eve", "lastName": "Stone", "organization": "Globex",
     "updatedAt": "2023-11-14T22:20:00Z", "age": 41, "vip": true,
     "_embedded": {"emails": [{"value": "Eve@Globex.com"}], "phones": [{"value": "555-1234"}]}},
    {"id": 78, "firstName": "Old", "lastName": "Timer", "updatedAt": "2023-01-01T00:00:00Z",
     "_embedded": {"emails": [{"value": "old@timer.io"}]}}
  ]},
  "page": {"number": 1, "totalPages": 1}
}`

type fakeHelpScout struct {
	mu          sync.Mutex
	validToken  string
	tokenCalls  int
	created     []map[string]any
	deleted     []string
	listedHooks string
}

func (f *fakeHelpScout) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		if r.URL.Path == "/v2/oauth2/token" {
			f.tokenCalls++
			f.validToken = "fresh"
			writeJSON(w, http.StatusOK, `{"access_token":"fresh","refresh_token":"rt2","expires_in":7200}`)
			return
		}
		if r.Header.Get("Authorization") != "Bearer "+f.validToken {
			writeJSON(w, http.StatusUnauthorized, `{}`)
			return
		}

		switch {
		case r.URL.Path == "/v2/customers":
			assert.Equal(t, "modifiedAt", r.URL.Query().Get("sortField"))
			assert.Equal(t, "desc", r.URL.Query().Get("sortOrder"))
			writeJSON(w, http.StatusOK, helpscoutCustomersPage)
		case r.URL.Path == "/v2/customers/77":
			writeJSON(w, http.StatusOK, `{"id": 77, "firstName": "Eve", "lastName": "Stone", "organization": "Globex",
			  "_embedded": {"emails": [{"value": "eve@globex.com"}]}}`)
		case r.URL.Path == "/v2/users/me":
			writeJSON(w, http.StatusOK, `{"id": 1, "companyId": 31337}`)
		case r.URL.Path == "/v2/webhooks" && r.Method == http.MethodPost:
			raw, _ := io.ReadAll(r.Body)
			var body map[string]any
			require.NoError(t, json.Unmarshal(raw, &body))
			f.created = append(f.created, body)
			w.WriteHeader(http.StatusCreated)
		case r.URL.Path == "/v2/webhooks":
			writeJSON(w, http.StatusOK, f.listedHooks)
		case strings.HasPrefix(r.URL.Path, "/v2/webhooks/") && r.Method == http.MethodDelete:
			f.deleted = append(f.deleted, strings.TrimPrefix(r.URL.Path, "/v2/webhooks/"))
			w.WriteHeader(http.StatusNoContent)
		default:
			writeJSON(w, http.StatusNotFound, `{}`)
		}
	}
}

func newTestHelpScout(t *testing.T, env *testEnv, fake *fakeHelpScout) *HelpScoutConnector {
	t.Helper()
	srv := newSourceServer(t, fake.handler(t))
	return NewHelpScoutConnector(config.ConnectorConfig{
		BaseURL:      srv.URL,
		TokenURL:     srv.URL + "/v2/oauth2/token",
		ClientID:     "id",
		ClientSecret: "secret",
	}, testSyncConfig(), env.deps)
}

func TestHelpScoutConnector_BulkSync_RefreshesAndImports(t *testing.T) {
	env := newTestEnv(t)
	fake := &fakeHelpScout{validToken: "current"}
	c := newTestHelpScout(t, env, fake)
	cfg := env.importerConfig(t, integration.ConnectorHelpScout, integration.Credentials{AccessToken: "stale", RefreshToken: "rt"})
	ctx := context.Background()

	result, err := c.BulkSync(ctx, env.tenant, cfg, true)

	require.NoError(t, err)
	assert.Equal(t, 2, result.PeopleUpserted)
	assert.Equal(t, 1, result.OrganizationsUpserted)
	assert.Equal(t, 1, fake.tokenCalls)

	stored, err := env.configs.FindByID(ctx, env.tenant.ID, cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, "fresh", stored.Credentials.AccessToken)
	assert.Equal(t, "rt2", stored.Credentials.RefreshToken)

	eve, err := env.people.FindBySourceID(ctx, env.tenant.ID, "77")
	require.NoError(t, err)
	assert.Equal(t, "eve@globex.com", eve.Email)
	assert.Equal(t, "Eve Stone", eve.Name)
	assert.Equal(t, "555-1234", eve.Phone)
	assert.Contains(t, eve.Attributes, "age")
	assert.Equal(t, true, eve.Attributes["vip"])
	assert.NotContains(t, eve.Attributes, "firstName")

	globex, err := env.orgs.FindBySourceID(ctx, env.tenant.ID, customer.NormalizeOrganizationName("Globex"))
	require.NoError(t, err)
	require.NotNil(t, eve.OrganizationID)
	assert.Equal(t, globex.ID, *eve.OrganizationID)
}

func TestHelpScoutConnector_BulkSync_StopsAtWatermark(t *testing.T) {
	env := newTestEnv(t)
	c := newTestHelpScout(t, env, &fakeHelpScout{validToken: "tok"})
	cfg := env.importerConfig(t, integration.ConnectorHelpScout, integration.Credentials{AccessToken: "tok"})
	cfg.MarkSynced(time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	result, err := c.BulkSync(ctx, env.tenant, cfg, false)

	require.NoError(t, err)
	assert.Equal(t, 1, result.PeopleUpserted)
	_, err = env.people.FindBySourceID(ctx, env.tenant.ID, "78")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestHelpScoutConnector_BulkSync_RevokedRefreshTokenIsAuthError(t *testing.T) {
	env := newTestEnv(t)
	c := newTestHelpScout(t, env, &fakeHelpScout{validToken: "other"})
	cfg := env.importerConfig(t, integration.ConnectorHelpScout, integration.Credentials{AccessToken: "stale"})

	_, err := c.BulkSync(context.Background(), env.tenant, cfg, false)

	assert.ErrorIs(t, err, integration.ErrAuth)
}

const helpscoutTaggedConversation = `{
  "id": 501, "number": 88, "type": "email", "status": "active",
  "primaryCustomer": {"id": 77, "email": "eve@globex.com", "first": "Eve", "last": "Stone"},
  "tags": [{"id": 1, "tag": "Feedback"}],
  "_embedded": {"threads": [
    {"id": 3, "type": "message", "body": "Thanks, passing it on", "createdAt": "2023-11-15T10:02:00Z"},
    {"id": 2, "type": "customer", "body": "<p>Also dark mode</p>", "createdAt": "2023-11-15T10:01:00Z"},
    {"id": 1, "type": "customer", "body": "<p>We need SSO</p>", "createdAt": "2023-11-15T10:00:00Z"}
  ]},
  "_links": {"web": {"href": "https://secure.helpscout.net/conversation/501/88"}}
}`

func TestHelpScoutConnector_HandleWebhook_Tagged(t *testing.T) {
	env := newTestEnv(t)
	c := newTestHelpScout(t, env, &fakeHelpScout{validToken: "tok"})
	cfg := env.importerConfig(t, integration.ConnectorHelpScout, integration.Credentials{AccessToken: "tok"})
	ctx := context.Background()

	res, err := c.HandleWebhook(ctx, env.tenant, cfg, HelpScoutEventTags, []byte(helpscoutTaggedConversation))

	require.NoError(t, err)
	require.NotNil(t, res.FeedbackID)
	assert.True(t, res.FeedbackCreated)
	require.NotNil(t, res.PersonID)

	rec, err := env.records.FindByID(ctx, env.tenant.ID, *res.FeedbackID)
	require.NoError(t, err)
	assert.Equal(t, "We need SSO\n\nAlso dark mode", rec.Content)
	assert.Equal(t, "https://secure.helpscout.net/conversation/501/88", rec.SourceURL)
	assert.Equal(t, "501", rec.Metadata["conversation_id"])

	eve, err := env.people.FindBySourceID(ctx, env.tenant.ID, "77")
	require.NoError(t, err)
	assert.Equal(t, eve.ID, *res.PersonID)
}

func TestHelpScoutConnector_HandleWebhook_Note(t *testing.T) {
	env := newTestEnv(t)
	c := newTestHelpScout(t, env, &fakeHelpScout{validToken: "tok"})
	cfg := env.importerConfig(t, integration.ConnectorHelpScout, integration.Credentials{AccessToken: "tok"})
	ctx := context.Background()
	payload := `{
	  "id": 502, "type": "email",
	  "customer": {"id": 99, "email": "new@initech.com", "firstName": "Peter", "lastName": "Gibbons"},
	  "threads": [
	    {"id": 9, "type": "note", "body": "#feedback Wants TPS report export"},
	    {"id": 8, "type": "note", "body": "#feedback older note"}
	  ],
	  "tags": ["billing"]
	}`

	res, err := c.HandleWebhook(ctx, env.tenant, cfg, HelpScoutEventNoteCreated, []byte(payload))

	require.NoError(t, err)
	require.NotNil(t, res.FeedbackID)
	rec, err := env.records.FindByID(ctx, env.tenant.ID, *res.FeedbackID)
	require.NoError(t, err)
	assert.Equal(t, "Wants TPS report export", rec.Content)
	assert.Equal(t, "https://secure.helpscout.net/conversation/502", rec.SourceURL)

	// customer 99 is unknown to the API, so the payload fields are used
	require.NotNil(t, res.PersonID)
	peter, err := env.people.FindByID(ctx, env.tenant.ID, *res.PersonID)
	require.NoError(t, err)
	assert.Equal(t, "new@initech.com", peter.Email)
	assert.Equal(t, "Peter Gibbons", peter.Name)

	tagged, err := c.HandleWebhook(ctx, env.tenant, cfg, HelpScoutEventTags, []byte(payload))
	require.NoError(t, err)
	assert.True(t, tagged.Ignored)
}

func TestHelpScoutConnector_HandleWebhook_CreatedChatWithNote(t *testing.T) {
	env := newTestEnv(t)
	c := newTestHelpScout(t, env, &fakeHelpScout{validToken: "tok"})
	cfg := env.importerConfig(t, integration.ConnectorHelpScout, integration.Credentials{AccessToken: "tok"})
	payload := `{
	  "id": 503, "type": "chat",
	  "primaryCustomer": {"id": 77},
	  "threads": [{"id": 1, "type": "note", "body": "<p>#feedback</p><p>Chat widget on mobile</p>"}]
	}`

	res, err := c.HandleWebhook(context.Background(), env.tenant, cfg, HelpScoutEventCreated, []byte(payload))

	require.NoError(t, err)
	require.NotNil(t, res.FeedbackID)
	assert.True(t, res.FeedbackCreated)
	require.NotNil(t, res.PersonID)
}

func TestHelpScoutConnector_HandleWebhook_CreatedEmailUpsertsPerson(t *testing.T) {
	env := newTestEnv(t)
	c := newTestHelpScout(t, env, &fakeHelpScout{validToken: "tok"})
	cfg := env.importerConfig(t, integration.ConnectorHelpScout, integration.Credentials{AccessToken: "tok"})

	res, err := c.HandleWebhook(context.Background(), env.tenant, cfg, HelpScoutEventCreated,
		[]byte(`{"id": 504, "type": "email", "primaryCustomer": {"id": 77}}`))

	require.NoError(t, err)
	assert.False(t, res.Ignored)
	assert.Nil(t, res.FeedbackID)
	require.NotNil(t, res.PersonID)
}

func TestHelpScoutConnector_HandleWebhook_Errors(t *testing.T) {
	env := newTestEnv(t)
	c := newTestHelpScout(t, env, &fakeHelpScout{validToken: "tok"})
	cfg := env.importerConfig(t, integration.ConnectorHelpScout, integration.Credentials{AccessToken: "tok"})
	ctx := context.Background()

	_, err := c.HandleWebhook(ctx, env.tenant, cfg, "convo.deleted", []byte(`{"id": 1}`))
	assert.ErrorIs(t, err, integration.ErrUnknownEventType)

	_, err = c.HandleWebhook(ctx, env.tenant, cfg, HelpScoutEventTags, []byte(`{"tags": []}`))
	assert.ErrorIs(t, err, integration.ErrMalformedPayload)

	_, err = c.HandleWebhook(ctx, env.tenant, cfg, HelpScoutEventNoteCreated, []byte(`not json`))
	assert.ErrorIs(t, err, integration.ErrMalformedPayload)
}

func TestHelpScoutConnector_RegisterWebhooks_TruncatesSecret(t *testing.T) {
	env := newTestEnv(t)
	fake := &fakeHelpScout{validToken: "tok"}
	c := newTestHelpScout(t, env, fake)
	cfg := env.importerConfig(t, integration.ConnectorHelpScout, integration.Credentials{AccessToken: "tok"})

	err := c.RegisterWebhooks(context.Background(), cfg, "https://hooks.example.com/webhooks/helpscout/"+cfg.WebhookSecret)

	require.NoError(t, err)
	require.Len(t, fake.created, 1)
	assert.Equal(t, cfg.WebhookSecret[:helpscoutSecretLimit], fake.created[0]["secret"])
	assert.ElementsMatch(t, []any{HelpScoutEventTags, HelpScoutEventNoteCreated, HelpScoutEventCreated}, fake.created[0]["events"])
}

func TestHelpScoutConnector_DeleteWebhooks_OnlyOwnCallbacks(t *testing.T) {
	env := newTestEnv(t)
	cfg := env.importerConfig(t, integration.ConnectorHelpScout, integration.Credentials{AccessToken: "tok"})
	fake := &fakeHelpScout{
		validToken: "tok",
		listedHooks: `{"_embedded": {"webhooks": [
		  {"id": 11, "url": "https://hooks.example.com/webhooks/helpscout/` + cfg.WebhookSecret + `"},
		  {"id": 12, "url": "https://hooks.example.com/webhooks/helpscout/someone-else"}
		]}}`,
	}
	c := newTestHelpScout(t, env, fake)

	err := c.DeleteWebhooks(context.Background(), cfg)

	require.NoError(t, err)
	assert.Equal(t, []string{"11"}, fake.deleted)
}

func TestHelpScoutConnector_LookupWorkspace(t *testing.T) {
	env := newTestEnv(t)
	c := newTestHelpScout(t, env, &fakeHelpScout{validToken: "tok"})

	ws, err := c.LookupWorkspace(context.Background(), integration.Credentials{AccessToken: "tok"})

	require.NoError(t, err)
	assert.Equal(t, "31337", ws)
}

func TestHelpScoutTags_AcceptsStringsAndObjects(t *testing.T) {
	var conv helpscoutConversation
	require.NoError(t, json.Unmarshal([]byte(`{"id": 1, "tags": ["a", {"tag": "Feedback"}, {"name": "b"}]}`), &conv))

	assert.Equal(t, helpscoutTags{"a", "Feedback", "b"}, conv.Tags)
	assert.True(t, conv.hasTag("feedback"))
}
