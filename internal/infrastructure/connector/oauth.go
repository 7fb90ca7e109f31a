package connector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/feedsync/backend/internal/domain/integration"
)

// OAuthConfig identifies the application at a source's token endpoint
type OAuthConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// OAuthClient exchanges and refreshes OAuth tokens through x/oauth2 and runs
// API calls with them, refreshing once when a call comes back 401
type OAuthClient struct {
	conf   *oauth2.Config
	api    *APIClient
	store  integration.TokenStore
	logger *zap.Logger
	now    func() time.Time
}

// NewOAuthClient creates an OAuthClient. Refreshed credentials are written
// through store.
func NewOAuthClient(cfg OAuthConfig, api *APIClient, store integration.TokenStore, logger *zap.Logger) *OAuthClient {
	return &OAuthClient{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		api:    api,
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Exchange trades an authorization code for credentials
func (o *OAuthClient) Exchange(ctx context.Context, code string) (integration.Credentials, error) {
	if strings.TrimSpace(code) == "" {
		return integration.Credentials{}, fmt.Errorf("%w: empty authorization code", integration.ErrAuth)
	}
	tok, err := o.conf.Exchange(o.clientContext(ctx), code)
	if err != nil {
		return integration.Credentials{}, tokenError(ctx, "exchange code", err)
	}
	return credentialsFromToken(tok, ""), nil
}

// Refresh obtains a new access token. Sources that do not rotate refresh
// tokens keep the one passed in.
func (o *OAuthClient) Refresh(ctx context.Context, refreshToken string) (integration.Credentials, error) {
	if refreshToken == "" {
		return integration.Credentials{}, fmt.Errorf("%w: no refresh token", integration.ErrAuth)
	}
	tok, err := o.refreshSource(ctx, refreshToken).Token()
	if err != nil {
		return integration.Credentials{}, tokenError(ctx, "refresh token", err)
	}
	return credentialsFromToken(tok, refreshToken), nil
}

// refreshSource always goes to the token endpoint: a token without an
// access token is never valid
func (o *OAuthClient) refreshSource(ctx context.Context, refreshToken string) oauth2.TokenSource {
	return o.conf.TokenSource(o.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
}

// clientContext makes x/oauth2 use the connector's HTTP client and timeout
func (o *OAuthClient) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, o.api.httpClient)
}

func credentialsFromToken(tok *oauth2.Token, previousRefresh string) integration.Credentials {
	creds := integration.Credentials{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}
	if creds.RefreshToken == "" {
		creds.RefreshToken = previousRefresh
	}
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry
		creds.ExpiresAt = &exp
	}
	return creds
}

// tokenError maps a token endpoint failure onto the integration taxonomy.
// The endpoint answers 4xx for a bad code or a revoked refresh token.
func tokenError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		if status >= 500 || status == http.StatusTooManyRequests {
			return fmt.Errorf("%w: %s: HTTP %d", integration.ErrTransientIO, op, status)
		}
		return fmt.Errorf("%w: %s: HTTP %d %s", integration.ErrAuth, op, status, re.ErrorCode)
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return fmt.Errorf("%w: %s: %v", integration.ErrTransientIO, op, err)
	}
	// a 2xx body without an access token
	return fmt.Errorf("%w: %s: %v", integration.ErrAuth, op, err)
}

type persistError struct{ err error }

func (e *persistError) Error() string { return "persist refreshed credentials: " + e.err.Error() }
func (e *persistError) Unwrap() error { return e.err }

// persistingTokenSource writes each token it hands out back to the importer
// config, so the next run starts from the rotated credentials
type persistingTokenSource struct {
	ctx   context.Context
	src   oauth2.TokenSource
	cfg   *integration.ImporterConfig
	store integration.TokenStore
}

// Token implements oauth2.TokenSource
func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	if tok.AccessToken == s.cfg.Credentials.AccessToken {
		return tok, nil
	}
	creds := credentialsFromToken(tok, s.cfg.Credentials.RefreshToken)
	creds.APIKey = s.cfg.Credentials.APIKey
	if err := s.store.SaveCredentials(s.ctx, s.cfg.ID, creds); err != nil {
		return nil, &persistError{err: err}
	}
	s.cfg.Credentials = creds
	return tok, nil
}

// Do runs r with the config's access token. An expired token is refreshed
// up front; a 401 triggers one refresh, persisted through the token store,
// and one replay. A second 401 is integration.ErrAuth.
func (o *OAuthClient) Do(ctx context.Context, cfg *integration.ImporterConfig, r Request) (*Response, error) {
	if cfg.Credentials.IsExpired(o.now()) && cfg.Credentials.RefreshToken != "" {
		if err := o.refreshConfig(ctx, cfg); err != nil {
			return nil, err
		}
	}

	r.Token = cfg.Credentials.Token()
	resp, err := o.api.Do(ctx, r)
	if StatusCode(err) != http.StatusUnauthorized {
		return resp, err
	}

	o.logger.Info("Access token rejected, refreshing",
		zap.String("config_id", cfg.ID.String()),
		zap.String("connector", cfg.Connector.String()))
	if err := o.refreshConfig(ctx, cfg); err != nil {
		return nil, err
	}

	r.Token = cfg.Credentials.Token()
	resp, err = o.api.Do(ctx, r)
	if StatusCode(err) == http.StatusUnauthorized {
		return nil, fmt.Errorf("%w: rejected after token refresh", integration.ErrAuth)
	}
	return resp, err
}

// GetJSON issues an authorized GET and decodes the response into out
func (o *OAuthClient) GetJSON(ctx context.Context, cfg *integration.ImporterConfig, path string, query url.Values, out any) error {
	resp, err := o.Do(ctx, cfg, Request{Method: http.MethodGet, Path: path, Query: query})
	if err != nil {
		return err
	}
	if err := resp.Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (o *OAuthClient) refreshConfig(ctx context.Context, cfg *integration.ImporterConfig) error {
	if cfg.Credentials.RefreshToken == "" {
		return fmt.Errorf("%w: token rejected and no refresh token", integration.ErrAuth)
	}
	src := &persistingTokenSource{
		ctx:   ctx,
		src:   o.refreshSource(ctx, cfg.Credentials.RefreshToken),
		cfg:   cfg,
		store: o.store,
	}
	_, err := src.Token()
	var pe *persistError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &pe):
		return err
	default:
		return tokenError(ctx, "refresh token", err)
	}
}
