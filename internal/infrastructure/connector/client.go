package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/feedsync/backend/internal/domain/integration"
	"github.com/feedsync/backend/internal/domain/shared"
	"github.com/feedsync/backend/internal/infrastructure/logger"
)

// maxResponseSize is the maximum allowed response size from a source API (10MB)
const maxResponseSize = 10 * 1024 * 1024

// HTTPError is a non-2xx response from a source API
type HTTPError struct {
	StatusCode int
	Body       string
	kind       error
}

// Error implements error
func (e *HTTPError) Error() string {
	if e.kind != nil {
		return fmt.Sprintf("%s: HTTP %d", e.kind, e.StatusCode)
	}
	return fmt.Sprintf("connector: HTTP %d", e.StatusCode)
}

// Unwrap exposes the integration sentinel the status maps to
func (e *HTTPError) Unwrap() error {
	return e.kind
}

// StatusCode returns the HTTP status carried by err, or 0
func StatusCode(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode
	}
	return 0
}

// ClientOptions tune an APIClient
type ClientOptions struct {
	Timeout time.Duration
	// RateLimitThreshold is the X-RateLimit-Remaining value below which the
	// client pauses for RateLimitCoolOff before returning
	RateLimitThreshold int
	RateLimitCoolOff   time.Duration
}

// Request is one call to a source API
type Request struct {
	Method string
	// Path is joined to the client's base URL; URL overrides it when set
	Path    string
	URL     string
	Query   url.Values
	Headers map[string]string
	// JSON is encoded as the body; Form is sent url-encoded instead
	JSON  any
	Form  url.Values
	Token string
	// BasicUser and BasicPassword send basic auth instead of a bearer token
	BasicUser     string
	BasicPassword string
}

// Response is a successful API response
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the body keeping numbers as json.Number
func (r *Response) Decode(out any) error {
	return decodeJSON(r.Body, out)
}

// APIClient performs HTTP calls against one source API and maps failures to
// the integration error taxonomy
type APIClient struct {
	baseURL    string
	httpClient *http.Client
	opts       ClientOptions
	logger     *zap.Logger
	sleep      func(context.Context, time.Duration) error
}

// NewAPIClient creates a client for baseURL
func NewAPIClient(baseURL string, opts ClientOptions, log *zap.Logger) *APIClient {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &APIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: opts.Timeout},
		opts:       opts,
		logger:     log,
		sleep:      sleepContext,
	}
}

// BaseURL returns the API root the client talks to
func (c *APIClient) BaseURL() string {
	return c.baseURL
}

// Do executes the request. 401/403 map to integration.ErrAuth, 429 to a
// *integration.RateLimitError, 404 to shared.ErrNotFound, and 5xx or
// transport failures to integration.ErrTransientIO.
func (c *APIClient) Do(ctx context.Context, r Request) (*Response, error) {
	req, err := c.newRequest(ctx, r)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %s %s: %v", integration.ErrTransientIO, req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", integration.ErrTransientIO, err)
	}

	if resp.StatusCode >= 400 {
		return nil, c.statusError(resp, body)
	}

	if err := c.coolOffIfNearLimit(ctx, resp.Header); err != nil {
		return nil, err
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// GetJSON issues a GET and decodes the response into out
func (c *APIClient) GetJSON(ctx context.Context, path string, query url.Values, token string, out any) error {
	resp, err := c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query, Token: token})
	if err != nil {
		return err
	}
	if err := resp.Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *APIClient) newRequest(ctx context.Context, r Request) (*http.Request, error) {
	target := r.URL
	if target == "" {
		target = c.baseURL + "/" + strings.TrimLeft(r.Path, "/")
	}
	if len(r.Query) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + r.Query.Encode()
	}

	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	var (
		body        io.Reader
		contentType string
	)
	switch {
	case r.Form != nil:
		body = strings.NewReader(r.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case r.JSON != nil:
		raw, err := json.Marshal(r.JSON)
		if err != nil {
			return nil, fmt.Errorf("connector: encode request body: %w", err)
		}
		body = bytes.NewReader(raw)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("connector: failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	switch {
	case r.BasicUser != "":
		req.SetBasicAuth(r.BasicUser, r.BasicPassword)
	case r.Token != "":
		req.Header.Set("Authorization", "Bearer "+r.Token)
	}
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

func (c *APIClient) statusError(resp *http.Response, body []byte) error {
	he := &HTTPError{StatusCode: resp.StatusCode, Body: truncate(string(body), 512)}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		he.kind = integration.ErrAuth
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: HTTP %d", &integration.RateLimitError{RetryAfter: retryAfter(resp.Header)}, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		he.kind = shared.ErrNotFound
	case resp.StatusCode >= 500:
		he.kind = integration.ErrTransientIO
	}
	return he
}

// coolOffIfNearLimit pauses when the source reports few calls left in the
// current window
func (c *APIClient) coolOffIfNearLimit(ctx context.Context, h http.Header) error {
	if c.opts.RateLimitThreshold <= 0 {
		return nil
	}
	raw := h.Get("X-RateLimit-Remaining")
	if raw == "" {
		return nil
	}
	remaining, err := strconv.Atoi(raw)
	if err != nil || remaining >= c.opts.RateLimitThreshold {
		return nil
	}
	logger.FromContext(ctx).Info("Rate limit nearly exhausted, cooling off",
		zap.Int("remaining", remaining),
		zap.Duration("cool_off", c.opts.RateLimitCoolOff))
	return c.sleep(ctx, c.opts.RateLimitCoolOff)
}

// retryAfter reads Retry-After as seconds, or X-RateLimit-Reset as a unix time
func retryAfter(h http.Header) time.Duration {
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	if v := h.Get("X-RateLimit-Reset"); v != "" {
		if reset, err := strconv.ParseInt(v, 10, 64); err == nil {
			if d := time.Until(time.Unix(reset, 0)); d > 0 {
				return d
			}
		}
	}
	return 0
}

func decodeJSON(data []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(out)
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// sleepContext waits for d or until ctx is done
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
