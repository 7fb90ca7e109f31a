package integration

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrAuth means credentials are expired or invalid. Runs abort and are not
	// retried until the tenant re-authenticates.
	ErrAuth = errors.New("integration: authentication failed")

	// ErrRateLimited means the source asked us to slow down
	ErrRateLimited = errors.New("integration: rate limited")

	// ErrTransientIO covers timeouts and 5xx responses
	ErrTransientIO = errors.New("integration: transient I/O error")

	// ErrMalformedPayload means a webhook body could not be decoded
	ErrMalformedPayload = errors.New("integration: malformed payload")

	// ErrUnknownEventType means a webhook event is not handled; it is ignored
	ErrUnknownEventType = errors.New("integration: unknown event type")

	// ErrWebhookUnauthorized is the only error the gateway reports for any
	// attribution or authentication failure
	ErrWebhookUnauthorized = errors.New("integration: webhook unauthorized")

	// ErrConnectorNotFound means no connector is registered under the name
	ErrConnectorNotFound = errors.New("integration: connector not found")

	// ErrNotConfigured means the tenant has not connected the source
	ErrNotConfigured = errors.New("integration: connector not configured")

	// ErrInvalidSettings means connector settings failed validation
	ErrInvalidSettings = errors.New("integration: invalid connector settings")
)

// RateLimitError carries the cool-off the source asked for
type RateLimitError struct {
	RetryAfter time.Duration
}

// Error implements error
func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s: retry after %s", ErrRateLimited, e.RetryAfter)
	}
	return ErrRateLimited.Error()
}

// Unwrap lets errors.Is match ErrRateLimited
func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// IsExpected reports whether err is an auth or rate-limit condition, the
// failures a bulk run treats as routine rather than as a bug.
func IsExpected(err error) bool {
	return errors.Is(err, ErrAuth) || errors.Is(err, ErrRateLimited)
}

// RetryAfter extracts the requested cool-off from a rate limit error
func RetryAfter(err error) (time.Duration, bool) {
	var rle *RateLimitError
	if errors.As(err, &rle) && rle.RetryAfter > 0 {
		return rle.RetryAfter, true
	}
	return 0, false
}
