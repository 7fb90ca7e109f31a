package dto

import (
	"errors"
	"net/http"

	"github.com/feedsync/backend/internal/domain/catalog"
	"github.com/feedsync/backend/internal/domain/customer"
	"github.com/feedsync/backend/internal/domain/integration"
	"github.com/feedsync/backend/internal/domain/shared"
)

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	// ErrCodeUnknown is used when the error type is unknown
	ErrCodeUnknown = "ERR_UNKNOWN"
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "ERR_INTERNAL"
	// ErrCodeUnavailable is used when a dependency is temporarily down
	ErrCodeUnavailable = "ERR_UNAVAILABLE"
)

// Validation error codes
const (
	ErrCodeValidation         = "ERR_VALIDATION"
	ErrCodeValidationRequired = "ERR_VALIDATION_REQUIRED"
	ErrCodeValidationFormat   = "ERR_VALIDATION_FORMAT"
	ErrCodeValidationRange    = "ERR_VALIDATION_RANGE"
	ErrCodeValidationLength   = "ERR_VALIDATION_LENGTH"
)

// Authentication error codes
const (
	ErrCodeUnauthorized       = "ERR_UNAUTHORIZED"
	ErrCodeForbidden          = "ERR_FORBIDDEN"
	ErrCodeTokenExpired       = "ERR_TOKEN_EXPIRED"
	ErrCodeTokenInvalid       = "ERR_TOKEN_INVALID"
	ErrCodeInvalidCredentials = "ERR_INVALID_CREDENTIALS"
	ErrCodeAccountLocked      = "ERR_ACCOUNT_LOCKED"
	ErrCodeLoginDisabled      = "ERR_LOGIN_DISABLED"
)

// Resource error codes
const (
	ErrCodeNotFound         = "ERR_NOT_FOUND"
	ErrCodeAlreadyExists    = "ERR_ALREADY_EXISTS"
	ErrCodeConflict         = "ERR_CONFLICT"
	ErrCodeIdentityConflict = "ERR_IDENTITY_CONFLICT"
)

// Business rule error codes
const (
	ErrCodeInvalidState = "ERR_INVALID_STATE"
	ErrCodeBusinessRule = "ERR_BUSINESS_RULE"
)

// Integration error codes
const (
	ErrCodeConnectorNotFound = "ERR_CONNECTOR_NOT_FOUND"
	ErrCodeNotConfigured     = "ERR_NOT_CONFIGURED"
	ErrCodeInvalidSettings   = "ERR_INVALID_SETTINGS"
	ErrCodeUpstreamAuth      = "ERR_UPSTREAM_AUTH"
	ErrCodeSyncInProgress    = "ERR_SYNC_IN_PROGRESS"
)

// Input error codes
const (
	ErrCodeBadRequest      = "ERR_BAD_REQUEST"
	ErrCodeInvalidInput    = "ERR_INVALID_INPUT"
	ErrCodeInvalidJSON     = "ERR_INVALID_JSON"
	ErrCodePayloadTooLarge = "ERR_PAYLOAD_TOO_LARGE"
)

// Rate limiting error codes
const (
	ErrCodeRateLimited = "ERR_RATE_LIMITED"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeUnknown:     http.StatusInternalServerError,
	ErrCodeInternal:    http.StatusInternalServerError,
	ErrCodeUnavailable: http.StatusServiceUnavailable,

	// Validation errors -> 400 Bad Request
	ErrCodeValidation:         http.StatusBadRequest,
	ErrCodeValidationRequired: http.StatusBadRequest,
	ErrCodeValidationFormat:   http.StatusBadRequest,
	ErrCodeValidationRange:    http.StatusBadRequest,
	ErrCodeValidationLength:   http.StatusBadRequest,

	ErrCodeUnauthorized:       http.StatusUnauthorized,
	ErrCodeForbidden:          http.StatusForbidden,
	ErrCodeTokenExpired:       http.StatusUnauthorized,
	ErrCodeTokenInvalid:       http.StatusUnauthorized,
	ErrCodeInvalidCredentials: http.StatusUnauthorized,
	ErrCodeAccountLocked:      http.StatusTooManyRequests,
	ErrCodeLoginDisabled:      http.StatusForbidden,

	ErrCodeNotFound:         http.StatusNotFound,
	ErrCodeAlreadyExists:    http.StatusConflict,
	ErrCodeConflict:         http.StatusConflict,
	ErrCodeIdentityConflict: http.StatusConflict,

	// Business rule errors -> 422 Unprocessable Entity
	ErrCodeInvalidState: http.StatusUnprocessableEntity,
	ErrCodeBusinessRule: http.StatusUnprocessableEntity,

	ErrCodeConnectorNotFound: http.StatusNotFound,
	ErrCodeNotConfigured:     http.StatusUnprocessableEntity,
	ErrCodeInvalidSettings:   http.StatusBadRequest,
	ErrCodeUpstreamAuth:      http.StatusBadGateway,
	ErrCodeSyncInProgress:    http.StatusConflict,

	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeInvalidInput:    http.StatusBadRequest,
	ErrCodeInvalidJSON:     http.StatusBadRequest,
	ErrCodePayloadTooLarge: http.StatusRequestEntityTooLarge,

	ErrCodeRateLimited: http.StatusTooManyRequests,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// LegacyErrorCodeMapping maps domain error codes to API codes
var LegacyErrorCodeMapping = map[string]string{
	"NOT_FOUND":             ErrCodeNotFound,
	"ALREADY_EXISTS":        ErrCodeAlreadyExists,
	"INVALID_INPUT":         ErrCodeInvalidInput,
	"INVALID_STATE":         ErrCodeInvalidState,
	"UNAUTHORIZED":          ErrCodeUnauthorized,
	"FORBIDDEN":             ErrCodeForbidden,
	"VALIDATION_ERROR":      ErrCodeValidation,
	"BAD_REQUEST":           ErrCodeBadRequest,
	"INTERNAL_ERROR":        ErrCodeInternal,
	"INVALID_CREDENTIALS":   ErrCodeInvalidCredentials,
	"ACCOUNT_LOCKED":        ErrCodeAccountLocked,
	"LOGIN_DISABLED":        ErrCodeLoginDisabled,
	"TOKEN_EXPIRED":         ErrCodeTokenExpired,
	"TOKEN_INVALID":         ErrCodeTokenInvalid,
	"INVALID_TENANT":        ErrCodeInvalidInput,
	"INVALID_ATTRIBUTE":     ErrCodeInvalidInput,
	"INVALID_MRR_ATTRIBUTE": ErrCodeBusinessRule,
	"INVALID_FLAG":          ErrCodeInvalidInput,
	"INVALID_FEEDBACK":      ErrCodeInvalidInput,
	"INVALID_PASSWORD":      ErrCodeValidation,
}

// NormalizeErrorCode converts a domain error code to the standardized format
// If the code is already in the new format or unknown, returns it as-is
func NormalizeErrorCode(code string) string {
	if newCode, ok := LegacyErrorCodeMapping[code]; ok {
		return newCode
	}
	return code
}

// sentinelCodes classifies the plain sentinel errors of the domain packages.
// Order matters: the first match wins.
var sentinelCodes = []struct {
	err     error
	code    string
	message string
}{
	{integration.ErrConnectorNotFound, ErrCodeConnectorNotFound, "Unknown connector"},
	{integration.ErrNotConfigured, ErrCodeNotConfigured, "Connector is not configured"},
	{integration.ErrInvalidSettings, ErrCodeInvalidSettings, "Invalid connector settings"},
	{integration.ErrAuth, ErrCodeUpstreamAuth, "The source rejected the stored credentials"},
	{integration.ErrRateLimited, ErrCodeRateLimited, "The source is rate limiting requests"},
	{integration.ErrTransientIO, ErrCodeUnavailable, "The source is temporarily unavailable"},
	{customer.ErrIdentityConflict, ErrCodeIdentityConflict, "Identity key already owned by another record"},
	{customer.ErrInsufficientKeyMaterial, ErrCodeInvalidInput, "Not enough identifying keys"},
	{catalog.ErrCoercion, ErrCodeInvalidInput, "Value does not match the attribute type"},
}

// Classify returns the API code and client-safe message for err. Unknown
// errors map to ErrCodeInternal with a generic message.
func Classify(err error) (code, message string) {
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		return NormalizeErrorCode(domainErr.Code), domainErr.Message
	}
	for _, s := range sentinelCodes {
		if errors.Is(err, s.err) {
			return s.code, s.message
		}
	}
	return ErrCodeInternal, "An unexpected error occurred"
}
