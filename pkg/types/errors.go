package types

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeAuthentication ErrorType = "authentication"
	ErrorTypeAuthorization  ErrorType = "authorization"
	ErrorTypeRateLimit      ErrorType = "rate_limit"
	ErrorTypeValidation     ErrorType = "validation"
	ErrorTypePayload        ErrorType = "payload"
	ErrorTypeMediaType      ErrorType = "media_type"
	ErrorTypeBlocked        ErrorType = "blocked"
	ErrorTypeInternal       ErrorType = "internal"
)

// Common error codes
const (
	ErrCodeUnauthorized         = "UNAUTHORIZED"
	ErrCodeForbidden            = "FORBIDDEN"
	ErrCodeCsrfInvalid          = "CSRF_INVALID"
	ErrCodeRateLimitExceeded    = "RATE_LIMIT_EXCEEDED"
	ErrCodeValidationFailed     = "VALIDATION_FAILED"
	ErrCodePayloadTooLarge      = "PAYLOAD_TOO_LARGE"
	ErrCodeUnsupportedMediaType = "UNSUPPORTED_MEDIA_TYPE"
	ErrCodeBlockedClient        = "BLOCKED_CLIENT"
	ErrCodeInternalError        = "INTERNAL_ERROR"
)

// PipelineError represents a structured error raised by any guard in the
// request-protection pipeline.
type PipelineError struct {
	Type       ErrorType              `json:"type"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	RetryAfter time.Duration          `json:"-"`
	Cause      error                  `json:"-"`
}

// Error implements the error interface
func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// HTTPStatus maps the error to the status code the pipeline responds with.
func (e *PipelineError) HTTPStatus() int {
	switch e.Type {
	case ErrorTypeAuthentication:
		return http.StatusUnauthorized
	case ErrorTypeAuthorization:
		return http.StatusForbidden
	case ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	case ErrorTypeValidation:
		return http.StatusBadRequest
	case ErrorTypePayload:
		return http.StatusRequestEntityTooLarge
	case ErrorTypeMediaType:
		return http.StatusUnsupportedMediaType
	case ErrorTypeBlocked:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// AsPipelineError unwraps err to a *PipelineError if one is in the chain.
func AsPipelineError(err error) (*PipelineError, bool) {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// NewUnauthorizedError creates an authentication failure (missing, invalid
// or expired credential).
func NewUnauthorizedError(message string, cause error) *PipelineError {
	return &PipelineError{
		Type:    ErrorTypeAuthentication,
		Code:    ErrCodeUnauthorized,
		Message: message,
		Cause:   cause,
	}
}

// NewForbiddenError creates an authorization failure (authenticated but
// insufficient role).
func NewForbiddenError(message string) *PipelineError {
	return &PipelineError{
		Type:    ErrorTypeAuthorization,
		Code:    ErrCodeForbidden,
		Message: message,
	}
}

// NewCsrfInvalidError creates a CSRF verification failure.
func NewCsrfInvalidError(message string) *PipelineError {
	return &PipelineError{
		Type:    ErrorTypeAuthorization,
		Code:    ErrCodeCsrfInvalid,
		Message: message,
	}
}

// NewRateLimitedError creates a quota-exceeded failure carrying the
// remaining window duration.
func NewRateLimitedError(message string, retryAfter time.Duration) *PipelineError {
	return &PipelineError{
		Type:       ErrorTypeRateLimit,
		Code:       ErrCodeRateLimitExceeded,
		Message:    message,
		RetryAfter: retryAfter,
		Details: map[string]interface{}{
			"retry_after_ms": retryAfter.Milliseconds(),
		},
	}
}

// NewValidationError creates a malformed-input failure.
func NewValidationError(message string, details map[string]interface{}) *PipelineError {
	return &PipelineError{
		Type:    ErrorTypeValidation,
		Code:    ErrCodeValidationFailed,
		Message: message,
		Details: details,
	}
}

// NewPayloadTooLargeError creates an oversized-body failure.
func NewPayloadTooLargeError(limit int64) *PipelineError {
	return &PipelineError{
		Type:    ErrorTypePayload,
		Code:    ErrCodePayloadTooLarge,
		Message: "request body exceeds the allowed size",
		Details: map[string]interface{}{"max_bytes": limit},
	}
}

// NewUnsupportedMediaTypeError creates a disallowed content-type failure.
func NewUnsupportedMediaTypeError(contentType string) *PipelineError {
	return &PipelineError{
		Type:    ErrorTypeMediaType,
		Code:    ErrCodeUnsupportedMediaType,
		Message: fmt.Sprintf("content type %q is not accepted", contentType),
	}
}

// NewBlockedClientError creates a failure for clients rejected on
// user-agent or header-tampering grounds.
func NewBlockedClientError(message string) *PipelineError {
	return &PipelineError{
		Type:    ErrorTypeBlocked,
		Code:    ErrCodeBlockedClient,
		Message: message,
	}
}

// NewInternalError creates an internal error wrapping its cause.
func NewInternalError(message string, cause error) *PipelineError {
	return &PipelineError{
		Type:    ErrorTypeInternal,
		Code:    ErrCodeInternalError,
		Message: message,
		Cause:   cause,
	}
}
