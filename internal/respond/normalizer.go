// Package respond maps any failure raised inside the pipeline into a
// disclosure-safe response shape and writes it to the client.
package respond

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/adr1el-m/carmen-the-parasight-sub007/pkg/logger"
	"github.com/adr1el-m/carmen-the-parasight-sub007/pkg/types"
)

// genericMessage is what production clients see for unexpected failures.
const genericMessage = "An unexpected error occurred. Please try again later."

// NormalizedError is the response shape every failure is reduced to.
// Detail is populated only in development mode.
type NormalizedError struct {
	Error         string                 `json:"error"`
	Message       string                 `json:"message"`
	Detail        *ErrorDetail           `json:"detail,omitempty"`
	Details       map[string]interface{} `json:"details,omitempty"`
	Timestamp     string                 `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id"`
	Status        int                    `json:"-"`
}

// ErrorDetail carries environment-gated internals.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   string `json:"cause,omitempty"`
}

// FieldError describes one field-validation failure without echoing the
// submitted value.
type FieldError struct {
	Param    string `json:"param"`
	Message  string `json:"message"`
	Location string `json:"location"`
}

// Normalizer converts errors into NormalizedError values. Full errors are
// always logged server-side; what reaches the client depends on the
// development flag.
type Normalizer struct {
	development bool
	logger      *logger.Logger
}

// NewNormalizer creates an error normalizer.
func NewNormalizer(development bool, log *logger.Logger) *Normalizer {
	return &Normalizer{development: development, logger: log}
}

// Normalize reduces err to a NormalizedError, logging the full error with
// its request context.
func (n *Normalizer) Normalize(err error, r *http.Request) NormalizedError {
	correlationID := uuid.NewString()

	pe, ok := types.AsPipelineError(err)
	if !ok {
		pe = types.NewInternalError("unhandled error", err)
	}

	entry := n.logger.WithRequestID(correlationID).WithError(err)
	if r != nil {
		entry = entry.WithField("method", r.Method).WithField("path", r.URL.Path)
	}
	if pe.Type == types.ErrorTypeInternal {
		entry.Error("Request failed")
	} else {
		entry.Warn("Request rejected")
	}

	status := pe.HTTPStatus()
	out := NormalizedError{
		Error:         http.StatusText(status),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		CorrelationID: correlationID,
		Status:        status,
		Details:       pe.Details,
	}

	// Guard-raised errors carry messages that are safe to disclose; raw
	// internal errors leak through only in development mode.
	switch {
	case pe.Type != types.ErrorTypeInternal:
		out.Message = pe.Message
	case n.development:
		out.Message = pe.Error()
	default:
		out.Message = genericMessage
	}

	if n.development {
		detail := &ErrorDetail{Code: pe.Code, Message: pe.Message}
		if pe.Cause != nil {
			detail.Cause = pe.Cause.Error()
		}
		out.Detail = detail
	}

	return out
}

// Write normalizes err and writes the JSON response, including a
// Retry-After header for rate-limit rejections.
func (n *Normalizer) Write(w http.ResponseWriter, r *http.Request, err error) {
	normalized := n.Normalize(err, r)

	if pe, ok := types.AsPipelineError(err); ok && pe.RetryAfter > 0 {
		seconds := int64(pe.RetryAfter.Seconds())
		if seconds < 1 {
			seconds = 1
		}
		w.Header().Set("Retry-After", strconv.FormatInt(seconds, 10))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(normalized.Status)
	_ = json.NewEncoder(w).Encode(normalized)
}

// NormalizeValidationErrors maps field-validation failures to
// {param, message, location} tuples. Submitted values are never echoed.
func NormalizeValidationErrors(err error, location string) []FieldError {
	if err == nil {
		return nil
	}
	if location == "" {
		location = "body"
	}

	var out []FieldError
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range verrs {
			out = append(out, FieldError{
				Param:    fe.Field(),
				Message:  "failed validation on the '" + fe.Tag() + "' rule",
				Location: location,
			})
		}
		return out
	}

	out = append(out, FieldError{
		Param:    "request",
		Message:  "request validation failed",
		Location: location,
	})
	return out
}
