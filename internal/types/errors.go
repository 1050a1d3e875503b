package types

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/samber/lo"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Error code constants.
// Handlers MUST use these constants instead of hardcoded strings.
const (
	// Validation (400)
	ErrCodeValidationFailed          ErrorCode = "validation_failed"
	ErrCodeValidationInvalidJSON     ErrorCode = "validation_invalid_json"
	ErrCodeValidationInvalidForm     ErrorCode = "validation_invalid_form"
	ErrCodeValidationInvalidAmount   ErrorCode = "validation_invalid_amount"
	ErrCodeValidationInvalidEmail    ErrorCode = "validation_invalid_email"
	ErrCodeValidationInvalidMetadata ErrorCode = "validation_invalid_metadata"
	ErrCodeValidationInvalidCheckin  ErrorCode = "validation_invalid_checkin"
	ErrCodeValidationCheckinCutoff   ErrorCode = "validation_checkin_cutoff"
	ErrCodeValidationMalformedEvent  ErrorCode = "validation_malformed_event"

	// Webhook signature (400)
	ErrCodeSignatureMissing ErrorCode = "signature_missing"
	ErrCodeSignatureInvalid ErrorCode = "signature_invalid"

	// Internal/Upstream/Downstream (500)
	ErrCodeInternalUnexpected    ErrorCode = "internal_unexpected_error"
	ErrCodeUpstreamStripe        ErrorCode = "upstream_stripe_unavailable"
	ErrCodeUpstreamUnavailable   ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited   ErrorCode = "upstream_rate_limited"
	ErrCodeDownstreamUnavailable ErrorCode = "downstream_unavailable"
)

// HTTPStatus maps an ErrorCode to its HTTP status. Caller mistakes and bad
// signatures are 400; everything else is 500, since Stripe retries webhook
// deliveries on any 5xx.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	if strings.HasPrefix(s, "validation_") || strings.HasPrefix(s, "signature_") {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// AppError is the standard application error type used throughout the relay.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy of the error with details merged over the
// existing ones.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: lo.Assign(e.Details, details),
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError with structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}
