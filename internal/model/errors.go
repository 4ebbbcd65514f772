package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Sentinel errors for common cases.
// Use errors.Is() to check against these.
var (
	ErrNotFound              = errors.New("not found")
	ErrInvalidRequest        = errors.New("invalid request")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrNotAuthenticated      = errors.New("not authenticated")
	ErrPaymentFailed         = errors.New("payment failed")
	ErrPaymentCancelled      = errors.New("payment cancelled")
	ErrConfirmationAmbiguous = errors.New("payment confirmation ambiguous")
	ErrUpstreamError         = errors.New("upstream error")
	ErrRateLimited           = errors.New("rate limited")
	ErrPartialFailure        = errors.New("partial failure")
	ErrCheckoutInProgress    = errors.New("checkout in progress")
)

// APIError represents a structured error for API responses.
// Implements error interface and supports unwrapping.
type APIError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Fields     map[string]string `json:"fields,omitempty"` // Per-field validation messages
	Failed     []string          `json:"failed,omitempty"` // Batch items that did not succeed
	StatusCode int               `json:"-"`                // HTTP status, not serialized
	Err        error             `json:"-"`                // Wrapped error, not serialized
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// NewNotFoundError creates a 404 error for missing resources.
func NewNotFoundError(resource string) *APIError {
	return &APIError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: 404,
		Err:        ErrNotFound,
	}
}

// NewValidationError creates a 400 error for invalid input.
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Code:       "VALIDATION_ERROR",
		Message:    fmt.Sprintf("invalid %s: %s", field, reason),
		Fields:     map[string]string{field: reason},
		StatusCode: 400,
		Err:        ErrInvalidRequest,
	}
}

// NewFieldErrors creates a 400 error carrying one message per invalid form field.
// Returns nil when fields is empty so callers can return it unconditionally.
func NewFieldErrors(fields map[string]string) *APIError {
	if len(fields) == 0 {
		return nil
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	return &APIError{
		Code:       "VALIDATION_ERROR",
		Message:    "invalid " + strings.Join(names, ", "),
		Fields:     fields,
		StatusCode: 400,
		Err:        ErrInvalidRequest,
	}
}

// NewUnauthorizedError creates a 401 error for auth failures.
func NewUnauthorizedError(reason string) *APIError {
	return &APIError{
		Code:       "UNAUTHORIZED",
		Message:    reason,
		StatusCode: 401,
		Err:        ErrUnauthorized,
	}
}

// NewNotAuthenticatedError creates a 401 error for operations that need a logged-in user.
func NewNotAuthenticatedError(operation string) *APIError {
	return &APIError{
		Code:       "NOT_AUTHENTICATED",
		Message:    fmt.Sprintf("%s requires a signed-in user", operation),
		StatusCode: 401,
		Err:        ErrNotAuthenticated,
	}
}

// NewUpstreamError creates a 502 error for backend failures.
func NewUpstreamError(service string, err error) *APIError {
	return &APIError{
		Code:       "UPSTREAM_ERROR",
		Message:    fmt.Sprintf("%s request failed", service),
		StatusCode: 502,
		Err:        fmt.Errorf("%w: %v", ErrUpstreamError, err),
	}
}

// NewPartialFailureError reports a batch where some items did not succeed.
// failed lists the item keys that must be retried.
func NewPartialFailureError(operation string, failed []string, total int) *APIError {
	return &APIError{
		Code:       "PARTIAL_FAILURE",
		Message:    fmt.Sprintf("%s: %d of %d items failed", operation, len(failed), total),
		Failed:     failed,
		StatusCode: 502,
		Err:        ErrPartialFailure,
	}
}

// NewPaymentError creates a 402 error for payment issues.
func NewPaymentError(reason string) *APIError {
	return &APIError{
		Code:       "PAYMENT_ERROR",
		Message:    reason,
		StatusCode: 402,
		Err:        ErrPaymentFailed,
	}
}

// NewPaymentCancelledError creates a 409 error for a payment the buyer dismissed.
func NewPaymentCancelledError() *APIError {
	return &APIError{
		Code:       "PAYMENT_CANCELLED",
		Message:    "payment was cancelled",
		StatusCode: 409,
		Err:        ErrPaymentCancelled,
	}
}

// NewConfirmationAmbiguousError marks an order whose payment may have been captured
// but could not be verified. These are never retried automatically.
func NewConfirmationAmbiguousError(orderID string, err error) *APIError {
	return &APIError{
		Code:       "CONFIRMATION_AMBIGUOUS",
		Message:    fmt.Sprintf("payment for order %s could not be verified, please contact support", orderID),
		StatusCode: 502,
		Err:        fmt.Errorf("%w: %v", ErrConfirmationAmbiguous, err),
	}
}

// NewCheckoutInProgressError rejects a second checkout while one is in flight.
func NewCheckoutInProgressError(state string) *APIError {
	return &APIError{
		Code:       "CHECKOUT_IN_PROGRESS",
		Message:    fmt.Sprintf("checkout already in progress (%s)", state),
		StatusCode: 409,
		Err:        ErrCheckoutInProgress,
	}
}

// NewInternalError creates a 500 error for unexpected failures.
func NewInternalError(err error) *APIError {
	return &APIError{
		Code:       "INTERNAL_ERROR",
		Message:    "an internal error occurred",
		StatusCode: 500,
		Err:        err,
	}
}

// NewRateLimitError creates a 429 error for rate limiting.
func NewRateLimitError(service string) *APIError {
	return &APIError{
		Code:       "RATE_LIMITED",
		Message:    fmt.Sprintf("%s rate limit exceeded, please retry later", service),
		StatusCode: 429,
		Err:        ErrRateLimited,
	}
}

// IsNetworkError reports whether err came from a failed or rejected upstream call
// rather than from invalid input.
func IsNetworkError(err error) bool {
	return errors.Is(err, ErrUpstreamError) || errors.Is(err, ErrRateLimited)
}
