package types

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Complete error code constants.
// All components MUST use these constants instead of hardcoded strings.
const (
	// Purchase backend taxonomy
	ErrCodeIAPPlatformUnsupported ErrorCode = "iap_platform_unsupported"
	ErrCodeIAPNotConnected        ErrorCode = "iap_not_connected"
	// ErrCodeIAPUserCancelled is classified internally but never surfaced to
	// callers or observers; cancellation is a silent return to idle.
	ErrCodeIAPUserCancelled  ErrorCode = "iap_user_cancelled"
	ErrCodeIAPStoreError     ErrorCode = "iap_store_unavailable"
	ErrCodeIAPUnknownProduct ErrorCode = "iap_unknown_product"
	ErrCodeIAPUnknown        ErrorCode = "iap_unknown_error"
	ErrCodeCatalogTimeout    ErrorCode = "catalog_timeout"
	ErrCodeCatalogNotLoaded  ErrorCode = "catalog_not_loaded"

	// Quota / flow
	ErrCodeLimitDailySessions ErrorCode = "limit_daily_sessions_exceeded"
	ErrCodeConflictInFlight   ErrorCode = "conflict_operation_in_flight"

	// Validation (400)
	ErrCodeValidationMissingField ErrorCode = "validation_missing_required_field"
	ErrCodeValidationInvalidPlan  ErrorCode = "validation_invalid_plan"

	// Internal (500)
	ErrCodeInternalStorage    ErrorCode = "internal_storage_error"
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Used by the API layer to translate AppErrors into HTTP responses.
// Returns 500 for unrecognized error codes as a safe default.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest // 400
	case c == ErrCodeLimitDailySessions:
		return http.StatusForbidden // 403
	case c == ErrCodeConflictInFlight:
		return http.StatusConflict // 409
	case c == ErrCodeIAPPlatformUnsupported:
		return http.StatusNotImplemented // 501
	case c == ErrCodeIAPUnknownProduct:
		return http.StatusUnprocessableEntity // 422
	case c == ErrCodeCatalogNotLoaded:
		return http.StatusConflict // 409
	case c == ErrCodeIAPNotConnected,
		c == ErrCodeIAPStoreError,
		c == ErrCodeCatalogTimeout:
		return http.StatusBadGateway // 502
	case strings.HasPrefix(s, "internal_"):
		return http.StatusInternalServerError // 500
	default:
		return http.StatusInternalServerError // 500
	}
}

// Retryable reports whether the caller may meaningfully retry the failed
// operation without developer action. Configuration errors (an unknown
// product id) are deliberately not retryable.
func (c ErrorCode) Retryable() bool {
	switch c {
	case ErrCodeIAPStoreError, ErrCodeIAPNotConnected, ErrCodeCatalogTimeout:
		return true
	default:
		return false
	}
}

// AppError is the standard application error type used throughout the service.
// All domain errors are expressed as AppError to enable consistent error
// formatting, HTTP status mapping, and error chain support.
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

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error. This is the standard constructor for domain errors.
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
