package iap

import (
	"context"
	"errors"
	"fmt"

	"eyezen/internal/types"
)

// Vendor error code strings reported by platform purchase SDKs.
// These are the wire values observed on the listener error path.
const (
	VendorErrUserCancelled   = "E_USER_CANCELLED"
	VendorErrNetwork         = "E_NETWORK_ERROR"
	VendorErrServiceError    = "E_SERVICE_ERROR"
	VendorErrRemoteError     = "E_REMOTE_ERROR"
	VendorErrItemUnavailable = "E_ITEM_UNAVAILABLE"
	VendorErrDeveloperError  = "E_DEVELOPER_ERROR"
	VendorErrNotPrepared     = "E_NOT_PREPARED"
	VendorErrNotAvailable    = "E_IAP_NOT_AVAILABLE"
	VendorErrAlreadyOwned    = "E_ALREADY_OWNED"
	VendorErrUnknown         = "E_UNKNOWN"
)

// Classify maps a vendor error code to the application error taxonomy.
// Cancellation is classified, not surfaced: callers check for
// iap_user_cancelled and return to idle silently. The original vendor
// code and message are preserved in the error details for diagnostics.
func Classify(code, message string) *types.AppError {
	details := map[string]any{"vendor_code": code}
	switch code {
	case VendorErrUserCancelled:
		return types.NewAppErrorWithDetails(
			types.ErrCodeIAPUserCancelled, "purchase cancelled by user", nil, details)
	case VendorErrNetwork, VendorErrServiceError, VendorErrRemoteError:
		return types.NewAppErrorWithDetails(
			types.ErrCodeIAPStoreError,
			fmt.Sprintf("store error: %s", message), nil, details)
	case VendorErrItemUnavailable, VendorErrDeveloperError:
		return types.NewAppErrorWithDetails(
			types.ErrCodeIAPUnknownProduct,
			fmt.Sprintf("product not recognized by storefront: %s", message), nil, details)
	case VendorErrNotPrepared:
		return types.NewAppErrorWithDetails(
			types.ErrCodeIAPNotConnected, "purchase backend not connected", nil, details)
	case VendorErrNotAvailable:
		return types.NewAppErrorWithDetails(
			types.ErrCodeIAPPlatformUnsupported, "purchase capability not available", nil, details)
	default:
		return types.NewAppErrorWithDetails(
			types.ErrCodeIAPUnknown,
			fmt.Sprintf("purchase failed: %s", message), nil, details)
	}
}

// ClassifyErr maps a Go-level backend error to the taxonomy. Context
// deadline expiry becomes catalog_timeout; an existing AppError passes
// through unchanged.
func ClassifyErr(err error) *types.AppError {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.NewAppError(types.ErrCodeCatalogTimeout, "store request timed out", err)
	}
	return types.NewAppError(types.ErrCodeIAPStoreError, "store request failed", err)
}
