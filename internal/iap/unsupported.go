package iap

import (
	"context"

	"eyezen/internal/types"
)

// UnsupportedBackend is the null-object Backend for runtime targets where
// the purchase capability does not exist. Every operation reports
// iap_platform_unsupported; the engine detects Supported() == false up
// front and avoids calling out at all.
type UnsupportedBackend struct{}

// NewUnsupportedBackend creates the null backend.
func NewUnsupportedBackend() *UnsupportedBackend {
	return &UnsupportedBackend{}
}

func (*UnsupportedBackend) Supported() bool { return false }

func (*UnsupportedBackend) Connect(ctx context.Context) error {
	return errPlatformUnsupported()
}

func (*UnsupportedBackend) Disconnect() {}

func (*UnsupportedBackend) FetchCatalog(ctx context.Context, productIDs []string) ([]types.Product, error) {
	return nil, errPlatformUnsupported()
}

func (*UnsupportedBackend) RequestPurchase(ctx context.Context, productID string) error {
	return errPlatformUnsupported()
}

func (*UnsupportedBackend) ListPastPurchases(ctx context.Context) ([]types.PurchaseRecord, error) {
	return nil, errPlatformUnsupported()
}

func (*UnsupportedBackend) SetListener(l Listener) {}

func (*UnsupportedBackend) FinalizePurchase(ctx context.Context, record types.PurchaseRecord) error {
	return errPlatformUnsupported()
}

func errPlatformUnsupported() *types.AppError {
	return types.NewAppError(types.ErrCodeIAPPlatformUnsupported,
		"purchase capability does not exist on this runtime target", nil)
}

var _ Backend = (*UnsupportedBackend)(nil)
