// Package iap provides the purchase backend abstraction the entitlement
// engine consumes: catalog fetches, purchase and restore requests, and the
// asynchronous purchase event stream. All outbound HTTP calls route through
// a resilience client enforcing circuit breaking, retries with backoff, and
// error mapping into the application taxonomy.
//
// Three variants exist: HTTPBackend talks to a store bridge over REST,
// UnsupportedBackend is the null object for runtimes without purchase
// capability, and StubBackend boots the service in local/test mode.
package iap

import (
	"context"

	"eyezen/internal/types"
)

// Listener receives asynchronous purchase events from the backend.
// Registration happens once at engine initialization; implementations must
// tolerate events arriving on any goroutine.
type Listener interface {
	// OnPurchaseUpdated is invoked when the backend reports a completed
	// transaction, whether from a purchase request or out-of-band (e.g.,
	// a deferred approval).
	OnPurchaseUpdated(record types.PurchaseRecord)

	// OnPurchaseError is invoked when a purchase request fails. The code
	// is the vendor error string (see classify.go), not an application
	// error code.
	OnPurchaseError(code, message string)
}

// Backend abstracts the platform purchase capability.
type Backend interface {
	// Supported reports whether the purchase capability exists on this
	// runtime target. When false, every other operation returns
	// iap_platform_unsupported.
	Supported() bool

	// Connect establishes the backend connection. Must be called before
	// any catalog, purchase, or restore operation.
	Connect(ctx context.Context) error

	// Disconnect tears down the connection. Safe to call when not connected.
	Disconnect()

	// FetchCatalog returns the purchasable offerings for the given product
	// IDs. A zero-length result is a valid catalog, distinct from an error.
	FetchCatalog(ctx context.Context, productIDs []string) ([]types.Product, error)

	// RequestPurchase submits a purchase request. The call is fire-and-
	// forget: the outcome arrives via the registered Listener.
	RequestPurchase(ctx context.Context, productID string) error

	// ListPastPurchases returns the platform's record of prior purchases.
	ListPastPurchases(ctx context.Context) ([]types.PurchaseRecord, error)

	// SetListener registers the single purchase event listener.
	// Passing nil deregisters it.
	SetListener(l Listener)

	// FinalizePurchase acknowledges consumption of the transaction to the
	// backend. Must be called after entitlement has been credited.
	FinalizePurchase(ctx context.Context, record types.PurchaseRecord) error
}
