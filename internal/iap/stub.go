package iap

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"eyezen/internal/types"

	"github.com/google/uuid"
)

// StubBackend implements Backend by logging calls and returning predictable
// defaults, letting the service boot in local/test mode without storefront
// credentials. Purchase requests succeed and deliver the completion event
// on a separate goroutine, mirroring the asynchronous shape of the real
// listener contract.
type StubBackend struct {
	logger  *slog.Logger
	catalog []types.Product

	mu        sync.Mutex
	listener  Listener
	connected bool
	past      []types.PurchaseRecord
	finalized []string
}

// NewStubBackend creates a StubBackend serving the given catalog.
func NewStubBackend(logger *slog.Logger, catalog []types.Product) *StubBackend {
	return &StubBackend{logger: logger, catalog: catalog}
}

func (s *StubBackend) Supported() bool { return true }

func (s *StubBackend) Connect(ctx context.Context) error {
	s.logger.InfoContext(ctx, "stub: Connect called")
	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
	return nil
}

func (s *StubBackend) Disconnect() {
	s.logger.Info("stub: Disconnect called")
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
}

func (s *StubBackend) FetchCatalog(ctx context.Context, productIDs []string) ([]types.Product, error) {
	s.logger.InfoContext(ctx, "stub: FetchCatalog called", "product_ids", productIDs)
	want := make(map[string]struct{}, len(productIDs))
	for _, id := range productIDs {
		want[id] = struct{}{}
	}
	var out []types.Product
	for _, p := range s.catalog {
		if _, ok := want[p.ID]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *StubBackend) RequestPurchase(ctx context.Context, productID string) error {
	s.logger.InfoContext(ctx, "stub: RequestPurchase called", "product_id", productID)

	record := types.PurchaseRecord{
		ProductID:     productID,
		TransactionID: fmt.Sprintf("txn_stub_%s", uuid.NewString()),
	}

	s.mu.Lock()
	s.past = append(s.past, record)
	listener := s.listener
	s.mu.Unlock()

	if listener != nil {
		go listener.OnPurchaseUpdated(record)
	}
	return nil
}

func (s *StubBackend) ListPastPurchases(ctx context.Context) ([]types.PurchaseRecord, error) {
	s.logger.InfoContext(ctx, "stub: ListPastPurchases called")
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.PurchaseRecord, len(s.past))
	copy(out, s.past)
	return out, nil
}

func (s *StubBackend) SetListener(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = l
}

func (s *StubBackend) FinalizePurchase(ctx context.Context, record types.PurchaseRecord) error {
	s.logger.InfoContext(ctx, "stub: FinalizePurchase called",
		"transaction_id", record.TransactionID)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finalized = append(s.finalized, record.TransactionID)
	return nil
}

// SeedPastPurchase adds a purchase record to the stub's history, for
// exercising restore flows in local mode.
func (s *StubBackend) SeedPastPurchase(record types.PurchaseRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.past = append(s.past, record)
}

var _ Backend = (*StubBackend)(nil)
