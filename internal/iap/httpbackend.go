package iap

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"eyezen/internal/types"

	"github.com/google/uuid"
)

// HTTPBackend implements Backend against a store bridge: a small REST
// service that fronts the platform storefront API. Purchase outcomes are
// asynchronous on the bridge too; the backend polls the bridge's event
// feed and dispatches results to the registered Listener, mirroring the
// listener contract of on-device purchase SDKs.
type HTTPBackend struct {
	client  *storeClient
	baseURL string
	logger  *slog.Logger

	mu        sync.Mutex
	listener  Listener
	connected bool
	pollStop  chan struct{}
	pollDone  chan struct{}

	pollInterval time.Duration
}

// HTTPBackendConfig holds construction parameters for HTTPBackend.
type HTTPBackendConfig struct {
	BaseURL      string
	HTTPClient   *http.Client
	Retry        RetryPolicy
	PollInterval time.Duration
	Logger       *slog.Logger
}

// NewHTTPBackend creates an HTTPBackend. The HTTP client's timeout bounds
// individual bridge calls; callers additionally bound catalog fetches with
// a context deadline.
func NewHTTPBackend(cfg HTTPBackendConfig) *HTTPBackend {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	retry := cfg.Retry
	if retry.MaxRetries == 0 && retry.MinWait == 0 {
		retry = DefaultRetryPolicy()
	}
	return &HTTPBackend{
		client:       newStoreClient(httpClient, retry),
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		logger:       logger,
		pollInterval: interval,
	}
}

func (b *HTTPBackend) Supported() bool { return true }

// Connect verifies the bridge is reachable and starts the event poller.
func (b *HTTPBackend) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.connected {
		return nil
	}

	resp, err := b.do(ctx, http.MethodPost, "/v1/connect", nil)
	if err != nil {
		return ClassifyErr(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return types.NewAppError(types.ErrCodeIAPNotConnected,
			fmt.Sprintf("store bridge connect returned %d", resp.StatusCode), nil)
	}

	b.connected = true
	b.pollStop = make(chan struct{})
	b.pollDone = make(chan struct{})
	go b.pollEvents(b.pollStop, b.pollDone)
	return nil
}

// Disconnect stops the event poller. Safe to call when not connected.
func (b *HTTPBackend) Disconnect() {
	b.mu.Lock()
	if !b.connected {
		b.mu.Unlock()
		return
	}
	b.connected = false
	stop, done := b.pollStop, b.pollDone
	b.mu.Unlock()

	close(stop)
	<-done
}

func (b *HTTPBackend) FetchCatalog(ctx context.Context, productIDs []string) ([]types.Product, error) {
	if err := b.requireConnected(); err != nil {
		return nil, err
	}

	payload := struct {
		ProductIDs []string `json:"product_ids"`
	}{ProductIDs: productIDs}

	resp, err := b.do(ctx, http.MethodPost, "/v1/catalog/query", payload)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, types.NewAppError(types.ErrCodeCatalogTimeout,
				"catalog fetch exceeded its deadline", err)
		}
		return nil, ClassifyErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, types.NewAppError(types.ErrCodeIAPStoreError,
			fmt.Sprintf("catalog query returned %d", resp.StatusCode), nil)
	}

	var out struct {
		Products []types.Product `json:"products"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, types.NewAppError(types.ErrCodeIAPUnknown,
			"failed to decode catalog response", err)
	}
	return out.Products, nil
}

// RequestPurchase submits the purchase and returns once the bridge accepts
// it. The outcome arrives later through the event poller.
func (b *HTTPBackend) RequestPurchase(ctx context.Context, productID string) error {
	if err := b.requireConnected(); err != nil {
		return err
	}

	payload := struct {
		ProductID string `json:"product_id"`
		RequestID string `json:"request_id"`
	}{ProductID: productID, RequestID: uuid.NewString()}

	resp, err := b.do(ctx, http.MethodPost, "/v1/purchases", payload)
	if err != nil {
		return ClassifyErr(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusAccepted:
		return nil
	case http.StatusNotFound, http.StatusUnprocessableEntity:
		return types.NewAppError(types.ErrCodeIAPUnknownProduct,
			fmt.Sprintf("storefront does not recognize product %q", productID), nil)
	default:
		return types.NewAppError(types.ErrCodeIAPStoreError,
			fmt.Sprintf("purchase request returned %d", resp.StatusCode), nil)
	}
}

func (b *HTTPBackend) ListPastPurchases(ctx context.Context) ([]types.PurchaseRecord, error) {
	if err := b.requireConnected(); err != nil {
		return nil, err
	}

	resp, err := b.do(ctx, http.MethodGet, "/v1/purchases", nil)
	if err != nil {
		return nil, ClassifyErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, types.NewAppError(types.ErrCodeIAPStoreError,
			fmt.Sprintf("past purchases query returned %d", resp.StatusCode), nil)
	}

	var out struct {
		Purchases []types.PurchaseRecord `json:"purchases"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, types.NewAppError(types.ErrCodeIAPUnknown,
			"failed to decode past purchases response", err)
	}
	return out.Purchases, nil
}

func (b *HTTPBackend) SetListener(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listener = l
}

func (b *HTTPBackend) FinalizePurchase(ctx context.Context, record types.PurchaseRecord) error {
	if err := b.requireConnected(); err != nil {
		return err
	}

	path := fmt.Sprintf("/v1/purchases/%s/finalize", record.TransactionID)
	resp, err := b.do(ctx, http.MethodPost, path, nil)
	if err != nil {
		return ClassifyErr(err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return types.NewAppError(types.ErrCodeIAPStoreError,
			fmt.Sprintf("finalize returned %d", resp.StatusCode), nil)
	}
	return nil
}

func (b *HTTPBackend) requireConnected() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return types.NewAppError(types.ErrCodeIAPNotConnected,
			"store bridge connection not established", nil)
	}
	return nil
}

func (b *HTTPBackend) do(ctx context.Context, method, path string, payload any) (*http.Response, error) {
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalUnexpected,
				"failed to encode request payload", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, body)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected,
			"failed to build request", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return b.client.Do(req)
}

// bridgeEvent is one entry in the bridge's event feed.
type bridgeEvent struct {
	Type    string               `json:"type"` // "purchase_updated" | "purchase_error"
	Record  types.PurchaseRecord `json:"record,omitempty"`
	Code    string               `json:"code,omitempty"`
	Message string               `json:"message,omitempty"`
}

// pollEvents drains the bridge event feed and dispatches to the listener
// until Disconnect closes the stop channel.
func (b *HTTPBackend) pollEvents(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			b.drainEvents()
		}
	}
}

func (b *HTTPBackend) drainEvents() {
	ctx, cancel := context.WithTimeout(context.Background(), b.pollInterval)
	defer cancel()

	resp, err := b.do(ctx, http.MethodGet, "/v1/events", nil)
	if err != nil {
		b.logger.Debug("store bridge event poll failed", "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return
	}
	if resp.StatusCode != http.StatusOK {
		b.logger.Debug("store bridge event poll returned non-OK", "status", resp.StatusCode)
		return
	}

	var out struct {
		Events []bridgeEvent `json:"events"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		b.logger.Warn("failed to decode store bridge events", "error", err)
		return
	}

	b.mu.Lock()
	listener := b.listener
	b.mu.Unlock()
	if listener == nil {
		return
	}

	for _, ev := range out.Events {
		switch ev.Type {
		case "purchase_updated":
			listener.OnPurchaseUpdated(ev.Record)
		case "purchase_error":
			listener.OnPurchaseError(ev.Code, ev.Message)
		default:
			b.logger.Warn("unknown store bridge event type", "type", ev.Type)
		}
	}
}

var _ Backend = (*HTTPBackend)(nil)
