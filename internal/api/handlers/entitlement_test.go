package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eyezen/internal/config"
	"eyezen/internal/core"
	"eyezen/internal/entitlement"
	"eyezen/internal/iap"
	"eyezen/internal/kvstore"
	"eyezen/internal/plan"
	"eyezen/internal/types"
)

type fixture struct {
	handler http.Handler
	engine  *entitlement.Engine
	backend *iap.StubBackend
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	reg, err := plan.NewRegistry(plan.Defaults())
	require.NoError(t, err)
	products, err := plan.NewProductMap(reg, map[string]types.PremiumPlan{
		"com.eyezen.dailyfive": types.PlanLifetime,
		"com.eyezen.yearly":    types.PlanYearly,
	})
	require.NoError(t, err)

	backend := iap.NewStubBackend(logger, []types.Product{
		{ID: "com.eyezen.dailyfive", Title: "Daily Five", LocalizedPrice: "$4.99"},
		{ID: "com.eyezen.yearly", Title: "Yearly Unlimited", LocalizedPrice: "$11.99"},
	})

	store := entitlement.NewStore(kvstore.NewMemoryStore(), reg, logger)
	engine := entitlement.NewEngine(store, backend, reg, products, logger,
		entitlement.WithRolloverInterval(0))
	require.NoError(t, engine.Start(context.Background()))
	t.Cleanup(engine.Close)

	cfg := &config.Config{Service: "eyezen-test", Environment: "local"}
	srv, err := core.NewServer(cfg, logger)
	require.NoError(t, err)

	h := NewEntitlementHandler(engine, logger)
	srv.Router().Route("/v1", func(r chi.Router) {
		h.RegisterRoutes(r)
	})

	return &fixture{handler: srv.Handler(), engine: engine, backend: backend}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, dst))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) core.ErrorDetail {
	t.Helper()
	var envelope core.APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope.Error
}

func TestGetEntitlement(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/v1/entitlement", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var snap types.EntitlementSnapshot
	decodeData(t, rec, &snap)
	assert.Equal(t, types.PlanFree, snap.Plan)
	assert.False(t, snap.IsPremium)
	assert.Equal(t, 1, snap.Remaining)
	assert.True(t, snap.CanConsume)
	assert.NotEmpty(t, snap.StatusMessage)
}

func TestConsumeSession_GrantThenDeny(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/sessions", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var result types.ConsumeResult
	decodeData(t, rec, &result)
	assert.True(t, result.Granted)
	assert.False(t, result.ShowUpsell)

	rec = f.do(t, http.MethodPost, "/v1/sessions", "")
	require.Equal(t, http.StatusForbidden, rec.Code)

	decodeData(t, rec, &result)
	assert.False(t, result.Granted)
	assert.True(t, result.ShowUpsell)
	assert.Equal(t, 1, result.Snapshot.DailyWatchCount)
}

func TestGetCatalog(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/v1/catalog", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var cat struct {
		Status   types.CatalogStatus `json:"status"`
		Products []types.Product     `json:"products"`
	}
	decodeData(t, rec, &cat)
	assert.Equal(t, types.CatalogLoaded, cat.Status)
	assert.Len(t, cat.Products, 2)
}

func TestRetryCatalog(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/catalog/retry", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var cat struct {
		Status types.CatalogStatus `json:"status"`
	}
	decodeData(t, rec, &cat)
	assert.Equal(t, types.CatalogLoaded, cat.Status)
}

func TestPurchase_Accepted(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/purchase", `{"product_id":"com.eyezen.dailyfive"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	// The stub delivers the completion asynchronously; the plan upgrade
	// becomes visible in the snapshot shortly after.
	require.Eventually(t, func() bool {
		return f.engine.Snapshot().Plan == types.PlanLifetime
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPurchase_MissingProductID(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/purchase", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	detail := decodeError(t, rec)
	assert.Equal(t, string(types.ErrCodeValidationMissingField), detail.Code)
	assert.NotEmpty(t, detail.RequestID)
}

func TestPurchase_MalformedBody(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/purchase", `{broken`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPurchase_UnknownProduct(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/purchase", `{"product_id":"com.eyezen.bogus"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	detail := decodeError(t, rec)
	assert.Equal(t, string(types.ErrCodeIAPUnknownProduct), detail.Code)
	assert.False(t, detail.Retryable)
}

func TestRestore_NoPurchases(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/restore", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var result types.RestoreResult
	decodeData(t, rec, &result)
	assert.False(t, result.Found)
	assert.Equal(t, types.PlanFree, result.Plan)
}

func TestRestore_FindsSeededPurchase(t *testing.T) {
	f := newFixture(t)
	f.backend.SeedPastPurchase(types.PurchaseRecord{
		ProductID:     "com.eyezen.yearly",
		TransactionID: "txn-historic",
	})

	rec := f.do(t, http.MethodPost, "/v1/restore", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var result types.RestoreResult
	decodeData(t, rec, &result)
	assert.True(t, result.Found)
	assert.Equal(t, types.PlanYearly, result.Plan)
}

func TestLifecycleForeground(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/lifecycle/foreground", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var snap types.EntitlementSnapshot
	decodeData(t, rec, &snap)
	assert.Equal(t, types.PlanFree, snap.Plan)
}

func TestRequestIDPropagatedToErrorBody(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/purchase", strings.NewReader(`{}`))
	req.Header.Set("X-Request-ID", "trace-me")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	detail := decodeError(t, rec)
	assert.Equal(t, "trace-me", detail.RequestID)
}
