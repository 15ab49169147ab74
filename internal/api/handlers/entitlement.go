// Package handlers contains the domain HTTP handlers mounted on the core
// chassis.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"eyezen/internal/core"
	"eyezen/internal/entitlement"
	"eyezen/internal/types"
)

// EntitlementHandler exposes the entitlement engine over HTTP.
type EntitlementHandler struct {
	engine *entitlement.Engine
	logger *slog.Logger
}

// NewEntitlementHandler creates the handler.
func NewEntitlementHandler(engine *entitlement.Engine, logger *slog.Logger) *EntitlementHandler {
	return &EntitlementHandler{engine: engine, logger: logger}
}

// RegisterRoutes mounts the entitlement routes on the given router.
func (h *EntitlementHandler) RegisterRoutes(r chi.Router) {
	r.Get("/entitlement", h.getEntitlement)
	r.Post("/sessions", h.consumeSession)
	r.Get("/catalog", h.getCatalog)
	r.Post("/catalog/retry", h.retryCatalog)
	r.Post("/purchase", h.purchase)
	r.Post("/restore", h.restore)
	r.Post("/lifecycle/foreground", h.foreground)
}

// getEntitlement returns the derived entitlement snapshot.
func (h *EntitlementHandler) getEntitlement(w http.ResponseWriter, r *http.Request) {
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: h.engine.Snapshot()})
}

// consumeSession attempts to consume one session from today's allowance.
// A denial is a 403 with the upsell flag set, not an internal error.
func (h *EntitlementHandler) consumeSession(w http.ResponseWriter, r *http.Request) {
	result := h.engine.TryConsumeSession(r.Context())
	if !result.Granted {
		core.JSON(w, r, http.StatusForbidden, core.APIResponse{Data: result})
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: result})
}

// catalogResponse pairs the catalog status with its products and, for a
// failed load, the failure detail so the client can render an inline
// retry affordance.
type catalogResponse struct {
	Status   types.CatalogStatus `json:"status"`
	Products []types.Product     `json:"products"`
	Failure  *types.AppError     `json:"failure,omitempty"`
}

func (h *EntitlementHandler) getCatalog(w http.ResponseWriter, r *http.Request) {
	status, products, failure := h.engine.Catalog()
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: catalogResponse{
		Status:   status,
		Products: products,
		Failure:  failure,
	}})
}

func (h *EntitlementHandler) retryCatalog(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.RetryCatalog(r.Context()); err != nil {
		core.Error(w, r, err)
		return
	}
	status, products, failure := h.engine.Catalog()
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: catalogResponse{
		Status:   status,
		Products: products,
		Failure:  failure,
	}})
}

// purchaseRequest is the purchase submission payload.
type purchaseRequest struct {
	ProductID string `json:"product_id"`
}

// purchase submits a purchase request. Acceptance is 202: the outcome
// arrives asynchronously and is observable via the entitlement snapshot.
func (h *EntitlementHandler) purchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if req.ProductID == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField,
			"product_id is required", nil))
		return
	}

	if err := h.engine.Purchase(r.Context(), req.ProductID); err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusAccepted, core.APIResponse{Data: h.engine.Snapshot()})
}

func (h *EntitlementHandler) restore(w http.ResponseWriter, r *http.Request) {
	result, err := h.engine.Restore(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: result})
}

// foreground is the app-foreground lifecycle signal; it triggers the
// opportunistic day-rollover check.
func (h *EntitlementHandler) foreground(w http.ResponseWriter, r *http.Request) {
	h.engine.HandleForeground(r.Context())
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: h.engine.Snapshot()})
}
