package types

// PremiumPlan identifies the entitlement tier a user holds.
// The set of paid tiers and their allowances is configuration data;
// code must never assume a particular paid tier exists.
type PremiumPlan string

const (
	PlanFree     PremiumPlan = "free"
	PlanLifetime PremiumPlan = "lifetime"
	PlanYearly   PremiumPlan = "yearly"
)

// PurchaseFlowState tracks whether a purchase or restore request is in
// flight against the purchase backend. At most one such operation may be
// pending at a time.
type PurchaseFlowState string

const (
	FlowIdle            PurchaseFlowState = "idle"
	FlowPurchasePending PurchaseFlowState = "purchase_pending"
	FlowRestorePending  PurchaseFlowState = "restore_pending"
)

// CatalogStatus tracks the lifecycle of the product catalog fetch.
// A loaded-but-empty catalog is distinct from a failed load.
type CatalogStatus string

const (
	CatalogNotLoaded CatalogStatus = "not_loaded"
	CatalogLoading   CatalogStatus = "loading"
	CatalogLoaded    CatalogStatus = "loaded"
	CatalogFailed    CatalogStatus = "failed"
)

// EventType identifies the kind of entitlement event broadcast to observers.
type EventType string

const (
	EventPurchaseCompleted EventType = "purchase_completed"
	EventPurchaseFailed    EventType = "purchase_failed"
	EventRestoreCompleted  EventType = "restore_completed"
	EventRestoreFailed     EventType = "restore_failed"
	EventCatalogLoaded     EventType = "catalog_loaded"
	EventCatalogFailed     EventType = "catalog_failed"
	EventQuotaReset        EventType = "quota_reset"
	EventSessionConsumed   EventType = "session_consumed"
)
