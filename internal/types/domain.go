package types

import "time"

// DayFormat is the locale-independent persisted form of a calendar day.
const DayFormat = "2006-01-02"

// DayOf reduces a point in time to its calendar day in the time's location.
// Quota accounting compares days in this form only; wall-clock components
// never participate.
func DayOf(t time.Time) string {
	return t.Format(DayFormat)
}

// IsValidDay reports whether s parses as a DayFormat calendar day.
func IsValidDay(s string) bool {
	_, err := time.Parse(DayFormat, s)
	return err == nil
}

// PlanLimits defines the daily session allowance for a plan.
// Unlimited takes precedence over DailySessions; when set, DailySessions
// is ignored by enforcement code.
type PlanLimits struct {
	DailySessions int  `json:"daily_sessions"`
	Unlimited     bool `json:"unlimited"`
}

// EntitlementState is the persisted aggregate the engine mutates for the
// process lifetime: which plan is held and how much of today's allowance
// has been consumed.
//
// DailyWatchCount is only meaningful relative to LastWatchDate; the engine
// resets it whenever the current calendar day differs. LastWatchDate is ""
// before the first consumption.
type EntitlementState struct {
	Plan            PremiumPlan
	DailyWatchCount int
	LastWatchDate   string
}

// EntitlementSnapshot is the derived, read-only view handed to observers
// and the HTTP layer. Remaining is 0 when Unlimited is true; callers must
// check Unlimited before interpreting Remaining.
type EntitlementSnapshot struct {
	Plan            PremiumPlan       `json:"plan"`
	IsPremium       bool              `json:"is_premium"`
	DailyWatchCount int               `json:"daily_watch_count"`
	LastWatchDate   string            `json:"last_watch_date,omitempty"`
	MaxDailyLimit   int               `json:"max_daily_limit"`
	Unlimited       bool              `json:"unlimited"`
	Remaining       int               `json:"remaining"`
	CanConsume      bool              `json:"can_consume"`
	FlowState       PurchaseFlowState `json:"flow_state"`
	CatalogStatus   CatalogStatus     `json:"catalog_status"`
	StatusMessage   string            `json:"status_message"`
}

// Product is a purchasable offering from the store catalog.
type Product struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	LocalizedPrice string `json:"localized_price"`
}

// PurchaseRecord is the backend's evidence of a completed transaction.
// The engine trusts the platform's signal; receipt validation beyond this
// is out of scope.
type PurchaseRecord struct {
	ProductID     string `json:"product_id"`
	TransactionID string `json:"transaction_id,omitempty"`
}

// Event is broadcast to engine observers after a state transition.
type Event struct {
	Type     EventType
	Plan     PremiumPlan
	Err      *AppError
	Snapshot EntitlementSnapshot
}

// ConsumeResult is the outcome of a session consumption attempt.
// A denial is not an error; the caller is expected to present an upsell.
type ConsumeResult struct {
	Granted    bool                `json:"granted"`
	ShowUpsell bool                `json:"show_upsell"`
	Snapshot   EntitlementSnapshot `json:"snapshot"`
}

// RestoreResult is the outcome of a restore operation. Found is false when
// the backend returned no records mapping to a known product, which is a
// normal outcome rather than a failure.
type RestoreResult struct {
	Found bool        `json:"found"`
	Plan  PremiumPlan `json:"plan"`
}
