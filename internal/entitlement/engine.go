package entitlement

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"eyezen/internal/iap"
	"eyezen/internal/plan"
	"eyezen/internal/types"
)

// Default timing parameters. The catalog deadline distinguishes a slow
// store from an empty catalog; the rollover interval is defence in depth
// behind the foreground lifecycle signal.
const (
	DefaultCatalogTimeout   = 10 * time.Second
	DefaultRolloverInterval = time.Minute
)

// Engine is the sole mutator of entitlement state during the process
// lifetime. It mediates between caller intents (consume, purchase,
// restore) and the purchase backend, enforces the daily quota with
// calendar-day rollover, and broadcasts state transitions to observers.
//
// All state is guarded by a single mutex; at most one purchase-or-restore
// operation is in flight at a time, and a second request while one is
// pending is rejected synchronously rather than queued.
type Engine struct {
	store    *Store
	backend  iap.Backend
	reg      plan.Registry
	products *plan.ProductMap
	logger   *slog.Logger

	now              func() time.Time
	catalogTimeout   time.Duration
	rolloverInterval time.Duration

	mu         sync.Mutex
	state      types.EntitlementState
	flow       types.PurchaseFlowState
	catStatus  types.CatalogStatus
	catalog    []types.Product
	catFailure *types.AppError
	started    bool

	subMu   sync.Mutex
	subs    map[int]func(types.Event)
	nextSub int

	stopTicker chan struct{}
	tickerDone chan struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the engine's time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithCatalogTimeout overrides the catalog fetch deadline.
func WithCatalogTimeout(d time.Duration) Option {
	return func(e *Engine) { e.catalogTimeout = d }
}

// WithRolloverInterval overrides the day-rollover poll interval.
// A non-positive value disables the ticker; the foreground signal and
// consumption attempts still trigger rollover checks.
func WithRolloverInterval(d time.Duration) Option {
	return func(e *Engine) { e.rolloverInterval = d }
}

// NewEngine creates an Engine. The plan registry and product map are
// configuration supplied at construction; the engine itself never names a
// product identifier.
func NewEngine(
	store *Store,
	backend iap.Backend,
	reg plan.Registry,
	products *plan.ProductMap,
	logger *slog.Logger,
	opts ...Option,
) *Engine {
	e := &Engine{
		store:            store,
		backend:          backend,
		reg:              reg,
		products:         products,
		logger:           logger,
		now:              time.Now,
		catalogTimeout:   DefaultCatalogTimeout,
		rolloverInterval: DefaultRolloverInterval,
		flow:             types.FlowIdle,
		catStatus:        types.CatalogNotLoaded,
		subs:             make(map[int]func(types.Event)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start loads persisted state, runs the initial day-rollover check,
// registers the purchase event listener, connects the backend, kicks off
// the catalog fetch, reconciles against past purchases, and starts the
// rollover ticker. It is called once at application startup.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return fmt.Errorf("entitlement: engine already started")
	}
	e.started = true
	e.state = e.store.Load(ctx)
	e.mu.Unlock()

	e.CheckAndResetIfNewDay(ctx)

	e.backend.SetListener(&listenerAdapter{engine: e})

	if !e.backend.Supported() {
		// No network call is attempted on unsupported platforms; the
		// catalog is immediately failed so the UI can render accordingly.
		failure := types.NewAppError(types.ErrCodeIAPPlatformUnsupported,
			"platform unsupported", nil)
		e.mu.Lock()
		e.catStatus = types.CatalogFailed
		e.catFailure = failure
		e.mu.Unlock()
		e.logger.Info("purchase capability unavailable; running in free-only mode")
	} else {
		if err := e.backend.Connect(ctx); err != nil {
			e.logger.Warn("purchase backend connect failed", "error", err)
			e.mu.Lock()
			e.catStatus = types.CatalogFailed
			e.catFailure = iap.ClassifyErr(err)
			e.mu.Unlock()
		} else {
			e.loadCatalog(ctx)
			e.reconcilePastPurchases(ctx)
		}
	}

	if e.rolloverInterval > 0 {
		e.stopTicker = make(chan struct{})
		e.tickerDone = make(chan struct{})
		go e.rolloverLoop(e.stopTicker, e.tickerDone)
	}

	return nil
}

// Close deregisters the purchase listener, disconnects the backend, and
// cancels the rollover ticker. The engine must not be used afterwards.
func (e *Engine) Close() {
	e.backend.SetListener(nil)
	e.backend.Disconnect()
	if e.stopTicker != nil {
		close(e.stopTicker)
		<-e.tickerDone
	}
}

// ---------------------------------------------------------------------------
// Observers
// ---------------------------------------------------------------------------

// Subscribe registers an observer for entitlement events. Observers are
// invoked synchronously on the goroutine that produced the event and must
// not block. The returned function cancels the subscription.
func (e *Engine) Subscribe(fn func(types.Event)) (cancel func()) {
	e.subMu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	e.subMu.Unlock()

	return func() {
		e.subMu.Lock()
		delete(e.subs, id)
		e.subMu.Unlock()
	}
}

func (e *Engine) emit(ev types.Event) {
	e.subMu.Lock()
	fns := make([]func(types.Event), 0, len(e.subs))
	for _, fn := range e.subs {
		fns = append(fns, fn)
	}
	e.subMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// ---------------------------------------------------------------------------
// Quota
// ---------------------------------------------------------------------------

// TryConsumeSession attempts to consume one session from today's
// allowance. The day-rollover check runs first, so a request on a new
// calendar day is evaluated against a fresh count. A denial is not an
// error: the caller presents an upsell. On grant, the incremented count
// and today's date are persisted before the result is returned.
//
// This operation is independent of the purchase flow state and is safe to
// call while a purchase or restore is pending.
func (e *Engine) TryConsumeSession(ctx context.Context) types.ConsumeResult {
	e.mu.Lock()

	e.rolloverLocked(ctx)

	limits := e.reg.Limits(e.state.Plan)
	if !limits.Unlimited && e.state.DailyWatchCount >= limits.DailySessions {
		result := types.ConsumeResult{
			Granted:    false,
			ShowUpsell: true,
			Snapshot:   e.snapshotLocked(),
		}
		e.mu.Unlock()
		return result
	}

	e.state.DailyWatchCount++
	e.state.LastWatchDate = types.DayOf(e.now())
	e.store.SetQuota(ctx, e.state.DailyWatchCount, e.state.LastWatchDate)

	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.emit(types.Event{Type: types.EventSessionConsumed, Plan: snap.Plan, Snapshot: snap})
	return types.ConsumeResult{Granted: true, Snapshot: snap}
}

// CheckAndResetIfNewDay resets the daily count when the calendar day has
// changed since the last consumption. Idempotent; triggered by the
// foreground lifecycle signal, the rollover ticker, and every consumption
// attempt.
func (e *Engine) CheckAndResetIfNewDay(ctx context.Context) {
	e.mu.Lock()
	reset := e.rolloverLocked(ctx)
	snap := e.snapshotLocked()
	e.mu.Unlock()

	if reset {
		e.emit(types.Event{Type: types.EventQuotaReset, Plan: snap.Plan, Snapshot: snap})
	}
}

// HandleForeground is the application-foreground lifecycle signal, the
// primary day-rollover trigger: a UI-visible remaining-count badge must
// update promptly, not only at the next consumption attempt.
func (e *Engine) HandleForeground(ctx context.Context) {
	e.CheckAndResetIfNewDay(ctx)
}

// rolloverLocked performs the reset under e.mu, persisting the zeroed
// count before quota evaluation. Returns true when a reset happened.
//
// An empty LastWatchDate with a zero count is a fresh install and needs
// no reset. An empty date with a positive count is a record that lost its
// date field to a partial write; it counts as a day change, otherwise the
// orphaned count would deny consumption on every day thereafter.
func (e *Engine) rolloverLocked(ctx context.Context) bool {
	if e.state.LastWatchDate == "" && e.state.DailyWatchCount == 0 {
		return false
	}
	today := types.DayOf(e.now())
	if e.state.LastWatchDate == today {
		return false
	}

	e.state.DailyWatchCount = 0
	e.state.LastWatchDate = today
	e.store.SetQuota(ctx, 0, today)
	e.logger.Info("daily watch count reset for new day", "date", today)
	return true
}

func (e *Engine) rolloverLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(e.rolloverInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			e.CheckAndResetIfNewDay(context.Background())
		}
	}
}

// ---------------------------------------------------------------------------
// Purchase / restore
// ---------------------------------------------------------------------------

// Purchase submits a purchase request for the given product. The product
// must come from the currently loaded catalog; the engine never invents a
// fallback SKU. Rejected synchronously when a purchase or restore is
// already pending. The outcome arrives asynchronously via the backend
// listener and is broadcast to observers.
func (e *Engine) Purchase(ctx context.Context, productID string) error {
	if !e.backend.Supported() {
		return types.NewAppError(types.ErrCodeIAPPlatformUnsupported,
			"purchases are not supported on this platform", nil)
	}

	e.mu.Lock()
	if e.flow != types.FlowIdle {
		flow := e.flow
		e.mu.Unlock()
		return types.NewAppErrorWithDetails(types.ErrCodeConflictInFlight,
			"another purchase or restore is already in flight", nil,
			map[string]any{"flow_state": flow})
	}
	if e.catStatus != types.CatalogLoaded {
		e.mu.Unlock()
		return types.NewAppError(types.ErrCodeCatalogNotLoaded,
			"product catalog is not loaded; retry the catalog fetch first", nil)
	}
	if !e.catalogContainsLocked(productID) {
		e.mu.Unlock()
		return types.NewAppErrorWithDetails(types.ErrCodeIAPUnknownProduct,
			"product is not in the fetched catalog", nil,
			map[string]any{"product_id": productID})
	}
	if _, ok := e.products.PlanFor(productID); !ok {
		e.mu.Unlock()
		return types.NewAppErrorWithDetails(types.ErrCodeIAPUnknownProduct,
			"product is not mapped to a plan", nil,
			map[string]any{"product_id": productID})
	}
	e.flow = types.FlowPurchasePending
	e.mu.Unlock()

	if err := e.backend.RequestPurchase(ctx, productID); err != nil {
		e.mu.Lock()
		e.flow = types.FlowIdle
		e.mu.Unlock()

		appErr := iap.ClassifyErr(err)
		if appErr.Code == types.ErrCodeIAPUserCancelled {
			// Cancellation is silent: no error, no event, back to idle.
			return nil
		}
		return appErr
	}
	return nil
}

// Restore re-derives entitlement from the platform's record of past
// purchases. Zero matching records is "no purchases found", a normal
// outcome that leaves the plan unchanged. A match upgrades the plan to the
// strongest of current and found; a restore never downgrades. Idempotent.
func (e *Engine) Restore(ctx context.Context) (types.RestoreResult, error) {
	if !e.backend.Supported() {
		return types.RestoreResult{}, types.NewAppError(types.ErrCodeIAPPlatformUnsupported,
			"restore is not supported on this platform", nil)
	}

	e.mu.Lock()
	if e.flow != types.FlowIdle {
		flow := e.flow
		e.mu.Unlock()
		return types.RestoreResult{}, types.NewAppErrorWithDetails(types.ErrCodeConflictInFlight,
			"another purchase or restore is already in flight", nil,
			map[string]any{"flow_state": flow})
	}
	e.flow = types.FlowRestorePending
	e.mu.Unlock()

	records, err := e.backend.ListPastPurchases(ctx)

	e.mu.Lock()
	e.flow = types.FlowIdle
	if err != nil {
		snap := e.snapshotLocked()
		e.mu.Unlock()

		appErr := iap.ClassifyErr(err)
		if appErr.Code == types.ErrCodeIAPUserCancelled {
			return types.RestoreResult{Plan: snap.Plan}, nil
		}
		e.emit(types.Event{Type: types.EventRestoreFailed, Plan: snap.Plan, Err: appErr, Snapshot: snap})
		return types.RestoreResult{}, appErr
	}

	found := false
	best := e.state.Plan
	for _, rec := range records {
		mapped, ok := e.products.PlanFor(rec.ProductID)
		if !ok {
			continue
		}
		found = true
		best = e.reg.Stronger(best, mapped)
	}

	if found && best != e.state.Plan {
		e.state.Plan = best
		e.store.SetPlan(ctx, best)
	}
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.emit(types.Event{Type: types.EventRestoreCompleted, Plan: snap.Plan, Snapshot: snap})
	if !found {
		e.logger.Info("restore found no matching purchases")
	}
	return types.RestoreResult{Found: found, Plan: snap.Plan}, nil
}

// ---------------------------------------------------------------------------
// Catalog
// ---------------------------------------------------------------------------

// Catalog returns the current catalog status, product list, and the
// failure that produced a failed status.
func (e *Engine) Catalog() (types.CatalogStatus, []types.Product, *types.AppError) {
	e.mu.Lock()
	defer e.mu.Unlock()
	products := make([]types.Product, len(e.catalog))
	copy(products, e.catalog)
	return e.catStatus, products, e.catFailure
}

// RetryCatalog re-runs the catalog fetch. On unsupported platforms it
// fails immediately without a network call.
func (e *Engine) RetryCatalog(ctx context.Context) error {
	if !e.backend.Supported() {
		return types.NewAppError(types.ErrCodeIAPPlatformUnsupported,
			"platform unsupported", nil)
	}
	return e.loadCatalog(ctx)
}

// loadCatalog fetches the catalog under the configured deadline. Expiry is
// a failed load with catalog_timeout, distinct from a zero-length catalog.
func (e *Engine) loadCatalog(ctx context.Context) error {
	e.mu.Lock()
	e.catStatus = types.CatalogLoading
	e.catFailure = nil
	e.mu.Unlock()

	fetchCtx, cancel := context.WithTimeout(ctx, e.catalogTimeout)
	defer cancel()

	products, err := e.backend.FetchCatalog(fetchCtx, e.products.ProductIDs())
	if err != nil {
		appErr := iap.ClassifyErr(err)
		e.mu.Lock()
		e.catStatus = types.CatalogFailed
		e.catFailure = appErr
		snap := e.snapshotLocked()
		e.mu.Unlock()

		e.logger.Warn("catalog fetch failed", "error", appErr)
		e.emit(types.Event{Type: types.EventCatalogFailed, Plan: snap.Plan, Err: appErr, Snapshot: snap})
		return appErr
	}

	e.mu.Lock()
	e.catStatus = types.CatalogLoaded
	e.catalog = products
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.logger.Info("catalog loaded", "products", len(products))
	e.emit(types.Event{Type: types.EventCatalogLoaded, Plan: snap.Plan, Snapshot: snap})
	return nil
}

func (e *Engine) catalogContainsLocked(productID string) bool {
	for _, p := range e.catalog {
		if p.ID == productID {
			return true
		}
	}
	return false
}

// reconcilePastPurchases upgrades a stale local free state from the
// platform's purchase history at startup. Best-effort: failures are logged
// and ignored, and an upgrade follows the same never-downgrade rule as
// restore.
func (e *Engine) reconcilePastPurchases(ctx context.Context) {
	e.mu.Lock()
	current := e.state.Plan
	e.mu.Unlock()
	if current != types.PlanFree {
		return
	}

	records, err := e.backend.ListPastPurchases(ctx)
	if err != nil {
		e.logger.Warn("startup purchase reconciliation failed", "error", err)
		return
	}

	e.mu.Lock()
	best := e.state.Plan
	for _, rec := range records {
		if mapped, ok := e.products.PlanFor(rec.ProductID); ok {
			best = e.reg.Stronger(best, mapped)
		}
	}
	if best != e.state.Plan {
		e.state.Plan = best
		e.store.SetPlan(ctx, best)
		e.logger.Info("restored premium entitlement from purchase history", "plan", best)
	}
	e.mu.Unlock()
}

// ---------------------------------------------------------------------------
// Backend events
// ---------------------------------------------------------------------------

// listenerAdapter routes backend purchase events into the engine without
// exposing the listener methods on the Engine's public API.
type listenerAdapter struct {
	engine *Engine
}

func (a *listenerAdapter) OnPurchaseUpdated(record types.PurchaseRecord) {
	a.engine.onPurchaseUpdated(record)
}

func (a *listenerAdapter) OnPurchaseError(code, message string) {
	a.engine.onPurchaseError(code, message)
}

// onPurchaseUpdated credits the purchased plan, taking the stronger of old
// and new so a success event mapping to a lower tier never downgrades.
// The state is persisted before the transaction is finalized with the
// backend and observers are notified.
func (e *Engine) onPurchaseUpdated(record types.PurchaseRecord) {
	ctx := context.Background()

	mapped, ok := e.products.PlanFor(record.ProductID)
	if !ok {
		e.logger.Warn("purchase event for unmapped product ignored",
			"product_id", record.ProductID)
		return
	}

	e.mu.Lock()
	// An out-of-band event (deferred approval, another device) can arrive
	// while a restore is pending; it must not clear the in-flight guard.
	if e.flow == types.FlowPurchasePending {
		e.flow = types.FlowIdle
	}
	next := e.reg.Stronger(e.state.Plan, mapped)
	if next != e.state.Plan {
		e.state.Plan = next
		e.store.SetPlan(ctx, next)
	}
	snap := e.snapshotLocked()
	e.mu.Unlock()

	if err := e.backend.FinalizePurchase(ctx, record); err != nil {
		e.logger.Warn("failed to finalize purchase",
			"transaction_id", record.TransactionID, "error", err)
	}

	e.logger.Info("purchase completed", "plan", snap.Plan, "product_id", record.ProductID)
	e.emit(types.Event{Type: types.EventPurchaseCompleted, Plan: snap.Plan, Snapshot: snap})
}

// onPurchaseError returns the flow to idle. Cancellation is swallowed
// silently; everything else is classified and broadcast.
func (e *Engine) onPurchaseError(code, message string) {
	appErr := iap.Classify(code, message)

	e.mu.Lock()
	if e.flow == types.FlowPurchasePending {
		e.flow = types.FlowIdle
	}
	snap := e.snapshotLocked()
	e.mu.Unlock()

	if appErr.Code == types.ErrCodeIAPUserCancelled {
		e.logger.Debug("purchase cancelled by user")
		return
	}

	e.logger.Warn("purchase failed", "code", appErr.Code, "message", message)
	e.emit(types.Event{Type: types.EventPurchaseFailed, Plan: snap.Plan, Err: appErr, Snapshot: snap})
}

// ---------------------------------------------------------------------------
// Snapshot
// ---------------------------------------------------------------------------

// Snapshot returns the derived, read-only view of the current state.
func (e *Engine) Snapshot() types.EntitlementSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() types.EntitlementSnapshot {
	limits := e.reg.Limits(e.state.Plan)

	snap := types.EntitlementSnapshot{
		Plan:            e.state.Plan,
		IsPremium:       e.state.Plan != types.PlanFree,
		DailyWatchCount: e.state.DailyWatchCount,
		LastWatchDate:   e.state.LastWatchDate,
		MaxDailyLimit:   limits.DailySessions,
		Unlimited:       limits.Unlimited,
		FlowState:       e.flow,
		CatalogStatus:   e.catStatus,
	}

	if limits.Unlimited {
		snap.CanConsume = true
	} else {
		remaining := limits.DailySessions - e.state.DailyWatchCount
		if remaining < 0 {
			remaining = 0
		}
		snap.Remaining = remaining
		snap.CanConsume = e.state.DailyWatchCount < limits.DailySessions
	}

	snap.StatusMessage = statusMessage(snap)
	return snap
}

// statusMessage renders the human-readable daily status shown next to the
// remaining-count badge.
func statusMessage(s types.EntitlementSnapshot) string {
	if s.Unlimited {
		return "Premium: unlimited sessions today"
	}
	if s.IsPremium {
		return fmt.Sprintf("Premium: %d of %d sessions left today", s.Remaining, s.MaxDailyLimit)
	}
	return fmt.Sprintf("Free: %d of %d sessions left today", s.Remaining, s.MaxDailyLimit)
}
