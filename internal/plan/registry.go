// Package plan provides plan limit management and entitlement-strength
// ordering. The registry is the single source of truth for what each plan
// allows per day; the product map binds storefront product IDs to plans.
// Both are configuration data supplied at construction time.
package plan

import (
	"fmt"
	"sort"

	"eyezen/internal/types"
)

// Registry defines the authoritative daily allowance for each plan.
type Registry interface {
	// Limits returns the daily session allowance for the given plan.
	// For unknown plans, returns the Free limits to fail safely.
	Limits(p types.PremiumPlan) types.PlanLimits

	// Known reports whether the plan is configured in the registry.
	Known(p types.PremiumPlan) bool

	// Plans returns every configured plan, in no particular order.
	Plans() []types.PremiumPlan

	// Stronger returns the stronger of two plans by entitlement strength.
	// Strength is derived from the configured allowances: unlimited beats
	// any finite allowance, a larger finite allowance beats a smaller one,
	// and on a tie the first argument (the incumbent) wins. An unknown
	// plan never beats a known one.
	Stronger(a, b types.PremiumPlan) types.PremiumPlan
}

// staticRegistry is a compile-time plan registry backed by an in-memory map.
type staticRegistry struct {
	limits map[types.PremiumPlan]types.PlanLimits
	free   types.PlanLimits
}

// Defaults returns the stock plan table: one free session per day, five for
// the lifetime unlock, unlimited for the yearly subscription.
func Defaults() map[types.PremiumPlan]types.PlanLimits {
	return map[types.PremiumPlan]types.PlanLimits{
		types.PlanFree:     {DailySessions: 1},
		types.PlanLifetime: {DailySessions: 5},
		types.PlanYearly:   {Unlimited: true},
	}
}

// NewRegistry returns a Registry backed by the given plan table. The table
// is copied so callers cannot mutate the registry afterwards.
//
// An invalid table is a programming/configuration error and fails
// construction: the Free plan must be present, and every finite allowance
// must be non-negative.
func NewRegistry(limits map[types.PremiumPlan]types.PlanLimits) (Registry, error) {
	if len(limits) == 0 {
		return nil, fmt.Errorf("plan: empty limits table")
	}
	free, ok := limits[types.PlanFree]
	if !ok {
		return nil, fmt.Errorf("plan: limits table missing %q plan", types.PlanFree)
	}
	m := make(map[types.PremiumPlan]types.PlanLimits, len(limits))
	for p, l := range limits {
		if !l.Unlimited && l.DailySessions < 0 {
			return nil, fmt.Errorf("plan: %q has negative daily allowance %d", p, l.DailySessions)
		}
		m[p] = l
	}
	return &staticRegistry{limits: m, free: free}, nil
}

// Limits returns the daily allowance for the given plan, falling back to
// the Free limits for unknown plans.
func (r *staticRegistry) Limits(p types.PremiumPlan) types.PlanLimits {
	if l, ok := r.limits[p]; ok {
		return l
	}
	return r.free
}

func (r *staticRegistry) Known(p types.PremiumPlan) bool {
	_, ok := r.limits[p]
	return ok
}

func (r *staticRegistry) Plans() []types.PremiumPlan {
	plans := make([]types.PremiumPlan, 0, len(r.limits))
	for p := range r.limits {
		plans = append(plans, p)
	}
	return plans
}

func (r *staticRegistry) Stronger(a, b types.PremiumPlan) types.PremiumPlan {
	if !r.Known(b) {
		return a
	}
	if !r.Known(a) {
		return b
	}
	if strength(r.limits[b]) > strength(r.limits[a]) {
		return b
	}
	return a
}

// strength collapses a PlanLimits into a comparable scalar.
func strength(l types.PlanLimits) int {
	if l.Unlimited {
		return int(^uint(0) >> 1)
	}
	return l.DailySessions
}

// WeakestPaid returns the weakest configured plan stronger than Free.
// Used by the store's legacy migration: an old persisted record that has
// only a premium boolean maps to the lowest paid tier. Returns Free and
// false when no paid tier is configured.
func WeakestPaid(r Registry) (types.PremiumPlan, bool) {
	var paid []types.PremiumPlan
	for _, p := range r.Plans() {
		if p == types.PlanFree {
			continue
		}
		paid = append(paid, p)
	}
	if len(paid) == 0 {
		return types.PlanFree, false
	}
	sort.Slice(paid, func(i, j int) bool {
		li, lj := r.Limits(paid[i]), r.Limits(paid[j])
		if li.Unlimited != lj.Unlimited {
			return lj.Unlimited
		}
		if li.DailySessions != lj.DailySessions {
			return li.DailySessions < lj.DailySessions
		}
		return paid[i] < paid[j]
	})
	return paid[0], true
}
