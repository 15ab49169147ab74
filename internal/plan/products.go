package plan

import (
	"fmt"

	"eyezen/internal/types"
)

// ProductMap binds storefront product IDs to the plan they grant. The
// mapping is configuration data; nothing in the engine hardcodes a SKU.
type ProductMap struct {
	byID map[string]types.PremiumPlan
}

// NewProductMap builds a ProductMap, rejecting entries that reference a
// plan the registry does not know. A product must never grant an
// unconfigured plan.
func NewProductMap(reg Registry, mapping map[string]types.PremiumPlan) (*ProductMap, error) {
	if len(mapping) == 0 {
		return nil, fmt.Errorf("plan: empty product mapping")
	}
	byID := make(map[string]types.PremiumPlan, len(mapping))
	for id, p := range mapping {
		if id == "" {
			return nil, fmt.Errorf("plan: product mapping contains empty product id")
		}
		if !reg.Known(p) {
			return nil, fmt.Errorf("plan: product %q maps to unknown plan %q", id, p)
		}
		byID[id] = p
	}
	return &ProductMap{byID: byID}, nil
}

// PlanFor returns the plan granted by the given product ID.
func (m *ProductMap) PlanFor(productID string) (types.PremiumPlan, bool) {
	p, ok := m.byID[productID]
	return p, ok
}

// ProductIDs returns all mapped product IDs, for catalog fetches.
func (m *ProductMap) ProductIDs() []string {
	ids := make([]string, 0, len(m.byID))
	for id := range m.byID {
		ids = append(ids, id)
	}
	return ids
}

// Plans returns the set of plans reachable through this mapping.
func (m *ProductMap) Plans() []types.PremiumPlan {
	seen := make(map[types.PremiumPlan]struct{}, len(m.byID))
	plans := make([]types.PremiumPlan, 0, len(m.byID))
	for _, p := range m.byID {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		plans = append(plans, p)
	}
	return plans
}
