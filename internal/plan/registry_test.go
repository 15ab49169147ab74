package plan

import (
	"testing"

	"eyezen/internal/types"
)

func TestNewRegistry_Defaults(t *testing.T) {
	reg, err := NewRegistry(Defaults())
	if err != nil {
		t.Fatalf("NewRegistry(Defaults()) returned error: %v", err)
	}
	if reg == nil {
		t.Fatal("NewRegistry returned nil registry")
	}

	assertLimits(t, "Free", reg.Limits(types.PlanFree), types.PlanLimits{DailySessions: 1})
	assertLimits(t, "Lifetime", reg.Limits(types.PlanLifetime), types.PlanLimits{DailySessions: 5})
	assertLimits(t, "Yearly", reg.Limits(types.PlanYearly), types.PlanLimits{Unlimited: true})
}

func TestNewRegistry_EmptyTable(t *testing.T) {
	if _, err := NewRegistry(nil); err == nil {
		t.Fatal("expected error for empty limits table")
	}
}

func TestNewRegistry_MissingFree(t *testing.T) {
	_, err := NewRegistry(map[types.PremiumPlan]types.PlanLimits{
		types.PlanLifetime: {DailySessions: 5},
	})
	if err == nil {
		t.Fatal("expected error for table without the free plan")
	}
}

func TestNewRegistry_NegativeAllowance(t *testing.T) {
	_, err := NewRegistry(map[types.PremiumPlan]types.PlanLimits{
		types.PlanFree: {DailySessions: -1},
	})
	if err == nil {
		t.Fatal("expected error for negative daily allowance")
	}
}

func TestLimits_UnknownPlanFallsBackToFree(t *testing.T) {
	reg := mustRegistry(t, Defaults())
	assertLimits(t, "unknown plan", reg.Limits(types.PremiumPlan("nonexistent")),
		types.PlanLimits{DailySessions: 1})
}

func TestKnown(t *testing.T) {
	reg := mustRegistry(t, Defaults())
	if !reg.Known(types.PlanYearly) {
		t.Error("yearly should be known")
	}
	if reg.Known(types.PremiumPlan("quarterly")) {
		t.Error("quarterly should not be known")
	}
}

func TestStronger_UnlimitedBeatsFinite(t *testing.T) {
	reg := mustRegistry(t, Defaults())
	if got := reg.Stronger(types.PlanLifetime, types.PlanYearly); got != types.PlanYearly {
		t.Errorf("Stronger(lifetime, yearly) = %q, want yearly", got)
	}
	if got := reg.Stronger(types.PlanYearly, types.PlanLifetime); got != types.PlanYearly {
		t.Errorf("Stronger(yearly, lifetime) = %q, want yearly", got)
	}
}

func TestStronger_LargerFiniteAllowanceWins(t *testing.T) {
	reg := mustRegistry(t, Defaults())
	if got := reg.Stronger(types.PlanFree, types.PlanLifetime); got != types.PlanLifetime {
		t.Errorf("Stronger(free, lifetime) = %q, want lifetime", got)
	}
}

func TestStronger_TieKeepsIncumbent(t *testing.T) {
	reg := mustRegistry(t, map[types.PremiumPlan]types.PlanLimits{
		types.PlanFree:             {DailySessions: 1},
		types.PlanLifetime:         {DailySessions: 5},
		types.PremiumPlan("promo"): {DailySessions: 5},
	})
	if got := reg.Stronger(types.PlanLifetime, types.PremiumPlan("promo")); got != types.PlanLifetime {
		t.Errorf("Stronger on tie = %q, want incumbent lifetime", got)
	}
}

func TestStronger_UnknownPlanNeverWins(t *testing.T) {
	reg := mustRegistry(t, Defaults())
	if got := reg.Stronger(types.PlanFree, types.PremiumPlan("nonexistent")); got != types.PlanFree {
		t.Errorf("Stronger(free, unknown) = %q, want free", got)
	}
	if got := reg.Stronger(types.PremiumPlan("nonexistent"), types.PlanLifetime); got != types.PlanLifetime {
		t.Errorf("Stronger(unknown, lifetime) = %q, want lifetime", got)
	}
}

func TestWeakestPaid(t *testing.T) {
	reg := mustRegistry(t, Defaults())
	p, ok := WeakestPaid(reg)
	if !ok {
		t.Fatal("expected a paid tier to exist")
	}
	if p != types.PlanLifetime {
		t.Errorf("WeakestPaid = %q, want lifetime", p)
	}
}

func TestWeakestPaid_NoPaidTiers(t *testing.T) {
	reg := mustRegistry(t, map[types.PremiumPlan]types.PlanLimits{
		types.PlanFree: {DailySessions: 1},
	})
	p, ok := WeakestPaid(reg)
	if ok {
		t.Errorf("expected no paid tier, got %q", p)
	}
	if p != types.PlanFree {
		t.Errorf("fallback plan = %q, want free", p)
	}
}

func mustRegistry(t *testing.T, limits map[types.PremiumPlan]types.PlanLimits) Registry {
	t.Helper()
	reg, err := NewRegistry(limits)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return reg
}

func assertLimits(t *testing.T, name string, got, want types.PlanLimits) {
	t.Helper()
	if got != want {
		t.Errorf("%s limits = %+v, want %+v", name, got, want)
	}
}
