// Package entitlement implements the entitlement and daily-quota engine:
// the single authority combining persisted entitlement state and purchase
// backend events into a coherent state machine, exposing derived quota
// facts and plan-transition operations to the rest of the application.
package entitlement

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"eyezen/internal/kvstore"
	"eyezen/internal/plan"
	"eyezen/internal/types"
)

// Persisted keys. Values are loosely-typed strings read back with
// defensive fallbacks so a legacy or corrupted record can never prevent
// the app from starting.
const (
	keyIsPremium     = "eyezen:is_premium"
	keyPremiumPlan   = "eyezen:premium_plan"
	keyDailyCount    = "eyezen:daily_watch_count"
	keyLastWatchDate = "eyezen:last_watch_date"
)

// Store translates between the in-memory EntitlementState and the
// string-keyed persistent key-value store. Each field is an independent
// write; partial failure of one field never blocks the others and is
// recoverable on the next Load.
type Store struct {
	kv     kvstore.Store
	reg    plan.Registry
	logger *slog.Logger
}

// NewStore creates a Store over the given key-value store. The registry is
// consulted for plan-id validation and legacy migration.
func NewStore(kv kvstore.Store, reg plan.Registry, logger *slog.Logger) *Store {
	return &Store{kv: kv, reg: reg, logger: logger}
}

// Load reads the persisted entitlement fields and composes a best-effort
// state. It never fails the caller: any individual read error or
// missing/malformed value maps to that field's default (Free, 0, never).
//
// Legacy migration: older persisted formats carried only a premium boolean
// with no plan identifier. When the flag is true and the plan key is
// missing or unknown, the plan is upgraded to the weakest configured paid
// tier and the upgrade is persisted immediately.
func (s *Store) Load(ctx context.Context) types.EntitlementState {
	state := types.EntitlementState{Plan: types.PlanFree}

	isPremium := s.readBool(ctx, keyIsPremium)

	if raw, err := s.kv.Get(ctx, keyPremiumPlan); err == nil && s.reg.Known(types.PremiumPlan(raw)) {
		state.Plan = types.PremiumPlan(raw)
	} else if isPremium {
		if migrated, ok := plan.WeakestPaid(s.reg); ok {
			state.Plan = migrated
			s.logger.Info("migrated legacy premium record",
				"plan", migrated,
			)
			s.setField(ctx, keyPremiumPlan, string(migrated))
		}
	}

	if raw, err := s.kv.Get(ctx, keyDailyCount); err == nil {
		if n, convErr := strconv.Atoi(raw); convErr == nil && n >= 0 {
			state.DailyWatchCount = n
		}
	} else if !errors.Is(err, kvstore.ErrNotFound) {
		s.logger.Warn("failed to read daily watch count", "error", err)
	}

	if raw, err := s.kv.Get(ctx, keyLastWatchDate); err == nil && types.IsValidDay(raw) {
		state.LastWatchDate = raw
	}

	return state
}

// Save writes all four fields independently. Errors are logged, not
// raised: loss of one field is recoverable on the next Load, and a storage
// hiccup must never block app usage.
func (s *Store) Save(ctx context.Context, state types.EntitlementState) {
	s.SetPlan(ctx, state.Plan)
	s.SetQuota(ctx, state.DailyWatchCount, state.LastWatchDate)
}

// SetPlan persists the plan identifier and the derived premium flag.
func (s *Store) SetPlan(ctx context.Context, p types.PremiumPlan) {
	s.setField(ctx, keyPremiumPlan, string(p))
	s.setField(ctx, keyIsPremium, strconv.FormatBool(p != types.PlanFree))
}

// SetQuota persists the daily watch count and last-watch date. An empty
// date means "never watched" and removes the key.
func (s *Store) SetQuota(ctx context.Context, count int, lastWatchDate string) {
	s.setField(ctx, keyDailyCount, strconv.Itoa(count))
	if lastWatchDate == "" {
		if err := s.kv.Remove(ctx, keyLastWatchDate); err != nil {
			s.logger.Warn("failed to remove last watch date", "error", err)
		}
		return
	}
	s.setField(ctx, keyLastWatchDate, lastWatchDate)
}

// ResetDailyCount writes dailyWatchCount = 0 only.
func (s *Store) ResetDailyCount(ctx context.Context) {
	s.setField(ctx, keyDailyCount, "0")
}

// Clear removes all persisted entitlement keys.
func (s *Store) Clear(ctx context.Context) {
	for _, key := range []string{keyIsPremium, keyPremiumPlan, keyDailyCount, keyLastWatchDate} {
		if err := s.kv.Remove(ctx, key); err != nil {
			s.logger.Warn("failed to clear entitlement key", "key", key, "error", err)
		}
	}
}

func (s *Store) readBool(ctx context.Context, key string) bool {
	raw, err := s.kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, kvstore.ErrNotFound) {
			s.logger.Warn("failed to read entitlement key", "key", key, "error", err)
		}
		return false
	}
	return raw == "true"
}

func (s *Store) setField(ctx context.Context, key, value string) {
	if err := s.kv.Set(ctx, key, value); err != nil {
		s.logger.Warn("failed to persist entitlement key", "key", key, "error", err)
	}
}
