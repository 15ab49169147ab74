// Package config defines the service configuration. Configuration is
// loaded once at process initialization and is immutable thereafter,
// following 12-Factor principles: values come from the OS environment,
// with a dotenv file as a development convenience.
//
// Table-shaped configuration (plan limits, product-to-plan mapping) is
// carried as JSON-valued environment variables so that no tier or SKU is
// ever named in code.
package config

import (
	"encoding/json"
	"fmt"
	"time"

	"eyezen/internal/types"
)

// Config is the top-level configuration struct. Populated once during
// process initialization and never modified.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"eyezen-entitlement"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Server  ServerConfig
	Storage StorageConfig
	IAP     IAPConfig
	Plans   PlansConfig

	// Build metadata (injected via ldflags, not env)
	Build BuildInfo
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// StorageConfig selects and parameterizes the persistent key-value store
// driver backing the entitlement state.
type StorageConfig struct {
	Driver string `envconfig:"STORAGE_DRIVER" default:"sqlite" validate:"required,oneof=memory sqlite redis postgres"`

	SQLitePath  string `envconfig:"SQLITE_PATH" default:"eyezen.db"`
	RedisURL    string `envconfig:"REDIS_URL"`
	DatabaseURL string `envconfig:"DATABASE_URL"`
}

// IAPConfig selects and parameterizes the purchase backend.
type IAPConfig struct {
	// Backend: "bridge" talks to the store bridge REST service, "stub"
	// simulates purchases for local development, "unsupported" models a
	// runtime target without purchase capability.
	Backend string `envconfig:"IAP_BACKEND" default:"stub" validate:"required,oneof=bridge stub unsupported"`

	BridgeURL        string        `envconfig:"IAP_BRIDGE_URL" validate:"omitempty,url"`
	EventPollEvery   time.Duration `envconfig:"IAP_EVENT_POLL_INTERVAL" default:"2s"`
	CatalogTimeout   time.Duration `envconfig:"IAP_CATALOG_TIMEOUT" default:"10s"`
	RolloverInterval time.Duration `envconfig:"QUOTA_ROLLOVER_INTERVAL" default:"1m"`
}

// PlansConfig carries the plan limit table and the product-to-plan
// mapping as JSON.
//
// PLAN_LIMITS_JSON example:
//
//	{"free":{"daily_sessions":1},"lifetime":{"daily_sessions":5},"yearly":{"unlimited":true}}
//
// IAP_PRODUCT_PLANS_JSON example:
//
//	{"com.eyezen.dailyfive":"lifetime","com.eyezen.yearly":"yearly"}
type PlansConfig struct {
	LimitsJSON       string `envconfig:"PLAN_LIMITS_JSON" default:"{\"free\":{\"daily_sessions\":1},\"lifetime\":{\"daily_sessions\":5},\"yearly\":{\"unlimited\":true}}" validate:"required,json"`
	ProductPlansJSON string `envconfig:"IAP_PRODUCT_PLANS_JSON" default:"{\"com.eyezen.dailyfive\":\"lifetime\",\"com.eyezen.yearly\":\"yearly\"}" validate:"required,json"`
}

// PlanLimits decodes the configured plan limit table.
func (p PlansConfig) PlanLimits() (map[types.PremiumPlan]types.PlanLimits, error) {
	var out map[types.PremiumPlan]types.PlanLimits
	if err := json.Unmarshal([]byte(p.LimitsJSON), &out); err != nil {
		return nil, fmt.Errorf("config: parsing PLAN_LIMITS_JSON: %w", err)
	}
	return out, nil
}

// ProductPlans decodes the configured product-to-plan mapping.
func (p PlansConfig) ProductPlans() (map[string]types.PremiumPlan, error) {
	var out map[string]types.PremiumPlan
	if err := json.Unmarshal([]byte(p.ProductPlansJSON), &out); err != nil {
		return nil, fmt.Errorf("config: parsing IAP_PRODUCT_PLANS_JSON: %w", err)
	}
	return out, nil
}
