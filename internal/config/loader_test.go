package config

import (
	"testing"
	"time"

	"eyezen/internal/types"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Environment != "local" {
		t.Errorf("Environment = %q, want local", cfg.Environment)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Server.Port)
	}
	if cfg.Storage.Driver != "sqlite" {
		t.Errorf("Storage.Driver = %q, want sqlite", cfg.Storage.Driver)
	}
	if cfg.IAP.Backend != "stub" {
		t.Errorf("IAP.Backend = %q, want stub", cfg.IAP.Backend)
	}
	if cfg.IAP.CatalogTimeout != 10*time.Second {
		t.Errorf("CatalogTimeout = %v, want 10s", cfg.IAP.CatalogTimeout)
	}
	if cfg.IAP.RolloverInterval != time.Minute {
		t.Errorf("RolloverInterval = %v, want 1m", cfg.IAP.RolloverInterval)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("PORT", "9999")
	t.Setenv("STORAGE_DRIVER", "memory")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Environment != "prod" {
		t.Errorf("Environment = %q, want prod", cfg.Environment)
	}
	if cfg.Server.Port != "9999" {
		t.Errorf("Port = %q, want 9999", cfg.Server.Port)
	}
	if cfg.Storage.Driver != "memory" {
		t.Errorf("Storage.Driver = %q, want memory", cfg.Storage.Driver)
	}
}

func TestLoadConfig_InvalidEnvironmentRejected(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected validation error for APP_ENV=production")
	}
}

func TestLoadConfig_InvalidStorageDriverRejected(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "dynamodb")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected validation error for unknown storage driver")
	}
}

func TestLoadConfig_BridgeBackendRequiresURL(t *testing.T) {
	t.Setenv("IAP_BACKEND", "bridge")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error: bridge backend without IAP_BRIDGE_URL")
	}

	t.Setenv("IAP_BRIDGE_URL", "http://localhost:7001")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig with bridge URL: %v", err)
	}
	if cfg.IAP.BridgeURL != "http://localhost:7001" {
		t.Errorf("BridgeURL = %q", cfg.IAP.BridgeURL)
	}
}

func TestLoadConfig_RedisDriverRequiresURL(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "redis")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error: redis driver without REDIS_URL")
	}
}

func TestLoadConfig_PostgresDriverRequiresURL(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "postgres")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error: postgres driver without DATABASE_URL")
	}
}

func TestPlansConfig_DefaultTables(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	limits, err := cfg.Plans.PlanLimits()
	if err != nil {
		t.Fatalf("PlanLimits: %v", err)
	}
	if got := limits[types.PlanFree]; got.DailySessions != 1 || got.Unlimited {
		t.Errorf("free limits = %+v, want 1/day", got)
	}
	if got := limits[types.PlanLifetime]; got.DailySessions != 5 {
		t.Errorf("lifetime limits = %+v, want 5/day", got)
	}
	if got := limits[types.PlanYearly]; !got.Unlimited {
		t.Errorf("yearly limits = %+v, want unlimited", got)
	}

	mapping, err := cfg.Plans.ProductPlans()
	if err != nil {
		t.Fatalf("ProductPlans: %v", err)
	}
	if mapping["com.eyezen.dailyfive"] != types.PlanLifetime {
		t.Errorf("dailyfive maps to %q, want lifetime", mapping["com.eyezen.dailyfive"])
	}
	if mapping["com.eyezen.yearly"] != types.PlanYearly {
		t.Errorf("yearly maps to %q, want yearly", mapping["com.eyezen.yearly"])
	}
}

func TestPlansConfig_CustomTable(t *testing.T) {
	t.Setenv("PLAN_LIMITS_JSON", `{"free":{"daily_sessions":2},"monthly":{"daily_sessions":10}}`)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	limits, err := cfg.Plans.PlanLimits()
	if err != nil {
		t.Fatalf("PlanLimits: %v", err)
	}
	if got := limits[types.PremiumPlan("monthly")]; got.DailySessions != 10 {
		t.Errorf("monthly limits = %+v, want 10/day", got)
	}
}

func TestPlansConfig_MalformedJSONRejected(t *testing.T) {
	t.Setenv("PLAN_LIMITS_JSON", `{broken`)
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected validation error for malformed PLAN_LIMITS_JSON")
	}
}
