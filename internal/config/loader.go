package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// LoadConfig loads and validates the service configuration:
//
//  1. Load a .env file if present (non-fatal if missing; it does not
//     override existing environment variables).
//  2. Process envconfig tags to populate the Config struct.
//  3. Populate build metadata from linker-injected variables.
//  4. Validate the struct with go-playground/validator.
//
// Any missing required value or invalid format fails loading; the caller
// is expected to exit (fail fast).
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: processing environment: %w", err)
	}

	cfg.Build = NewBuildInfo()

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	// Cross-field checks envconfig tags cannot express.
	if cfg.IAP.Backend == "bridge" && cfg.IAP.BridgeURL == "" {
		return nil, fmt.Errorf("config: IAP_BRIDGE_URL is required when IAP_BACKEND=bridge")
	}
	if cfg.Storage.Driver == "redis" && cfg.Storage.RedisURL == "" {
		return nil, fmt.Errorf("config: REDIS_URL is required when STORAGE_DRIVER=redis")
	}
	if cfg.Storage.Driver == "postgres" && cfg.Storage.DatabaseURL == "" {
		return nil, fmt.Errorf("config: DATABASE_URL is required when STORAGE_DRIVER=postgres")
	}

	return &cfg, nil
}
