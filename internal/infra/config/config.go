package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	DatabaseURL string `envconfig:"DATABASE_URL"`
	StoreDriver string `envconfig:"STORE_DRIVER" default:"postgres"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	// SeedDemoData loads the demo sales team into the in-memory store.
	SeedDemoData bool `envconfig:"SEED_DEMO_DATA" default:"false"`

	StalenessCron            string        `envconfig:"STALENESS_CRON" default:"*/15 * * * *"`
	EngineWorkers            int           `envconfig:"ENGINE_WORKERS" default:"4"`
	NotificationDedupeWindow time.Duration `envconfig:"NOTIFICATION_DEDUPE_WINDOW" default:"24h"`
	RuleCacheTTL             time.Duration `envconfig:"RULE_CACHE_TTL" default:"30s"`

	RedisURL   string        `envconfig:"REDIS_URL"`
	RunLockTTL time.Duration `envconfig:"RUN_LOCK_TTL" default:"10m"`

	HTTPAddr             string   `envconfig:"HTTP_ADDR" default:":8080"`
	JWTSecret            string   `envconfig:"JWT_SECRET"`
	CORSAllowOrigins     []string `envconfig:"CORS_ALLOW_ORIGINS" default:"http://localhost:5173"`
	TriggerRatePerMinute int      `envconfig:"TRIGGER_RATE_PER_MINUTE" default:"6"`

	TelegramToken string `envconfig:"TELEGRAM_TOKEN"` // Empty disables the bot
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.Environment = strings.ToLower(cfg.Environment)
	cfg.StoreDriver = strings.ToLower(cfg.StoreDriver)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is not set")
		}
		if c.SeedDemoData {
			return fmt.Errorf("SEED_DEMO_DATA requires STORE_DRIVER=memory")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("invalid STORE_DRIVER %q", c.StoreDriver)
	}

	if c.EngineWorkers < 1 {
		return fmt.Errorf("ENGINE_WORKERS must be at least 1, got %d", c.EngineWorkers)
	}
	if c.NotificationDedupeWindow <= 0 {
		return fmt.Errorf("NOTIFICATION_DEDUPE_WINDOW must be positive")
	}
	if c.RunLockTTL <= 0 {
		return fmt.Errorf("RUN_LOCK_TTL must be positive")
	}
	if c.TriggerRatePerMinute < 1 {
		return fmt.Errorf("TRIGGER_RATE_PER_MINUTE must be at least 1")
	}
	return nil
}

// IsProduction is true for production and staging deployments.
func (c *AppConfig) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "staging"
}
