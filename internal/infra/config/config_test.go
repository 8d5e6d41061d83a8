package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MemoryDriverDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "Memory")
	t.Setenv("DATABASE_URL", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoreDriverMemory, cfg.StoreDriver)
	assert.Equal(t, "*/15 * * * *", cfg.StalenessCron)
	assert.Equal(t, 4, cfg.EngineWorkers)
	assert.Equal(t, 24*time.Hour, cfg.NotificationDedupeWindow)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.CORSAllowOrigins)
	assert.False(t, cfg.IsProduction())
	assert.False(t, cfg.SeedDemoData)
}

func TestLoad_SeedDemoData(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("SEED_DEMO_DATA", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.SeedDemoData)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/deals")
	t.Setenv("ENGINE_WORKERS", "8")
	t.Setenv("RULE_CACHE_TTL", "1m")
	t.Setenv("CORS_ALLOW_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("ENVIRONMENT", "Staging")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.EngineWorkers)
	assert.Equal(t, time.Minute, cfg.RuleCacheTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowOrigins)
	assert.True(t, cfg.IsProduction())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"postgres without url", map[string]string{"STORE_DRIVER": "postgres", "DATABASE_URL": ""}},
		{"unknown driver", map[string]string{"STORE_DRIVER": "sqlite"}},
		{"zero workers", map[string]string{"STORE_DRIVER": "memory", "ENGINE_WORKERS": "0"}},
		{"bad duration", map[string]string{"STORE_DRIVER": "memory", "RUN_LOCK_TTL": "soon"}},
		{"zero trigger rate", map[string]string{"STORE_DRIVER": "memory", "TRIGGER_RATE_PER_MINUTE": "0"}},
		{"seed with postgres", map[string]string{"STORE_DRIVER": "postgres", "DATABASE_URL": "postgres://localhost/deals", "SEED_DEMO_DATA": "true"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
