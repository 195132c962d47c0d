package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetViper() {
	viper.Reset()
}

func TestLoad_MissingAggregatorURL(t *testing.T) {
	resetViper()
	os.Unsetenv("AGGREGATOR_URL")
	os.Setenv("PRICING_STORE_URL", "https://example.supabase.co")
	os.Setenv("PRICING_STORE_KEY", "key")
	defer os.Unsetenv("PRICING_STORE_URL")
	defer os.Unsetenv("PRICING_STORE_KEY")

	_, err := Load()
	require.Error(t, err)
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestLoad_Defaults(t *testing.T) {
	resetViper()
	os.Setenv("AGGREGATOR_URL", "https://openrouter.ai")
	os.Setenv("PRICING_STORE_URL", "https://example.supabase.co")
	os.Setenv("PRICING_STORE_KEY", "key")
	defer os.Unsetenv("AGGREGATOR_URL")
	defer os.Unsetenv("PRICING_STORE_URL")
	defer os.Unsetenv("PRICING_STORE_KEY")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 24, cfg.Scheduler.IntervalHours)
	assert.True(t, cfg.Scheduler.RunOnStartup)
	assert.Equal(t, 10, cfg.Scheduler.MaxParallelModels)
	assert.Equal(t, 30.0, cfg.Scheduler.PriceChangeThresholdPercent)
	assert.False(t, cfg.BackendSyncEnabled())
	assert.Contains(t, cfg.Scheduler.ProtectedModelSlugs, "text-embedding-3-large")
}

func TestLoad_BackendStoreEnablesSync(t *testing.T) {
	resetViper()
	os.Setenv("AGGREGATOR_URL", "https://openrouter.ai")
	os.Setenv("PRICING_STORE_URL", "https://example.supabase.co")
	os.Setenv("PRICING_STORE_KEY", "key")
	os.Setenv("BACKEND_STORE_URL", "https://backend.supabase.co")
	os.Setenv("BACKEND_STORE_KEY", "key2")
	defer os.Unsetenv("AGGREGATOR_URL")
	defer os.Unsetenv("PRICING_STORE_URL")
	defer os.Unsetenv("PRICING_STORE_KEY")
	defer os.Unsetenv("BACKEND_STORE_URL")
	defer os.Unsetenv("BACKEND_STORE_KEY")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.BackendSyncEnabled())
}
