// Package config loads process configuration from the environment,
// following the same Viper + gotenv pattern used throughout this
// codebase's services: an optional .env file, explicit env-var
// bindings, defaults, then a single validation pass.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config holds all configuration for the pricing pipeline.
type Config struct {
	Aggregator   AggregatorConfig `mapstructure:"aggregator"`
	PricingStore StoreConfig      `mapstructure:"pricing_store"`
	BackendStore StoreConfig      `mapstructure:"backend_store"`
	WebSearch    WebSearchConfig  `mapstructure:"web_search"`
	Scheduler    SchedulerConfig  `mapstructure:"scheduler"`
	Filter       FilterConfig     `mapstructure:"filter"`
	Defaults     DefaultsConfig   `mapstructure:"defaults"`
	Logging      LoggingConfig    `mapstructure:"logging"`
}

// AggregatorConfig points at the external aggregator API.
type AggregatorConfig struct {
	URL           string `mapstructure:"url"`
	Key           string `mapstructure:"key"`
	ModelsPath    string `mapstructure:"models_path"`
	ProvidersPath string `mapstructure:"providers_path"`
	BYOKPath      string `mapstructure:"byok_path"`
}

// StoreConfig describes one of the two relational stores (pricing
// store, backend projection store). BackendStore's URL/Key are
// optional: absence disables the projection sync for that tick.
type StoreConfig struct {
	URL string `mapstructure:"url"`
	Key string `mapstructure:"key"`
}

// Configured reports whether both URL and Key are set.
func (s StoreConfig) Configured() bool {
	return s.URL != "" && s.Key != ""
}

// WebSearchConfig configures the generic web-search fallback adapter.
type WebSearchConfig struct {
	Key                    string   `mapstructure:"key"`
	EnableProviderScraping bool     `mapstructure:"enable_provider_scraping"`
	TrustedDomains         []string `mapstructure:"trusted_domains"`
}

// SchedulerConfig drives the scheduler and the per-tick pipeline.
type SchedulerConfig struct {
	IntervalHours               int      `mapstructure:"interval_hours"`
	RunOnStartup                bool     `mapstructure:"run_on_startup"`
	MaxParallelModels           int      `mapstructure:"max_parallel_models"`
	PriceChangeThresholdPercent float64  `mapstructure:"price_change_threshold_percent"`
	RequestTimeoutSeconds       int      `mapstructure:"request_timeout_seconds"`
	ByokSampleSize              int      `mapstructure:"byok_sample_size"`
	BackendFreshnessWindowDays  int      `mapstructure:"backend_freshness_window_days"`
	ProtectedModelSlugs         []string `mapstructure:"protected_model_slugs"`
	HealthPort                  int      `mapstructure:"health_port"`
}

// FilterConfig is passed verbatim to the aggregator's list_models call.
type FilterConfig struct {
	SupportedParameters []string `mapstructure:"supported_parameters"`
	Distillable         *bool    `mapstructure:"distillable"`
	InputModalities     []string `mapstructure:"input_modalities"`
	OutputModalities    []string `mapstructure:"output_modalities"`
}

// DefaultsConfig names the models marked is_default in the projection.
type DefaultsConfig struct {
	EmbeddingModelID string `mapstructure:"embedding_model_id"`
	ChatModelID      string `mapstructure:"chat_model_id"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ConfigError marks the one fatal error class: a missing or invalid
// required setting, detected before the scheduler starts.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return e.Msg }

// Load reads configuration from the environment (optionally seeded by
// a .env file), applies defaults, and validates required settings.
func Load() (*Config, error) {
	if err := gotenv.Load(); err != nil {
		// .env is optional; absence is not an error.
	}

	bindEnvVars()
	setDefaults()

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func bindEnvVars() {
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.BindEnv("aggregator.url", "AGGREGATOR_URL")
	viper.BindEnv("aggregator.key", "AGGREGATOR_KEY")
	viper.BindEnv("aggregator.models_path", "AGGREGATOR_MODELS_PATH")
	viper.BindEnv("aggregator.providers_path", "AGGREGATOR_PROVIDERS_PATH")
	viper.BindEnv("aggregator.byok_path", "AGGREGATOR_BYOK_PATH")

	viper.BindEnv("pricing_store.url", "PRICING_STORE_URL")
	viper.BindEnv("pricing_store.key", "PRICING_STORE_KEY")

	viper.BindEnv("backend_store.url", "BACKEND_STORE_URL")
	viper.BindEnv("backend_store.key", "BACKEND_STORE_KEY")

	viper.BindEnv("web_search.key", "WEB_SEARCH_KEY")
	viper.BindEnv("web_search.enable_provider_scraping", "ENABLE_PROVIDER_SCRAPING")
	viper.BindEnv("web_search.trusted_domains", "WEB_SEARCH_TRUSTED_DOMAINS")

	viper.BindEnv("scheduler.interval_hours", "RUN_INTERVAL_HOURS")
	viper.BindEnv("scheduler.run_on_startup", "RUN_ON_STARTUP")
	viper.BindEnv("scheduler.max_parallel_models", "MAX_PARALLEL_MODELS")
	viper.BindEnv("scheduler.price_change_threshold_percent", "PRICE_CHANGE_THRESHOLD_PERCENT")
	viper.BindEnv("scheduler.request_timeout_seconds", "REQUEST_TIMEOUT_SECONDS")
	viper.BindEnv("scheduler.byok_sample_size", "BYOK_SAMPLE_SIZE")
	viper.BindEnv("scheduler.backend_freshness_window_days", "BACKEND_FRESHNESS_WINDOW_DAYS")
	viper.BindEnv("scheduler.protected_model_slugs", "PROTECTED_MODEL_SLUGS")
	viper.BindEnv("scheduler.health_port", "HEALTH_PORT")

	viper.BindEnv("filter.supported_parameters", "MODEL_FILTER_SUPPORTED_PARAMETERS")
	viper.BindEnv("filter.distillable", "MODEL_FILTER_DISTILLABLE")
	viper.BindEnv("filter.input_modalities", "MODEL_FILTER_INPUT_MODALITIES")
	viper.BindEnv("filter.output_modalities", "MODEL_FILTER_OUTPUT_MODALITIES")

	viper.BindEnv("defaults.embedding_model_id", "DEFAULT_EMBEDDING_MODEL_ID")
	viper.BindEnv("defaults.chat_model_id", "DEFAULT_CHAT_MODEL_ID")

	viper.BindEnv("logging.level", "LOG_LEVEL")
	viper.BindEnv("logging.format", "LOG_FORMAT")
}

func setDefaults() {
	viper.SetDefault("aggregator.models_path", "/api/v1/models")
	viper.SetDefault("aggregator.providers_path", "/api/v1/providers")
	viper.SetDefault("aggregator.byok_path", "/api/v1/chat/completions")

	viper.SetDefault("web_search.enable_provider_scraping", false)
	viper.SetDefault("web_search.trusted_domains", []string{
		"openai.com", "anthropic.com", "ai.google.dev", "openrouter.ai",
		"cohere.com", "mistral.ai", "together.ai", "deepinfra.com",
	})

	viper.SetDefault("scheduler.interval_hours", 24)
	viper.SetDefault("scheduler.run_on_startup", true)
	viper.SetDefault("scheduler.max_parallel_models", 10)
	viper.SetDefault("scheduler.price_change_threshold_percent", 30.0)
	viper.SetDefault("scheduler.request_timeout_seconds", 30)
	viper.SetDefault("scheduler.byok_sample_size", 5)
	viper.SetDefault("scheduler.backend_freshness_window_days", 7)
	viper.SetDefault("scheduler.protected_model_slugs", []string{"text-embedding-3-large"})
	viper.SetDefault("scheduler.health_port", 8080)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}

func validate(cfg *Config) error {
	if cfg.Aggregator.URL == "" {
		return &ConfigError{Msg: "AGGREGATOR_URL is required"}
	}
	if cfg.PricingStore.URL == "" || cfg.PricingStore.Key == "" {
		return &ConfigError{Msg: "PRICING_STORE_URL and PRICING_STORE_KEY are required"}
	}
	if cfg.Scheduler.IntervalHours <= 0 {
		return &ConfigError{Msg: fmt.Sprintf("invalid RUN_INTERVAL_HOURS: %d", cfg.Scheduler.IntervalHours)}
	}
	if cfg.Scheduler.MaxParallelModels <= 0 {
		return &ConfigError{Msg: fmt.Sprintf("invalid MAX_PARALLEL_MODELS: %d", cfg.Scheduler.MaxParallelModels)}
	}
	return nil
}

// RequestTimeout is the configured per-HTTP-call timeout as a Duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Scheduler.RequestTimeoutSeconds) * time.Second
}

// Interval is the configured scheduler period as a Duration.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Scheduler.IntervalHours) * time.Hour
}

// BackendSyncEnabled reports whether the backend store is configured.
func (c *Config) BackendSyncEnabled() bool {
	return c.BackendStore.Configured()
}
