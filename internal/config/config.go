// Package config loads and validates all runtime configuration for the
// gateway.
//
// Configuration is read from environment variables (preferred for
// containers) or from a config.yaml file in the working directory.
// Environment variables take precedence over the YAML file.
//
// Naming convention: env vars use UPPER_SNAKE_CASE; the YAML file uses the
// same names in lower_snake_case. For example GATEWAY_API_KEYS becomes
// gateway_api_keys in YAML.
//
// At least one backend must be usable at startup: a provider API key, or the
// mock backend (enabled by default). Redis is optional — set
// CACHE_MODE=memory to use the built-in in-process cache with no external
// dependencies.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config is the top-level configuration container.
type Config struct {
	// Port is the TCP port the HTTP server listens on. Default: 8080.
	Port int

	// LogLevel controls the minimum log level. One of: debug, info, warn,
	// error. Default: info.
	LogLevel string

	// Auth controls inbound authentication.
	Auth AuthConfig

	// Providers holds the backend credentials. A provider with no key is
	// simply not registered.
	Providers ProvidersConfig

	// Upstream is the multi-provider gateway every real sub-request goes
	// through.
	Upstream UpstreamConfig

	// Retry controls the dispatch retry policy. Accepts both historical
	// field spellings; normalized once at load.
	Retry RetryConfig

	// Cache controls the local response cache.
	Cache CacheConfig

	// Redis holds the connection URL for the Redis-backed cache.
	// Required only when Cache.Mode is "redis".
	Redis RedisConfig

	// Enhance controls the cache/cost headers sent upstream.
	Enhance EnhanceConfig

	// RateLimit controls per-API-key request-rate limiting.
	RateLimit RateLimitConfig

	// Telemetry controls trace export.
	Telemetry TelemetryConfig
}

// AuthConfig holds the inbound auth allow-lists.
type AuthConfig struct {
	// APIKeys is the allow-list of caller API keys. Required.
	APIKeys []string

	// AllowedOrigins is the browser origin allow-list. Requests without an
	// Origin header are always permitted. Default: ["*"] is NOT supported
	// here — an empty list rejects every browser origin.
	AllowedOrigins []string
}

// ProvidersConfig holds per-backend credentials.
type ProvidersConfig struct {
	// OpenAIKey enables the OpenAI backend.
	OpenAIKey string

	// AnthropicKey enables the Anthropic backend.
	AnthropicKey string

	// GoogleKey enables the Google backend.
	GoogleKey string

	// WorkersToken and WorkersAccountID together enable the edge backend.
	WorkersToken     string
	WorkersAccountID string

	// MockEnabled registers the synthetic backend. Default: true.
	MockEnabled bool
}

// UpstreamConfig holds the multi-provider gateway binding.
type UpstreamConfig struct {
	// URL is the batch endpoint. Required when any real provider is
	// configured.
	URL string

	// Token is the gateway bearer token sent as cf-aig-authorization.
	Token string

	// Timeout is the per-batch call timeout. Default: 60s.
	Timeout time.Duration
}

// RetryConfig mirrors the retry package's alias-tolerant config surface.
type RetryConfig struct {
	MaxAttempts     int
	MaxRetries      int
	BaseDelayMs     int
	MaxDelayMs      int
	BackoffFactor   float64
	ExponentialBase float64
	Jitter          bool
	MaxElapsed      time.Duration
}

// CacheConfig controls the local response cache.
type CacheConfig struct {
	// Mode selects the cache backend:
	//   "redis"  — Redis-backed cache (requires REDIS_URL).
	//   "memory" — In-process TTL cache. Not shared across replicas.
	//   "none"   — Cache disabled entirely.
	// Default: "memory".
	Mode string

	// TTL is the default time-to-live for cached responses. Default: 1h.
	TTL time.Duration

	// ExcludeExact lists exact model names that must never be cached.
	ExcludeExact []string

	// ExcludePatterns lists Go regular expressions matched against model
	// names; a match disables caching for the request.
	ExcludePatterns []string
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// URL is a redis:// or rediss:// URL. Example: redis://localhost:6379
	URL string
}

// EnhanceConfig controls the upstream cache headers.
type EnhanceConfig struct {
	// DefaultTTL, when positive, overrides the capability-derived TTL for
	// requests that carry no explicit TTL.
	DefaultTTL time.Duration

	// Namespace scopes cache entries in the upstream gateway.
	Namespace string
}

// RateLimitConfig controls per-API-key request-rate limiting.
type RateLimitConfig struct {
	// RPMLimit is the maximum requests per minute per API key.
	// 0 disables rate limiting. Default: 0.
	RPMLimit int
}

// TelemetryConfig controls trace export.
type TelemetryConfig struct {
	// Exporter is one of: none, stdout, otlp. Default: none.
	Exporter string

	// OTLPEndpoint is the gRPC collector address, e.g. "localhost:4317".
	// Required when Exporter is "otlp".
	OTLPEndpoint string
}

// Load reads configuration from environment variables and (optionally) from
// config.yaml in the current working directory.
func Load() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	_ = v.ReadInConfig()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("PORT", 8080)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("MOCK_ENABLED", true)
	v.SetDefault("CACHE_MODE", "memory")
	v.SetDefault("CACHE_TTL", "1h")
	v.SetDefault("CACHE_NAMESPACE", "ai-gateway")
	v.SetDefault("UPSTREAM_TIMEOUT", "60s")
	v.SetDefault("RETRY_JITTER", true)
	v.SetDefault("RETRY_MAX_ELAPSED", "30s")
	v.SetDefault("RPM_LIMIT", 0)
	v.SetDefault("TRACE_EXPORTER", "none")

	cfg := &Config{
		Port:     v.GetInt("PORT"),
		LogLevel: strings.ToLower(v.GetString("LOG_LEVEL")),

		Auth: AuthConfig{
			APIKeys:        splitList(v.GetString("GATEWAY_API_KEYS")),
			AllowedOrigins: splitList(v.GetString("ALLOWED_ORIGINS")),
		},

		Providers: ProvidersConfig{
			OpenAIKey:        v.GetString("OPENAI_API_KEY"),
			AnthropicKey:     v.GetString("ANTHROPIC_API_KEY"),
			GoogleKey:        v.GetString("GOOGLE_API_KEY"),
			WorkersToken:     v.GetString("WORKERS_API_TOKEN"),
			WorkersAccountID: v.GetString("WORKERS_ACCOUNT_ID"),
			MockEnabled:      v.GetBool("MOCK_ENABLED"),
		},

		Upstream: UpstreamConfig{
			URL:     v.GetString("UPSTREAM_GATEWAY_URL"),
			Token:   v.GetString("UPSTREAM_GATEWAY_TOKEN"),
			Timeout: v.GetDuration("UPSTREAM_TIMEOUT"),
		},

		Retry: RetryConfig{
			MaxAttempts:     v.GetInt("RETRY_MAX_ATTEMPTS"),
			MaxRetries:      v.GetInt("RETRY_MAX_RETRIES"),
			BaseDelayMs:     v.GetInt("RETRY_BASE_DELAY_MS"),
			MaxDelayMs:      v.GetInt("RETRY_MAX_DELAY_MS"),
			BackoffFactor:   v.GetFloat64("RETRY_BACKOFF_FACTOR"),
			ExponentialBase: v.GetFloat64("RETRY_EXPONENTIAL_BASE"),
			Jitter:          v.GetBool("RETRY_JITTER"),
			MaxElapsed:      v.GetDuration("RETRY_MAX_ELAPSED"),
		},

		Cache: CacheConfig{
			Mode:            strings.ToLower(v.GetString("CACHE_MODE")),
			TTL:             v.GetDuration("CACHE_TTL"),
			ExcludeExact:    v.GetStringSlice("CACHE_EXCLUDE_EXACT"),
			ExcludePatterns: v.GetStringSlice("CACHE_EXCLUDE_PATTERNS"),
		},

		Redis: RedisConfig{URL: v.GetString("REDIS_URL")},

		Enhance: EnhanceConfig{
			DefaultTTL: v.GetDuration("UPSTREAM_CACHE_TTL"),
			Namespace:  v.GetString("CACHE_NAMESPACE"),
		},

		RateLimit: RateLimitConfig{
			RPMLimit: v.GetInt("RPM_LIMIT"),
		},

		Telemetry: TelemetryConfig{
			Exporter:     strings.ToLower(v.GetString("TRACE_EXPORTER")),
			OTLPEndpoint: v.GetString("OTLP_ENDPOINT"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate checks all semantic constraints that cannot be expressed as
// defaults.
func (c *Config) validate() error {
	if len(c.Auth.APIKeys) == 0 {
		return fmt.Errorf("config: GATEWAY_API_KEYS is required (comma-separated caller keys)")
	}

	if !c.HasAnyBackend() {
		return fmt.Errorf(
			"config: no backend configured; set a provider key " +
				"(OPENAI_API_KEY, ANTHROPIC_API_KEY, GOOGLE_API_KEY, WORKERS_API_TOKEN) " +
				"or leave MOCK_ENABLED=true",
		)
	}

	if c.HasRealProvider() {
		if c.Upstream.URL == "" {
			return fmt.Errorf("config: UPSTREAM_GATEWAY_URL is required when a provider key is set")
		}
		if c.Upstream.Token == "" {
			return fmt.Errorf("config: UPSTREAM_GATEWAY_TOKEN is required when a provider key is set")
		}
	}

	if c.Providers.WorkersToken != "" && c.Providers.WorkersAccountID == "" {
		return fmt.Errorf("config: WORKERS_ACCOUNT_ID is required when WORKERS_API_TOKEN is set")
	}

	if c.Cache.Mode == "redis" && c.Redis.URL == "" {
		return fmt.Errorf(
			"config: REDIS_URL is required when CACHE_MODE=redis; " +
				"set CACHE_MODE=memory to use the built-in in-process cache",
		)
	}
	switch c.Cache.Mode {
	case "redis", "memory", "none":
	default:
		return fmt.Errorf("config: invalid CACHE_MODE %q; must be one of: redis, memory, none", c.Cache.Mode)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: invalid LOG_LEVEL %q; must be one of: debug, info, warn, error", c.LogLevel)
	}

	switch c.Telemetry.Exporter {
	case "none", "stdout", "otlp":
	default:
		return fmt.Errorf("config: invalid TRACE_EXPORTER %q; must be one of: none, stdout, otlp", c.Telemetry.Exporter)
	}
	if c.Telemetry.Exporter == "otlp" && c.Telemetry.OTLPEndpoint == "" {
		return fmt.Errorf("config: OTLP_ENDPOINT is required when TRACE_EXPORTER=otlp")
	}

	return nil
}

// HasRealProvider reports whether any network-backed provider is configured.
func (c *Config) HasRealProvider() bool {
	return c.Providers.OpenAIKey != "" ||
		c.Providers.AnthropicKey != "" ||
		c.Providers.GoogleKey != "" ||
		c.Providers.WorkersToken != ""
}

// HasAnyBackend reports whether at least one backend (mock included) is
// usable.
func (c *Config) HasAnyBackend() bool {
	return c.HasRealProvider() || c.Providers.MockEnabled
}

// splitList parses a comma-separated env value into trimmed elements.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// loadDotEnv populates process env vars from a .env file when present.
func loadDotEnv(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("config: %s is a directory, expected a file", path)
	}
	if err := gotenv.Load(path); err != nil {
		return fmt.Errorf("config: failed to load %s: %w", path, err)
	}
	return nil
}
