// Package config loads the co-pilot configuration. The effective config is
// assembled from built-in defaults, then N8N_COPILOT_* / N8N_API_URL /
// N8N_API_KEY environment variables, then an optional YAML file; explicit
// file values win over environment values, which win over defaults.
// Durations are configured in milliseconds.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Engine configures the n8n API client.
type Engine struct {
	BaseURL string `yaml:"baseURL"`
	APIKey  string `yaml:"apiKey"`

	// Email and Password unlock the session-backed introspection endpoints.
	// Optional; without them the catalog falls back to lower-priority
	// sources.
	Email    string `yaml:"email,omitempty"`
	Password string `yaml:"password,omitempty"`

	MaxAttempts      int   `yaml:"maxAttempts"`
	RetryBaseMs      int64 `yaml:"retryBaseMs"`
	WebhookTimeoutMs int64 `yaml:"webhookTimeoutMs"`

	// RateLimits overrides entries of the built-in per-endpoint throttling
	// table. Keys are endpoint groups (writeWorkflow, deleteWorkflow,
	// readWorkflow, readExecution, createExecution, default).
	RateLimits map[string]RateLimit `yaml:"rateLimits,omitempty"`
}

// RateLimit holds token-bucket parameters for one endpoint group.
type RateLimit struct {
	PerSecond float64 `yaml:"perSecond"`
	Burst     int     `yaml:"burst"`
}

// RetryBase returns the backoff base as a duration.
func (e Engine) RetryBase() time.Duration { return time.Duration(e.RetryBaseMs) * time.Millisecond }

// WebhookTimeout returns the webhook-trigger timeout as a duration.
func (e Engine) WebhookTimeout() time.Duration {
	return time.Duration(e.WebhookTimeoutMs) * time.Millisecond
}

// Validation configures the admission pipeline.
type Validation struct {
	DeadlineMs         int64 `yaml:"deadlineMs"`
	SemanticDeadlineMs int64 `yaml:"semanticDeadlineMs"`
	DryRunDeadlineMs   int64 `yaml:"dryRunDeadlineMs"`
	CacheTTLMs         int64 `yaml:"cacheTTLMs"`
	DryRun             bool  `yaml:"dryRun"`
	// Semantic forces the semantic layer on or off. Leave unset to have it
	// follow advisor attachment.
	Semantic *bool `yaml:"semantic,omitempty"`
	// Strict refuses admission for workflows that validate with warnings.
	Strict bool `yaml:"strict"`
}

// Deadline returns the whole-run bound as a duration.
func (v Validation) Deadline() time.Duration { return time.Duration(v.DeadlineMs) * time.Millisecond }

// SemanticDeadline returns the advisor-call bound as a duration.
func (v Validation) SemanticDeadline() time.Duration {
	return time.Duration(v.SemanticDeadlineMs) * time.Millisecond
}

// DryRunDeadline returns the dry-run bound as a duration.
func (v Validation) DryRunDeadline() time.Duration {
	return time.Duration(v.DryRunDeadlineMs) * time.Millisecond
}

// CacheTTL returns the result-cache lifetime as a duration.
func (v Validation) CacheTTL() time.Duration { return time.Duration(v.CacheTTLMs) * time.Millisecond }

// Catalog configures the node-type catalog refresh task.
type Catalog struct {
	RefreshIntervalMs int64 `yaml:"refreshIntervalMs"`
	FetchDeadlineMs   int64 `yaml:"fetchDeadlineMs"`
}

// RefreshInterval returns the background refresh cadence as a duration.
func (c Catalog) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalMs) * time.Millisecond
}

// FetchDeadline returns the per-fetch bound as a duration.
func (c Catalog) FetchDeadline() time.Duration {
	return time.Duration(c.FetchDeadlineMs) * time.Millisecond
}

// Policy configures which node types are admitted. Empty OfficialPrefixes
// keeps the built-in official set.
type Policy struct {
	OfficialPrefixes []string `yaml:"officialPrefixes,omitempty"`
	AllowCommunity   bool     `yaml:"allowCommunity"`
	AllowList        []string `yaml:"allowList,omitempty"`
}

// Router configures the smart execution router.
type Router struct {
	MinHistory  int   `yaml:"minHistory"`
	RetentionMs int64 `yaml:"retentionMs"`
}

// Retention returns the execution-metric lifetime as a duration.
func (r Router) Retention() time.Duration { return time.Duration(r.RetentionMs) * time.Millisecond }

// Memory selects and sizes the shared-memory store.
type Memory struct {
	// Backend is "memory" or "redis".
	Backend    string `yaml:"backend"`
	MaxEntries int    `yaml:"maxEntries"`
	Redis      Redis  `yaml:"redis"`
}

// Redis holds connection settings for the Redis backend.
type Redis struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix,omitempty"`
}

// Advisor configures the semantic advisor client. With no API key here and
// none in the environment, the heuristic fallback is used instead.
type Advisor struct {
	APIKey     string `yaml:"apiKey,omitempty"`
	Model      string `yaml:"model,omitempty"`
	BaseURL    string `yaml:"baseURL,omitempty"`
	MaxTokens  int    `yaml:"maxTokens,omitempty"`
	DeadlineMs int64  `yaml:"deadlineMs,omitempty"`
}

// Deadline returns the per-call bound as a duration.
func (a Advisor) Deadline() time.Duration { return time.Duration(a.DeadlineMs) * time.Millisecond }

// Telemetry configures the optional metrics listener and trace exporter.
// Empty addresses disable the respective surface.
type Telemetry struct {
	MetricsAddr  string  `yaml:"metricsAddr,omitempty"`
	OTLPEndpoint string  `yaml:"otlpEndpoint,omitempty"`
	SampleRate   float64 `yaml:"sampleRate"`
	Insecure     bool    `yaml:"insecure"`
}

// Config is the co-pilot's top-level configuration.
type Config struct {
	Engine     Engine     `yaml:"engine"`
	Validation Validation `yaml:"validation"`
	Catalog    Catalog    `yaml:"catalog"`
	Policy     Policy     `yaml:"policy"`
	Router     Router     `yaml:"router"`
	Memory     Memory     `yaml:"memory"`
	Advisor    Advisor    `yaml:"advisor"`
	Telemetry  Telemetry  `yaml:"telemetry"`
	LogLevel   string     `yaml:"logLevel"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Engine: Engine{
			MaxAttempts:      3,
			RetryBaseMs:      500,
			WebhookTimeoutMs: 120000,
		},
		Validation: Validation{
			DeadlineMs:         60000,
			SemanticDeadlineMs: 20000,
			DryRunDeadlineMs:   30000,
			CacheTTLMs:         24 * 60 * 60 * 1000,
			DryRun:             true,
		},
		Catalog: Catalog{
			RefreshIntervalMs: 300000,
			FetchDeadlineMs:   30000,
		},
		Router: Router{
			MinHistory:  5,
			RetentionMs: 30 * 24 * 60 * 60 * 1000,
		},
		Memory: Memory{
			Backend:    "memory",
			MaxEntries: 10000,
		},
		Telemetry: Telemetry{
			SampleRate: 1.0,
			Insecure:   true,
		},
		LogLevel: "info",
	}
}

// Load assembles the effective configuration. An empty path skips the file
// step. Load does not validate; call Validate before wiring components.
func Load(path string) (*Config, error) {
	cfg := Default()
	cfg.applyEnv()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	return &cfg, nil
}

// Validate checks the fields the co-pilot cannot run without.
func (c *Config) Validate() error {
	if c.Engine.BaseURL == "" {
		return fmt.Errorf("config: engine.baseURL is required (or set N8N_API_URL)")
	}
	if c.Engine.APIKey == "" {
		return fmt.Errorf("config: engine.apiKey is required (or set N8N_API_KEY)")
	}

	switch c.Memory.Backend {
	case "memory":
	case "redis":
		if c.Memory.Redis.Address == "" {
			return fmt.Errorf("config: memory.redis.address is required for the redis backend")
		}
	default:
		return fmt.Errorf("config: unknown memory backend %q", c.Memory.Backend)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.LogLevel)
	}

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return fmt.Errorf("config: telemetry.sampleRate must be within [0, 1]")
	}
	if c.Router.MinHistory < 1 {
		return fmt.Errorf("config: router.minHistory must be at least 1")
	}

	durations := []struct {
		name  string
		value int64
	}{
		{"engine.retryBaseMs", c.Engine.RetryBaseMs},
		{"engine.webhookTimeoutMs", c.Engine.WebhookTimeoutMs},
		{"validation.deadlineMs", c.Validation.DeadlineMs},
		{"validation.semanticDeadlineMs", c.Validation.SemanticDeadlineMs},
		{"validation.dryRunDeadlineMs", c.Validation.DryRunDeadlineMs},
		{"validation.cacheTTLMs", c.Validation.CacheTTLMs},
		{"catalog.refreshIntervalMs", c.Catalog.RefreshIntervalMs},
		{"catalog.fetchDeadlineMs", c.Catalog.FetchDeadlineMs},
		{"router.retentionMs", c.Router.RetentionMs},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return fmt.Errorf("config: %s must be positive", d.name)
		}
	}

	return nil
}

// Level maps the configured log level to slog. Unknown values fall back to
// info; Validate rejects them anyway.
func (c *Config) Level() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// applyEnv overlays environment variables onto c. Malformed numeric or
// boolean values are ignored.
func (c *Config) applyEnv() {
	envString("N8N_API_URL", &c.Engine.BaseURL)
	envString("N8N_API_KEY", &c.Engine.APIKey)
	envString("N8N_COPILOT_EMAIL", &c.Engine.Email)
	envString("N8N_COPILOT_PASSWORD", &c.Engine.Password)
	envString("N8N_COPILOT_LOG_LEVEL", &c.LogLevel)

	envBool("N8N_COPILOT_DRY_RUN", &c.Validation.DryRun)
	envBoolPtr("N8N_COPILOT_SEMANTIC", &c.Validation.Semantic)
	envBool("N8N_COPILOT_STRICT", &c.Validation.Strict)
	envInt64("N8N_COPILOT_VALIDATION_DEADLINE_MS", &c.Validation.DeadlineMs)
	envInt64("N8N_COPILOT_CACHE_TTL_MS", &c.Validation.CacheTTLMs)

	envInt64("N8N_COPILOT_CATALOG_REFRESH_MS", &c.Catalog.RefreshIntervalMs)
	envInt64("N8N_COPILOT_CATALOG_FETCH_MS", &c.Catalog.FetchDeadlineMs)

	envBool("N8N_COPILOT_ALLOW_COMMUNITY", &c.Policy.AllowCommunity)

	envInt("N8N_COPILOT_ROUTER_MIN_HISTORY", &c.Router.MinHistory)
	envInt64("N8N_COPILOT_ROUTER_RETENTION_MS", &c.Router.RetentionMs)

	envString("N8N_COPILOT_MEMORY_BACKEND", &c.Memory.Backend)
	envString("N8N_COPILOT_REDIS_ADDR", &c.Memory.Redis.Address)
	envString("N8N_COPILOT_REDIS_PASSWORD", &c.Memory.Redis.Password)

	envString("N8N_COPILOT_ADVISOR_API_KEY", &c.Advisor.APIKey)
	envString("N8N_COPILOT_ADVISOR_MODEL", &c.Advisor.Model)

	envString("N8N_COPILOT_METRICS_ADDR", &c.Telemetry.MetricsAddr)
	envString("N8N_COPILOT_OTLP_ENDPOINT", &c.Telemetry.OTLPEndpoint)
}

func envString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func envBool(key string, dst *bool) {
	if v, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(v); err == nil {
			*dst = parsed
		}
	}
}

func envBoolPtr(key string, dst **bool) {
	if v, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(v); err == nil {
			*dst = &parsed
		}
	}
}

func envInt(key string, dst *int) {
	if v, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(v); err == nil {
			*dst = parsed
		}
	}
}

func envInt64(key string, dst *int64) {
	if v, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = parsed
		}
	}
}
