// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Budget    BudgetConfig    `mapstructure:"budget"`
	LLM       LLMConfig       `mapstructure:"llm"`
	SERP      SERPConfig      `mapstructure:"serp"`
	Headless  HeadlessConfig  `mapstructure:"headless"`
	Storage   StorageConfig   `mapstructure:"storage"`
	History   HistoryConfig   `mapstructure:"history"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Progress  ProgressConfig  `mapstructure:"progress"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// PipelineConfig governs the stage queue and workers.
type PipelineConfig struct {
	Workers             int `mapstructure:"workers"`
	QueueDepth          int `mapstructure:"queue_depth"`
	EnqueueTimeoutMs    int `mapstructure:"enqueue_timeout_ms"`
	StageTimeoutSeconds int `mapstructure:"stage_timeout_seconds"`
	MaxSERPResults      int `mapstructure:"max_serp_results"`
}

// BudgetConfig bounds model calls per run.
type BudgetConfig struct {
	MaxRequests       int     `mapstructure:"max_requests"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// LLMConfig configures the chat-completions provider.
type LLMConfig struct {
	APIKey         string `mapstructure:"api_key"`
	BaseURL        string `mapstructure:"base_url"`
	Model          string `mapstructure:"model"`
	AnalysisModel  string `mapstructure:"analysis_model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxRetries     int    `mapstructure:"max_retries"`
}

// SERPConfig selects and configures the search-results provider.
type SERPConfig struct {
	Provider       string `mapstructure:"provider"`
	APIKey         string `mapstructure:"api_key"`
	BaseURL        string `mapstructure:"base_url"`
	SearchURL      string `mapstructure:"search_url"`
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	Country        string `mapstructure:"country"`
	Language       string `mapstructure:"language"`
	// HostRPS paces the scraping providers per search host. Zero disables pacing.
	HostRPS   float64 `mapstructure:"host_rps"`
	HostBurst int     `mapstructure:"host_burst"`
}

// HeadlessConfig configures the headless SERP renderer.
type HeadlessConfig struct {
	MaxParallel     int `mapstructure:"max_parallel"`
	NavTimeoutSec   int `mapstructure:"nav_timeout_seconds"`
	PromotionThresh int `mapstructure:"promotion_threshold"`
}

// StorageConfig sets where brief documents are written.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// HistoryConfig selects the run-history database.
type HistoryConfig struct {
	Backend     string `mapstructure:"backend"`
	DSN         string `mapstructure:"dsn"`
	Table       string `mapstructure:"table"`
	CreateTable bool   `mapstructure:"create_table"`
}

// NotifyConfig selects where completion events are published.
type NotifyConfig struct {
	Backend   string `mapstructure:"backend"`
	Topic     string `mapstructure:"topic"`
	ProjectID string `mapstructure:"project_id"`
	NATSURL   string `mapstructure:"nats_url"`
}

// ProgressConfig tunes the progress event hub.
type ProgressConfig struct {
	BufferSize     int `mapstructure:"buffer_size"`
	MaxBatchWaitMs int `mapstructure:"max_batch_wait_ms"`
}

// TelemetryConfig controls OpenTelemetry tracing.
type TelemetryConfig struct {
	TracingEnabled bool    `mapstructure:"tracing_enabled"`
	ServiceName    string  `mapstructure:"service_name"`
	SampleRatio    float64 `mapstructure:"sample_ratio"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BRIEF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.applyProviderKeys()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 30)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("pipeline.workers", 2)
	v.SetDefault("pipeline.queue_depth", 8)
	v.SetDefault("pipeline.enqueue_timeout_ms", 2000)
	v.SetDefault("pipeline.stage_timeout_seconds", 600)
	v.SetDefault("pipeline.max_serp_results", 10)
	v.SetDefault("budget.max_requests", 200)
	v.SetDefault("budget.requests_per_second", 0)
	v.SetDefault("budget.burst", 1)
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.analysis_model", "gpt-3.5-turbo")
	v.SetDefault("llm.timeout_seconds", 120)
	v.SetDefault("llm.max_retries", 2)
	v.SetDefault("serp.provider", "serpapi")
	v.SetDefault("serp.api_key", "")
	v.SetDefault("serp.base_url", "https://serpapi.com")
	v.SetDefault("serp.search_url", "https://html.duckduckgo.com/html/?q={query}")
	v.SetDefault("serp.user_agent", "Mozilla/5.0 (compatible; seo-brief-automator/1.0)")
	v.SetDefault("serp.timeout_seconds", 30)
	v.SetDefault("serp.country", "us")
	v.SetDefault("serp.language", "en")
	v.SetDefault("serp.host_rps", 0.5)
	v.SetDefault("serp.host_burst", 1)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 45)
	v.SetDefault("headless.promotion_threshold", 2048)
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.local_dir", "output")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "")
	v.SetDefault("history.backend", "none")
	v.SetDefault("history.dsn", "")
	v.SetDefault("history.table", "brief_runs")
	v.SetDefault("history.create_table", true)
	v.SetDefault("notify.backend", "none")
	v.SetDefault("notify.topic", "brief-completed")
	v.SetDefault("notify.project_id", "")
	v.SetDefault("notify.nats_url", "nats://127.0.0.1:4222")
	v.SetDefault("progress.buffer_size", 256)
	v.SetDefault("progress.max_batch_wait_ms", 100)
	v.SetDefault("telemetry.tracing_enabled", false)
	v.SetDefault("telemetry.service_name", "briefd")
	v.SetDefault("telemetry.sample_ratio", 1.0)
}

// applyProviderKeys falls back to the provider-conventional variables when
// the prefixed keys are unset.
func (c *Config) applyProviderKeys() {
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.SERP.APIKey == "" {
		c.SERP.APIKey = os.Getenv("SERPAPI_API_KEY")
	}
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("pipeline.workers must be > 0")
	}
	if c.Pipeline.QueueDepth <= 0 {
		return fmt.Errorf("pipeline.queue_depth must be > 0")
	}
	if c.Pipeline.MaxSERPResults <= 0 || c.Pipeline.MaxSERPResults > 100 {
		return fmt.Errorf("pipeline.max_serp_results must be between 1 and 100")
	}
	if c.Budget.MaxRequests <= 0 {
		return fmt.Errorf("budget.max_requests must be > 0")
	}
	if c.Budget.RequestsPerSecond < 0 {
		return fmt.Errorf("budget.requests_per_second must be >= 0")
	}
	if c.LLM.TimeoutSeconds <= 0 {
		return fmt.Errorf("llm.timeout_seconds must be > 0")
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.SERP.Provider {
	case "serpapi", "colly", "headless", "auto":
	default:
		return fmt.Errorf("serp.provider must be one of serpapi, colly, headless, auto")
	}
	if c.SERP.HostRPS < 0 {
		return fmt.Errorf("serp.host_rps must be >= 0")
	}
	if (c.SERP.Provider == "headless" || c.SERP.Provider == "auto") && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when serp.provider is %s", c.SERP.Provider)
	}
	switch c.Storage.Backend {
	case "local", "memory":
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set when storage.backend is gcs")
		}
	default:
		return fmt.Errorf("storage.backend must be one of local, gcs, memory")
	}
	switch c.History.Backend {
	case "none":
	case "postgres", "sqlite":
		if c.History.DSN == "" {
			return fmt.Errorf("history.dsn must be set when history.backend is %s", c.History.Backend)
		}
	default:
		return fmt.Errorf("history.backend must be one of none, postgres, sqlite")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be between 0 and 1")
	}
	switch c.Notify.Backend {
	case "none", "memory", "nats":
	case "pubsub":
		if c.Notify.ProjectID == "" {
			return fmt.Errorf("notify.project_id must be set when notify.backend is pubsub")
		}
	default:
		return fmt.Errorf("notify.backend must be one of none, memory, pubsub, nats")
	}
	return nil
}

// RequestTimeout is the per-request HTTP handler deadline.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// StageTimeout bounds a single pipeline stage; zero means unbounded.
func (c Config) StageTimeout() time.Duration {
	return time.Duration(c.Pipeline.StageTimeoutSeconds) * time.Second
}

// EnqueueTimeout bounds how long a stage request waits for queue space.
func (c Config) EnqueueTimeout() time.Duration {
	return time.Duration(c.Pipeline.EnqueueTimeoutMs) * time.Millisecond
}
