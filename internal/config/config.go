// Package config provides application configuration management with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override, DOCENT_ prefix)
//  2. Config file (~/.docent/config.yaml or ./config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - OpenAI: API credentials and model selection for completion, embedding
//     and web search
//   - Postgres: connection settings for the session store and passage index
//   - Retrieval: policy values for the confidence gate (top-K, minimum score,
//     history window)
//   - Server: HTTP listen address, rate limiting
//
// Security: the API key and database password are never logged.
// Validation: fail-fast range checks in validation.go with sentinel errors
// so callers can use errors.Is().
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Default policy values. The confidence threshold and the history window are
// deliberate policy knobs, not derived constants; they are surfaced here so
// deployments can tune them without a rebuild.
const (
	DefaultTopK          = 5
	DefaultMinScore      = 0.15
	DefaultHistoryWindow = 6

	DefaultChatModel      = "gpt-4.1-mini"
	DefaultEmbeddingModel = "text-embedding-3-small"
	DefaultSearchModel    = "gpt-4o-mini-search-preview"

	DefaultRequestsPerSecond = 10.0
	DefaultRequestBurst      = 30
)

// OpenAIConfig holds credentials and model selection for the OpenAI-compatible API.
type OpenAIConfig struct {
	APIKey         string `mapstructure:"api_key"` // SENSITIVE: never logged
	BaseURL        string `mapstructure:"base_url"`
	ChatModel      string `mapstructure:"chat_model"`
	EmbeddingModel string `mapstructure:"embedding_model"`
	SearchModel    string `mapstructure:"search_model"`

	// Proactive client-side rate limiting across all model calls, applied
	// before a request leaves the process rather than after a 429 comes back.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// PostgresConfig holds connection settings for the session store and passage index.
type PostgresConfig struct {
	URL string `mapstructure:"url"` // postgres:// connection URL; SENSITIVE: may embed a password
}

// RetrievalConfig holds the confidence-gate policy values.
type RetrievalConfig struct {
	TopK          int     `mapstructure:"top_k"`          // passages fetched per query
	MinScore      float64 `mapstructure:"min_score"`      // best-score threshold for "confident"
	HistoryWindow int     `mapstructure:"history_window"` // recent turns included in prompts
	Namespace     string  `mapstructure:"namespace"`      // passage index namespace
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr           string  `mapstructure:"addr"`
	TrustProxy     bool    `mapstructure:"trust_proxy"`      // trust X-Real-IP/X-Forwarded-For
	RateLimit      float64 `mapstructure:"rate_limit"`       // requests per second per IP
	RateLimitBurst int     `mapstructure:"rate_limit_burst"` // burst size per IP
}

// Config stores application configuration.
type Config struct {
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Server    ServerConfig    `mapstructure:"server"`

	LogJSON  bool   `mapstructure:"log_json"`
	LogLevel string `mapstructure:"log_level"` // debug, info, warn, error
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values.
//
// Missing credentials are a startup error, not a per-request error: Load
// validates immediately and the process refuses to start on bad config.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".docent"))
	}
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is not an error; defaults plus env are enough.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults and environment")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("openai.base_url", "")
	v.SetDefault("openai.chat_model", DefaultChatModel)
	v.SetDefault("openai.embedding_model", DefaultEmbeddingModel)
	v.SetDefault("openai.search_model", DefaultSearchModel)
	v.SetDefault("openai.requests_per_second", DefaultRequestsPerSecond)
	v.SetDefault("openai.burst", DefaultRequestBurst)

	v.SetDefault("retrieval.top_k", DefaultTopK)
	v.SetDefault("retrieval.min_score", DefaultMinScore)
	v.SetDefault("retrieval.history_window", DefaultHistoryWindow)
	v.SetDefault("retrieval.namespace", "v1")

	v.SetDefault("server.addr", "127.0.0.1:3400")
	v.SetDefault("server.trust_proxy", false)
	v.SetDefault("server.rate_limit", 5.0)
	v.SetDefault("server.rate_limit_burst", 10)

	v.SetDefault("log_json", false)
	v.SetDefault("log_level", "info")
}

// bindEnvVariables binds environment variables.
// DOCENT_OPENAI_API_KEY etc. work via the prefix; OPENAI_API_KEY and
// DATABASE_URL are bound explicitly because those are the names the
// surrounding tooling conventionally sets.
func bindEnvVariables(v *viper.Viper) {
	v.SetEnvPrefix("DOCENT")
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()

	// Conventional variable names take effect without the prefix.
	_ = v.BindEnv("openai.api_key", "DOCENT_OPENAI_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("postgres.url", "DOCENT_POSTGRES_URL", "DATABASE_URL")
}
