package config

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for configuration validation.
// Callers can check with errors.Is() to distinguish failure modes.
var (
	// ErrMissingAPIKey indicates the OpenAI API key is not set.
	ErrMissingAPIKey = errors.New("missing OpenAI API key")

	// ErrMissingPostgresURL indicates no database connection URL is configured.
	ErrMissingPostgresURL = errors.New("missing Postgres URL")

	// ErrInvalidTopK indicates retrieval.top_k is out of range.
	ErrInvalidTopK = errors.New("invalid retrieval top_k")

	// ErrInvalidMinScore indicates retrieval.min_score is out of range.
	ErrInvalidMinScore = errors.New("invalid retrieval min_score")

	// ErrInvalidHistoryWindow indicates retrieval.history_window is out of range.
	ErrInvalidHistoryWindow = errors.New("invalid retrieval history_window")

	// ErrInvalidRateLimit indicates the server rate limit settings are out of range.
	ErrInvalidRateLimit = errors.New("invalid rate limit")

	// ErrInvalidLogLevel indicates the log level name is not recognized.
	ErrInvalidLogLevel = errors.New("invalid log level")
)

var envKeyReplacer = strings.NewReplacer(".", "_")

// Validate checks the configuration for fatal problems.
// It is called by Load; the process must not start with an invalid config.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.OpenAI.APIKey) == "" {
		return fmt.Errorf("%w: set OPENAI_API_KEY or openai.api_key", ErrMissingAPIKey)
	}
	if strings.TrimSpace(c.Postgres.URL) == "" {
		return fmt.Errorf("%w: set DATABASE_URL or postgres.url", ErrMissingPostgresURL)
	}

	if c.Retrieval.TopK < 1 || c.Retrieval.TopK > 50 {
		return fmt.Errorf("%w: %d (must be 1-50)", ErrInvalidTopK, c.Retrieval.TopK)
	}
	if c.Retrieval.MinScore < 0 || c.Retrieval.MinScore > 1 {
		return fmt.Errorf("%w: %v (must be in [0,1])", ErrInvalidMinScore, c.Retrieval.MinScore)
	}
	if c.Retrieval.HistoryWindow < 0 || c.Retrieval.HistoryWindow > 100 {
		return fmt.Errorf("%w: %d (must be 0-100)", ErrInvalidHistoryWindow, c.Retrieval.HistoryWindow)
	}

	if c.OpenAI.RequestsPerSecond <= 0 || c.OpenAI.Burst < 1 {
		return fmt.Errorf("%w: openai requests_per_second=%v burst=%d",
			ErrInvalidRateLimit, c.OpenAI.RequestsPerSecond, c.OpenAI.Burst)
	}

	if c.Server.RateLimit <= 0 || c.Server.RateLimitBurst < 1 {
		return fmt.Errorf("%w: rate=%v burst=%d", ErrInvalidRateLimit, c.Server.RateLimit, c.Server.RateLimitBurst)
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.LogLevel)
	}

	return nil
}
