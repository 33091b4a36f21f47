package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/docent-ai/docent/db"
	"github.com/docent-ai/docent/internal/agent"
	"github.com/docent-ai/docent/internal/api"
	"github.com/docent-ai/docent/internal/chat"
	"github.com/docent-ai/docent/internal/config"
	"github.com/docent-ai/docent/internal/index"
	"github.com/docent-ai/docent/internal/llm"
	"github.com/docent-ai/docent/internal/log"
	"github.com/docent-ai/docent/internal/rag"
	"github.com/docent-ai/docent/internal/session"
	"github.com/docent-ai/docent/internal/tools"
)

// Server timeout configuration.
const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 2 * time.Minute // SSE streaming needs longer timeout
	idleTimeout       = 2 * time.Minute
	shutdownTimeout   = 30 * time.Second

	answerTemperature = 0.2
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(parent context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := log.New(log.Config{
		Level: parseLogLevel(cfg.LogLevel),
		JSON:  cfg.LogJSON,
	})
	logger.Info("starting docent", "version", Version)

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := db.Migrate(cfg.Postgres.URL, logger); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.Postgres.URL)
	if err != nil {
		return fmt.Errorf("creating connection pool: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}

	store := session.NewPostgresStore(pool, logger.With("component", "session"))

	service, err := buildService(cfg, pool, store, logger)
	if err != nil {
		return err
	}

	server, err := api.NewServer(api.Config{
		Logger:     logger.With("component", "api"),
		Chat:       service,
		Sessions:   store,
		Pool:       pool,
		TrustProxy: cfg.Server.TrustProxy,
		RateLimit:  cfg.Server.RateLimit,
		RateBurst:  cfg.Server.RateLimitBurst,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	logger.Info("HTTP server ready",
		"addr", cfg.Server.Addr,
		"api", "/api/*",
		"health", "/health, /ready",
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down HTTP server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP server: %w", err)
	}
}

// buildService wires the answer pipeline: model client, passage index,
// retrieval gate, tools, agent loop and orchestrator.
func buildService(cfg *config.Config, pool *pgxpool.Pool, store session.Store, logger log.Logger) (*chat.Service, error) {
	client, err := llm.NewOpenAI(llm.Config{
		APIKey:         cfg.OpenAI.APIKey,
		BaseURL:        cfg.OpenAI.BaseURL,
		ChatModel:      cfg.OpenAI.ChatModel,
		EmbeddingModel: cfg.OpenAI.EmbeddingModel,
		SearchModel:    cfg.OpenAI.SearchModel,
		Temperature:    answerTemperature,
		RateLimiter:    rate.NewLimiter(rate.Limit(cfg.OpenAI.RequestsPerSecond), cfg.OpenAI.Burst),
	}, logger.With("component", "llm"))
	if err != nil {
		return nil, fmt.Errorf("creating model client: %w", err)
	}

	idx := index.NewPostgresIndex(pool, cfg.Retrieval.Namespace, logger.With("component", "index"))
	retriever := rag.NewRetriever(client, idx, rag.Policy{
		TopK:     cfg.Retrieval.TopK,
		MinScore: cfg.Retrieval.MinScore,
	}, logger.With("component", "rag"))

	registry := tools.NewRegistry()
	if err := registry.Register(tools.NewKnowledgeTool(retriever, cfg.Retrieval.TopK, logger.With("tool", tools.KnowledgeToolName))); err != nil {
		return nil, fmt.Errorf("registering knowledge tool: %w", err)
	}
	if err := registry.Register(tools.NewWebSearchTool(client, logger.With("tool", tools.WebSearchToolName))); err != nil {
		return nil, fmt.Errorf("registering web search tool: %w", err)
	}

	ag := agent.New(client, registry, logger.With("component", "agent"))

	return chat.NewService(store, retriever, client, ag, chat.Config{
		HistoryWindow: cfg.Retrieval.HistoryWindow,
		Temperature:   answerTemperature,
	}, logger.With("component", "chat")), nil
}

// parseLogLevel maps the configured level name onto slog levels.
// Unknown names fall back to info.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
