// Package api exposes the orchestrator over HTTP: a JSON chat endpoint, its
// SSE streaming twin, session listing and health probes.
package api

import (
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docent-ai/docent/internal/chat"
	"github.com/docent-ai/docent/internal/log"
	"github.com/docent-ai/docent/internal/session"
)

// Config contains everything the server needs.
type Config struct {
	Logger   log.Logger
	Chat     *chat.Service // required
	Sessions session.Store // required
	Pool     *pgxpool.Pool // optional, enables DB check in /ready

	TrustProxy bool    // trust X-Real-IP/X-Forwarded-For
	RateLimit  float64 // tokens per second per IP (0 = default 1)
	RateBurst  int     // bucket size per IP (0 = default 60)
}

// Server is the JSON API HTTP server.
type Server struct {
	mux http.Handler
}

// NewServer creates the server with all routes and middleware configured.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Chat == nil {
		return nil, errors.New("chat service is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("session store is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	ch := &chatHandler{service: cfg.Chat, logger: logger}
	sh := &sessionHandler{store: cfg.Sessions, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", ch.send)
	mux.HandleFunc("POST /api/chat/stream", ch.stream)
	mux.HandleFunc("GET /api/sessions", sh.list)
	mux.HandleFunc("GET /api/sessions/{id}", sh.get)

	limit := cfg.RateLimit
	if limit <= 0 {
		limit = 1.0
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(limit, burst)

	// Middleware stack, outermost first: Recovery → Logging → RateLimit.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Health probes bypass the middleware stack.
	top := http.NewServeMux()
	top.HandleFunc("GET /health", health)
	top.Handle("GET /ready", readiness(cfg.Pool))
	top.Handle("/", handler)

	return &Server{mux: top}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
