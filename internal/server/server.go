// Package server exposes the oracle over HTTP: pipeline triggers, market
// reads, admin overrides, signed webhooks, and SSE/WebSocket event streams.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/verdictd/verdictd/internal/domain"
	"github.com/verdictd/verdictd/internal/server/handler"
	"github.com/verdictd/verdictd/internal/server/middleware"
	"github.com/verdictd/verdictd/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	RateLimit   int    // requests per second per client IP; 0 disables
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health  *handler.HealthHandler
	Oracle  *handler.OracleHandler
	Markets *handler.MarketHandler
	Admin   *handler.AdminHandler
	Webhook *handler.WebhookHandler
	Events  *handler.EventsHandler
}

// Server is the HTTP + WebSocket API server for the oracle.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered on the ServeMux and
// the middleware chain (rate limit, auth, logging, CORS) wired up. limiter
// may be nil, which disables per-IP rate limiting.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Liveness and metrics (no auth).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Pipeline triggers.
	mux.HandleFunc("POST /api/validate", handlers.Oracle.Validate)
	mux.HandleFunc("POST /api/validate/quick", handlers.Oracle.ValidateQuick)
	mux.HandleFunc("POST /api/resolve/{marketId}", handlers.Oracle.Resolve)

	// Market reads.
	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("GET /api/markets/pending/resolution", handlers.Markets.ListPendingResolution)
	mux.HandleFunc("GET /api/markets/{id}", handlers.Markets.GetMarket)

	// Admin overrides.
	mux.HandleFunc("POST /api/admin/action", handlers.Admin.Action)
	mux.HandleFunc("GET /api/admin/actions", handlers.Admin.ListActions)

	// Platform webhooks (HMAC-authenticated).
	mux.HandleFunc("POST /api/webhook/market-created", handlers.Webhook.MarketCreated)
	mux.HandleFunc("POST /api/webhook/market-expired", handlers.Webhook.MarketExpired)

	// Event streams.
	mux.HandleFunc("GET /api/events", handlers.Events.Stream)
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux

	h = middleware.Auth(cfg.APIKey,
		"/api/health", "/metrics", "/api/webhook/")(h)

	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, time.Second)(h)
	}

	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
