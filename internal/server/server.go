// Package server exposes the HTTP and WebSocket API over the fund service.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/etherindex/basketd/internal/domain"
	"github.com/etherindex/basketd/internal/server/handler"
	"github.com/etherindex/basketd/internal/server/middleware"
	"github.com/etherindex/basketd/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// Limiter enables per-client rate limiting when non-nil.
	Limiter         domain.RateLimiter
	RateLimit       int
	RateLimitWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health *handler.HealthHandler
	Funds  *handler.FundHandler
}

// Server is the headless HTTP + WebSocket API server for the basket daemon.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, auth) and attaches the WebSocket hub.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// --- Register routes ---

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Fund endpoints.
	mux.HandleFunc("GET /api/funds", handlers.Funds.ListFunds)
	mux.HandleFunc("POST /api/funds", handlers.Funds.CreateFund)
	mux.HandleFunc("GET /api/funds/{address}", handlers.Funds.GetFund)
	mux.HandleFunc("GET /api/funds/{address}/value", handlers.Funds.GetValue)
	mux.HandleFunc("POST /api/funds/{address}/deposit", handlers.Funds.Deposit)
	mux.HandleFunc("POST /api/funds/{address}/withdraw", handlers.Funds.Withdraw)
	mux.HandleFunc("PUT /api/funds/{address}/proportions", handlers.Funds.SetProportions)

	// Creator index.
	mux.HandleFunc("GET /api/creators/{address}/funds", handlers.Funds.ListCreatorFunds)

	// Operation audit log.
	mux.HandleFunc("GET /api/audit", handlers.Funds.ListAudit)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux

	// Apply auth middleware (skips if APIKey is empty). The health endpoint
	// stays open so load balancers can probe without credentials.
	if cfg.APIKey != "" {
		open := h
		authed := middleware.Auth(cfg.APIKey)(h)
		h = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/api/health" {
				open.ServeHTTP(w, r)
				return
			}
			authed.ServeHTTP(w, r)
		})
	}

	// Apply per-client rate limiting when a limiter is configured.
	if cfg.Limiter != nil {
		limit := cfg.RateLimit
		if limit <= 0 {
			limit = 60
		}
		window := cfg.RateLimitWindow
		if window <= 0 {
			window = time.Minute
		}
		h = middleware.RateLimit(cfg.Limiter, limit, window)(h)
	}

	// Apply request logging middleware.
	h = middleware.Logging(logger)(h)

	// Apply CORS middleware.
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
