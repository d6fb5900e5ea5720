package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/escrowlabs/escrowd/internal/domain"
	"github.com/escrowlabs/escrowd/internal/server/handler"
	"github.com/escrowlabs/escrowd/internal/server/middleware"
	"github.com/escrowlabs/escrowd/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimit requests per RateWindow per client IP. Zero disables limiting.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health *handler.HealthHandler
	Wagers *handler.WagerHandler
	Audit  *handler.AuditHandler
}

// Server is the HTTP + WebSocket API surface of the escrow daemon.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered and the middleware
// chain (CORS, logging, rate limiting, auth) applied. The WebSocket hub and
// rate limiter are optional.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check stays outside auth so probes work without credentials.
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	authed := http.NewServeMux()

	authed.HandleFunc("POST /api/wagers", handlers.Wagers.CreateWager)
	authed.HandleFunc("GET /api/wagers", handlers.Wagers.ListWagers)
	authed.HandleFunc("GET /api/wagers/{id}", handlers.Wagers.GetWager)
	authed.HandleFunc("POST /api/wagers/{id}/deposit", handlers.Wagers.Deposit)
	authed.HandleFunc("POST /api/wagers/{id}/settle", handlers.Wagers.Settle)
	authed.HandleFunc("POST /api/wagers/{id}/recover", handlers.Wagers.Recover)
	authed.HandleFunc("POST /api/wagers/{id}/cancel", handlers.Wagers.Cancel)

	if handlers.Audit != nil {
		authed.HandleFunc("GET /api/audit", handlers.Audit.ListAudit)
	}

	if wsHub != nil {
		authed.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	mux.Handle("/", middleware.Auth(cfg.APIKey)(authed))

	var h http.Handler = mux
	if limiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateWindow
		if window <= 0 {
			window = time.Second
		}
		h = middleware.RateLimit(limiter, cfg.RateLimit, window)(h)
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
