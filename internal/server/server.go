// Package server is the daemon's HTTP + WebSocket API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/equitybot/internal/domain"
	"github.com/alanyoungcy/equitybot/internal/metrics"
	"github.com/alanyoungcy/equitybot/internal/server/handler"
	"github.com/alanyoungcy/equitybot/internal/server/middleware"
	"github.com/alanyoungcy/equitybot/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // empty disables authentication
	MetricsPath string // empty disables /metrics
	RateLimit   int    // requests per client per minute, 0 disables
}

// Handlers aggregates the route handlers.
type Handlers struct {
	Health    *handler.HealthHandler
	Status    *handler.StatusHandler
	Trading   *handler.TradingHandler
	Positions *handler.PositionHandler
	Symbols   *handler.SymbolHandler
	Journal   *handler.JournalHandler
	Fills     *handler.FillHandler
}

// Server is the API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers routes and builds the middleware chain. hub and
// limiter may be nil.
func NewServer(cfg Config, handlers Handlers, hub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)

	mux.HandleFunc("GET /api/engines", handlers.Trading.ListEngines)
	mux.HandleFunc("POST /api/trading/start", handlers.Trading.Start)
	mux.HandleFunc("POST /api/trading/stop", handlers.Trading.Stop)

	mux.HandleFunc("GET /api/positions", handlers.Positions.ListPositions)
	mux.HandleFunc("POST /api/positions/{code}/refresh", handlers.Positions.RefreshPosition)

	mux.HandleFunc("GET /api/symbols", handlers.Symbols.ListSymbols)
	mux.HandleFunc("GET /api/symbols/{code}", handlers.Symbols.GetSymbol)
	mux.HandleFunc("PUT /api/symbols/{code}", handlers.Symbols.PutSymbol)
	mux.HandleFunc("DELETE /api/symbols/{code}", handlers.Symbols.DeleteSymbol)

	mux.HandleFunc("GET /api/orders", handlers.Journal.ListOrders)
	mux.HandleFunc("GET /api/audit", handlers.Journal.ListAudit)
	mux.HandleFunc("GET /api/fills", handlers.Fills.ListFills)

	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}
	public := []string{"/api/health"}
	if cfg.MetricsPath != "" {
		mux.Handle("GET "+cfg.MetricsPath, metrics.Handler())
		public = append(public, cfg.MetricsPath)
	}

	// Outermost last: CORS, logging, auth, rate limit, metrics.
	var h http.Handler = metrics.Middleware(mux)
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, time.Minute)(h)
	}
	h = middleware.Auth(cfg.APIKey, public...)(h)
	h = middleware.Logging(logger, public...)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      h,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger.With(slog.String("component", "server")),
	}
}

// Handler returns the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens until the server is shut down.
func (s *Server) Start() error {
	s.logger.Info("starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
