package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rusel95/interexchangebot/internal/server/handler"
	"github.com/rusel95/interexchangebot/internal/server/middleware"
	"github.com/rusel95/interexchangebot/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimit is the per-client request budget per minute. Zero or a nil
	// Limiter disables rate limiting.
	RateLimit int
	Limiter   middleware.Limiter
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health        *handler.HealthHandler
	Status        *handler.StatusHandler
	Market        *handler.MarketHandler
	Subscribers   *handler.SubscriberHandler
	Opportunities *handler.OpportunityHandler
}

// publicPaths skip API key authentication.
var publicPaths = []string{"/api/health", "/metrics"}

// Server is the HTTP + WebSocket surface of the arbitrage bot.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (CORS, logging, rate limiting, auth) and attaches the
// WebSocket hub when one is given.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)

	// Market state.
	mux.HandleFunc("GET /api/depth", handlers.Market.ListDepth)
	mux.HandleFunc("GET /api/depth/{symbol}", handlers.Market.GetDepth)
	mux.HandleFunc("GET /api/statistics", handlers.Market.ListStatistics)
	mux.HandleFunc("GET /api/tickers/{exchange}", handlers.Market.ListTickers)

	// Subscribers.
	mux.HandleFunc("GET /api/subscribers", handlers.Subscribers.ListSubscribers)
	mux.HandleFunc("PUT /api/subscribers/{id}/mode", handlers.Subscribers.SetMode)
	mux.HandleFunc("DELETE /api/subscribers/{id}", handlers.Subscribers.RemoveSubscriber)

	mux.HandleFunc("GET /api/opportunities/recent", handlers.Opportunities.ListRecent)

	mux.Handle("GET /metrics", promhttp.Handler())

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, publicPaths...)(h)
	if cfg.Limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(cfg.Limiter, cfg.RateLimit, time.Minute)(h)
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
		handler:    h,
		logger:     logger,
	}
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
