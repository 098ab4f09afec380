// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/kol-dashboard/internal/circuitbreaker"
	"github.com/kol-dashboard/internal/logging"
	"github.com/kol-dashboard/internal/models"
	"github.com/kol-dashboard/internal/ratelimit"
	"github.com/kol-dashboard/internal/service"
	"github.com/kol-dashboard/internal/storage"
	"github.com/kol-dashboard/internal/worker"
)

// Service interfaces for dependency injection and testing

// WalletQueryService defines the read operations behind the dashboard views
type WalletQueryService interface {
	ListWallets(ctx context.Context) ([]*models.TrackedWallet, error)
	WalletDetail(ctx context.Context, address string, days int) (*service.WalletDetail, error)
	Leaderboard(ctx context.Context, rangeKey, sortKey string) ([]service.LeaderboardEntry, error)
	TradeFeed(ctx context.Context, wallet string, limit int) ([]service.FeedTrade, error)
	Trending(ctx context.Context, rangeKey string) ([]service.TrendingToken, error)
}

// RefreshTrigger defines the "refresh now" operation of the scheduler
type RefreshTrigger interface {
	TriggerNow(ctx context.Context) error
	GetStatus() *worker.SchedulerStatus
}

// CreditUsageReporter exposes the provider credit budget
type CreditUsageReporter interface {
	Usage(ctx context.Context) (*ratelimit.CreditUsageStats, error)
}

// TradeHistoryReader reads archived trades beyond the latest refresh
type TradeHistoryReader interface {
	RecentTrades(ctx context.Context, wallet string, limit int) ([]storage.ArchivedTrade, error)
}

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	wallets    WalletQueryService
	refresher  RefreshTrigger
	breakers   *circuitbreaker.Manager
	credits    CreditUsageReporter
	history    TradeHistoryReader
	config     *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host              string
	Port              string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	RequestsPerSecond int // Per client
	Burst             int
}

// NewServer creates a new API server instance. refresher may be nil when no
// scheduler runs in this process.
func NewServer(config *ServerConfig, wallets *service.RollupService, refresher *worker.RefreshScheduler) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		wallets: wallets,
		config:  config,
	}
	if refresher != nil {
		s.refresher = refresher
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.RequestsPerSecond, s.config.Burst)

	// Set up middleware (order matters!)
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)
	s.router.Use(RateLimitMiddleware(rateLimiter)) // Rate limiting after CORS
	s.router.Use(CompressionMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()

	// Wallet endpoints
	api.HandleFunc("/users", s.handleListUsers).Methods("GET")
	api.HandleFunc("/users/{address}", s.handleGetUser).Methods("GET")
	api.HandleFunc("/users/{address}/history", s.handleUserHistory).Methods("GET")

	// Dashboard views
	api.HandleFunc("/leaderboard", s.handleLeaderboard).Methods("GET")
	api.HandleFunc("/trades", s.handleTradeFeed).Methods("GET")
	api.HandleFunc("/trending", s.handleTrending).Methods("GET")

	// Refresh control
	api.HandleFunc("/refresh", s.handleTriggerRefresh).Methods("POST")
	api.HandleFunc("/refresh", s.handleRefreshStatus).Methods("GET")

	// Preflight requests must match a route for the middleware chain to run
	s.router.PathPrefix("/").Methods("OPTIONS").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

// SetBreakers reports provider circuit state on the health endpoint
func (s *Server) SetBreakers(breakers *circuitbreaker.Manager) {
	s.breakers = breakers
}

// SetTradeHistory serves /api/users/{address}/history from the trade archive
func (s *Server) SetTradeHistory(history TradeHistoryReader) {
	s.history = history
}

// SetCreditUsageReporter reports the credit budget on the health endpoint
func (s *Server) SetCreditUsageReporter(credits CreditUsageReporter) {
	s.credits = credits
}

// handleHealth handles health check requests. Open circuits degrade the
// status but never fail the check.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":  "healthy",
		"service": "kol-dashboard",
	}

	if s.breakers != nil {
		stats := s.breakers.AllStats()
		for _, st := range stats {
			if st.State == circuitbreaker.StateOpen {
				response["status"] = "degraded"
			}
		}
		response["providers"] = stats
	}

	if s.credits != nil {
		usage, err := s.credits.Usage(r.Context())
		if err != nil {
			logging.FromContext(r.Context()).WithError(err).Warn("Failed to read credit usage")
		} else {
			response["credits"] = usage
		}
	}

	respondJSON(w, http.StatusOK, response)
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	logging.WithField("addr", s.httpServer.Addr).Info("Starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down API server...")
	return s.httpServer.Shutdown(ctx)
}
