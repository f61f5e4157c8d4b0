// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/rental-insight/internal/logging"
	"github.com/rental-insight/internal/models"
	"github.com/rental-insight/internal/service"
	"github.com/rental-insight/internal/storage"
)

// Service interfaces for dependency injection and testing

// SyncService runs reconciliation batches
type SyncService interface {
	Reconcile(ctx context.Context, req *models.SyncRequest) (*models.BatchReport, error)
	Stats() service.ReconcilerStats
}

// BuildingViewService serves the clustered building view of a neighborhood
type BuildingViewService interface {
	GetBuildings(ctx context.Context, neighborhoodID int64) (*service.BuildingsView, error)
	Stats() *service.ViewStats
}

// RunHistory lists recorded sync runs
type RunHistory interface {
	RecentRuns(ctx context.Context, limit int) ([]storage.SyncRun, error)
}

// HealthChecker reports whether the primary store is reachable
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	sync       SyncService
	buildings  BuildingViewService
	runs       RunHistory
	health     HealthChecker
	config     *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RequestsPerSec  int // per client IP
	Burst           int
	MaxBodyBytes    int64
}

// DefaultServerConfig returns timeouts sized for large sync batches
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Host:            "0.0.0.0",
		Port:            "8080",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    5 * time.Minute,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		RequestsPerSec:  20,
		Burst:           10,
		MaxBodyBytes:    10 << 20,
	}
}

// NewServer creates a new API server instance. runs may be nil when sync
// history is disabled.
func NewServer(
	config *ServerConfig,
	sync SyncService,
	buildings BuildingViewService,
	runs RunHistory,
	health HealthChecker,
) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		sync:      sync,
		buildings: buildings,
		runs:      runs,
		health:    health,
		config:    config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.RequestsPerSec, s.config.Burst)

	// Order matters: request id and logging wrap everything else
	s.router.Use(RequestIDMiddleware)
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)
	s.router.Use(RateLimitMiddleware(rateLimiter))
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

	api.HandleFunc("/sync", s.handleSync).Methods("POST")
	api.HandleFunc("/sync/runs", s.handleListRuns).Methods("GET")

	api.HandleFunc("/neighborhoods/{id:[0-9]+}/buildings", s.handleGetBuildings).Methods("GET")

	api.HandleFunc("/stats", s.handleStats).Methods("GET")
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health.Ping(ctx); err != nil {
			logging.FromContext(r.Context()).WithError(err).Warn("health check failed")
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":  "unhealthy",
				"service": "rental-insight",
			})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "rental-insight",
	})
}

// Handler exposes the routed handler, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	logging.Infof("Starting API server on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down API server...")
	return s.httpServer.Shutdown(ctx)
}
