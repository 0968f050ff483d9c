// Package api exposes the de-identification services over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/raaihank/deidentifier/internal/config"
	"github.com/raaihank/deidentifier/internal/domain"
	"github.com/raaihank/deidentifier/internal/logger"
	"github.com/raaihank/deidentifier/internal/metrics"
	"github.com/raaihank/deidentifier/internal/security"
	"github.com/raaihank/deidentifier/internal/service"
	"github.com/raaihank/deidentifier/internal/web"
	"github.com/raaihank/deidentifier/internal/websocket"
)

const version = "0.1.0"

// EntityLister reports the entity types the detection engine supports.
type EntityLister interface {
	SupportedEntities(ctx context.Context, language string) ([]string, error)
}

// Services groups the operations served by the API.
type Services struct {
	Analyze                    *service.AnalyzeService
	TextAnonymization          *service.TextAnonymizationService
	StructuredAnonymization    *service.StructuredAnonymizationService
	TextPseudonymization       *service.TextPseudonymizationService
	StructuredPseudonymization *service.StructuredPseudonymizationService
}

// Dependencies are the optional collaborators of the server; nil members
// switch the matching routes or middleware off.
type Dependencies struct {
	Entities EntityLister
	Hub      *websocket.Hub
	Metrics  *metrics.Collector
	Limiter  *security.RateLimiter
}

// Server represents the de-identification HTTP server
type Server struct {
	config   *config.Config
	logger   *logger.Logger
	services Services
	deps     Dependencies
	router   *mux.Router
	server   *http.Server
}

// New creates a new server instance
func New(cfg *config.Config, services Services, deps Dependencies, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}

	server := &Server{
		config:   cfg,
		logger:   log.WithComponent("api"),
		services: services,
		deps:     deps,
		router:   mux.NewRouter(),
	}
	server.setupRoutes()

	server.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return server
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)

	s.router.HandleFunc("/", web.ServeDashboard).Methods(http.MethodGet)
	s.router.HandleFunc("/dashboard", web.ServeDashboard).Methods(http.MethodGet)

	if s.deps.Metrics != nil && s.config.Metrics.Enabled {
		path := s.config.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		s.router.Handle(path, s.deps.Metrics.Handler()).Methods(http.MethodGet)
	}

	if s.deps.Hub != nil && s.config.WebSocket.Enabled {
		path := s.config.WebSocket.Path
		if path == "" {
			path = "/ws"
		}
		s.router.HandleFunc(path, s.deps.Hub.HandleWebSocket).Methods(http.MethodGet)
	}

	// API routes share request logging, rate limiting and metrics
	api := s.router.NewRoute().Subrouter()
	api.Use(s.loggingMiddleware)
	api.Use(s.rateLimitMiddleware)

	api.HandleFunc("/entities", s.handleEntities).Methods(http.MethodGet)
	api.HandleFunc("/analyze/text", s.handleAnalyzeText).Methods(http.MethodPost)
	api.HandleFunc("/anonymize/text", s.handleAnonymizeText).Methods(http.MethodPost)
	api.HandleFunc("/anonymize/structured", s.handleAnonymizeStructured).Methods(http.MethodPost)
	api.HandleFunc("/pseudonymize/text", s.handlePseudonymizeText).Methods(http.MethodPost)
	api.HandleFunc("/pseudonymize/structured", s.handlePseudonymizeStructured).Methods(http.MethodPost)
}

// Handler returns the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("Starting de-identification server",
		zap.Int("port", s.config.Server.Port),
		zap.String("environment", s.config.Server.Environment),
		zap.String("engine", s.config.Engine.Type),
		zap.Bool("enrichment_enabled", s.config.Enrichment.Enabled),
	)
	return s.server.ListenAndServe()
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping de-identification server")
	return s.server.Shutdown(ctx)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleInfo handles info requests
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":                     "deidentifier",
		"version":                  version,
		"engine":                   s.config.Engine.Type,
		"default_language":         s.config.Defaults.Language,
		"enrichment_enabled":       s.config.Enrichment.Enabled,
		"anonymization_operators":  domain.AnonymizationOperators(),
		"pseudonymization_methods": domain.PseudonymizationMethods(),
	})
}
