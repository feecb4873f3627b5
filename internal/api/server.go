package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"backoffice/internal/api/health"
	"backoffice/internal/metrics"
	"backoffice/pkg/errors"
	"backoffice/pkg/logger"
)

// ServerConfig contains configuration for the orchestrator HTTP server
type ServerConfig struct {
	Port        int
	ServiceName string
	Version     string
	APIKey      string // inbound X-API-Key check, disabled when empty
}

// Server wraps the orchestrator HTTP server with lifecycle management
type Server struct {
	httpServer *http.Server
	log        *logger.Logger
}

// NewServer creates and configures the HTTP server with all routes
func NewServer(cfg ServerConfig, healthHandler *health.Handler, toolsHandler *ToolsHandler, log *logger.Logger) *Server {
	mux := http.NewServeMux()

	// Health check endpoints (Kubernetes probes)
	mux.HandleFunc("/health", healthHandler.HandleHealth)
	mux.HandleFunc("/ready", healthHandler.HandleReadiness)
	mux.HandleFunc("/live", healthHandler.HandleLiveness)

	// Prometheus metrics endpoint
	mux.Handle("/metrics", metrics.Handler())

	// Tool execution and discovery
	auth := requireAPIKey(cfg.APIKey, log)
	mux.HandleFunc("/tools/discover", toolsHandler.HandleDiscover)
	mux.HandleFunc("/tools/execute", auth(toolsHandler.HandleExecute))
	mux.HandleFunc("/departments/execute", auth(toolsHandler.HandleDepartmentExecute))

	// Root endpoint (service info)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"service":"%s","version":"%s","status":"running"}`,
			cfg.ServiceName, cfg.Version)
	})

	port := 8080
	if cfg.Port > 0 {
		port = cfg.Port
	}

	log.Infof("HTTP server configured on port %d", port)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Minute, // department runs can be slow
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		log:        log,
	}
}

// Start begins listening for HTTP requests
// Blocks until server is stopped or encounters an error
func (s *Server) Start() error {
	s.log.Infof("Starting HTTP server on %s", s.httpServer.Addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "http server failed")
	}

	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Stopping HTTP server...")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "http server shutdown failed")
	}

	s.log.Info("HTTP server stopped")
	return nil
}

// Handler exposes the route mux for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// requireAPIKey wraps a handler with an X-API-Key check when a key is
// configured.
func requireAPIKey(key string, log *logger.Logger) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		if key == "" {
			return next
		}
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-API-Key") != key {
				log.Warnf("rejected request to %s with bad API key", r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"success":false,"error":"invalid API key"}`))
				return
			}
			next(w, r)
		}
	}
}
