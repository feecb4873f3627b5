package health

import (
	"encoding/json"
	"net/http"
	"time"

	"backoffice/pkg/logger"
)

// Probe checks one dependency's availability.
type Probe func() error

// Handler provides health check endpoints
type Handler struct {
	log         *logger.Logger
	probes      map[string]Probe
	startTime   time.Time
	serviceName string
	version     string
}

// New creates a new health check handler. Probes are optional; the
// orchestrator itself owns no durable state.
func New(log *logger.Logger, probes map[string]Probe, serviceName, version string) *Handler {
	return &Handler{
		log:         log,
		probes:      probes,
		startTime:   time.Now(),
		serviceName: serviceName,
		version:     version,
	}
}

// ComponentHealth represents health of a single component
type ComponentHealth struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// HandleLiveness returns 200 OK if service is running
// Used by Kubernetes liveness probe
func (h *Handler) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
}

// HandleReadiness checks if service is ready to accept traffic
func (h *Handler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	checks, healthy := h.runProbes()

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"ready":  healthy,
		"checks": checks,
	})
}

// HandleHealth reports full service health with per-component detail
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	checks, healthy := h.runProbes()

	overall := "healthy"
	if !healthy {
		overall = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    overall,
		"service":   h.serviceName,
		"version":   h.version,
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}

func (h *Handler) runProbes() (map[string]ComponentHealth, bool) {
	checks := make(map[string]ComponentHealth, len(h.probes))
	healthy := true

	for name, probe := range h.probes {
		if err := probe(); err != nil {
			checks[name] = ComponentHealth{Status: "unhealthy", Error: err.Error()}
			healthy = false
			continue
		}
		checks[name] = ComponentHealth{Status: "healthy"}
	}

	return checks, healthy
}
