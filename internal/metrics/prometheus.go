package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Engine metrics
	DepartmentRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backoffice_department_runs_total",
			Help: "Total number of department runs",
		},
		[]string{"department", "status"}, // status: success|failure|timeout
	)

	AgentDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backoffice_agent_duration_seconds",
			Help:    "Agent step execution duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"role"},
	)

	AgentRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backoffice_agent_retries_total",
			Help: "Total number of agent retry attempts",
		},
		[]string{"role"},
	)

	// Dispatch metrics
	ToolInvocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backoffice_tool_invocations_total",
			Help: "Total number of tool invocations by outcome",
		},
		[]string{"tool", "hosted_by", "status"}, // status: success|failure|synthetic
	)

	// Bridge metrics
	BridgeRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backoffice_bridge_requests_total",
			Help: "Total number of bridge tool requests by outcome",
		},
		[]string{"tool", "status"}, // status: success|failure|unauthorized
	)

	BridgeRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backoffice_bridge_request_duration_seconds",
			Help:    "Bridge request handling duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"tool"},
	)
)

func init() {
	prometheus.MustRegister(
		DepartmentRuns,
		AgentDuration,
		AgentRetries,
		ToolInvocations,
		BridgeRequests,
		BridgeRequestDuration,
	)
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveAgentDuration records an agent step duration
func ObserveAgentDuration(role string, d time.Duration) {
	AgentDuration.WithLabelValues(role).Observe(d.Seconds())
}
