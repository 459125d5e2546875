package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/textguard/pkg/metrics"
)

// HealthDependencies reports what the process is serving.
type HealthDependencies interface {
	ModelName() string
}

// StatsProvider exposes service statistics.
type StatsProvider interface {
	GetStats() map[string]interface{}
}

type healthResponse struct {
	Status string `json:"status"`
	Model  string `json:"model"`
}

// HealthHandler handles health check requests.
type HealthHandler struct {
	deps HealthDependencies
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(deps HealthDependencies) *HealthHandler {
	return &HealthHandler{deps: deps}
}

// HandleHealth handles GET /healthz requests.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Model: h.deps.ModelName()})
}

// StatsHandler handles stats requests.
type StatsHandler struct {
	stats StatsProvider
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(stats StatsProvider) *StatsHandler {
	return &StatsHandler{stats: stats}
}

// HandleStats handles GET /stats requests with the service counters.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, h.stats.GetStats())
}

// NewMetricsHandler serves the custom metrics registry.
func NewMetricsHandler() http.Handler {
	return promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{})
}
