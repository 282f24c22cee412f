package api

import (
	"context"
	"net/http"

	"github.com/jonboulle/clockwork"
	"github.com/okian/surfwatch/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthChecker reports backend reachability.
type HealthChecker interface {
	Health(ctx context.Context) (store, scorer string, err error)
}

// HealthHandler handles liveness and metrics requests.
type HealthHandler struct {
	checker HealthChecker
	clock   clockwork.Clock
	metrics http.Handler
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(checker HealthChecker, clock clockwork.Clock) *HealthHandler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &HealthHandler{
		checker: checker,
		clock:   clock,
		metrics: promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}),
	}
}

type healthResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Store     string `json:"store"`
	Scoring   string `json:"scoring,omitempty"`
	Timestamp string `json:"timestamp"`
}

// HandleHealth handles GET /health. An unreachable store yields 503.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    "OK",
		Message:   "Surf risk API is running",
		Timestamp: h.clock.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
	store, scorer, err := h.checker.Health(r.Context())
	resp.Store, resp.Scoring = store, scorer
	if err != nil {
		resp.Status = "DEGRADED"
		resp.Message = "store unreachable"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleMetrics serves the Prometheus exposition from the custom registry.
func (h *HealthHandler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	h.metrics.ServeHTTP(w, r)
}
