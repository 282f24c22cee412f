package api

import (
	"net/http"

	"github.com/okian/surfwatch/internal/domain/ratelimit"
)

// StatsProvider reports service statistics.
type StatsProvider interface {
	GetStats() map[string]interface{}
}

// StatsHandler serves GET /stats.
type StatsHandler struct {
	statsProvider StatsProvider
	limiter       ratelimit.Counter
}

// NewStatsHandler creates a stats handler. limiter may be nil.
func NewStatsHandler(statsProvider StatsProvider, limiter ratelimit.Counter) *StatsHandler {
	return &StatsHandler{statsProvider: statsProvider, limiter: limiter}
}

// HandleStats merges the service statistics with the number of clients
// tracked by the submission rate limiter.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, _ *http.Request) {
	stats := map[string]interface{}{}
	if h.statsProvider != nil {
		for k, v := range h.statsProvider.GetStats() {
			stats[k] = v
		}
	}
	if h.limiter != nil {
		stats["rateLimitedClients"] = h.limiter.Size()
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, stats)
}
