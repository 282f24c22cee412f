// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/netip"
	"time"

	"github.com/jonboulle/clockwork"
	service "github.com/okian/surfwatch/internal/app"
	"github.com/okian/surfwatch/internal/domain/model"
	"github.com/okian/surfwatch/internal/domain/ratelimit"
	"github.com/okian/surfwatch/pkg/logger"
)

// Dependencies required by HTTP handlers. *service.Service satisfies it.
type Dependencies interface {
	ListSpots(ctx context.Context) ([]model.SurfSpot, error)
	GetSpot(ctx context.Context, id string) (model.SurfSpot, error)
	ApplyScore(ctx context.Context, id string, in service.ScoreUpdate) (model.SurfSpot, error)

	SubmitReport(ctx context.Context, sub service.Submission) (model.HazardReport, error)
	GetReport(ctx context.Context, id string) (model.HazardReport, error)
	RecentReports(ctx context.Context, spotID string) ([]model.HazardReport, error)
	SetReportStatus(ctx context.Context, id, status string) (model.HazardReport, error)

	Health(ctx context.Context) (store, scorer string, err error)
	Limits() model.Limits
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	spotsHandler   *SpotsHandler
	reportsHandler *ReportsHandler
	media          http.Handler
	limiter        ratelimit.Counter
	trusted        []netip.Prefix
	uploadTimeout  time.Duration
	clock          clockwork.Clock
	logger         logger.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithMedia serves stored attachments under /uploads/hazards/.
func WithMedia(h http.Handler) Option {
	return func(s *Server) {
		s.media = h
	}
}

// WithRateLimiter limits report submissions per client address.
func WithRateLimiter(c ratelimit.Counter) Option {
	return func(s *Server) {
		s.limiter = c
	}
}

// WithTrustedProxies lists the peers whose X-Forwarded-For header is used to
// identify clients for rate limiting.
func WithTrustedProxies(prefixes []netip.Prefix) Option {
	return func(s *Server) {
		s.trusted = prefixes
	}
}

// WithUploadTimeout sets how long a report submission may take to upload.
// Zero keeps the server's own timeouts.
func WithUploadTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.uploadTimeout = d
	}
}

// WithClock sets the clock used for timestamps and Retry-After.
func WithClock(c clockwork.Clock) Option {
	return func(s *Server) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLogger sets the logger for request failures.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{
		clock:  clockwork.NewRealClock(),
		logger: logger.Get().Named("api"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.healthHandler = NewHealthHandler(deps, s.clock)
	s.statsHandler = NewStatsHandler(statsProvider, s.limiter)
	s.spotsHandler = NewSpotsHandler(deps, s.logger)
	s.reportsHandler = NewReportsHandler(deps, s.logger, s.uploadTimeout)
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}

	mux.HandleFunc("GET /health", MetricsMiddleware(s.healthHandler.HandleHealth, "health"))
	mux.HandleFunc("GET /metrics", MetricsMiddleware(s.healthHandler.HandleMetrics, "metrics"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("GET /surf-spots", MetricsMiddleware(s.spotsHandler.HandleList, "surf_spots"))
	mux.HandleFunc("GET /surf-spots/{id}", MetricsMiddleware(s.spotsHandler.HandleGet, "surf_spot"))
	mux.HandleFunc("PUT /surf-spots/{id}/risk-score", MetricsMiddleware(s.spotsHandler.HandleRiskScore, "risk_score"))

	submit := RateLimitMiddleware(s.reportsHandler.HandleSubmit, s.limiter, s.clock, s.trusted)
	mux.HandleFunc("POST /hazard-reports", MetricsMiddleware(submit, "hazard_reports"))
	mux.HandleFunc("GET /hazard-reports/spot/{spotId}", MetricsMiddleware(s.reportsHandler.HandleRecent, "spot_reports"))
	mux.HandleFunc("GET /hazard-reports/{id}", MetricsMiddleware(s.reportsHandler.HandleGet, "hazard_report"))
	mux.HandleFunc("PUT /hazard-reports/{id}/status", MetricsMiddleware(s.reportsHandler.HandleStatus, "report_status"))

	if s.media != nil {
		mux.HandleFunc("GET /uploads/hazards/{name}", MetricsMiddleware(s.media.ServeHTTP, "uploads"))
	}
}

type dataResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

type listResponse struct {
	Success bool `json:"success"`
	Count   int  `json:"count"`
	Data    any  `json:"data"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, status int, v any) {
	writeJSON(w, status, dataResponse{Success: true, Data: v})
}

// writeError renders err in the error envelope. 5xx causes are logged
// since the client only sees a generic message.
func writeError(ctx context.Context, log logger.Logger, w http.ResponseWriter, err error) {
	status, code, msg, field := classify(err)
	if status >= http.StatusInternalServerError {
		log.Error(ctx, "request failed", logger.Error(err))
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg, Field: field})
}
