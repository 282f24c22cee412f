// Package metrics provides Prometheus metrics for the surfwatch service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultSampleInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the surfwatch service.
type Manager struct {
	namespace      string
	subsystem      string
	latencyBuckets []float64
	sampleInterval time.Duration
	constLabels    map[string]string
	registry       prometheus.Registerer

	// Business metrics
	reportsSubmitted  *prometheus.CounterVec
	reportsRejected   *prometheus.CounterVec
	mediaStoredBytes  *prometheus.CounterVec
	riskScoreUpdates  *prometheus.CounterVec
	analysisOutcomes  *prometheus.CounterVec
	rateLimited       prometheus.Counter
	spotsTotal        prometheus.Gauge
	reportStatusTotal *prometheus.CounterVec

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Repository metrics
	repositoryLatency *prometheus.HistogramVec
	repositoryErrors  *prometheus.CounterVec

	// Upstream scoring service metrics
	upstreamRequests *prometheus.CounterVec
	upstreamLatency  *prometheus.HistogramVec

	// Queue metrics
	queueCapacity    prometheus.Gauge
	queueSize        prometheus.Gauge
	queueUtilization prometheus.Gauge
	queueEnqueued    *prometheus.CounterVec
	queueDropped     *prometheus.CounterVec
	queueDequeued    prometheus.Counter

	// Worker metrics
	workerCount      prometheus.Gauge
	workerActive     prometheus.Gauge
	jobLatency       *prometheus.HistogramVec
	jobFailures      *prometheus.CounterVec
	workerJobsPerSec prometheus.Gauge

	// Error metrics
	errorRateByComponent *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:      "surfwatch",
		subsystem:      "api",
		latencyBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		sampleInterval: defaultSampleInterval,
		constLabels:    make(map[string]string),
		registry:       prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// SampleInterval is how often process gauges should be sampled.
func (m *Manager) SampleInterval() time.Duration {
	return m.sampleInterval
}

// SampleInterval returns the global manager's sampling interval.
func SampleInterval() time.Duration {
	return globalManager.sampleInterval
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     m.latencyBuckets,
		ConstLabels: m.constLabels,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() {
	m.reportsSubmitted = m.counterVec("hazard_reports_submitted_total",
		"Hazard reports accepted, by hazard type and severity", "hazard_type", "severity")
	m.reportsRejected = m.counterVec("hazard_reports_rejected_total",
		"Hazard report submissions rejected before persistence, by reason", "reason")
	m.mediaStoredBytes = m.counterVec("media_stored_bytes_total",
		"Bytes of hazard media written to storage, by kind", "kind")
	m.riskScoreUpdates = m.counterVec("risk_score_updates_total",
		"Risk score writes applied to surf spots, by skill level", "skill_level")
	m.analysisOutcomes = m.counterVec("hazard_analysis_total",
		"Image analysis outcomes for stored reports", "outcome")
	m.rateLimited = m.counter("rate_limited_requests_total",
		"Requests refused by the per-client rate limiter")
	m.spotsTotal = m.gauge("surf_spots_total", "Number of surf spots known to the store")
	m.reportStatusTotal = m.counterVec("hazard_report_status_changes_total",
		"Verification status transitions", "status")

	m.httpRequests = m.counterVec("http_requests_total",
		"Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.repositoryLatency = m.histogramVec("repository_operation_latency_milliseconds",
		"Store operation latency in milliseconds", "backend", "operation")
	m.repositoryErrors = m.counterVec("repository_errors_total",
		"Store operation failures", "backend", "operation")

	m.upstreamRequests = m.counterVec("scoring_service_requests_total",
		"Calls to the external scoring service by endpoint and outcome", "endpoint", "outcome")
	m.upstreamLatency = m.histogramVec("scoring_service_latency_milliseconds",
		"External scoring service call latency in milliseconds", "endpoint")

	m.queueCapacity = m.gauge("queue_capacity", "Maximum capacity of the job queue")
	m.queueSize = m.gauge("queue_size", "Current number of queued jobs")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Job queue utilization (0.0 to 1.0)")
	m.queueEnqueued = m.counterVec("queue_enqueue_total", "Jobs enqueued by kind", "kind")
	m.queueDropped = m.counterVec("queue_dropped_total", "Jobs dropped at enqueue by kind and reason", "kind", "reason")
	m.queueDequeued = m.counter("queue_dequeue_total", "Jobs handed to workers")

	m.workerCount = m.gauge("worker_count", "Configured number of job workers")
	m.workerActive = m.gauge("worker_active_count", "Workers currently executing a job")
	m.jobLatency = m.histogramVec("job_latency_milliseconds", "Job execution latency in milliseconds", "kind")
	m.jobFailures = m.counterVec("job_failures_total", "Jobs that returned an error or timed out", "kind")
	m.workerJobsPerSec = m.gauge("worker_jobs_per_second", "Average jobs processed per second")

	m.errorRateByComponent = m.counterVec("errors_by_component_total",
		"Errors by component and type", "component", "error_type")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total",
		"Errors by HTTP endpoint", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "system_gc_pause_time_milliseconds",
		Help:        "GC pause time in milliseconds",
		Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		ConstLabels: m.constLabels,
	})
}

// Business Metrics Functions.

// RecordReportSubmitted counts an accepted hazard report.
func RecordReportSubmitted(hazardType, severity string) {
	globalManager.reportsSubmitted.WithLabelValues(hazardType, severity).Inc()
}

// RecordReportRejected counts a submission rejected before persistence.
func RecordReportRejected(reason string) {
	globalManager.reportsRejected.WithLabelValues(reason).Inc()
}

// RecordMediaStored adds stored media bytes for kind.
func RecordMediaStored(kind string, bytes int64) {
	if bytes > 0 {
		globalManager.mediaStoredBytes.WithLabelValues(kind).Add(float64(bytes))
	}
}

// RecordRiskScoreUpdate counts an applied score write.
func RecordRiskScoreUpdate(skillLevel string) {
	globalManager.riskScoreUpdates.WithLabelValues(skillLevel).Inc()
}

// RecordAnalysisOutcome counts an analysis outcome: success, failed or skipped.
func RecordAnalysisOutcome(outcome string) {
	globalManager.analysisOutcomes.WithLabelValues(outcome).Inc()
}

// RecordRateLimited counts a request refused by the limiter.
func RecordRateLimited() {
	globalManager.rateLimited.Inc()
}

// UpdateSpotsTotal sets the number of known surf spots.
func UpdateSpotsTotal(count int) {
	globalManager.spotsTotal.Set(float64(count))
}

// RecordReportStatusChange counts a verification status transition.
func RecordReportStatusChange(status string) {
	globalManager.reportStatusTotal.WithLabelValues(status).Inc()
}

// HTTP Metrics Functions.

// RecordHTTPRequest increments the HTTP requests counter.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Repository Metrics Functions.

// RecordRepositoryLatency records a store operation latency in milliseconds.
func RecordRepositoryLatency(backend, operation string, latencyMs float64) {
	globalManager.repositoryLatency.WithLabelValues(backend, operation).Observe(latencyMs)
}

// RecordRepositoryError counts a failed store operation.
func RecordRepositoryError(backend, operation string) {
	globalManager.repositoryErrors.WithLabelValues(backend, operation).Inc()
}

// Upstream Metrics Functions.

// RecordUpstreamRequest records a scoring service call.
func RecordUpstreamRequest(endpoint, outcome string, latencyMs float64) {
	globalManager.upstreamRequests.WithLabelValues(endpoint, outcome).Inc()
	globalManager.upstreamLatency.WithLabelValues(endpoint).Observe(latencyMs)
}

// Queue Metrics Functions.

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue counts an enqueued job.
func RecordQueueEnqueue(kind string) {
	globalManager.queueEnqueued.WithLabelValues(kind).Inc()
}

// RecordQueueDrop counts a job that could not be enqueued.
func RecordQueueDrop(kind, reason string) {
	globalManager.queueDropped.WithLabelValues(kind, reason).Inc()
}

// RecordQueueDequeue counts a job handed to a worker.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// Worker Metrics Functions.

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// UpdateWorkerActiveCount sets the number of busy workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActive.Set(float64(count))
}

// RecordJobLatency records job execution latency in milliseconds.
func RecordJobLatency(kind string, latencyMs float64) {
	globalManager.jobLatency.WithLabelValues(kind).Observe(latencyMs)
}

// RecordJobFailure counts a failed job.
func RecordJobFailure(kind string) {
	globalManager.jobFailures.WithLabelValues(kind).Inc()
}

// UpdateWorkerJobsPerSecond sets the average throughput.
func UpdateWorkerJobsPerSecond(rate float64) {
	globalManager.workerJobsPerSec.Set(rate)
}

// Error Metrics Functions.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
