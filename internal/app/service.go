// Package service provides the core business service behind the HTTP API:
// surf spot reads, score writes and the hazard report submission pipeline.
package service

import (
	"context"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/okian/surfwatch/internal/adapters/media"
	jobqueue "github.com/okian/surfwatch/internal/adapters/mq/queue"
	workerpool "github.com/okian/surfwatch/internal/adapters/mq/worker"
	"github.com/okian/surfwatch/internal/adapters/repository"
	"github.com/okian/surfwatch/internal/adapters/scoring"
	"github.com/okian/surfwatch/internal/domain/model"
	"github.com/okian/surfwatch/pkg/logger"
	"github.com/okian/surfwatch/pkg/metrics"
)

// Default service configuration constants.
const (
	defaultWorkerCount = 4
	defaultQueueSize   = 1024
	defaultJobTimeout  = 30 * time.Second
	defaultUploadDir   = "uploads"
)

// Service implements the API dependencies for surf spots and hazard reports.
type Service struct {
	mu sync.RWMutex

	// Core components
	store    repository.Store
	media    media.Store
	scorer   scoring.Collaborator
	jobs     jobqueue.Queue
	pool     *workerpool.Pool
	validate *validator.Validate
	clock    clockwork.Clock

	// Configuration
	workerCount int
	queueSize   int
	jobTimeout  time.Duration
	limits      model.Limits

	// State
	started   bool
	startedAt time.Time

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of background workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the background job queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithJobTimeout bounds each analysis or rescoring call.
func WithJobTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.jobTimeout = d
		}
	}
}

// WithLimits sets the submission limits.
func WithLimits(l model.Limits) Option {
	return func(s *Service) {
		s.limits = l.Normalize()
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStore sets the persistence backend.
func WithStore(st repository.Store) Option {
	return func(s *Service) {
		if st != nil {
			s.store = st
		}
	}
}

// WithMedia sets the media store.
func WithMedia(m media.Store) Option {
	return func(s *Service) {
		if m != nil {
			s.media = m
		}
	}
}

// WithScorer sets the external scoring collaborator.
func WithScorer(c scoring.Collaborator) Option {
	return func(s *Service) {
		if c != nil {
			s.scorer = c
		}
	}
}

// WithClock sets the time source.
func WithClock(c clockwork.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// New constructs a Service. Unset collaborators fall back to an in-memory
// store, a disk media store under ./uploads and a disabled scorer.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount: defaultWorkerCount,
		queueSize:   defaultQueueSize,
		jobTimeout:  defaultJobTimeout,
		limits:      model.DefaultLimits(),
		clock:       clockwork.NewRealClock(),
		scorer:      scoring.Disabled{},
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.store == nil {
		s.store = repository.Instrument(repository.NewMemoryStore(repository.WithClock(s.clock)))
	}
	if s.media == nil {
		s.media = media.NewDiskStore(defaultUploadDir, media.WithMaxSize(s.limits.MaxFileSize), media.WithClock(s.clock))
	}
	s.validate = newValidator()
	s.jobs = jobqueue.NewInMemoryQueue(jobqueue.WithCapacity(s.queueSize))
	return s
}

// Start launches the background workers. Jobs keep running after ctx is
// cancelled until Stop drains them.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.pool = workerpool.NewPool(s.workerCount, s.jobs, jobHandler{s: s},
		workerpool.WithLogger(s.logger),
		workerpool.WithJobTimeout(s.jobTimeout),
	)
	s.pool.Start(context.WithoutCancel(ctx))

	if n, err := s.store.CountSpots(ctx); err == nil {
		metrics.UpdateSpotsTotal(n)
	}

	s.started = true
	s.startedAt = s.clock.Now()
	s.logger.Info(ctx, "surfwatch service started",
		logger.String("store", s.store.Backend()),
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Duration("jobTimeout", s.jobTimeout),
	)
	return nil
}

// Stop drains background jobs and closes the store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping surfwatch service...")

	s.pool.Stop()
	if err := s.store.Close(); err != nil {
		s.logger.Warn(ctx, "closing store", logger.Error(err))
	}

	s.started = false
	s.logger.Info(ctx, "surfwatch service stopped")
}

// Limits returns the active submission limits.
func (s *Service) Limits() model.Limits { return s.limits }

// Health reports the store and scoring collaborator state. A nil error means
// the store is reachable; scoring is reported as ok, unavailable or disabled.
func (s *Service) Health(ctx context.Context) (store, scorer string, err error) {
	store = s.store.Backend()
	if err = s.store.Ping(ctx); err != nil {
		return store, "", err
	}
	if _, ok := s.scorer.(scoring.Disabled); ok {
		return store, "disabled", nil
	}
	if herr := s.scorer.Health(ctx); herr != nil {
		return store, "unavailable", nil
	}
	return store, "ok", nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":       s.started,
		"store":         s.store.Backend(),
		"workerCount":   s.workerCount,
		"queueCapacity": s.jobs.Cap(),
		"queueLength":   s.jobs.Len(),
	}
	if s.started {
		stats["uptimeSeconds"] = int64(s.clock.Since(s.startedAt).Seconds())
		stats["jobs"] = s.pool.Stats()
	}
	if n, err := s.store.CountSpots(context.Background()); err == nil {
		stats["totalSpots"] = n
		metrics.UpdateSpotsTotal(n)
	}
	metrics.UpdateQueueSize(s.jobs.Len())
	return stats
}

// dispatch queues background work for a stored report. A refused job is
// logged and dropped.
func (s *Service) dispatch(ctx context.Context, kind jobqueue.Kind, reportID, spotID string) {
	j := jobqueue.Job{
		ID:         uuid.NewString(),
		Kind:       kind,
		ReportID:   reportID,
		SpotID:     spotID,
		EnqueuedAt: s.clock.Now(),
	}
	if !s.jobs.Enqueue(context.WithoutCancel(ctx), j) {
		s.logger.Warn(ctx, "background job dropped",
			logger.String("job", string(kind)),
			logger.String("report_id", reportID),
			logger.String("spot_id", spotID),
		)
	}
}
