// Package worker runs background jobs taken off the queue.
//
// Job failures are logged and counted; they never reach the request that
// produced the job.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/surfwatch/internal/adapters/mq/queue"
	"github.com/okian/surfwatch/pkg/logger"
	"github.com/okian/surfwatch/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerCount    = 4
	defaultJobTimeout     = 30 * time.Second
	metricsUpdateInterval = 5 * time.Second
	poolShutdownTimeout   = 30 * time.Second
)

// Handler executes one job.
type Handler interface {
	Handle(ctx context.Context, j queue.Job) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, j queue.Job) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, j queue.Job) error { return f(ctx, j) }

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Job
}

// Counters aggregates job outcomes.
type Counters struct {
	processed atomic.Int64
	failed    atomic.Int64
	active    atomic.Int64
}

// InMemoryWorker drains a queue, running each job under its own timeout.
type InMemoryWorker struct {
	queue    Queue
	handler  Handler
	settings settings
	counters *Counters
	done     chan struct{}
}

// NewInMemoryWorker creates a worker. counters may be shared across a pool;
// nil allocates private ones.
func NewInMemoryWorker(q Queue, h Handler, counters *Counters, opts ...Option) *InMemoryWorker {
	if counters == nil {
		counters = &Counters{}
	}
	return &InMemoryWorker{
		queue:    q,
		handler:  h,
		settings: buildSettings("worker", opts),
		counters: counters,
		done:     make(chan struct{}),
	}
}

// Run processes jobs until the queue is closed and drained or ctx is done.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			w.process(ctx, j)
		}
	}
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

func (w *InMemoryWorker) process(ctx context.Context, j queue.Job) { //nolint:gocritic // Job is passed by value for channel semantics
	w.counters.active.Add(1)
	metrics.UpdateWorkerActiveCount(int(w.counters.active.Load()))
	defer func() {
		metrics.UpdateWorkerActiveCount(int(w.counters.active.Add(-1)))
	}()

	jctx, cancel := context.WithTimeout(ctx, w.settings.jobTimeout)
	defer cancel()

	start := time.Now()
	err := w.safeHandle(jctx, j)
	metrics.RecordJobLatency(string(j.Kind), float64(time.Since(start).Milliseconds()))
	w.counters.processed.Add(1)

	if err != nil {
		w.counters.failed.Add(1)
		metrics.RecordJobFailure(string(j.Kind))
		metrics.RecordErrorByComponent("worker", string(j.Kind))
		w.settings.logger.Warn(ctx, "job failed",
			logger.String("job", string(j.Kind)),
			logger.String("job_id", j.ID),
			logger.String("report_id", j.ReportID),
			logger.String("spot_id", j.SpotID),
			logger.Duration("elapsed", time.Since(start)),
			logger.Error(err),
		)
		return
	}
	w.settings.logger.Debug(ctx, "job done",
		logger.String("job", string(j.Kind)),
		logger.String("report_id", j.ReportID),
		logger.Duration("elapsed", time.Since(start)),
	)
}

func (w *InMemoryWorker) safeHandle(ctx context.Context, j queue.Job) (err error) { //nolint:gocritic // Job is passed by value
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return w.handler.Handle(ctx, j)
}

// Stats is a snapshot of pool activity.
type Stats struct {
	Workers   int   `json:"workers"`
	Active    int64 `json:"active"`
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
}

// Pool manages multiple workers sharing one queue.
type Pool struct {
	workers  []*InMemoryWorker
	queue    Queue
	counters *Counters
	settings settings

	mu       sync.Mutex
	cancel   context.CancelFunc
	started  bool
	shutdown chan struct{}

	lastProcessed int64
	lastTick      time.Time
}

// NewPool creates a pool of workerCount workers.
func NewPool(workerCount int, q Queue, h Handler, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = defaultWorkerCount
	}
	p := &Pool{
		workers:  make([]*InMemoryWorker, workerCount),
		queue:    q,
		counters: &Counters{},
		settings: buildSettings("worker-pool", opts),
		shutdown: make(chan struct{}),
	}
	for i := range p.workers {
		wopts := append([]Option{}, opts...)
		wopts = append(wopts, WithName("worker-"+strconv.Itoa(i)))
		p.workers[i] = NewInMemoryWorker(q, h, p.counters, wopts...)
	}

	metrics.UpdateWorkerCount(workerCount)
	metrics.UpdateWorkerActiveCount(0)
	metrics.UpdateWorkerJobsPerSecond(0)
	return p
}

// Start launches the workers. Jobs run under a context derived from ctx that
// Shutdown cancels only when the drain deadline passes.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	for _, w := range p.workers {
		go w.Run(runCtx)
	}
	p.lastTick = time.Now()
	go p.startMetricsUpdater(runCtx)
}

func (p *Pool) startMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metricsUpdateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.shutdown:
			return
		case <-ticker.C:
			p.updateMetrics()
		}
	}
}

func (p *Pool) updateMetrics() {
	now := time.Now()
	processed := p.counters.processed.Load()
	if dt := now.Sub(p.lastTick).Seconds(); dt > 0 {
		metrics.UpdateWorkerJobsPerSecond(float64(processed-p.lastProcessed) / dt)
	}
	p.lastProcessed = processed
	p.lastTick = now
}

// Stats returns a snapshot of pool counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Workers:   len(p.workers),
		Active:    p.counters.active.Load(),
		Processed: p.counters.processed.Load(),
		Failed:    p.counters.failed.Load(),
	}
}

// Stop shuts the pool down with the default drain deadline.
func (p *Pool) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), poolShutdownTimeout)
	defer cancel()
	_ = p.Shutdown(ctx)
}

// Shutdown closes the queue, lets workers drain what is already queued and
// waits for them until ctx is done. Unfinished jobs are then cancelled.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	select {
	case <-p.shutdown:
		p.mu.Unlock()
		return nil
	default:
		close(p.shutdown)
	}
	started, cancel := p.started, p.cancel
	p.mu.Unlock()

	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.settings.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
	if !started {
		return nil
	}
	defer cancel()

	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-ctx.Done():
			p.settings.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			return fmt.Errorf("shutdown timed out: %w", ctx.Err())
		}
	}
	return nil
}
