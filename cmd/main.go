package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/surfwatch/internal/adapters/http/api"
	"github.com/okian/surfwatch/internal/adapters/http/swagger"
	"github.com/okian/surfwatch/internal/adapters/media"
	"github.com/okian/surfwatch/internal/adapters/repository"
	"github.com/okian/surfwatch/internal/adapters/scoring"
	service "github.com/okian/surfwatch/internal/app"
	"github.com/okian/surfwatch/internal/config"
	"github.com/okian/surfwatch/internal/domain/ratelimit"
	"github.com/okian/surfwatch/pkg/logger"
	"github.com/okian/surfwatch/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTP server timeout constants. Report submissions replace the read and
// write deadlines with the configured upload window.
const (
	readTimeout               = 2 * time.Minute
	writeTimeout              = 30 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	// Our own system gauges replace the default Go collectors.
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// Logger format depends on config, so report on stderr.
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.InitWithFormat(cfg.LogFormat); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	svc, handler, err := buildApp(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "failed to build application", logger.Error(err))
		os.Exit(1)
	}
	if err := svc.Start(ctx); err != nil {
		log.Error(ctx, "failed to start service", logger.Error(err))
		os.Exit(1)
	}
	defer svc.Stop()

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, svc)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Info(ctx, "starting HTTP server",
			logger.String("addr", cfg.Addr),
			logger.String("store", cfg.StoreDriver),
			logger.Bool("scoring_enabled", cfg.ScoringBaseURL != ""),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "HTTP server failed", logger.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info(context.Background(), "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "server shutdown failed", logger.Error(err))
	}

	log.Info(shutdownCtx, "server stopped")
}

// buildApp opens the configured backends and wires the service and routes.
// The service is returned unstarted.
func buildApp(ctx context.Context, cfg *config.Config, log logger.Logger) (*service.Service, http.Handler, error) {
	store, err := repository.Open(ctx, cfg, repository.WithLogger(log.Named("repository")))
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}

	limits := cfg.Limits()
	disk := media.NewDiskStore(cfg.UploadDir,
		media.WithMaxSize(limits.MaxFileSize),
		media.WithLogger(log.Named("media")),
	)
	scorer := scoring.New(cfg.ScoringBaseURL,
		scoring.WithTimeout(cfg.ScoringTimeout()),
		scoring.WithLogger(log.Named("scoring")),
	)

	svc := service.New(
		service.WithLogger(log.Named("service")),
		service.WithStore(store),
		service.WithMedia(disk),
		service.WithScorer(scorer),
		service.WithLimits(limits),
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithQueueSize(cfg.QueueSize),
		service.WithJobTimeout(cfg.ScoringTimeout()),
	)

	limiter := ratelimit.NewInMemoryCounter(
		ratelimit.WithLimit(cfg.RateLimitRequests),
		ratelimit.WithWindow(cfg.RateLimitWindow()),
		ratelimit.WithMaxKeys(cfg.RateLimitClients),
	)

	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, svc,
		api.WithMedia(disk),
		api.WithRateLimiter(limiter),
		api.WithTrustedProxies(cfg.TrustedProxyPrefixes()),
		api.WithUploadTimeout(cfg.UploadTimeout()),
		api.WithLogger(log.Named("api")),
	).Register(ctx, mux)

	return svc, mux, nil
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metrics.SampleInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater starts a background goroutine that updates service metrics.
func startServiceMetricsUpdater(ctx context.Context, svc *service.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(svc)
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)

	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

// updateServiceMetrics refreshes the gauges GetStats does not already set.
func updateServiceMetrics(svc *service.Service) {
	stats := svc.GetStats()

	if workerCount, ok := stats["workerCount"].(int); ok {
		metrics.UpdateWorkerCount(workerCount)
	}
	if capacity, ok := stats["queueCapacity"].(int); ok {
		metrics.UpdateQueueCapacity(capacity)
		if length, ok := stats["queueLength"].(int); ok && capacity > 0 {
			metrics.UpdateQueueUtilization(float64(length) / float64(capacity))
		}
	}
}
