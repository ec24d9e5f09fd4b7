package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/harun/trackd/internal/config"
	"github.com/harun/trackd/internal/logger"
	"github.com/harun/trackd/internal/observability"
	"github.com/harun/trackd/internal/tracing"
	"github.com/harun/trackd/pkg/analytics"
	"github.com/harun/trackd/pkg/api"
	"github.com/harun/trackd/pkg/cache"
	"github.com/harun/trackd/pkg/session"
)

// Version is reported by the health endpoint and the CLI.
const Version = "0.1.0"

// Daemon represents the trackd service
type Daemon struct {
	config *config.Config
	logger *logger.Logger

	// Core modules
	backend Backend
	cache   cache.Store
	manager *session.Manager
	tracker *session.Tracker
	job     *analytics.Job
	reader  *analytics.Reader

	// Services
	scheduler *analytics.Scheduler
	server    *api.Server

	// Internal
	eventLoop *EventLoop
	lifecycle *LifecycleManager

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startTime time.Time
	running   bool
	mu        sync.RWMutex

	tracingEnabled bool
}

// New creates a new daemon instance. The backend is opened here so that
// connection errors surface before Start.
func New(cfg *config.Config, log *logger.Logger) (*Daemon, error) {
	ctx, cancel := context.WithCancel(context.Background())

	observability.EnsureRegistered()

	d := &Daemon{
		config: cfg,
		logger: log,
		ctx:    ctx,
		cancel: cancel,
	}

	if cfg.Tracing.Enabled {
		err := tracing.InitOpenTelemetry(ctx, tracing.Config{
			ServiceName: cfg.Tracing.ServiceName,
			Endpoint:    cfg.Tracing.Endpoint,
			Insecure:    cfg.Tracing.Insecure,
		})
		if err != nil {
			zl := log.Zerolog()
			zl.Warn().Err(err).Msg("Failed to initialize tracing, continuing without distributed tracing")
		} else {
			d.tracingEnabled = true
			zl := log.Zerolog()
			zl.Info().
				Str("service", cfg.Tracing.ServiceName).
				Str("endpoint", cfg.Tracing.Endpoint).
				Msg("Tracing initialized")
		}
	}

	if err := d.initializeCoreModules(); err != nil {
		d.abort()
		return nil, fmt.Errorf("failed to initialize core modules: %w", err)
	}

	if err := d.initializeServices(); err != nil {
		d.abort()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	d.eventLoop = NewEventLoop(d)
	d.lifecycle = NewLifecycleManager(d)

	return d, nil
}

// abort releases what New acquired before failing.
func (d *Daemon) abort() {
	d.cancel()
	if d.backend != nil {
		_ = d.backend.Close()
	}
	if d.tracingEnabled {
		_ = tracing.ShutdownOpenTelemetry(context.Background())
		d.tracingEnabled = false
	}
}

func (d *Daemon) initializeCoreModules() error {
	log := d.logger.Zerolog()

	if d.config.DataDir != "" {
		if err := os.MkdirAll(d.config.DataDir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	if d.config.Logging.AuditFile != "" {
		if err := observability.InitAuditLogger(d.config.Logging.AuditFile); err != nil {
			log.Warn().Err(err).Msg("Failed to initialize audit logger, using default stderr")
		} else {
			log.Info().Str("path", d.config.Logging.AuditFile).Msg("Audit logger initialized")
		}
	}

	backend, err := OpenBackend(d.ctx, d.config)
	if err != nil {
		return err
	}
	d.backend = backend
	log.Info().Str("driver", d.config.Storage.Driver).Msg("Storage initialized")

	c, err := OpenCache(d.config)
	if err != nil {
		return err
	}
	d.cache = c
	log.Info().Str("driver", d.config.Cache.Driver).Msg("Cache initialized")

	d.manager = session.NewManager(backend)
	d.tracker = session.NewTracker(d.manager)

	d.job = analytics.NewJob(backend, backend, c, analytics.JobConfig{
		CacheKey: d.config.Cache.Key,
		Timeout:  d.config.RunTimeout(),
	})
	d.reader = analytics.NewReader(c, d.config.Cache.Key)
	log.Info().Str("cache_key", d.config.Cache.Key).Msg("Aggregation job initialized")

	return nil
}

func (d *Daemon) initializeServices() error {
	log := d.logger.Zerolog()

	if d.config.Aggregation.Enabled {
		scheduler, err := analytics.NewScheduler(d.job, analytics.SchedulerConfig{
			Spec:       d.config.Aggregation.Schedule,
			RunOnStart: d.config.Aggregation.RunOnStart,
		})
		if err != nil {
			return fmt.Errorf("failed to create scheduler: %w", err)
		}
		d.scheduler = scheduler
	} else {
		log.Info().Msg("Aggregation scheduler disabled")
	}

	server, err := api.NewServer(api.Config{
		Host:           d.config.Server.Host,
		Port:           d.config.Server.Port,
		AllowedOrigins: d.config.Server.AllowedOrigins,
		Tracker:        d.tracker,
		Reader:         d.reader,
		Status:         d.healthStatus,
		Version:        Version,
		Logger:         d.logger.Component("api"),
	})
	if err != nil {
		return fmt.Errorf("failed to create API server: %w", err)
	}
	d.server = server
	d.job.OnPublish(server.Hub().Publish)

	return nil
}

// Start starts the daemon service
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	traceID := tracing.NewTraceID()
	logger := d.logger.Zerolog().With().Str("trace_id", traceID).Logger()
	logger.Info().Str("version", Version).Msg("Starting trackd daemon")

	if err := d.lifecycle.Start(); err != nil {
		d.markStopped()
		return fmt.Errorf("failed to start lifecycle manager: %w", err)
	}

	if err := d.server.Start(); err != nil {
		_ = d.lifecycle.Stop()
		d.markStopped()
		return fmt.Errorf("failed to start API server: %w", err)
	}
	logger.Info().Str("addr", d.server.Addr()).Msg("API server started")

	if d.scheduler != nil {
		d.scheduler.Start(d.ctx)
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.eventLoop.Run(d.ctx)
	}()

	logger.Info().Msg("Daemon started successfully")
	return nil
}

func (d *Daemon) markStopped() {
	d.mu.Lock()
	d.running = false
	d.mu.Unlock()
}

// Stop stops the daemon service gracefully
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	d.running = false
	d.mu.Unlock()

	traceID := tracing.NewTraceID()
	logger := d.logger.Zerolog().With().Str("trace_id", traceID).Logger()
	logger.Info().Msg("Stopping trackd daemon")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Stop the schedule first so no run starts against a closing store
	if d.scheduler != nil {
		if err := d.scheduler.Stop(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Failed to stop aggregation scheduler")
		}
	}

	if err := d.server.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Failed to stop API server")
	}

	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Msg("All goroutines stopped")
	case <-time.After(5 * time.Second):
		logger.Warn().Msg("Timeout waiting for goroutines to stop")
	}

	if err := d.lifecycle.Stop(); err != nil {
		logger.Error().Err(err).Msg("Failed to stop lifecycle manager")
	}

	if err := d.backend.Close(); err != nil {
		logger.Error().Err(err).Msg("Failed to close storage")
	}

	if d.tracingEnabled {
		if err := tracing.ShutdownOpenTelemetry(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Failed to shutdown tracing")
		}
		d.tracingEnabled = false
	}

	if err := observability.GetAuditLogger().Close(); err != nil {
		logger.Error().Err(err).Msg("Failed to close audit logger")
	}

	logger.Info().Msg("Daemon stopped successfully")
	return nil
}

// Close releases the backend of a daemon that was never started.
func (d *Daemon) Close() error {
	d.mu.RLock()
	running := d.running
	d.mu.RUnlock()
	if running {
		return d.Stop()
	}
	d.cancel()
	return d.backend.Close()
}

// RunOnce executes a single aggregation run outside the schedule.
func (d *Daemon) RunOnce(ctx context.Context) (*analytics.Snapshot, error) {
	return d.job.Run(ctx)
}

// Status represents daemon status
type Status struct {
	Running     bool               `json:"running"`
	Uptime      time.Duration      `json:"uptime"`
	StartTime   time.Time          `json:"start_time"`
	Storage     ComponentHealth    `json:"storage"`
	Cache       ComponentHealth    `json:"cache"`
	Aggregation analytics.RunState `json:"aggregation"`
}

// Status returns the daemon status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{
		Running:     d.running,
		Storage:     d.eventLoop.Storage(),
		Cache:       d.eventLoop.Cache(),
		Aggregation: d.job.State(),
	}

	if d.running {
		status.Uptime = time.Since(d.startTime)
		status.StartTime = d.startTime
	}

	return status
}

func (d *Daemon) healthStatus(ctx context.Context) map[string]interface{} {
	status := d.Status()
	return map[string]interface{}{
		"storage":     status.Storage,
		"cache":       status.Cache,
		"aggregation": status.Aggregation,
	}
}

// Wait blocks until SIGINT or SIGTERM, or until ctx is done, then stops the daemon.
func (d *Daemon) Wait(ctx context.Context) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		zl := d.logger.Zerolog()
		zl.Info().Str("signal", sig.String()).Msg("Received signal")
	case <-ctx.Done():
	}

	if err := d.Stop(); err != nil {
		zl := d.logger.Zerolog()
		zl.Error().Err(err).Msg("Failed to stop daemon")
	}
}

// GetConfig returns the daemon configuration
func (d *Daemon) GetConfig() *config.Config {
	return d.config
}

// GetLogger returns the daemon logger
func (d *Daemon) GetLogger() *logger.Logger {
	return d.logger
}

// GetTracker returns the session tracker
func (d *Daemon) GetTracker() *session.Tracker {
	return d.tracker
}

// GetJob returns the aggregation job
func (d *Daemon) GetJob() *analytics.Job {
	return d.job
}

// GetReader returns the metrics reader
func (d *Daemon) GetReader() *analytics.Reader {
	return d.reader
}

// GetServer returns the API server
func (d *Daemon) GetServer() *api.Server {
	return d.server
}

// GetScheduler returns the aggregation scheduler, nil when disabled
func (d *Daemon) GetScheduler() *analytics.Scheduler {
	return d.scheduler
}
