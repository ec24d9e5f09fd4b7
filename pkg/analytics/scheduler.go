package analytics

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultSchedule runs the job once a minute.
const DefaultSchedule = "@every 1m"

// SchedulerConfig configures a Scheduler.
type SchedulerConfig struct {
	// Spec is a standard five-field cron expression or a descriptor such
	// as "@every 30s".
	Spec       string
	RunOnStart bool
}

// Scheduler fires a Job on a cron schedule. Ticks that arrive while a run
// is in flight are dropped by the job's own guard.
type Scheduler struct {
	job     *Job
	spec    string
	onStart bool
	cron    *cron.Cron

	mu      sync.Mutex
	baseCtx context.Context
	cancel  context.CancelFunc
	started bool
	wg      sync.WaitGroup
}

// NewScheduler validates cfg and prepares a stopped scheduler for job.
func NewScheduler(job *Job, cfg SchedulerConfig) (*Scheduler, error) {
	spec := cfg.Spec
	if spec == "" {
		spec = DefaultSchedule
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid aggregation schedule %q: %w", spec, err)
	}

	cl := cronLogger{logger: log.Logger.With().Str("component", "scheduler").Logger()}
	s := &Scheduler{
		job:     job,
		spec:    spec,
		onStart: cfg.RunOnStart,
		cron: cron.New(
			cron.WithChain(cron.Recover(cl)),
			cron.WithLogger(cl),
		),
	}

	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return nil, fmt.Errorf("register aggregation job: %w", err)
	}
	return s, nil
}

// Start begins firing the job. Runs inherit ctx; cancelling it aborts an
// in-flight run.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.baseCtx, s.cancel = context.WithCancel(ctx)

	s.cron.Start()
	log.Info().Str("schedule", s.spec).Bool("run_on_start", s.onStart).Msg("Aggregation scheduler started")

	if s.onStart {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.tick()
		}()
	}
}

// Stop halts the schedule and waits for an in-flight run, or until ctx ends.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		<-s.cron.Stop().Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		log.Info().Msg("Aggregation scheduler stopped")
		return nil
	case <-ctx.Done():
		s.cancel()
		return fmt.Errorf("stop aggregation scheduler: %w", ctx.Err())
	}
}

// Trigger runs the job now, outside the schedule, and returns its result.
func (s *Scheduler) Trigger(ctx context.Context) (*Snapshot, error) {
	return s.job.Run(ctx)
}

func (s *Scheduler) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.baseCtx == nil {
		return context.Background()
	}
	return s.baseCtx
}

func (s *Scheduler) tick() {
	// Failures are logged by the job and never stop the schedule.
	if _, err := s.job.Run(s.context()); errors.Is(err, ErrRunInProgress) {
		log.Debug().Msg("Aggregation run still in progress, skipping tick")
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
