package analytics

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harun/trackd/internal/observability"
	"github.com/harun/trackd/internal/tracing"
	"github.com/harun/trackd/pkg/cache"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

const tracerName = "trackd.analytics"

// ErrRunInProgress is returned by Run when another run has not finished.
var ErrRunInProgress = errors.New("aggregation run already in progress")

// PublishFunc is notified with every snapshot the job publishes.
type PublishFunc func(ctx context.Context, snapshot *Snapshot)

// JobConfig configures a Job. Zero values select defaults.
type JobConfig struct {
	CacheKey string
	// Timeout bounds a single run; zero means no bound beyond the caller's context.
	Timeout time.Duration
	Metrics []Metric
	Clock   func() time.Time
}

// RunState is the bookkeeping of the most recent runs.
type RunState struct {
	Running           bool          `json:"running"`
	LastRunAt         *time.Time    `json:"lastRunAt,omitempty"`
	LastDuration      time.Duration `json:"lastDuration,omitempty"`
	LastStatus        string        `json:"lastStatus,omitempty"`
	LastError         string        `json:"lastError,omitempty"`
	LastSnapshotID    string        `json:"lastSnapshotId,omitempty"`
	ConsecutiveErrors int           `json:"consecutiveErrors"`
	SkippedRuns       int64         `json:"skippedRuns"`
}

// Job is the non-reentrant aggregation task.
type Job struct {
	events    EventReader
	snapshots SnapshotStore
	cache     cache.Store
	key       string
	timeout   time.Duration
	metrics   []Metric
	now       func() time.Time

	running atomic.Bool
	skipped atomic.Int64

	mu        sync.Mutex
	state     RunState
	listeners []PublishFunc
}

// NewJob creates a Job reading from events and writing to snapshots and c.
func NewJob(events EventReader, snapshots SnapshotStore, c cache.Store, cfg JobConfig) *Job {
	observability.EnsureRegistered()

	j := &Job{
		events:    events,
		snapshots: snapshots,
		cache:     c,
		key:       cfg.CacheKey,
		timeout:   cfg.Timeout,
		metrics:   cfg.Metrics,
		now:       cfg.Clock,
	}
	if j.key == "" {
		j.key = DefaultCacheKey
	}
	if len(j.metrics) == 0 {
		j.metrics = DefaultMetrics()
	}
	if j.now == nil {
		j.now = func() time.Time { return time.Now().UTC() }
	}
	return j
}

// OnPublish registers fn to be called after every successful publish.
func (j *Job) OnPublish(fn PublishFunc) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.listeners = append(j.listeners, fn)
}

// Running reports whether a run is in flight.
func (j *Job) Running() bool {
	return j.running.Load()
}

// State returns a copy of the run bookkeeping.
func (j *Job) State() RunState {
	j.mu.Lock()
	defer j.mu.Unlock()
	st := j.state
	st.Running = j.running.Load()
	st.SkippedRuns = j.skipped.Load()
	return st
}

// Run executes one aggregation pass: read every metric, persist the snapshot,
// then overwrite the cache key. Any failure aborts the run before the cache
// is touched. Publish listeners are called after the run guard is released,
// so a slow listener never blocks the next run.
func (j *Job) Run(ctx context.Context) (*Snapshot, error) {
	if !j.running.CompareAndSwap(false, true) {
		j.skipped.Add(1)
		observability.RecordAggregationSkipped()
		return nil, ErrRunInProgress
	}

	snap, err := j.execute(ctx)
	if err != nil {
		return nil, err
	}

	j.notify(ctx, snap)
	return snap, nil
}

// execute performs the guarded part of a run and releases the guard on return.
func (j *Job) execute(ctx context.Context) (*Snapshot, error) {
	defer j.running.Store(false)

	runID, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("generate run id: %w", err)
	}

	ctx = tracing.WithRunID(ctx, runID)
	ctx, span := tracing.StartSpan(ctx, tracerName, "aggregation.run", attribute.String("run_id", runID))
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, log.Logger)

	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	startedAt := j.now()
	start := time.Now()
	logger.Debug().Msg("Aggregation run started")

	snap, err := j.run(ctx, startedAt)
	duration := time.Since(start)
	observability.RecordAggregationRun(duration, err == nil)
	j.record(startedAt, duration, snap, err)

	if err != nil {
		tracing.RecordError(span, err)
		logger.Error().Err(err).Dur("duration", duration).Msg("Aggregation run failed")
		observability.RecordSnapshotAudit(ctx, runID, "failure", map[string]interface{}{"error": err.Error()})
		return nil, err
	}

	span.SetAttributes(attribute.String("snapshot_id", snap.ID))
	observability.SetPublishedMetrics(snap.Metrics, startedAt)
	observability.RecordSnapshotAudit(ctx, runID, "success", map[string]interface{}{
		"snapshot_id": snap.ID,
		"metrics":     snap.Metrics,
	})
	logger.Info().
		Str("snapshot_id", snap.ID).
		Interface("metrics", snap.Metrics).
		Dur("duration", duration).
		Msg("Metrics snapshot published")

	return snap, nil
}

func (j *Job) run(ctx context.Context, startedAt time.Time) (*Snapshot, error) {
	values, err := j.compute(ctx)
	if err != nil {
		return nil, err
	}

	id, err := ulid.New(ulid.Timestamp(startedAt), ulid.DefaultEntropy())
	if err != nil {
		return nil, fmt.Errorf("generate snapshot id: %w", err)
	}

	snap := &Snapshot{
		ID:         id.String(),
		ComputedAt: startedAt,
		Metrics:    values,
	}

	payload, err := snap.Encode()
	if err != nil {
		return nil, err
	}

	if err := j.snapshots.InsertSnapshot(ctx, snap); err != nil {
		return nil, fmt.Errorf("persist snapshot: %w", err)
	}

	if err := j.cache.Set(ctx, j.key, payload); err != nil {
		return nil, fmt.Errorf("publish snapshot: %w", err)
	}

	return snap, nil
}

// compute reads every metric concurrently. The first failure cancels the rest.
func (j *Job) compute(ctx context.Context) (map[string]int64, error) {
	results := make([]int64, len(j.metrics))

	g, gctx := errgroup.WithContext(ctx)
	for i, m := range j.metrics {
		g.Go(func() error {
			v, err := m.Compute(gctx, j.events)
			if err != nil {
				return fmt.Errorf("compute %s: %w", m.Name, err)
			}
			results[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	values := make(map[string]int64, len(j.metrics))
	for i, m := range j.metrics {
		values[m.Name] = results[i]
	}
	return values, nil
}

func (j *Job) record(startedAt time.Time, duration time.Duration, snap *Snapshot, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.state.LastRunAt = &startedAt
	j.state.LastDuration = duration
	if err != nil {
		j.state.LastStatus = "error"
		j.state.LastError = err.Error()
		j.state.ConsecutiveErrors++
		return
	}
	j.state.LastStatus = "ok"
	j.state.LastError = ""
	j.state.LastSnapshotID = snap.ID
	j.state.ConsecutiveErrors = 0
}

func (j *Job) notify(ctx context.Context, snap *Snapshot) {
	j.mu.Lock()
	listeners := make([]PublishFunc, len(j.listeners))
	copy(listeners, j.listeners)
	j.mu.Unlock()

	for _, fn := range listeners {
		fn(ctx, snap.Clone())
	}
}
