package analytics_test

import (
	"context"
	"testing"
	"time"

	"github.com/harun/trackd/pkg/analytics"
	"github.com/harun/trackd/pkg/cache"
	"github.com/harun/trackd/pkg/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewScheduler_InvalidSpec(t *testing.T) {
	job := analytics.NewJob(memory.New(), memory.New(), cache.NewMemory(), analytics.JobConfig{})

	_, err := analytics.NewScheduler(job, analytics.SchedulerConfig{Spec: "every minute please"})
	assert.Error(t, err)
}

func TestScheduler_RunOnStart(t *testing.T) {
	store := memory.New()
	seedSessions(t, store, 4, 1)
	c := cache.NewMemory()
	job := analytics.NewJob(store, store, c, analytics.JobConfig{})

	sched, err := analytics.NewScheduler(job, analytics.SchedulerConfig{Spec: "@every 1h", RunOnStart: true})
	require.NoError(t, err)

	ctx := context.Background()
	sched.Start(ctx)

	assert.Eventually(t, func() bool {
		_, err := c.Get(ctx, analytics.DefaultCacheKey)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, sched.Stop(stopCtx))

	snap, err := analytics.NewReader(c, "").Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), snap.Metrics[analytics.MetricUniqueUsers])
	assert.Equal(t, int64(1), snap.Metrics[analytics.MetricUniqueUsersWithObjectInView])
}

func TestScheduler_Ticks(t *testing.T) {
	store := memory.New()
	seedSessions(t, store, 1, 0)
	job := analytics.NewJob(store, store, cache.NewMemory(), analytics.JobConfig{})

	sched, err := analytics.NewScheduler(job, analytics.SchedulerConfig{Spec: "@every 1s"})
	require.NoError(t, err)

	sched.Start(context.Background())
	defer func() { _ = sched.Stop(context.Background()) }()

	assert.Eventually(t, func() bool {
		return len(store.Snapshots()) >= 1
	}, 3*time.Second, 20*time.Millisecond)
}

func TestScheduler_Trigger(t *testing.T) {
	store := memory.New()
	seedSessions(t, store, 2, 2)
	job := analytics.NewJob(store, store, cache.NewMemory(), analytics.JobConfig{})

	sched, err := analytics.NewScheduler(job, analytics.SchedulerConfig{})
	require.NoError(t, err)

	snap, err := sched.Trigger(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), snap.Metrics[analytics.MetricUniqueUsersWithObjectInView])
}

func TestScheduler_StopWithoutStart(t *testing.T) {
	job := analytics.NewJob(memory.New(), memory.New(), cache.NewMemory(), analytics.JobConfig{})
	sched, err := analytics.NewScheduler(job, analytics.SchedulerConfig{})
	require.NoError(t, err)

	assert.NoError(t, sched.Stop(context.Background()))
}
