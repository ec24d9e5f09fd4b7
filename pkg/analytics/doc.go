// Package analytics computes derived metrics from the raw session store on a
// schedule and publishes the result to the cache read path.
//
// Invariants:
// - At most one Job.Run is in flight; overlapping calls return ErrRunInProgress.
// - A run either persists and publishes a complete Snapshot or changes nothing.
// - Reader never computes; it only decodes what the last run published.
//
// Usage:
//
//	job := analytics.NewJob(events, snapshots, cacheStore, analytics.JobConfig{})
//	sched, _ := analytics.NewScheduler(job, analytics.SchedulerConfig{Spec: "@every 1m"})
//	sched.Start(ctx)
//	defer sched.Stop(ctx)
//	snap, err := analytics.NewReader(cacheStore, "").Latest(ctx)
package analytics
