package analytics

import (
	"context"

	"github.com/harun/trackd/pkg/session"
)

const (
	MetricUniqueUsers                 = "uniqueUsers"
	MetricUniqueUsersWithObjectInView = "uniqueUsersWithObjectInView"
)

// Metric is one derived count computed from the raw store.
type Metric struct {
	Name    string
	Compute func(ctx context.Context, events EventReader) (int64, error)
}

// DefaultMetrics returns the fixed metric set published by every run.
func DefaultMetrics() []Metric {
	return []Metric{
		{
			Name: MetricUniqueUsers,
			Compute: func(ctx context.Context, events EventReader) (int64, error) {
				return events.CountSessions(ctx)
			},
		},
		{
			Name: MetricUniqueUsersWithObjectInView,
			Compute: func(ctx context.Context, events EventReader) (int64, error) {
				return events.CountSessionsWithAction(ctx, session.ActionObjectInView)
			},
		},
	}
}
