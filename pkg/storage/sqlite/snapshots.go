package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/harun/trackd/pkg/analytics"
)

var _ analytics.SnapshotStore = (*Store)(nil)

func (s *Store) InsertSnapshot(ctx context.Context, snapshot *analytics.Snapshot) error {
	metrics, err := json.Marshal(snapshot.Metrics)
	if err != nil {
		return fmt.Errorf("encode snapshot metrics: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO metric_snapshots (id, computed_at, metrics) VALUES (?, ?, ?)`,
		snapshot.ID, snapshot.ComputedAt.UnixNano(), string(metrics),
	)
	return translate("insert snapshot", err)
}

// CountSnapshots returns the size of the persisted snapshot history.
func (s *Store) CountSnapshots(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM metric_snapshots`).Scan(&n); err != nil {
		return 0, translate("count snapshots", err)
	}
	return n, nil
}
