package sqlite

import (
	"context"

	"github.com/harun/trackd/pkg/analytics"
	"github.com/harun/trackd/pkg/session"
)

var _ analytics.EventReader = (*Store)(nil)

func (s *Store) CountSessions(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&n); err != nil {
		return 0, translate("count sessions", err)
	}
	return n, nil
}

func (s *Store) CountSessionsWithAction(ctx context.Context, actionType session.ActionType) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT user_id) FROM actions WHERE type = ?`, string(actionType),
	).Scan(&n)
	if err != nil {
		return 0, translate("count sessions with action", err)
	}
	return n, nil
}
