package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/harun/trackd/pkg/session"
	"github.com/harun/trackd/pkg/storage"
)

var _ session.Store = (*Store)(nil)

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func (s *Store) FindOne(ctx context.Context, userID string) (*session.Session, error) {
	// A single joined query reads the session and its log from one snapshot.
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.user_id, s.active_session_id, s.created_at, s.updated_at,
		       a.session_id, a.origin, a.type, a.timestamp
		FROM sessions s
		LEFT JOIN actions a ON a.user_id = s.user_id
		WHERE s.user_id = ?
		ORDER BY a.id`, userID)
	if err != nil {
		return nil, translate("find session", err)
	}
	defer rows.Close()

	var out *session.Session
	for rows.Next() {
		var (
			sess                 session.Session
			createdAt, updatedAt int64
			actSession, actOrig  sql.NullString
			actType              sql.NullString
			actTime              sql.NullInt64
		)
		if err := rows.Scan(
			&sess.UserID, &sess.ActiveSessionID, &createdAt, &updatedAt,
			&actSession, &actOrig, &actType, &actTime,
		); err != nil {
			return nil, translate("scan session", err)
		}
		if out == nil {
			sess.CreatedAt = fromNanos(createdAt)
			sess.UpdatedAt = fromNanos(updatedAt)
			sess.Actions = []session.Action{}
			out = &sess
		}
		if actType.Valid {
			out.Actions = append(out.Actions, session.Action{
				SessionID: actSession.String,
				Origin:    actOrig.String,
				Type:      session.ActionType(actType.String),
				Timestamp: fromNanos(actTime.Int64),
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, translate("find session", err)
	}
	if out == nil {
		return nil, fmt.Errorf("find session: %w", storage.ErrNotFound)
	}
	return out, nil
}

func (s *Store) InsertUnique(ctx context.Context, userID, activeSessionID string, createdAt time.Time) (*session.Session, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (user_id, active_session_id, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		userID, activeSessionID, createdAt.UnixNano(), createdAt.UnixNano(),
	)
	if err != nil {
		return nil, translate("insert session", err)
	}
	return &session.Session{
		UserID:          userID,
		ActiveSessionID: activeSessionID,
		CreatedAt:       fromNanos(createdAt.UnixNano()),
		UpdatedAt:       fromNanos(createdAt.UnixNano()),
	}, nil
}

func scanIdentity(row *sql.Row) (*session.Session, error) {
	var (
		sess                 session.Session
		createdAt, updatedAt int64
	)
	if err := row.Scan(&sess.UserID, &sess.ActiveSessionID, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	sess.CreatedAt = fromNanos(createdAt)
	sess.UpdatedAt = fromNanos(updatedAt)
	return &sess, nil
}

func (s *Store) FindAndReplaceActiveSession(ctx context.Context, userID, activeSessionID string, updatedAt time.Time) (*session.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE sessions SET active_session_id = ?, updated_at = ?
		WHERE user_id = ?
		RETURNING user_id, active_session_id, created_at, updated_at`,
		activeSessionID, updatedAt.UnixNano(), userID,
	)
	sess, err := scanIdentity(row)
	if err != nil {
		return nil, translate("refresh session", err)
	}
	return sess, nil
}

func (s *Store) FindAndAppendAction(ctx context.Context, userID string, action session.Action) (*session.Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, translate("append action", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO actions (user_id, session_id, origin, type, timestamp)
		SELECT ?, ?, ?, ?, ?
		WHERE EXISTS (SELECT 1 FROM sessions WHERE user_id = ?)`,
		userID, action.SessionID, action.Origin, string(action.Type), action.Timestamp.UnixNano(), userID,
	)
	if err != nil {
		return nil, translate("append action", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, translate("append action", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("append action: %w", storage.ErrNotFound)
	}

	sess, err := scanIdentity(tx.QueryRowContext(ctx,
		`SELECT user_id, active_session_id, created_at, updated_at FROM sessions WHERE user_id = ?`, userID))
	if err != nil {
		return nil, translate("append action", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, translate("append action", err)
	}
	return sess, nil
}
