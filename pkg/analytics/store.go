package analytics

import (
	"context"

	"github.com/harun/trackd/pkg/session"
)

// EventReader is the read side of the raw session store.
type EventReader interface {
	// CountSessions returns the number of distinct sessions.
	CountSessions(ctx context.Context) (int64, error)
	// CountSessionsWithAction returns the number of distinct sessions having
	// at least one action of actionType.
	CountSessionsWithAction(ctx context.Context, actionType session.ActionType) (int64, error)
}

// SnapshotStore persists the append-only snapshot history.
type SnapshotStore interface {
	InsertSnapshot(ctx context.Context, snapshot *Snapshot) error
}
