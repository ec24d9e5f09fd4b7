package session

import (
	"context"
	"time"
)

// Store is the persistence contract for session records. Implementations
// report absence with storage.ErrNotFound, a duplicate user with
// storage.ErrConflict, and transport failures with storage.ErrUnavailable.
type Store interface {
	// FindOne returns the session for userID including its action log.
	FindOne(ctx context.Context, userID string) (*Session, error)

	// InsertUnique creates a session with an empty action log.
	InsertUnique(ctx context.Context, userID, activeSessionID string, createdAt time.Time) (*Session, error)

	// FindAndReplaceActiveSession atomically swaps the active token and
	// returns the updated identity.
	FindAndReplaceActiveSession(ctx context.Context, userID, activeSessionID string, updatedAt time.Time) (*Session, error)

	// FindAndAppendAction atomically appends action to the log and returns
	// the session identity as it stood after the append.
	FindAndAppendAction(ctx context.Context, userID string, action Action) (*Session, error)
}
