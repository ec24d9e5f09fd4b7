// Package memory is a process-local implementation of the session store,
// the raw event reader and the snapshot store. It backs tests and the
// "memory" storage driver.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/harun/trackd/pkg/analytics"
	"github.com/harun/trackd/pkg/session"
	"github.com/harun/trackd/pkg/storage"
)

// Store keeps every record in maps guarded by a single mutex, held only for
// the duration of one operation.
type Store struct {
	mu        sync.RWMutex
	sessions  map[string]*session.Session
	snapshots []*analytics.Snapshot
}

var (
	_ session.Store           = (*Store)(nil)
	_ analytics.EventReader   = (*Store)(nil)
	_ analytics.SnapshotStore = (*Store)(nil)
)

// New creates an empty Store.
func New() *Store {
	return &Store{sessions: make(map[string]*session.Session)}
}

func identity(s *session.Session) *session.Session {
	return &session.Session{
		UserID:          s.UserID,
		ActiveSessionID: s.ActiveSessionID,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
}

func (st *Store) FindOne(ctx context.Context, userID string) (*session.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, storage.Unavailable("memory find", err)
	}

	st.mu.RLock()
	defer st.mu.RUnlock()

	s, ok := st.sessions[userID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := identity(s)
	out.Actions = make([]session.Action, len(s.Actions))
	copy(out.Actions, s.Actions)
	return out, nil
}

func (st *Store) InsertUnique(ctx context.Context, userID, activeSessionID string, createdAt time.Time) (*session.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, storage.Unavailable("memory insert", err)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if _, ok := st.sessions[userID]; ok {
		return nil, storage.ErrConflict
	}
	s := &session.Session{
		UserID:          userID,
		ActiveSessionID: activeSessionID,
		CreatedAt:       createdAt,
		UpdatedAt:       createdAt,
	}
	st.sessions[userID] = s
	return identity(s), nil
}

func (st *Store) FindAndReplaceActiveSession(ctx context.Context, userID, activeSessionID string, updatedAt time.Time) (*session.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, storage.Unavailable("memory refresh", err)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[userID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	s.ActiveSessionID = activeSessionID
	s.UpdatedAt = updatedAt
	return identity(s), nil
}

func (st *Store) FindAndAppendAction(ctx context.Context, userID string, action session.Action) (*session.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, storage.Unavailable("memory append", err)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[userID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	s.Actions = append(s.Actions, action)
	return identity(s), nil
}

func (st *Store) CountSessions(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, storage.Unavailable("memory count", err)
	}

	st.mu.RLock()
	defer st.mu.RUnlock()
	return int64(len(st.sessions)), nil
}

func (st *Store) CountSessionsWithAction(ctx context.Context, actionType session.ActionType) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, storage.Unavailable("memory count", err)
	}

	st.mu.RLock()
	defer st.mu.RUnlock()

	var n int64
	for _, s := range st.sessions {
		for _, a := range s.Actions {
			if a.Type == actionType {
				n++
				break
			}
		}
	}
	return n, nil
}

func (st *Store) InsertSnapshot(ctx context.Context, snapshot *analytics.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return storage.Unavailable("memory insert snapshot", err)
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	st.snapshots = append(st.snapshots, snapshot.Clone())
	return nil
}

// Snapshots returns the persisted snapshot history, oldest first.
func (st *Store) Snapshots() []*analytics.Snapshot {
	st.mu.RLock()
	defer st.mu.RUnlock()

	out := make([]*analytics.Snapshot, len(st.snapshots))
	for i, s := range st.snapshots {
		out[i] = s.Clone()
	}
	return out
}

// Close is a no-op; it lets Store stand in wherever a closable backend is expected.
func (st *Store) Close() error {
	return nil
}
