// Package session owns the per-user session lifecycle: creating a session on
// first contact, refreshing its active token, and appending browsing actions
// to its append-only log.
//
// Invariants:
// - At most one Session exists per user ID; uniqueness is enforced by the Store.
// - ActiveSessionID is never empty once a Session exists.
// - Actions are only ever appended, in arrival order, and never rewritten.
// - Refresh and append are single atomic store calls; no lock is held across them.
//
// Usage:
//
//	mgr := session.NewManager(store)
//	tracker := session.NewTracker(mgr)
//	s, outcome, _ := tracker.SaveOrRefresh(ctx, userID)
//	_, _ = tracker.RecordAction(ctx, userID, session.ActionPageVisit, origin)
//	_, _ = s, outcome
package session
