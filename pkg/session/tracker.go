package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/harun/trackd/internal/observability"
	"github.com/harun/trackd/internal/tracing"
	"github.com/harun/trackd/pkg/storage"
	"github.com/rs/zerolog/log"
)

// Tracker is the ingestion facade in front of Manager. It performs no
// retries; store failures propagate to the caller.
type Tracker struct {
	manager *Manager
}

// NewTracker creates a Tracker over manager.
func NewTracker(manager *Manager) *Tracker {
	return &Tracker{manager: manager}
}

// SaveOrRefresh refreshes the user's session when it exists and creates it
// otherwise. The lookup and the create are separate store calls, so two
// concurrent first contacts for the same user race; the loser gets
// storage.ErrConflict and is not retried.
func (t *Tracker) SaveOrRefresh(ctx context.Context, userID string) (Identity, Outcome, error) {
	_, err := t.manager.FindByUser(ctx, userID)
	switch {
	case err == nil:
		s, err := t.manager.Refresh(ctx, userID)
		if err != nil {
			return Identity{}, "", err
		}
		observability.RecordSaveOrRefresh(string(OutcomeRefreshed))
		return s.Identity(), OutcomeRefreshed, nil
	case errors.Is(err, storage.ErrNotFound):
		s, err := t.manager.Create(ctx, userID)
		if err != nil {
			return Identity{}, "", err
		}
		observability.RecordSaveOrRefresh(string(OutcomeCreated))
		return s.Identity(), OutcomeCreated, nil
	default:
		return Identity{}, "", err
	}
}

// RefreshSession rotates the active token of an existing session.
func (t *Tracker) RefreshSession(ctx context.Context, userID string) (Identity, error) {
	s, err := t.manager.Refresh(ctx, userID)
	if err != nil {
		return Identity{}, err
	}
	return s.Identity(), nil
}

// RecordAction appends an action to the user's session under its currently
// known active token. Nothing is appended when the session does not exist.
func (t *Tracker) RecordAction(ctx context.Context, userID string, actionType ActionType, originHint string) (Identity, error) {
	logger := tracing.LoggerFromContext(tracing.WithUserID(ctx, userID), log.Logger)

	current, err := t.manager.FindByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			logger.Debug().Str("action_type", string(actionType)).Msg("Dropping action for unknown session")
		}
		return Identity{}, err
	}

	s, err := t.manager.AppendAction(ctx, userID, current.ActiveSessionID, actionType, originHint)
	if err != nil {
		return Identity{}, fmt.Errorf("record action: %w", err)
	}
	return s.Identity(), nil
}
