package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harun/trackd/internal/observability"
	"github.com/harun/trackd/internal/tracing"
	"github.com/harun/trackd/pkg/storage"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "trackd.session"

// ErrEmptyUserID is returned when an operation is called without a user ID.
var ErrEmptyUserID = errors.New("user id cannot be empty")

// Manager is the only writer of session identity. It holds no locks of its
// own; per-user atomicity comes from the Store's conditional updates.
type Manager struct {
	store Store
	newID func() string
	now   func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithIDGenerator overrides the active session token generator.
func WithIDGenerator(fn func() string) Option {
	return func(m *Manager) {
		if fn != nil {
			m.newID = fn
		}
	}
}

// WithClock overrides the time source used for timestamps.
func WithClock(fn func() time.Time) Option {
	return func(m *Manager) {
		if fn != nil {
			m.now = fn
		}
	}
}

// NewManager creates a Manager over store.
func NewManager(store Store, opts ...Option) *Manager {
	observability.EnsureRegistered()

	m := &Manager{
		store: store,
		newID: func() string { return uuid.New().String() },
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) finish(span trace.Span, op string, start time.Time, err error) {
	ok := err == nil || errors.Is(err, storage.ErrNotFound)
	observability.RecordSessionOp(op, time.Since(start), ok)
	if err != nil && !ok {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// FindByUser returns the session for userID with its full action log.
func (m *Manager) FindByUser(ctx context.Context, userID string) (s *Session, err error) {
	ctx = tracing.WithUserID(ctx, userID)
	ctx, span := tracing.StartSpan(ctx, tracerName, "session.find", attribute.String("user_id", userID))
	start := time.Now()
	defer func() { m.finish(span, "find", start, err) }()

	if userID == "" {
		return nil, ErrEmptyUserID
	}

	s, err = m.store.FindOne(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	return s, nil
}

// Create starts a new session for userID. It fails with storage.ErrConflict
// when the user already has one.
func (m *Manager) Create(ctx context.Context, userID string) (s *Session, err error) {
	ctx = tracing.WithUserID(ctx, userID)
	ctx, span := tracing.StartSpan(ctx, tracerName, "session.create", attribute.String("user_id", userID))
	start := time.Now()
	defer func() { m.finish(span, "create", start, err) }()
	logger := tracing.LoggerFromContext(ctx, log.Logger)

	if userID == "" {
		return nil, ErrEmptyUserID
	}

	s, err = m.store.InsertUnique(ctx, userID, m.newID(), m.now())
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			observability.RecordSessionConflict()
			logger.Debug().Msg("Session already exists")
		}
		return nil, fmt.Errorf("create session: %w", err)
	}

	observability.RecordSessionAudit(ctx, "session_created", userID, "success", nil)
	logger.Info().Str("active_session_id", s.ActiveSessionID).Msg("Session created")
	return s, nil
}

// Refresh replaces the active session token of userID, leaving the action
// log untouched.
func (m *Manager) Refresh(ctx context.Context, userID string) (s *Session, err error) {
	ctx = tracing.WithUserID(ctx, userID)
	ctx, span := tracing.StartSpan(ctx, tracerName, "session.refresh", attribute.String("user_id", userID))
	start := time.Now()
	defer func() { m.finish(span, "refresh", start, err) }()
	logger := tracing.LoggerFromContext(ctx, log.Logger)

	if userID == "" {
		return nil, ErrEmptyUserID
	}

	s, err = m.store.FindAndReplaceActiveSession(ctx, userID, m.newID(), m.now())
	if err != nil {
		return nil, fmt.Errorf("refresh session: %w", err)
	}

	observability.RecordSessionAudit(ctx, "session_refreshed", userID, "success", nil)
	logger.Debug().Str("active_session_id", s.ActiveSessionID).Msg("Session refreshed")
	return s, nil
}

// AppendAction records one action against userID's session. sessionID is
// stored on the action as given; an append carrying a token that is no
// longer active still succeeds and is counted as stale.
func (m *Manager) AppendAction(ctx context.Context, userID, sessionID string, actionType ActionType, originHint string) (s *Session, err error) {
	ctx = tracing.WithUserID(ctx, userID)
	ctx, span := tracing.StartSpan(
		ctx,
		tracerName,
		"session.append_action",
		attribute.String("user_id", userID),
		attribute.String("action_type", string(actionType)),
	)
	start := time.Now()
	defer func() { m.finish(span, "append", start, err) }()
	logger := tracing.LoggerFromContext(ctx, log.Logger)

	if userID == "" {
		return nil, ErrEmptyUserID
	}
	if _, err = ParseActionType(string(actionType)); err != nil {
		return nil, err
	}

	action := Action{
		SessionID: sessionID,
		Origin:    originHint,
		Type:      actionType,
		Timestamp: m.now(),
	}

	s, err = m.store.FindAndAppendAction(ctx, userID, action)
	if err != nil {
		return nil, fmt.Errorf("append action: %w", err)
	}

	observability.RecordAction(string(actionType))
	if s.ActiveSessionID != sessionID {
		observability.RecordStaleAppend()
		logger.Debug().
			Str("session_id", sessionID).
			Str("active_session_id", s.ActiveSessionID).
			Msg("Action appended with a stale session token")
	}
	return s, nil
}
