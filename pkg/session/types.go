package session

import (
	"errors"
	"fmt"
	"time"
)

// ActionType is the closed set of browsing actions a client can report.
type ActionType string

const (
	ActionPageVisit         ActionType = "pageVisit"
	ActionObjectInView      ActionType = "objectInView"
	ActionObjectInteraction ActionType = "objectInteraction"
)

// ActionTypes lists every valid ActionType in declaration order.
var ActionTypes = []ActionType{
	ActionPageVisit,
	ActionObjectInView,
	ActionObjectInteraction,
}

// ErrInvalidActionType is returned by ParseActionType for unknown values.
var ErrInvalidActionType = errors.New("invalid action type")

// ParseActionType converts a wire value into an ActionType.
func ParseActionType(s string) (ActionType, error) {
	for _, t := range ActionTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidActionType, s)
}

func (t ActionType) String() string {
	return string(t)
}

// Action is one immutable entry of a session's action log.
type Action struct {
	SessionID string     `json:"sessionId"`
	Origin    string     `json:"origin,omitempty"`
	Type      ActionType `json:"type"`
	Timestamp time.Time  `json:"timestamp"`
}

// Session is the per-user record. Actions is only populated by lookups;
// mutating store calls return the identity fields alone.
type Session struct {
	UserID          string    `json:"userId"`
	ActiveSessionID string    `json:"activeSessionId"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
	Actions         []Action  `json:"actions,omitempty"`
}

// Identity is the pair returned to clients after every session operation.
type Identity struct {
	UserID          string `json:"userId"`
	ActiveSessionID string `json:"activeSessionId"`
}

// Identity returns the client-visible identity of s.
func (s *Session) Identity() Identity {
	return Identity{UserID: s.UserID, ActiveSessionID: s.ActiveSessionID}
}

// Outcome reports which branch SaveOrRefresh took.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeRefreshed Outcome = "refreshed"
)
