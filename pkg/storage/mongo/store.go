// Package mongo is the document-store backend. Sessions live in one
// collection with their action log embedded as an array; snapshots are
// inserted into a separate analytics database.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harun/trackd/pkg/analytics"
	"github.com/harun/trackd/pkg/session"
	"github.com/harun/trackd/pkg/storage"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	DefaultSessionsDatabase   = "tracking-service-data"
	DefaultSessionsCollection = "trackingsessions"
	DefaultMetricsDatabase    = "analytics-service-data"
	DefaultMetricsCollection  = "metrics"
)

// Config configures the MongoDB store. Empty names select the defaults.
type Config struct {
	URI                string
	SessionsDatabase   string
	SessionsCollection string
	MetricsDatabase    string
	MetricsCollection  string
	ConnectTimeout     time.Duration
}

func (c *Config) applyDefaults() {
	if c.SessionsDatabase == "" {
		c.SessionsDatabase = DefaultSessionsDatabase
	}
	if c.SessionsCollection == "" {
		c.SessionsCollection = DefaultSessionsCollection
	}
	if c.MetricsDatabase == "" {
		c.MetricsDatabase = DefaultMetricsDatabase
	}
	if c.MetricsCollection == "" {
		c.MetricsCollection = DefaultMetricsCollection
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
}

// Store implements session.Store, analytics.EventReader and
// analytics.SnapshotStore over MongoDB collections.
type Store struct {
	client   *mongo.Client
	sessions *mongo.Collection
	metrics  *mongo.Collection
}

var (
	_ session.Store           = (*Store)(nil)
	_ analytics.EventReader   = (*Store)(nil)
	_ analytics.SnapshotStore = (*Store)(nil)
)

type actionDoc struct {
	SessionID string    `bson:"sessionId"`
	Origin    string    `bson:"origin,omitempty"`
	Type      string    `bson:"type"`
	Timestamp time.Time `bson:"timestamp"`
}

type sessionDoc struct {
	UserID          string      `bson:"userId"`
	ActiveSessionID string      `bson:"activeSessionId"`
	Actions         []actionDoc `bson:"actions"`
	CreatedAt       time.Time   `bson:"createdAt"`
	UpdatedAt       time.Time   `bson:"updatedAt"`
}

type snapshotDoc struct {
	ID         string           `bson:"_id"`
	ComputedAt time.Time        `bson:"computedAt"`
	Metrics    map[string]int64 `bson:"metrics"`
}

func (d *sessionDoc) toSession(withActions bool) *session.Session {
	s := &session.Session{
		UserID:          d.UserID,
		ActiveSessionID: d.ActiveSessionID,
		CreatedAt:       d.CreatedAt.UTC(),
		UpdatedAt:       d.UpdatedAt.UTC(),
	}
	if withActions {
		s.Actions = make([]session.Action, 0, len(d.Actions))
		for _, a := range d.Actions {
			s.Actions = append(s.Actions, session.Action{
				SessionID: a.SessionID,
				Origin:    a.Origin,
				Type:      session.ActionType(a.Type),
				Timestamp: a.Timestamp.UTC(),
			})
		}
	}
	return s
}

// Connect dials cfg.URI, verifies the connection and ensures indexes.
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("mongo uri cannot be empty")
	}
	cfg.applyDefaults()

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI).SetConnectTimeout(cfg.ConnectTimeout))
	if err != nil {
		return nil, storage.Unavailable("mongo connect", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, storage.Unavailable("mongo ping", err)
	}

	s := NewStore(client, cfg)
	if err := s.EnsureIndexes(connectCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	log.Info().
		Str("sessions", cfg.SessionsDatabase+"."+cfg.SessionsCollection).
		Str("metrics", cfg.MetricsDatabase+"."+cfg.MetricsCollection).
		Msg("MongoDB store connected")
	return s, nil
}

// NewStore wraps an already connected client.
func NewStore(client *mongo.Client, cfg Config) *Store {
	cfg.applyDefaults()
	return &Store{
		client:   client,
		sessions: client.Database(cfg.SessionsDatabase).Collection(cfg.SessionsCollection),
		metrics:  client.Database(cfg.MetricsDatabase).Collection(cfg.MetricsCollection),
	}
}

// EnsureIndexes creates the unique userId index that enforces one session per user.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.sessions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "userId", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("userId_unique"),
	})
	if err != nil {
		return storage.Unavailable("create session index", err)
	}
	return nil
}

// Ping checks the primary is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, nil); err != nil {
		return storage.Unavailable("mongo ping", err)
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%s: %w", op, storage.ErrConflict)
	}
	return storage.Unavailable(op, err)
}

func identityOptions() *options.FindOneAndUpdateOptions {
	return options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.M{"actions": 0})
}

func (s *Store) FindOne(ctx context.Context, userID string) (*session.Session, error) {
	var doc sessionDoc
	if err := s.sessions.FindOne(ctx, bson.M{"userId": userID}).Decode(&doc); err != nil {
		return nil, translate("find session", err)
	}
	return doc.toSession(true), nil
}

func (s *Store) InsertUnique(ctx context.Context, userID, activeSessionID string, createdAt time.Time) (*session.Session, error) {
	doc := sessionDoc{
		UserID:          userID,
		ActiveSessionID: activeSessionID,
		Actions:         []actionDoc{},
		CreatedAt:       createdAt,
		UpdatedAt:       createdAt,
	}
	if _, err := s.sessions.InsertOne(ctx, doc); err != nil {
		return nil, translate("insert session", err)
	}
	return doc.toSession(false), nil
}

func (s *Store) FindAndReplaceActiveSession(ctx context.Context, userID, activeSessionID string, updatedAt time.Time) (*session.Session, error) {
	update := bson.M{"$set": bson.M{"activeSessionId": activeSessionID, "updatedAt": updatedAt}}

	var doc sessionDoc
	err := s.sessions.FindOneAndUpdate(ctx, bson.M{"userId": userID}, update, identityOptions()).Decode(&doc)
	if err != nil {
		return nil, translate("refresh session", err)
	}
	return doc.toSession(false), nil
}

func (s *Store) FindAndAppendAction(ctx context.Context, userID string, action session.Action) (*session.Session, error) {
	update := bson.M{"$push": bson.M{"actions": actionDoc{
		SessionID: action.SessionID,
		Origin:    action.Origin,
		Type:      string(action.Type),
		Timestamp: action.Timestamp,
	}}}

	var doc sessionDoc
	err := s.sessions.FindOneAndUpdate(ctx, bson.M{"userId": userID}, update, identityOptions()).Decode(&doc)
	if err != nil {
		return nil, translate("append action", err)
	}
	return doc.toSession(false), nil
}

func (s *Store) CountSessions(ctx context.Context) (int64, error) {
	n, err := s.sessions.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, translate("count sessions", err)
	}
	return n, nil
}

func (s *Store) CountSessionsWithAction(ctx context.Context, actionType session.ActionType) (int64, error) {
	n, err := s.sessions.CountDocuments(ctx, bson.M{"actions.type": string(actionType)})
	if err != nil {
		return 0, translate("count sessions with action", err)
	}
	return n, nil
}

func (s *Store) InsertSnapshot(ctx context.Context, snapshot *analytics.Snapshot) error {
	_, err := s.metrics.InsertOne(ctx, snapshotDoc{
		ID:         snapshot.ID,
		ComputedAt: snapshot.ComputedAt,
		Metrics:    snapshot.Metrics,
	})
	return translate("insert snapshot", err)
}
