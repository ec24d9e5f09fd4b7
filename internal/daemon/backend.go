package daemon

import (
	"context"
	"fmt"
	"time"

	"github.com/harun/trackd/internal/config"
	"github.com/harun/trackd/pkg/analytics"
	"github.com/harun/trackd/pkg/cache"
	"github.com/harun/trackd/pkg/session"
	"github.com/harun/trackd/pkg/storage/memory"
	"github.com/harun/trackd/pkg/storage/mongo"
	"github.com/harun/trackd/pkg/storage/sqlite"
)

// Backend is a store that serves sessions, raw events and snapshots.
type Backend interface {
	session.Store
	analytics.EventReader
	analytics.SnapshotStore
	Close() error
}

type contextPinger interface {
	Ping(ctx context.Context) error
}

type pinger interface {
	Ping() error
}

// OpenBackend opens the store selected by cfg.Storage.Driver.
func OpenBackend(ctx context.Context, cfg *config.Config) (Backend, error) {
	switch cfg.Storage.Driver {
	case config.StorageSQLite:
		store, err := sqlite.Open(ctx, sqlite.Config{Path: cfg.Storage.SQLite.Path})
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return store, nil

	case config.StorageMongo:
		m := cfg.Storage.Mongo
		store, err := mongo.Connect(ctx, mongo.Config{
			URI:                m.URI,
			SessionsDatabase:   m.SessionsDatabase,
			SessionsCollection: m.SessionsCollection,
			MetricsDatabase:    m.MetricsDatabase,
			MetricsCollection:  m.MetricsCollection,
			ConnectTimeout:     time.Duration(m.ConnectTimeoutSeconds) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect mongo store: %w", err)
		}
		return store, nil

	case config.StorageMemory:
		return memory.New(), nil

	default:
		return nil, fmt.Errorf("unknown storage driver: %s", cfg.Storage.Driver)
	}
}

// OpenCache builds the snapshot cache selected by cfg.Cache.Driver.
func OpenCache(cfg *config.Config) (cache.Store, error) {
	switch cfg.Cache.Driver {
	case config.CacheMemory:
		return cache.NewMemory(), nil
	case config.CacheMemcached:
		c, err := cache.NewMemcached(cfg.Cache.Servers, cfg.CacheTimeout())
		if err != nil {
			return nil, fmt.Errorf("failed to create memcached client: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown cache driver: %s", cfg.Cache.Driver)
	}
}

// ping probes a component if it supports it. Components without a probe
// are always healthy.
func ping(ctx context.Context, component interface{}) error {
	switch p := component.(type) {
	case contextPinger:
		return p.Ping(ctx)
	case pinger:
		return p.Ping()
	default:
		return nil
	}
}
