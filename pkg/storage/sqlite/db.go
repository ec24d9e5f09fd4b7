// Package sqlite is the embedded SQL backend for sessions, raw event counts
// and metric snapshots. The schema is managed with golang-migrate from SQL
// files embedded in the binary.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/harun/trackd/pkg/storage"
	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// ErrNoChange is returned by Migrate when the schema is already at the target version.
var ErrNoChange = migrate.ErrNoChange

// Config configures the SQLite store.
type Config struct {
	Path string
	// SkipMigrations leaves the schema untouched on Open.
	SkipMigrations bool
}

// Store implements session.Store, analytics.EventReader and
// analytics.SnapshotStore on a single SQLite database.
type Store struct {
	db   *sql.DB
	path string
}

func dsn(path string) string {
	return "file:" + path + "?_busy_timeout=5000&_txlock=immediate&_journal_mode=WAL&_foreign_keys=on"
}

// Open opens (creating if needed) the database at cfg.Path and migrates it up.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn(cfg.Path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection serializes writers; busy_timeout covers other processes.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, storage.Unavailable("sqlite ping", err)
	}

	s := &Store{db: db, path: cfg.Path}
	if !cfg.SkipMigrations {
		if err := s.Migrate("up"); err != nil && !errors.Is(err, ErrNoChange) {
			db.Close()
			return nil, err
		}
	}

	log.Info().Str("path", cfg.Path).Msg("SQLite store opened")
	return s, nil
}

// Migrate applies the embedded migrations in direction ("up" or "down").
func (s *Store) Migrate(direction string) error {
	if direction != "up" && direction != "down" {
		return fmt.Errorf("direction must be up or down, got %q", direction)
	}

	source, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("migrate source: %w", err)
	}

	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("migrate driver: %w", err)
	}

	// m.Close would close s.db through the driver, so it is left open.
	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	switch direction {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	}
	if err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return ErrNoChange
		}
		return fmt.Errorf("migrate %s: %w", direction, err)
	}

	version, dirty, _ := m.Version()
	log.Info().Str("direction", direction).Uint("version", version).Bool("dirty", dirty).Msg("Schema migrated")
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return storage.Unavailable("sqlite ping", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// translate maps driver errors onto the storage vocabulary.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		if se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
			return fmt.Errorf("%s: %w", op, storage.ErrConflict)
		}
	}
	return storage.Unavailable(op, err)
}
