package sqlite

import (
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/focuspact/focuspact/internal/storage"
	_ "modernc.org/sqlite"
)

// Store implements the storage.Store interface on an embedded SQLite database
type Store struct {
	db         *sql.DB
	limitStore *limitStore
	eventStore *eventStore
}

// Open opens the database at path and runs migrations. ":memory:" gives an
// in-memory database.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := storage.EnsureDir(filepath.Dir(path)); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite limitation
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{
		db:         db,
		limitStore: &limitStore{db: db},
		eventStore: &eventStore{db: db},
	}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Limits returns the LimitStore implementation
func (s *Store) Limits() storage.LimitStore {
	return s.limitStore
}

// Events returns the EventStore implementation
func (s *Store) Events() storage.EventStore {
	return s.eventStore
}

// runMigrations applies all database migrations
func runMigrations(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var currentVersion int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM migrations").Scan(&currentVersion); err != nil {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	for i, migration := range migrations {
		version := i + 1
		if version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(migration); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO migrations (version) VALUES (?)", version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", version, err)
		}
	}

	return nil
}

// migrations are applied in order; append only.
var migrations = []string{
	migration001AppLimits,
	migration002UsageEvents,
	migration003UsageAccess,
}

const migration001AppLimits = `
CREATE TABLE IF NOT EXISTS app_limits (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	package_name TEXT NOT NULL,
	app_name TEXT NOT NULL DEFAULT '',
	time_limit_value INTEGER,
	session_limit_value INTEGER,
	time_limit_enabled INTEGER NOT NULL DEFAULT 0,
	session_limit_enabled INTEGER NOT NULL DEFAULT 0,
	is_public INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL, -- unix ms
	updated_at INTEGER NOT NULL, -- unix ms
	UNIQUE (user_id, package_name)
);
`

const migration002UsageEvents = `
CREATE TABLE IF NOT EXISTS usage_events (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	owner TEXT NOT NULL,
	package_name TEXT NOT NULL,
	kind TEXT NOT NULL, -- foreground or background
	ts INTEGER NOT NULL -- unix ms
);

CREATE INDEX idx_usage_events_owner_ts ON usage_events(owner, ts, seq);
`

const migration003UsageAccess = `
CREATE TABLE IF NOT EXISTS usage_access (
	owner TEXT PRIMARY KEY,
	granted INTEGER NOT NULL,
	updated_at INTEGER NOT NULL -- unix ms
);
`
