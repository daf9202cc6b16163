// Package store is the durable backing for the notification daemon: an
// append-only event log, transaction state mirror, and credential table,
// all in one SQLite database opened in WAL mode.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go driver, registers as "sqlite"
)

// ErrNotFound is returned by lookups that find no matching row.
var ErrNotFound = errors.New("store: not found")

// Store wraps a single SQLite database file holding all daemon state.
type Store struct {
	db *sql.DB
}

// Config controls how the database file is opened.
type Config struct {
	// Path is the filesystem location of the SQLite database file.
	// ":memory:" is accepted for tests.
	Path string
}

// Open opens (creating if necessary) the database at cfg.Path, applies
// pragmas for WAL mode and relaxed fsync, and runs Migrate.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Path == "" {
		cfg.Path = ":memory:"
	}

	dsn := cfg.Path
	if dsn != ":memory:" {
		dsn = fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)", dsn)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	// A single SQLite writer connection avoids SQLITE_BUSY under WAL.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates all tables and indexes idempotently. Safe to call on
// every daemon start.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			project_id TEXT NOT NULL,
			project_name TEXT NOT NULL,
			session_id TEXT NOT NULL,
			session_name TEXT,
			event_type TEXT NOT NULL,
			timestamp DATETIME NOT NULL,
			received_at DATETIME NOT NULL,
			transcript_path TEXT,
			cwd TEXT,
			git_context TEXT,
			prompt_text TEXT,
			tool_name TEXT,
			tool_input TEXT,
			files_modified TEXT,
			tools_used TEXT,
			usage TEXT,
			model TEXT,
			stop_reason TEXT,
			notification_sent INTEGER NOT NULL DEFAULT 0,
			notification_id TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_project_session ON events(project_id, session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_project_name_ts ON events(project_name, timestamp DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_events_project_id ON events(project_id, id)`,

		`CREATE TABLE IF NOT EXISTS active_transactions (
			project_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			session_name TEXT,
			project_name TEXT NOT NULL,
			start_time DATETIME NOT NULL,
			prompt_text TEXT,
			transcript_path TEXT,
			completed_at DATETIME,
			duration_ms INTEGER,
			PRIMARY KEY (project_id, session_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_active_transactions_pending ON active_transactions(project_id, session_id) WHERE completed_at IS NULL`,

		`CREATE TABLE IF NOT EXISTS credentials (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			key_hash TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			project_id TEXT,
			created_at DATETIME NOT NULL,
			last_used_at DATETIME,
			revoked_at DATETIME
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: migrate: %w", err)
		}
	}
	return nil
}

// withTx runs fn inside a transaction, rolling back on error or panic.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
		if err != nil {
			tx.Rollback()
			return
		}
		err = tx.Commit()
	}()
	err = fn(tx)
	return err
}

func timePtrOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
