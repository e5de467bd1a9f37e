// Package sqlite provides a metadata store backed by a SQLite database.
//
// SQLite coordinates writers across processes with file locks, so several
// processes may share one database file. Each Put is a single transaction.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// ErrStoreClosed is returned by operations on a closed store.
var ErrStoreClosed = errors.New("sqlite: store closed")

const defaultBusyTimeout = 5 * time.Second

type config struct {
	busyTimeout time.Duration
}

// Option configures a SQLite store.
type Option func(*config)

// WithBusyTimeout sets how long a writer waits for another process's lock.
func WithBusyTimeout(d time.Duration) Option {
	return func(c *config) {
		c.busyTimeout = d
	}
}

// Store implements metadata.Store on SQLite.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// New opens or creates the database at path. Use ":memory:" for tests.
func New(path string, opts ...Option) (*Store, error) {
	cfg := config{busyTimeout: defaultBusyTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Pragmas are per connection, and an in-memory database lives and dies
	// with its connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d", cfg.busyTimeout.Milliseconds())); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS prefs (
			name TEXT PRIMARY KEY,
			value INTEGER NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	return &Store{db: db}, nil
}

// Get implements metadata.Store.
func (s *Store) Get(ctx context.Context, key string) (int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, false, ErrStoreClosed
	}

	var value int64
	err := s.db.QueryRowContext(ctx, `SELECT value FROM prefs WHERE name = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

// Put implements metadata.Store.
func (s *Store) Put(ctx context.Context, values map[string]int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin put: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO prefs (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value
	`)
	if err != nil {
		return fmt.Errorf("prepare put: %w", err)
	}
	defer stmt.Close()

	for key, value := range values {
		if _, err := stmt.ExecContext(ctx, key, value); err != nil {
			return fmt.Errorf("put %s: %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit put: %w", err)
	}
	return nil
}

// Close closes the database. It is safe to call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
