package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// DB wraps sql.DB for the scheduling service.
type DB struct {
	*sql.DB
	path string
}

// NewDB opens database at path and runs migrations. Write transactions take the database
// lock up front (BEGIN IMMEDIATE), so a conflict check and the insert that follows it
// cannot interleave with another writer.
func NewDB(path string) (*DB, error) {
	dsn := path + "?_busy_timeout=5000&_txlock=immediate&_foreign_keys=on"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{DB: db, path: path}, nil
}

// Path returns the database file location.
func (db *DB) Path() string {
	return db.path
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS rooms (
            id INTEGER PRIMARY KEY,
            name TEXT UNIQUE NOT NULL,
            description TEXT,
            capacity INTEGER NOT NULL DEFAULT 1,
            allows_overlap BOOLEAN NOT NULL DEFAULT 0,
            is_active BOOLEAN NOT NULL DEFAULT 1,
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        )`,

		// One row per occurrence; rows of a series share series_id (the parent's uid).
		`CREATE TABLE IF NOT EXISTS events (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            uid TEXT UNIQUE NOT NULL,
            series_id TEXT,
            recurrence_rule TEXT,
            title TEXT NOT NULL,
            description TEXT,
            room_id INTEGER NOT NULL,
            owner_id INTEGER NOT NULL DEFAULT 0,
            owner_name TEXT,
            start_time DATETIME NOT NULL,
            end_time DATETIME NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending_review',
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL,
            FOREIGN KEY (room_id) REFERENCES rooms(id)
        )`,

		`CREATE INDEX IF NOT EXISTS idx_rooms_active ON rooms(is_active)`,
		`CREATE INDEX IF NOT EXISTS idx_events_room_times ON events(room_id, start_time, end_time)`,
		`CREATE INDEX IF NOT EXISTS idx_events_series ON events(series_id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_status ON events(status)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

func trimSQL(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}

// utc normalises instants before they are stored or compared. Values are kept as text,
// so every row must share one offset and precision for range queries to order correctly.
func utc(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// withTx runs fn in a transaction and commits when it returns nil.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
