// Package store persists prompt templates and request outcomes in SQLite.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrNotFound is returned when a prompt or outcome does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a prompt slug is already taken.
	ErrConflict = errors.New("conflict")
)

// Store is a SQLite-backed prompt and outcome store. It is safe for
// concurrent use.
type Store struct {
	db *sql.DB
	mu sync.Mutex // serializes writes
}

// Open creates or opens the database at path.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return s, nil
}

func (s *Store) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS prompts (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			slug             TEXT NOT NULL UNIQUE,
			name             TEXT NOT NULL,
			system_template  TEXT,
			user_template    TEXT NOT NULL,
			provider         TEXT NOT NULL DEFAULT 'openai',
			model            TEXT NOT NULL,
			temperature      REAL NOT NULL DEFAULT 0.2,
			max_tokens       INTEGER NOT NULL DEFAULT 512,
			created_at       TEXT NOT NULL,
			updated_at       TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS request_logs (
			id                 INTEGER PRIMARY KEY AUTOINCREMENT,
			request_id         TEXT NOT NULL UNIQUE,
			prompt_slug        TEXT NOT NULL,
			user_id            INTEGER NOT NULL DEFAULT 0,
			chat_id            INTEGER NOT NULL DEFAULT 0,
			params             TEXT,
			rendered_system    TEXT,
			rendered_user      TEXT,
			llm_ok             INTEGER NOT NULL DEFAULT 0,
			llm_error          TEXT,
			llm_response_text  TEXT,
			telegram_ok        INTEGER NOT NULL DEFAULT 0,
			telegram_error     TEXT,
			status             TEXT NOT NULL,
			created_at         TEXT NOT NULL,
			updated_at         TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_request_logs_created ON request_logs(created_at);
		CREATE INDEX IF NOT EXISTS idx_request_logs_chat ON request_logs(chat_id);
	`)
	return err
}

// Ping checks the database connection.
func (s *Store) Ping() error {
	return s.db.Ping()
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
		(se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), "UNIQUE"))
}

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}
