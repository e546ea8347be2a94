// Package store persists chat sessions in SQLite. A session is an ordered
// list of answered turns keyed by the client-supplied session id; the server
// loads the recent turns as conversation history before answering and
// appends the new turn afterwards.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/54b3r/flarerag-go/internal/rag"
)

// Turn is one answered exchange as stored.
type Turn struct {
	// Query is what the user asked.
	Query string
	// Answer is the response text returned.
	Answer string
	// Intent is the router's classification.
	Intent rag.Intent
	// Provenance is the branch that produced the answer.
	Provenance rag.Provenance
	// CreatedAt is when the turn was persisted.
	CreatedAt time.Time
}

// SessionStore persists and retrieves chat turns keyed by session id.
// Implementations must be safe for concurrent use.
type SessionStore interface {
	// AppendTurn persists one answered turn for the session.
	AppendTurn(ctx context.Context, session string, t Turn) error
	// Recent returns up to n most recent turns for the session, oldest
	// first, ready to be passed as request history.
	Recent(ctx context.Context, session string, n int) ([]rag.Turn, error)
	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore is a SessionStore backed by a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// DefaultDBPath resolves to ~/.flarerag/history.db, creating the directory
// if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".flarerag")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "history.db"), nil
}

// Open opens (or creates) a SQLiteStore at path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// One connection: a single writer avoids SQLITE_BUSY, and an in-memory
	// database lives only as long as its connection.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS turns (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    session     TEXT    NOT NULL,
    query       TEXT    NOT NULL,
    answer      TEXT    NOT NULL,
    intent      TEXT    NOT NULL,
    provenance  TEXT    NOT NULL,
    created_at  INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_turns_session_id
    ON turns (session, id);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// AppendTurn persists one turn. Empty sessions are rejected.
func (s *SQLiteStore) AppendTurn(ctx context.Context, session string, t Turn) error {
	if session == "" {
		return fmt.Errorf("store: append: empty session id")
	}
	created := t.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	const q = `INSERT INTO turns (session, query, answer, intent, provenance, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, session, t.Query, t.Answer, string(t.Intent), string(t.Provenance), created.Unix()); err != nil {
		return fmt.Errorf("store: append: %w", err)
	}
	return nil
}

// Recent returns the last n turns for the session, oldest first. Turns that
// ended in the fixed failure answer are skipped so they never become history.
func (s *SQLiteStore) Recent(ctx context.Context, session string, n int) ([]rag.Turn, error) {
	const q = `
SELECT query, answer FROM (
    SELECT id, query, answer
    FROM   turns
    WHERE  session = ? AND provenance != ?
    ORDER  BY id DESC
    LIMIT  ?
) ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, q, session, string(rag.ProvenanceError), n)
	if err != nil {
		return nil, fmt.Errorf("store: recent: %w", err)
	}
	defer rows.Close()

	var turns []rag.Turn
	for rows.Next() {
		var t rag.Turn
		if err := rows.Scan(&t.Query, &t.Answer); err != nil {
			return nil, fmt.Errorf("store: recent scan: %w", err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: recent rows: %w", err)
	}
	return turns, nil
}

// Ping reports whether the database is usable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
