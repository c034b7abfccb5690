// Package archive persists ingested realtime events to a local sqlite
// database for offline audit. Writes are fail-soft: an archive error never
// blocks ingestion.
package archive

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/quotio/usage-observer/internal/event"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	seq INTEGER NOT NULL DEFAULT 0,
	type TEXT NOT NULL,
	request_id TEXT NOT NULL DEFAULT '',
	model TEXT NOT NULL DEFAULT '',
	auth_file TEXT NOT NULL DEFAULT '',
	source TEXT NOT NULL DEFAULT '',
	success INTEGER NOT NULL DEFAULT 0,
	tokens INTEGER NOT NULL DEFAULT 0,
	timestamp DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_request_id ON events(request_id);
CREATE INDEX IF NOT EXISTS idx_events_seq ON events(seq);
`

// Store is a sqlite-backed event archive.
type Store struct {
	db *sqlx.DB
}

// New opens (or creates) the archive database at path.
func New(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open archive database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize archive schema: %w", err)
	}
	return &Store{db: db}, nil
}

// InsertEvent appends one event to the archive.
func (s *Store) InsertEvent(ctx context.Context, e event.Event) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (seq, type, request_id, model, auth_file, source, success, tokens, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Seq, e.Type, e.RequestID, e.Model, e.AuthFile, e.Source, e.Success, e.Tokens, e.Timestamp)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// EventCount returns the number of archived events.
func (s *Store) EventCount(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM events`); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// MaxSeq returns the highest archived sequence number, or 0 when empty.
func (s *Store) MaxSeq(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n, `SELECT COALESCE(MAX(seq), 0) FROM events`); err != nil {
		return 0, fmt.Errorf("max seq: %w", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
