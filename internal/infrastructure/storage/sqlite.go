// Package storage provides the SQLite dedup ledgers.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"linkrelay/internal/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS seen (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	source TEXT NOT NULL,
	external_id TEXT NOT NULL,
	url TEXT,
	seen_at TEXT NOT NULL,
	UNIQUE(source, external_id)
);
CREATE TABLE IF NOT EXISTS posted (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	source TEXT NOT NULL,
	url TEXT NOT NULL,
	title TEXT,
	received_at TEXT NOT NULL,
	UNIQUE(source, url)
);
`

// Store is the durable ledger of everything already processed. Uniqueness
// constraints are the concurrency control: concurrent admissions for the same
// key race inside SQLite, and exactly one caller wins.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

var (
	_ ports.SeenLedger   = (*Store)(nil)
	_ ports.PostedLedger = (*Store)(nil)
)

// Open creates or opens the ledger database at path and migrates the schema.
func Open(path string, log *slog.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("ledger path is required")
	}
	if log == nil {
		log = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	// SQLite prefers a single writer; all admissions funnel through one
	// connection so constraint checks serialize at the storage layer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}
	_, _ = db.Exec("PRAGMA busy_timeout = 5000")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate ledger: %w", err)
	}

	return &Store{db: db, log: log}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// AdmitSeen inserts a seen record if absent. It returns true only when this
// call created the record; a duplicate returns (false, nil).
func (s *Store) AdmitSeen(ctx context.Context, source, externalID, url string) (bool, error) {
	return s.insertIfAbsent(ctx, sq.Insert("seen").
		Columns("source", "external_id", "url", "seen_at").
		Values(source, externalID, url, time.Now().UTC().Format(time.RFC3339)).
		Suffix("ON CONFLICT(source, external_id) DO NOTHING"))
}

// AdmitPosted inserts a posted record if absent, keyed on (source, url).
func (s *Store) AdmitPosted(ctx context.Context, source, url, title string) (bool, error) {
	return s.insertIfAbsent(ctx, sq.Insert("posted").
		Columns("source", "url", "title", "received_at").
		Values(source, url, title, time.Now().UTC().Format(time.RFC3339)).
		Suffix("ON CONFLICT(source, url) DO NOTHING"))
}

func (s *Store) insertIfAbsent(ctx context.Context, builder sq.InsertBuilder) (bool, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return false, fmt.Errorf("build insert: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("insert ledger row: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}
