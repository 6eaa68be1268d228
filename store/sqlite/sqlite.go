/*
Package sqlite provides a SQLite-backed RecordStore for offline and dev use.

PURPOSE:
  Holds every record set as one row (name, CSV payload, revision) in a
  single database file. The same optimistic-concurrency contract as the
  remote store applies: a write presents the revision it read and is
  rejected when stale, so the engine behaves identically against either
  backend.

SCHEMA:
  record_sets(name TEXT PRIMARY KEY, payload TEXT, revision TEXT)
  Auto-migrated on New(). Payloads stay CSV rather than exploding into
  relational tables: the flat files are the database, this is just a local
  mirror of them.

WAL MODE:
  SQLite is opened with WAL for better crash recovery; a mutex serializes
  writers on top, matching the one-session-at-a-time ownership model.

USAGE:
  st, err := sqlite.New("./billing.db")
  ...
  session, err := billing.Load(ctx, st)
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/metrics"
	"github.com/warp/billing-engine/recordset"
)

const backend = "sqlite"

type Store struct {
	mu sync.Mutex
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS record_sets (
	name     TEXT PRIMARY KEY,
	payload  TEXT NOT NULL,
	revision TEXT NOT NULL
);
`

// New opens (or creates) the database file and migrates the schema.
// Use ":memory:" for an ephemeral store.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// ReadSet loads one record set; a missing name yields an empty set.
func (s *Store) ReadSet(ctx context.Context, name string) (recordset.Set, billing.Revision, error) {
	metrics.StoreReadsTotal.WithLabelValues(backend, name).Inc()
	s.mu.Lock()
	defer s.mu.Unlock()

	var payload, revision string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, revision FROM record_sets WHERE name = ?`, name,
	).Scan(&payload, &revision)
	if errors.Is(err, sql.ErrNoRows) {
		return recordset.Set{}, "", nil
	}
	if err != nil {
		return recordset.Set{}, "", fmt.Errorf("%w: read %s: %v", billing.ErrPersistenceFailure, name, err)
	}

	set, err := recordset.Unmarshal([]byte(payload))
	if err != nil {
		return recordset.Set{}, "", fmt.Errorf("%w: %s: %v", billing.ErrPersistenceFailure, name, err)
	}
	return set, billing.Revision(revision), nil
}

// WriteSet stores one record set under a fresh revision, rejecting stale
// tokens exactly like the remote store.
func (s *Store) WriteSet(ctx context.Context, name string, set recordset.Set, rev billing.Revision) (billing.Revision, error) {
	metrics.StoreWritesTotal.WithLabelValues(backend, name).Inc()
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := recordset.Marshal(set)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", billing.ErrPersistenceFailure, name, err)
	}

	var current string
	err = s.db.QueryRowContext(ctx,
		`SELECT revision FROM record_sets WHERE name = ?`, name,
	).Scan(&current)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		current = ""
	case err != nil:
		return "", fmt.Errorf("%w: write %s: %v", billing.ErrPersistenceFailure, name, err)
	}
	if current != string(rev) {
		metrics.StoreConflictsTotal.WithLabelValues(backend).Inc()
		return "", &billing.RevisionConflictError{Set: name, Revision: string(rev)}
	}

	next := uuid.NewString()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO record_sets (name, payload, revision) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET payload = excluded.payload, revision = excluded.revision`,
		name, string(data), next)
	if err != nil {
		return "", fmt.Errorf("%w: write %s: %v", billing.ErrPersistenceFailure, name, err)
	}
	return billing.Revision(next), nil
}
