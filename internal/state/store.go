// Package state persists sync metadata between runs.
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SyncState is the process-wide sync metadata: when the last sync pass
// finished and how many records the index held at that point. Only the
// sync orchestrator writes it; the status surfaces read it.
type SyncState struct {
	LastSync     time.Time
	IndexedCount int
}

// Store keeps SyncState in a single-row SQLite table.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens (creating if needed) the state database under dataDir.
// An empty dataDir defaults to ~/.ragsync.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".ragsync")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "state.db")
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening state database: %w", err)
	}

	s := &Store{db: db, path: dbPath}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating state database: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS sync_state (
			id            INTEGER PRIMARY KEY CHECK (id = 1),
			last_sync     TEXT NOT NULL,
			indexed_count INTEGER NOT NULL
		)`)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Load returns the persisted state, or a zero state when no sync has
// completed yet.
func (s *Store) Load(ctx context.Context) (SyncState, error) {
	var lastSync string
	var count int

	row := s.db.QueryRowContext(ctx,
		`SELECT last_sync, indexed_count FROM sync_state WHERE id = 1`)
	if err := row.Scan(&lastSync, &count); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SyncState{}, nil
		}
		return SyncState{}, fmt.Errorf("loading sync state: %w", err)
	}

	t, err := time.Parse(time.RFC3339, lastSync)
	if err != nil {
		t = time.Time{}
	}
	return SyncState{LastSync: t, IndexedCount: count}, nil
}

// Save replaces the persisted state.
func (s *Store) Save(ctx context.Context, st SyncState) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_state (id, last_sync, indexed_count)
		VALUES (1, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			last_sync = excluded.last_sync,
			indexed_count = excluded.indexed_count`,
		st.LastSync.UTC().Format(time.RFC3339), st.IndexedCount)
	if err != nil {
		return fmt.Errorf("saving sync state: %w", err)
	}
	return nil
}
