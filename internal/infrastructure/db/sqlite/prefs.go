// Package sqlite persists local per-principal preferences in an embedded
// SQLite database, the installed-app analog of browser local storage.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// PrefStore implements ports.PreferenceStore for SQLite. A preference is a
// flag: presence of its key means enabled.
type PrefStore struct {
	db *sql.DB
}

// Open opens (and if necessary creates) the preference database at path.
// Use ":memory:" for tests.
func Open(path string) (*PrefStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("prefs: open database: %w", err)
	}

	schema := `
CREATE TABLE IF NOT EXISTS preference_flags (
    key TEXT PRIMARY KEY,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("prefs: create schema: %w", err)
	}

	return &PrefStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *PrefStore) Close() error {
	return s.db.Close()
}

// SetFlag enables the flag identified by key. Setting an existing flag is a
// no-op.
func (s *PrefStore) SetFlag(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO preference_flags (key) VALUES (?) ON CONFLICT(key) DO NOTHING`, key)
	if err != nil {
		return fmt.Errorf("prefs: set %q: %w", key, err)
	}
	return nil
}

// DeleteFlag disables the flag identified by key.
func (s *PrefStore) DeleteFlag(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM preference_flags WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("prefs: delete %q: %w", key, err)
	}
	return nil
}

// HasFlag reports whether the flag identified by key is enabled.
func (s *PrefStore) HasFlag(ctx context.Context, key string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM preference_flags WHERE key = ?`, key).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("prefs: query %q: %w", key, err)
	}
	return true, nil
}
