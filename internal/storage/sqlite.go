// ABOUTME: SQLite storage implementation for geofence collections
// ABOUTME: Provides local-only persistence using pure Go SQLite driver

package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteKV implements KV with a single table in a local SQLite database.
type SQLiteKV struct {
	db   *sql.DB
	path string
}

// Compile-time check that SQLiteKV implements KV.
var _ KV = (*SQLiteKV)(nil)

// DefaultDBPath returns the default database path.
func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".local", "share", "geofence", "geofence.db")
}

// NewSQLiteKV creates a new SQLite database at the given path.
// Creates the directory and database file if they don't exist.
func NewSQLiteKV(path string) (*SQLiteKV, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil { //nolint:gosec // 0750 is appropriate for user data directory
		return nil, fmt.Errorf("create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &SQLiteKV{db: db, path: path}

	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// migrate creates or updates the database schema.
func (s *SQLiteKV) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Path returns the database file path.
func (s *SQLiteKV) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *SQLiteKV) Close() error {
	return s.db.Close()
}

// Get returns the stored value for key.
func (s *SQLiteKV) Get(key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRow("SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

// Set inserts or replaces the value for key.
func (s *SQLiteKV) Set(key string, value []byte) error {
	_, err := s.db.Exec(
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Remove deletes key.
func (s *SQLiteKV) Remove(key string) error {
	if _, err := s.db.Exec("DELETE FROM kv WHERE key = ?", key); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}
