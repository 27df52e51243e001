// Package sqlite is the repository implementation over a single SQLite
// file. Timestamps are stored as RFC3339 UTC text; predictor params, habit
// effects, and profile configs are stored as JSON text.
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite handle. It is safe for concurrent use; SQLite
// serializes writers internally and the busy timeout absorbs contention.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies migrations.
func Open(path string, busyTimeout time.Duration) (*DB, error) {
	if busyTimeout <= 0 {
		busyTimeout = 5 * time.Second
	}
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path, busyTimeout.Milliseconds())
	handle, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	db := &DB{db: handle}
	if err := db.migrate(); err != nil {
		handle.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the underlying handle.
func (db *DB) Close() error {
	return db.db.Close()
}

// migrate applies the schema statements one at a time (SQLite executes one
// statement per call).
func (db *DB) migrate() error {
	for _, stmt := range Migrations() {
		if _, err := db.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// formatTime renders a timestamp for storage. Second precision keeps the
// column fixed-width so lexicographic comparisons order correctly.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
