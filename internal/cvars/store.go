// Package cvars persists archived console variables across process
// restarts in a single-table sqlite database, via the pure-Go
// modernc.org/sqlite driver.
package cvars

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store implements console.Store against a sqlite database file.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the sqlite database at path and
// ensures the cvars table exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("cvars.Open: %w", err)
	}
	const schema = `CREATE TABLE IF NOT EXISTS cvars (
		name  TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("cvars.Open: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Load returns every archived name/value pair.
func (s *Store) Load() (map[string]string, error) {
	rows, err := s.db.Query(`SELECT name, value FROM cvars`)
	if err != nil {
		return nil, fmt.Errorf("cvars.Load: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("cvars.Load: %w", err)
		}
		out[name] = value
	}
	return out, rows.Err()
}

// Save upserts name's archived value.
func (s *Store) Save(name, value string) error {
	const upsert = `INSERT INTO cvars (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value`
	if _, err := s.db.Exec(upsert, name, value); err != nil {
		return fmt.Errorf("cvars.Save(%s): %w", name, err)
	}
	return nil
}
