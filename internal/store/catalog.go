// Package store mirrors the last wholesale session-catalog refresh into a
// local sqlite database, so listing degrades to the last known catalog when
// the backend is unreachable. It is a cache of a cache: server truth wins on
// every refresh.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/fish-not-phish/RansomNegotiator/internal/session"
)

const schema = `
CREATE TABLE IF NOT EXISTS chats (
	id               TEXT PRIMARY KEY,
	group_name       TEXT NOT NULL,
	title            TEXT NOT NULL,
	message_count    INTEGER NOT NULL,
	first_message    TEXT NOT NULL,
	last_message     TEXT NOT NULL,
	created_at       TEXT NOT NULL,
	updated_at       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chats_updated ON chats(updated_at DESC);
`

// Catalog is the local catalog mirror.
type Catalog struct {
	db *sql.DB
}

// Open opens (or creates) the mirror database at path.
func Open(path string) (*Catalog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog cache: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog cache ping failed: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize catalog schema: %w", err)
	}
	return &Catalog{db: db}, nil
}

// Close releases the database handle.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// ReplaceAll swaps the mirrored catalog wholesale, matching the in-memory
// cache discipline: no incremental patching.
func (c *Catalog) ReplaceAll(summaries []session.Summary) error {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM chats`); err != nil {
		return fmt.Errorf("failed to clear catalog: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO chats
		(id, group_name, title, message_count, first_message, last_message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range summaries {
		_, err := stmt.Exec(
			s.ID, s.GroupName, s.Title, s.MessageCount,
			s.FirstMessage, s.LastMessage,
			s.CreatedAt.Format(time.RFC3339),
			s.UpdatedAt.Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("failed to insert chat %s: %w", s.ID, err)
		}
	}

	return tx.Commit()
}

// All returns the mirrored catalog, most recently updated first.
func (c *Catalog) All() ([]session.Summary, error) {
	rows, err := c.db.Query(`SELECT id, group_name, title, message_count,
		first_message, last_message, created_at, updated_at
		FROM chats ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("catalog query failed: %w", err)
	}
	defer rows.Close()

	var out []session.Summary
	for rows.Next() {
		var s session.Summary
		var createdAt, updatedAt string
		if err := rows.Scan(&s.ID, &s.GroupName, &s.Title, &s.MessageCount,
			&s.FirstMessage, &s.LastMessage, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("catalog scan failed: %w", err)
		}
		s.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		s.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog iteration failed: %w", err)
	}
	return out, nil
}
