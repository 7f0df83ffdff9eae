// Package store persists the last-seen post per feed.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// FeedState is one persisted row: the latest-seen post pointer for a feed.
type FeedState struct {
	ID          int64     `json:"id"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	LastLink    string    `json:"last_link"`
	LastUpdated time.Time `json:"last_updated"`
}

// Store maps feed URL to last-known post link in an on-disk SQLite table.
type Store struct {
	db     *sql.DB
	logger *log.Logger
}

// Open opens (creating if needed) the database at path and ensures the
// schema exists.
func Open(ctx context.Context, path string, logger *log.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema(ctx context.Context) error {
	const createTable = `
CREATE TABLE IF NOT EXISTS feeds (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	url TEXT UNIQUE,
	title TEXT,
	last_link TEXT,
	last_updated DATETIME DEFAULT CURRENT_TIMESTAMP
)`
	if _, err := s.db.ExecContext(ctx, createTable); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// LoadAll returns every stored feed state, most recently updated first.
func (s *Store) LoadAll(ctx context.Context) ([]FeedState, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, url, title, last_link, last_updated
FROM feeds
ORDER BY last_updated DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("load feed states: %w", err)
	}
	defer rows.Close()

	var states []FeedState
	for rows.Next() {
		var (
			state    FeedState
			title    sql.NullString
			lastLink sql.NullString
			updated  sql.NullTime
		)
		if err := rows.Scan(&state.ID, &state.URL, &title, &lastLink, &updated); err != nil {
			return nil, err
		}
		state.Title = title.String
		state.LastLink = lastLink.String
		if updated.Valid {
			state.LastUpdated = updated.Time
		}
		states = append(states, state)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return states, nil
}

// Upsert inserts the feed's state or, when the url already exists, updates
// its title, last link and timestamp in place. The write is durable before
// Upsert returns.
func (s *Store) Upsert(ctx context.Context, url, title, lastLink string, updated time.Time) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO feeds (url, title, last_link, last_updated)
VALUES (?, ?, ?, ?)
ON CONFLICT(url) DO UPDATE SET
	title = excluded.title,
	last_link = excluded.last_link,
	last_updated = excluded.last_updated`,
		url, title, lastLink, updated)
	if err != nil {
		return fmt.Errorf("upsert feed state %s: %w", url, err)
	}
	return nil
}

// ReplaceAll atomically swaps the table contents for the given states.
// Supplied ids are preserved so the table can be re-seeded verbatim.
func (s *Store) ReplaceAll(ctx context.Context, states []FeedState) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM feeds"); err != nil {
		return fmt.Errorf("clear feed states: %w", err)
	}
	for _, state := range states {
		var id any
		if state.ID > 0 {
			id = state.ID
		}
		updated := state.LastUpdated
		if updated.IsZero() {
			updated = time.Now()
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO feeds (id, url, title, last_link, last_updated)
VALUES (?, ?, ?, ?, ?)`,
			id, state.URL, state.Title, state.LastLink, updated); err != nil {
			return fmt.Errorf("insert feed state %s: %w", state.URL, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace: %w", err)
	}
	return nil
}
