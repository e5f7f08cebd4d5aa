// Package sqlite persists the transfer history: every share
// redemption and completed remote fetch is recorded as one event.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/kaze-kaze/file-transfer/internal/domain"
)

// History implements the transfer-event log using SQLite.
type History struct {
	db *sql.DB
}

// Open opens (and migrates) the history database.
func Open(dbPath string) (*History, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	h := &History{db: db}
	if err := h.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return h, nil
}

// Close closes the database connection
func (h *History) Close() error {
	if h.db != nil {
		return h.db.Close()
	}
	return nil
}

// Ping checks database connectivity
func (h *History) Ping() error {
	return h.db.Ping()
}

// migrate creates or updates the schema
func (h *History) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS transfer_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			ref TEXT NOT NULL,
			path TEXT NOT NULL,
			client_ip TEXT NOT NULL DEFAULT '',
			size INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transfer_events_kind ON transfer_events(kind)`,
		`CREATE INDEX IF NOT EXISTS idx_transfer_events_created ON transfer_events(created_at)`,
	}
	for _, migration := range migrations {
		if _, err := h.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// RecordShareDownload logs one redeemed share token.
func (h *History) RecordShareDownload(token, path, clientIP string, size int64) error {
	_, err := h.db.Exec(
		`INSERT INTO transfer_events (kind, ref, path, client_ip, size) VALUES (?, ?, ?, ?, ?)`,
		domain.EventShareDownload, token, path, clientIP, size)
	if err != nil {
		return fmt.Errorf("failed to record share download: %w", err)
	}
	return nil
}

// RecordRemoteFetch logs one completed URL fetch.
func (h *History) RecordRemoteFetch(url, path string, size int64) error {
	_, err := h.db.Exec(
		`INSERT INTO transfer_events (kind, ref, path, size) VALUES (?, ?, ?, ?)`,
		domain.EventRemoteFetch, url, path, size)
	if err != nil {
		return fmt.Errorf("failed to record remote fetch: %w", err)
	}
	return nil
}

// Recent returns the newest events, most recent first.
func (h *History) Recent(limit int) ([]domain.TransferEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := h.db.Query(
		`SELECT id, kind, ref, path, client_ip, size, created_at
		 FROM transfer_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []domain.TransferEvent
	for rows.Next() {
		var e domain.TransferEvent
		if err := rows.Scan(&e.ID, &e.Kind, &e.Ref, &e.Path, &e.ClientIP, &e.Size, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
