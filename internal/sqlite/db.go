package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps a SQLite database connection
type DB struct {
	*sql.DB
}

// New creates a new SQLite database connection
func New(dataSourceName string) (*DB, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return &DB{db}, nil
}

// RunMigrations creates the schema.
func (db *DB) RunMigrations() error {
	migration := `
-- Users table (identity + per-user idle threshold)
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    api_key_hash TEXT NOT NULL UNIQUE,
    keystroke_timeout_minutes INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

-- Heartbeats: append-only event log, unique per (user, instant, file)
CREATE TABLE IF NOT EXISTS heartbeats (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id TEXT NOT NULL,
    timestamp INTEGER NOT NULL,
    project TEXT NOT NULL DEFAULT '',
    language TEXT NOT NULL DEFAULT '',
    editor TEXT NOT NULL DEFAULT '',
    os TEXT NOT NULL DEFAULT '',
    file TEXT NOT NULL DEFAULT '',
    branch TEXT NOT NULL DEFAULT '',
    summary_id TEXT
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_heartbeats_dedup ON heartbeats(user_id, timestamp, file);
CREATE INDEX IF NOT EXISTS idx_heartbeats_user_ts ON heartbeats(user_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_heartbeats_summary ON heartbeats(summary_id);

-- Summaries: one row per (user, day)
CREATE TABLE IF NOT EXISTS summaries (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    day TEXT NOT NULL,
    total_seconds INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(user_id, day)
);

-- Per-dimension breakdown rows belonging to a summary
CREATE TABLE IF NOT EXISTS summary_items (
    summary_id TEXT NOT NULL,
    type TEXT NOT NULL,
    name TEXT NOT NULL,
    seconds INTEGER NOT NULL,
    PRIMARY KEY (summary_id, type, name),
    FOREIGN KEY (summary_id) REFERENCES summaries(id) ON DELETE CASCADE
);

-- Legacy per-project rollover rows
CREATE TABLE IF NOT EXISTS project_summaries (
    user_id TEXT NOT NULL,
    day TEXT NOT NULL,
    project TEXT NOT NULL,
    total_seconds INTEGER NOT NULL,
    PRIMARY KEY (user_id, day, project)
);
`

	_, err := db.Exec(migration)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
