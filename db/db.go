package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	fetched_at TEXT NOT NULL,
	side TEXT NOT NULL,
	heating_level INTEGER,
	target_heating_level INTEGER,
	now_heating BOOLEAN,
	heating_duration INTEGER,
	presence_end TEXT
);

CREATE INDEX IF NOT EXISTS idx_snapshots_side ON snapshots (side, id);

CREATE TABLE IF NOT EXISTS presence_transitions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	side TEXT NOT NULL,
	from_state TEXT NOT NULL,
	to_state TEXT NOT NULL,
	heating_level INTEGER NOT NULL,
	observed_low INTEGER NOT NULL,
	at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transitions_side ON presence_transitions (side, id);
`

// Open opens (creating if needed) the telemetry database at path. ":memory:"
// gives a private in-memory database.
func Open(path string) (*sql.DB, error) {
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// An in-memory database lives only as long as its one connection.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	log.Debug().Str("path", path).Msg("Database ready")
	return db, nil
}

func migrate(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
