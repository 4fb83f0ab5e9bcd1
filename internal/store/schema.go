// Package store keeps propagation results in a SQLite database.
package store

import (
	"context"
	"database/sql"
	"fmt"
)

const SchemaVersion = 1

const schemaV1 = `
CREATE TABLE IF NOT EXISTS runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    config TEXT NOT NULL,
    seed INTEGER NOT NULL,
    threads INTEGER NOT NULL,
    events INTEGER DEFAULT 0,
    started_at TEXT NOT NULL,
    finished_at TEXT
);

CREATE TABLE IF NOT EXISTS tallies (
    run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    detector TEXT NOT NULL,
    deposited INTEGER NOT NULL,
    propagated INTEGER NOT NULL,
    recombined INTEGER NOT NULL,
    missed_integration INTEGER NOT NULL,
    undepleted INTEGER NOT NULL,
    skipped INTEGER NOT NULL,
    batches INTEGER NOT NULL,
    PRIMARY KEY (run_id, detector)
);

CREATE TABLE IF NOT EXISTS charges (
    run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    event INTEGER NOT NULL,
    detector TEXT NOT NULL,
    deposit INTEGER NOT NULL,
    carrier TEXT NOT NULL,
    charge INTEGER NOT NULL,
    x REAL, y REAL, z REAL,
    global_x REAL, global_y REAL, global_z REAL,
    local_time REAL,
    global_time REAL,
    pixel_x INTEGER,
    pixel_y INTEGER
);

CREATE INDEX IF NOT EXISTS idx_charges_event ON charges(run_id, event, detector);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER NOT NULL
);
`

// InitSchema creates the tables when missing and records the version.
func InitSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaV1); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_version`).Scan(&count); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if count == 0 {
		if _, err := db.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, SchemaVersion); err != nil {
			return fmt.Errorf("failed to record schema version: %w", err)
		}
	}
	return nil
}
