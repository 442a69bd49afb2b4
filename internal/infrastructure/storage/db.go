package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Open connects to the configured database driver.
func Open(driver, dsn string) (*sql.DB, error) {
	switch driver {
	case DriverPostgres:
	case DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if driver == DriverSQLite {
		// an in-memory database exists per connection
		db.SetMaxOpenConns(1)
		if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
	}

	return db, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS design_files (
		id TEXT PRIMARY KEY,
		file_key TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL DEFAULT '',
		owner_id TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS feedback (
		id TEXT PRIMARY KEY,
		external_id TEXT UNIQUE,
		content TEXT NOT NULL,
		design_file_id TEXT REFERENCES design_files(id),
		node_id TEXT,
		author_name TEXT,
		owner_id TEXT NOT NULL,
		is_processed BOOLEAN NOT NULL DEFAULT FALSE,
		priority TEXT,
		ai_summary TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS feedback_pending_idx ON feedback (owner_id, is_processed)`,
	`CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL,
		priority TEXT NOT NULL,
		status TEXT NOT NULL,
		feedback_id TEXT UNIQUE REFERENCES feedback(id),
		assignee_id TEXT NOT NULL,
		urgency INTEGER NOT NULL DEFAULT 0,
		category TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
}

// Migrate creates the tables used by the pipeline. It is idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
