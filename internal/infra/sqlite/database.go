// Package sqlite keeps the issuing side's ledger of signed licenses.
// Verification never reads it.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// InitDB opens the ledger database and creates the schema
func InitDB(ctx context.Context, dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// every connection to ":memory:" is a separate database
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(4)
	}
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set %s: %w", pragma, err)
		}
	}

	if err := createSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return db, nil
}

func createSchema(ctx context.Context, db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS issued_licenses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		license_id TEXT UNIQUE NOT NULL,
		plan TEXT NOT NULL,
		issued_to TEXT NOT NULL DEFAULT '',
		hardware_id TEXT NOT NULL DEFAULT '',
		expires_at TEXT NOT NULL,
		issued_at TEXT NOT NULL,
		bundle TEXT NOT NULL,
		revoked BOOLEAN NOT NULL DEFAULT 0,
		revoked_reason TEXT NOT NULL DEFAULT '',
		revoked_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_issued_licenses_hardware_id ON issued_licenses(hardware_id);
	CREATE INDEX IF NOT EXISTS idx_issued_licenses_created_at ON issued_licenses(created_at);
	`

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// CloseDB closes the database connection
func CloseDB(db *sql.DB) error {
	if db != nil {
		return db.Close()
	}
	return nil
}
