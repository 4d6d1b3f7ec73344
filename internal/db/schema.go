package db

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS exports (
		id         UUID PRIMARY KEY,
		reference  TEXT        NOT NULL,
		filename   TEXT        NOT NULL DEFAULT '',
		row_count  INTEGER     NOT NULL DEFAULT 0,
		status     TEXT        NOT NULL,
		error      TEXT        NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS exports_reference_created_at_idx ON exports (reference, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS users (
		username TEXT PRIMARY KEY,
		password TEXT NOT NULL
	)`,
}

// EnsureSchema creates the export history and operator tables if missing.
func EnsureSchema(ctx context.Context, database DB) error {
	for _, stmt := range schema {
		if _, err := database.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}
	return nil
}
