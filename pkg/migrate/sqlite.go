package migrate

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
)

//go:embed sqlite/schema.sql
var sqliteSchema string

// ApplySQLiteSchema creates the tables used by local sqlite runs and tests.
// Statements are idempotent so it can run on every boot.
func ApplySQLiteSchema(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("apply sqlite schema: %w", err)
	}
	return nil
}
