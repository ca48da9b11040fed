package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// MigratePostgres applies the registry schema. Every statement is idempotent
// so it runs on each start.
func MigratePostgres(ctx context.Context, db *sql.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS did_documents (
            did TEXT PRIMARY KEY,
            document JSONB NOT NULL,
            metadata JSONB NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL
        )`,
		`CREATE INDEX IF NOT EXISTS idx_did_documents_updated_at ON did_documents (updated_at)`,
	}

	for i, migration := range migrations {
		if _, err := db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	return nil
}
