package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// schemaVersion is the version this binary negotiates up to. It is stored in
// SQLite's user_version pragma.
const schemaVersion = 1

// migrations[i] upgrades a database from version i to i+1.
var migrations = []func(ctx context.Context, tx *sql.Tx, seeds map[string]string) error{
	migrateV1,
}

const documentsSchemaSQL = `
CREATE TABLE IF NOT EXISTS documents (
	key        TEXT PRIMARY KEY,
	content    TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

func migrateV1(ctx context.Context, tx *sql.Tx, seeds map[string]string) error {
	if _, err := tx.ExecContext(ctx, documentsSchemaSQL); err != nil {
		return fmt.Errorf("create documents: %w", err)
	}
	now := time.Now().UTC()
	for key, content := range seeds {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO documents (key, content, updated_at) VALUES (?, ?, ?)`,
			key, content, now); err != nil {
			return fmt.Errorf("seed %q: %w", key, err)
		}
	}
	return nil
}

// migrate brings conn up to schemaVersion in a single transaction and returns
// the version it started from.
func migrate(ctx context.Context, conn *sql.DB, seeds map[string]string) (int, error) {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() //nolint:errcheck

	var current int
	if err := tx.QueryRowContext(ctx, `PRAGMA user_version`).Scan(&current); err != nil {
		return 0, fmt.Errorf("read user_version: %w", err)
	}
	if current > schemaVersion {
		return current, fmt.Errorf("database schema version %d is newer than supported %d", current, schemaVersion)
	}
	for v := current; v < schemaVersion; v++ {
		if err := migrations[v](ctx, tx, seeds); err != nil {
			return current, fmt.Errorf("migrate to v%d: %w", v+1, err)
		}
	}
	if current < schemaVersion {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d`, schemaVersion)); err != nil {
			return current, fmt.Errorf("write user_version: %w", err)
		}
	}
	return current, tx.Commit()
}
