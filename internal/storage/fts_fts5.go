//go:build sqlite_fts5

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// initFTS creates the full-text table on first use and indexes whatever the
// documents table already holds.
func initFTS(ctx context.Context, conn *sql.DB) error {
	var name string
	err := conn.QueryRowContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'documents_fts'`).Scan(&name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	_, err = conn.ExecContext(ctx, `
		CREATE VIRTUAL TABLE documents_fts USING fts5(
			key UNINDEXED,
			content,
			tokenize = 'unicode61 remove_diacritics 2'
		);
		INSERT INTO documents_fts (key, content) SELECT key, content FROM documents;
	`)
	return err
}

func ftsUpsert(ctx context.Context, tx *sql.Tx, key, content string) error {
	if err := ftsDelete(ctx, tx, key); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO documents_fts (key, content) VALUES (?, ?)`, key, content); err != nil {
		return fmt.Errorf("storage: upsert fts: %w", err)
	}
	return nil
}

func ftsDelete(ctx context.Context, tx *sql.Tx, key string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents_fts WHERE key = ?`, key); err != nil {
		return fmt.Errorf("storage: delete fts: %w", err)
	}
	return nil
}

// searchQuery matches query as one phrase so user input never reaches the
// FTS5 query syntax.
func searchQuery(query string, limit int) (string, []any) {
	phrase := `"` + strings.ReplaceAll(query, `"`, `""`) + `"`
	return `
		SELECT key, snippet(documents_fts, 1, '', '', '...', 32)
		FROM documents_fts
		WHERE documents_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, []any{phrase, limit}
}
