//go:build !sqlite_fts5

package storage

import (
	"context"
	"database/sql"
)

func initFTS(context.Context, *sql.DB) error {
	// FTS5 not compiled in; search uses LIKE on documents.content.
	return nil
}

func ftsUpsert(context.Context, *sql.Tx, string, string) error { return nil }

func ftsDelete(context.Context, *sql.Tx, string) error { return nil }

func searchQuery(query string, limit int) (string, []any) {
	like := "%" + escapeLike(query) + "%"
	return `
		SELECT key, substr(content, 1, 200)
		FROM documents
		WHERE key LIKE ? ESCAPE '\' OR content LIKE ? ESCAPE '\'
		ORDER BY key
		LIMIT ?
	`, []any{like, like, limit}
}
