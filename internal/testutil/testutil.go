// Package testutil provides shared test helpers for setting up page stores.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/starford/creolewiki/internal/storage"
)

// TestSQLite opens a temporary SQLite store that is automatically cleaned up.
func TestSQLite(t *testing.T, opts ...storage.SQLiteOption) *storage.SQLite {
	t.Helper()
	db := storage.OpenSQLite(filepath.Join(t.TempDir(), "wiki.db"), opts...)
	t.Cleanup(func() { db.Close() })
	return db
}

// TestFlat creates a temporary flat-file store rooted in its own directory.
func TestFlat(t *testing.T) (string, *storage.Flat) {
	t.Helper()
	root := t.TempDir()
	store, err := storage.NewFlat(root)
	if err != nil {
		t.Fatal(err)
	}
	return root, store
}
