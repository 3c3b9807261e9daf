package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/sync/singleflight"

	"github.com/starford/creolewiki/internal/apperr"
	"github.com/starford/creolewiki/internal/models"
)

// SQLite is the transactional backend. Opening it is lazy: the first
// operation (or Ready) runs a one-time handshake that opens the database,
// negotiates the schema version and provisions the documents table. Every
// Get/Put/Delete then runs in its own transaction.
type SQLite struct {
	dsn    string
	seeds  map[string]string
	logger *slog.Logger

	open singleflight.Group

	mu     sync.RWMutex
	conn   *sql.DB
	closed bool
}

var (
	_ Backend  = (*SQLite)(nil)
	_ Lister   = (*SQLite)(nil)
	_ Searcher = (*SQLite)(nil)
)

// SQLiteOption configures a SQLite store.
type SQLiteOption func(*SQLite)

// WithSeed adds a document written when the database is provisioned for the
// first time. Later opens never touch it.
func WithSeed(key, content string) SQLiteOption {
	return func(s *SQLite) {
		s.seeds[key] = content
	}
}

// WithLogger sets the logger used for handshake messages.
func WithLogger(l *slog.Logger) SQLiteOption {
	return func(s *SQLite) {
		s.logger = l
	}
}

// OpenSQLite returns a store for the database file at path. No I/O happens
// until the first operation.
func OpenSQLite(path string, opts ...SQLiteOption) *SQLite {
	s := &SQLite{
		dsn:    path + "?_journal_mode=WAL&_busy_timeout=5000",
		seeds:  make(map[string]string),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ready waits for the handshake to complete and reports its outcome.
func (s *SQLite) Ready(ctx context.Context) error {
	_, err := s.db(ctx)
	return err
}

// Close closes the database if it was opened.
func (s *SQLite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// db returns the open handle, running the handshake if needed. Concurrent
// callers share one in-flight handshake; a failed handshake is retried by the
// next caller.
func (s *SQLite) db(ctx context.Context) (*sql.DB, error) {
	s.mu.RLock()
	conn, closed := s.conn, s.closed
	s.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("storage: sqlite closed: %w", apperr.ErrUnavailable)
	}
	if conn != nil {
		return conn, nil
	}

	ch := s.open.DoChan("open", func() (any, error) {
		s.mu.RLock()
		existing := s.conn
		s.mu.RUnlock()
		if existing != nil {
			return existing, nil
		}
		// Waiters may give up; the handshake itself runs to completion.
		conn, err := s.handshake(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			_ = conn.Close()
			return nil, fmt.Errorf("storage: sqlite closed: %w", apperr.ErrUnavailable)
		}
		s.conn = conn
		return conn, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*sql.DB), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *SQLite) handshake(ctx context.Context) (*sql.DB, error) {
	conn, err := sql.Open("sqlite3", s.dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite: %w: %w", apperr.ErrUnavailable, err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("storage: ping sqlite: %w: %w", apperr.ErrUnavailable, err)
	}
	from, err := migrate(ctx, conn, s.seeds)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("storage: negotiate schema: %w: %w", apperr.ErrUnavailable, err)
	}
	if err := initFTS(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("storage: init fts: %w: %w", apperr.ErrUnavailable, err)
	}
	s.logger.Info("storage: sqlite ready",
		slog.Int("schema_from", from),
		slog.Int("schema_version", schemaVersion))
	return conn, nil
}

// tx runs fn in a transaction scoped to one operation.
func (s *SQLite) tx(ctx context.Context, fn func(*sql.Tx) error) error {
	conn, err := s.db(ctx)
	if err != nil {
		return err
	}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage: commit: %w", err)
	}
	return nil
}

// Get returns the document at key.
func (s *SQLite) Get(ctx context.Context, key string) (string, bool, error) {
	if !ValidKey(key) {
		return "", false, fmt.Errorf("storage: %q: %w", key, apperr.ErrInvalidKey)
	}
	var content string
	found := false
	err := s.tx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `SELECT content FROM documents WHERE key = ?`, key).Scan(&content)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("storage: get %q: %w", key, err)
		}
		found = true
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return content, found, nil
}

// Put inserts or replaces the document at key. An empty value deletes it.
func (s *SQLite) Put(ctx context.Context, key, value string) error {
	if value == "" {
		return s.Delete(ctx, key)
	}
	if !ValidKey(key) {
		return fmt.Errorf("storage: %q: %w", key, apperr.ErrInvalidKey)
	}
	return s.tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO documents (key, content, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET
				content    = excluded.content,
				updated_at = excluded.updated_at
		`, key, value, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("storage: put %q: %w", key, err)
		}
		return ftsUpsert(ctx, tx, key, value)
	})
}

// Delete removes the document at key. Missing documents are ignored.
func (s *SQLite) Delete(ctx context.Context, key string) error {
	if !ValidKey(key) {
		return fmt.Errorf("storage: %q: %w", key, apperr.ErrInvalidKey)
	}
	return s.tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE key = ?`, key); err != nil {
			return fmt.Errorf("storage: delete %q: %w", key, err)
		}
		return ftsDelete(ctx, tx, key)
	})
}

// List returns metadata for every stored document ordered by key.
func (s *SQLite) List(ctx context.Context) ([]models.PageMeta, error) {
	var out []models.PageMeta
	err := s.tx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT key, length(CAST(content AS BLOB)), updated_at
			FROM documents
			ORDER BY key
		`)
		if err != nil {
			return fmt.Errorf("storage: list: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var m models.PageMeta
			if err := rows.Scan(&m.Key, &m.Size, &m.UpdatedAt); err != nil {
				return fmt.Errorf("storage: list scan: %w", err)
			}
			out = append(out, m)
		}
		return rows.Err()
	})
	return out, err
}

// Search matches query against documents. Built with the sqlite_fts5 tag it
// uses an FTS5 index; otherwise keys and content are matched with LIKE.
func (s *SQLite) Search(ctx context.Context, query string, limit int) ([]models.SearchHit, error) {
	if limit <= 0 {
		limit = 20
	}
	q, args := searchQuery(query, limit)
	var out []models.SearchHit
	err := s.tx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, q, args...)
		if err != nil {
			return fmt.Errorf("storage: search: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var h models.SearchHit
			if err := rows.Scan(&h.Key, &h.Snippet); err != nil {
				return fmt.Errorf("storage: search scan: %w", err)
			}
			out = append(out, h)
		}
		return rows.Err()
	})
	return out, err
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
