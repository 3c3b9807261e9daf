// Package pageservice is the direct document access used by the JSON API and
// the MCP tools: whole-document reads and writes with checksum concurrency.
package pageservice

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/creolewiki/internal/apperr"
	"github.com/starford/creolewiki/internal/checksum"
	"github.com/starford/creolewiki/internal/creole"
	"github.com/starford/creolewiki/internal/models"
	"github.com/starford/creolewiki/internal/render"
	"github.com/starford/creolewiki/internal/storage"
	"github.com/starford/creolewiki/internal/wiki"
)

// PageDetail is the full representation of a page.
type PageDetail struct {
	Key      string `json:"key"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	Checksum string `json:"checksum"`
	HTML     string `json:"html"`
	Builtin  bool   `json:"builtin,omitempty"`
}

// Rendered is the result of rendering markup without storing it.
type Rendered struct {
	Title string `json:"title"`
	HTML  string `json:"html"`
	Valid bool   `json:"valid"`
}

// Notifier is told about page writes and deletes.
type Notifier interface {
	PublishPage(key string, deleted bool)
}

// Service coordinates storage access for whole documents.
type Service struct {
	store  storage.Backend
	notify Notifier
	logger *slog.Logger
}

// NewService creates a page service over store. notify may be nil.
func NewService(store storage.Backend, notify Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, notify: notify, logger: logger}
}

func checkKey(key string) error {
	if !storage.ValidKey(key) {
		return fmt.Errorf("pageservice: %q: %w", key, apperr.ErrInvalidKey)
	}
	return nil
}

// Get returns the page at key. A missing page is apperr.ErrNotFound, except
// the help page which falls back to the built-in text.
func (s *Service) Get(ctx context.Context, key string) (*PageDetail, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	text, ok, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("pageservice: get %q: %w", key, err)
	}
	if !ok {
		if key != models.HelpKey {
			return nil, fmt.Errorf("pageservice: get %q: %w", key, apperr.ErrNotFound)
		}
		d := detail(key, wiki.HelpText)
		d.Builtin = true
		return d, nil
	}
	return detail(key, text), nil
}

// Put replaces the page at key. When ifMatch is non-empty it must match the
// checksum of the current content (the empty document when absent). An
// empty content deletes the page.
func (s *Service) Put(ctx context.Context, key, content, ifMatch string) (*PageDetail, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	if key == models.HelpKey {
		return nil, fmt.Errorf("pageservice: put %q: %w", key, apperr.ErrReadOnly)
	}
	if ifMatch != "" {
		current, _, err := s.store.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("pageservice: put %q: %w", key, err)
		}
		if !checksum.Match(ifMatch, current) {
			return nil, fmt.Errorf("pageservice: put %q: %w", key, apperr.ErrConflict)
		}
	}
	if err := s.store.Put(ctx, key, content); err != nil {
		return nil, fmt.Errorf("pageservice: put %q: %w", key, err)
	}
	s.logger.Info("pageservice: page written", slog.String("key", key), slog.Int("bytes", len(content)))
	if s.notify != nil {
		s.notify.PublishPage(key, content == "")
	}
	return detail(key, content), nil
}

// Delete removes the page at key. A missing page is apperr.ErrNotFound.
func (s *Service) Delete(ctx context.Context, key, ifMatch string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if key == models.HelpKey {
		return fmt.Errorf("pageservice: delete %q: %w", key, apperr.ErrReadOnly)
	}
	current, ok, err := s.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("pageservice: delete %q: %w", key, err)
	}
	if !ok {
		return fmt.Errorf("pageservice: delete %q: %w", key, apperr.ErrNotFound)
	}
	if !checksum.Match(ifMatch, current) {
		return fmt.Errorf("pageservice: delete %q: %w", key, apperr.ErrConflict)
	}
	if err := s.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("pageservice: delete %q: %w", key, err)
	}
	s.logger.Info("pageservice: page deleted", slog.String("key", key))
	if s.notify != nil {
		s.notify.PublishPage(key, true)
	}
	return nil
}

// List returns every stored page. Backends without listing report
// apperr.ErrUnavailable.
func (s *Service) List(ctx context.Context) ([]models.PageMeta, error) {
	l, ok := s.store.(storage.Lister)
	if !ok {
		return nil, fmt.Errorf("pageservice: list: %w", apperr.ErrUnavailable)
	}
	metas, err := l.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("pageservice: list: %w", err)
	}
	if metas == nil {
		metas = []models.PageMeta{}
	}
	return metas, nil
}

// CanSearch reports whether the backend supports Search.
func (s *Service) CanSearch() bool {
	_, ok := s.store.(storage.Searcher)
	return ok
}

// Search matches query against stored pages.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]models.SearchHit, error) {
	sr, ok := s.store.(storage.Searcher)
	if !ok {
		return nil, fmt.Errorf("pageservice: search: %w", apperr.ErrUnavailable)
	}
	hits, err := sr.Search(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("pageservice: search: %w", err)
	}
	if hits == nil {
		hits = []models.SearchHit{}
	}
	return hits, nil
}

// Render renders markup without touching storage.
func Render(text string) Rendered {
	nodes, err := creole.Parse(text)
	if err != nil {
		return Rendered{}
	}
	return Rendered{
		Title: creole.Title(nodes),
		HTML:  render.HTML(render.RenderAll(nodes)),
		Valid: true,
	}
}

func detail(key, text string) *PageDetail {
	r := Render(text)
	return &PageDetail{
		Key:      key,
		Title:    r.Title,
		Content:  text,
		Checksum: checksum.Sum(text),
		HTML:     r.HTML,
	}
}
