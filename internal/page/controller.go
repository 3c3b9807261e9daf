// Package page turns a resolved route into what the browser shows: the
// document, its rendered preview and, for editable pages, a live session.
package page

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/creolewiki/internal/apperr"
	"github.com/starford/creolewiki/internal/creole"
	"github.com/starford/creolewiki/internal/editor"
	"github.com/starford/creolewiki/internal/models"
	"github.com/starford/creolewiki/internal/render"
	"github.com/starford/creolewiki/internal/route"
	"github.com/starford/creolewiki/internal/storage"
	"github.com/starford/creolewiki/internal/wiki"
)

// Page is the state of one opened route.
type Page struct {
	Route    route.Route
	Mode     route.Mode
	Key      string
	Content  string
	Title    string
	Preview  string
	Editable bool
	Exists   bool

	// Placeholder is shown in an empty home editor.
	Placeholder string
	// Session is set for editable pages.
	Session *editor.Session
}

// Sessions opens editor sessions.
type Sessions interface {
	Open(key, text string) (*editor.Session, error)
}

// Controller opens pages against one storage backend.
type Controller struct {
	store    storage.Backend
	sessions Sessions
	pub      editor.Publisher
	logger   *slog.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithPublisher notifies page viewers of deletions.
func WithPublisher(p editor.Publisher) Option {
	return func(c *Controller) {
		c.pub = p
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = l
	}
}

// NewController returns a controller reading from store and opening editors
// through sessions.
func NewController(store storage.Backend, sessions Sessions, opts ...Option) *Controller {
	c := &Controller{
		store:    store,
		sessions: sessions,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load returns the stored markup for key. Absence is the empty document; the
// help key falls back to the built-in help text.
func (c *Controller) Load(ctx context.Context, key string) (string, bool, error) {
	text, ok, err := c.store.Get(ctx, key)
	if err != nil {
		return "", false, fmt.Errorf("page: load %q: %w", key, err)
	}
	if !ok && key == models.HelpKey {
		return wiki.HelpText, true, nil
	}
	return text, ok, nil
}

// Open loads and renders the page for r. Editable pages get a new session.
func (c *Controller) Open(ctx context.Context, r route.Route) (*Page, error) {
	p := &Page{Route: r, Mode: route.ModeOf(r)}
	key, ok := route.Key(r)
	if !ok {
		return p, nil
	}
	p.Key = key
	// The reserved help page never opens an editor.
	if p.Mode == route.ModeEdit && key == models.HelpKey {
		p.Mode = route.ModeView
	}
	p.Editable = p.Mode == route.ModeEdit

	text, exists, err := c.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	p.Content, p.Exists = text, exists

	if nodes, err := creole.Parse(text); err == nil {
		p.Title = creole.Title(nodes)
		p.Preview = render.HTML(render.RenderAll(nodes))
	} else {
		c.logger.Debug("page: parse failed", slog.String("key", key), slog.String("error", err.Error()))
	}

	if key == models.HomeKey && text == "" {
		p.Placeholder = wiki.HelpText
	}

	if p.Editable {
		s, err := c.sessions.Open(key, text)
		if err != nil {
			return nil, fmt.Errorf("page: open editor %q: %w", key, err)
		}
		p.Session = s
	}
	return p, nil
}

// ConfirmDelete removes the document at key.
func (c *Controller) ConfirmDelete(ctx context.Context, key string) error {
	if key == models.HelpKey {
		return fmt.Errorf("page: delete %q: %w", key, apperr.ErrReadOnly)
	}
	if err := c.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("page: delete %q: %w", key, err)
	}
	c.logger.Info("page: deleted", slog.String("key", key))
	if c.pub != nil {
		c.pub.PublishPage(key, true)
	}
	return nil
}
