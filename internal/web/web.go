// Package web serves the browser surface: one HTML page per route with the
// navigation bar, the editor and the rendered preview.
package web

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/creolewiki/internal/apperr"
	"github.com/starford/creolewiki/internal/models"
	"github.com/starford/creolewiki/internal/page"
	"github.com/starford/creolewiki/internal/route"
)

//go:embed templates/*.html static/*.js static/*.css
var assetsFS embed.FS

// Handler renders pages opened through a page.Controller.
type Handler struct {
	pages  *page.Controller
	tmpl   *template.Template
	logger *slog.Logger
}

// New parses the embedded templates.
func New(pages *page.Controller, logger *slog.Logger) (*Handler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	tmpl, err := template.New("base").Funcs(template.FuncMap{
		"viewPath":   route.ViewPath,
		"editPath":   route.EditPath,
		"deletePath": route.DeletePath,
	}).ParseFS(assetsFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("web: parse templates: %w", err)
	}
	return &Handler{pages: pages, tmpl: tmpl, logger: logger}, nil
}

// Routes returns the HTML router. Every GET outside /static goes through
// route.Parse.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	static, _ := fs.Sub(assetsFS, "static")
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServerFS(static)))

	r.Post("/d/*", h.confirmDelete)
	r.Get("/*", h.show)

	return r
}

type pageView struct {
	*page.Page
	Title     string
	Preview   template.HTML
	SessionID string
	Deletable bool
	HomeKey   bool
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	rt := route.Parse(r.URL.EscapedPath())
	if _, ok := rt.(route.NotFound); ok {
		h.notFound(w, r)
		return
	}

	p, err := h.pages.Open(r.Context(), rt)
	if err != nil {
		h.fail(w, "open page", err)
		return
	}

	v := pageView{
		Page:      p,
		Title:     p.Title,
		Preview:   template.HTML(p.Preview),
		Deletable: p.Key != models.HelpKey,
		HomeKey:   p.Key == models.HomeKey,
	}
	if v.Title == "" {
		v.Title = displayKey(p.Key)
	}
	if p.Session != nil {
		v.SessionID = p.Session.ID()
	}

	w.Header().Set("Cache-Control", "no-store")
	h.render(w, http.StatusOK, "page.html", v)
}

func (h *Handler) confirmDelete(w http.ResponseWriter, r *http.Request) {
	rt, ok := route.Parse(r.URL.EscapedPath()).(route.Delete)
	if !ok {
		h.notFound(w, r)
		return
	}
	key, _ := route.Key(rt)
	if err := h.pages.ConfirmDelete(r.Context(), key); err != nil {
		if errors.Is(err, apperr.ErrReadOnly) {
			http.Error(w, "page is read-only", http.StatusForbidden)
			return
		}
		h.fail(w, "delete page", err)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) notFound(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusNotFound, "notfound.html", map[string]string{"Path": r.URL.Path})
}

func (h *Handler) render(w http.ResponseWriter, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.tmpl.ExecuteTemplate(w, name, data); err != nil {
		h.logger.Error("web: render template", slog.String("template", name), slog.String("error", err.Error()))
	}
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Error("web: "+op, slog.String("error", err.Error()))
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

func displayKey(key string) string {
	if key == models.HomeKey {
		return "Home"
	}
	return key
}
