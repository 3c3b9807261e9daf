package api

import (
	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced on page access.
// The event streams sit outside auth: EventSource cannot send headers.
func NewRouter(h *Handler, authEnabled bool, token string) chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(authEnabled, token))

		r.Get("/pages", h.ListPages)
		r.Get("/pages/*", h.GetPage)
		r.Put("/pages/*", h.PutPage)
		r.Delete("/pages/*", h.DeletePage)

		r.Get("/search", h.Search)
	})

	r.Post("/render", h.Render)

	if h.sessions != nil && h.broker != nil {
		r.Post("/sessions/{id}/input", h.SessionInput)
		r.Get("/sessions/{id}/events", h.SessionEvents)
		r.Get("/pages-events/*", h.PageEvents)
	}

	return r
}
