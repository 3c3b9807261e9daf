package api

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/creolewiki/internal/checksum"
	"github.com/starford/creolewiki/internal/editor"
	"github.com/starford/creolewiki/internal/pageservice"
	"github.com/starford/creolewiki/internal/sse"
)

// Handler holds API route handlers.
type Handler struct {
	svc      *pageservice.Service
	sessions *editor.Registry
	broker   *sse.Broker
	logger   *slog.Logger
}

// NewHandler creates a new Handler. sessions and broker may be nil when the
// live editing endpoints are not served.
func NewHandler(svc *pageservice.Service, sessions *editor.Registry, broker *sse.Broker, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, sessions: sessions, broker: broker, logger: logger}
}

// pageKey extracts the page key from the URL wildcard. An empty wildcard is
// the home page. Encoded slashes from API clients are accepted.
func pageKey(r *http.Request) string {
	raw := strings.Trim(chi.URLParam(r, "*"), "/")
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// ListPages handles GET /api/pages.
//
//	@Summary	List every stored page
//	@Tags		pages
//	@Produce	json
//	@Success	200	{object}	PageListResponse
//	@Security	BearerAuth
//	@Router		/pages [get]
func (h *Handler) ListPages(w http.ResponseWriter, r *http.Request) {
	pages, err := h.svc.List(r.Context())
	if err != nil {
		writeError(w, h.logger, "list pages", err)
		return
	}
	writeJSON(w, http.StatusOK, PageListResponse{Pages: pages, Total: len(pages)})
}

// GetPage handles GET /api/pages/*.
//
//	@Summary	Get a single page by key
//	@Tags		pages
//	@Produce	json
//	@Param		key	path		string	true	"Page key"
//	@Success	200	{object}	PageDetail
//	@Failure	404	{object}	errResponse
//	@Security	BearerAuth
//	@Router		/pages/{key} [get]
func (h *Handler) GetPage(w http.ResponseWriter, r *http.Request) {
	key := pageKey(r)
	page, err := h.svc.Get(r.Context(), key)
	if err != nil {
		writeError(w, h.logger, "get page", err)
		return
	}
	w.Header().Set("ETag", checksum.ETag(page.Content))
	writeJSON(w, http.StatusOK, page)
}

// PutPage handles PUT /api/pages/*.
//
//	@Summary	Replace a page with optimistic concurrency
//	@Tags		pages
//	@Accept		json
//	@Produce	json
//	@Param		key			path		string			true	"Page key"
//	@Param		If-Match	header		string			false	"SHA-256 checksum of the current content"
//	@Param		body		body		PutPageRequest	true	"New content; empty deletes"
//	@Success	200			{object}	PageDetail
//	@Failure	400			{object}	errResponse
//	@Failure	409			{object}	errResponse
//	@Security	BearerAuth
//	@Router		/pages/{key} [put]
func (h *Handler) PutPage(w http.ResponseWriter, r *http.Request) {
	key := pageKey(r)
	var req PutPageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	page, err := h.svc.Put(r.Context(), key, req.Content, r.Header.Get("If-Match"))
	if err != nil {
		writeError(w, h.logger, "put page", err)
		return
	}
	w.Header().Set("ETag", checksum.ETag(page.Content))
	writeJSON(w, http.StatusOK, page)
}

// DeletePage handles DELETE /api/pages/*.
//
//	@Summary	Delete a page
//	@Tags		pages
//	@Param		key			path	string	true	"Page key"
//	@Param		If-Match	header	string	false	"SHA-256 checksum of the current content"
//	@Success	204			"Page deleted"
//	@Failure	404			{object}	errResponse
//	@Security	BearerAuth
//	@Router		/pages/{key} [delete]
func (h *Handler) DeletePage(w http.ResponseWriter, r *http.Request) {
	key := pageKey(r)
	if err := h.svc.Delete(r.Context(), key, r.Header.Get("If-Match")); err != nil {
		writeError(w, h.logger, "delete page", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Render handles POST /api/render.
//
//	@Summary	Render markup to an HTML fragment
//	@Tags		render
//	@Accept		json
//	@Produce	json
//	@Param		body	body		RenderRequest	true	"Markup"
//	@Success	200		{object}	RenderResponse
//	@Router		/render [post]
func (h *Handler) Render(w http.ResponseWriter, r *http.Request) {
	var req RenderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, pageservice.Render(req.Content))
}

// Search handles GET /api/search.
//
//	@Summary	Search page keys and content
//	@Tags		search
//	@Produce	json
//	@Param		q		query		string	true	"Search query"
//	@Param		limit	query		int		false	"Max results"
//	@Success	200		{object}	SearchResponse
//	@Failure	400		{object}	errResponse
//	@Failure	501		{object}	errResponse
//	@Security	BearerAuth
//	@Router		/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	if !h.svc.CanSearch() {
		writeJSON(w, http.StatusNotImplemented, errorBody("search is not supported by this storage backend"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		writeError(w, h.logger, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// SessionInput handles POST /api/sessions/{id}/input.
func (h *Handler) SessionInput(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, "session input", err)
		return
	}
	var req InputRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.Input(req.Content); err != nil {
		writeError(w, h.logger, "session input", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SessionEvents handles GET /api/sessions/{id}/events. The stream starts
// with the current preview; when the client goes away the session is closed
// and its pending edit flushed.
func (h *Handler) SessionEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s, err := h.sessions.Get(id)
	if err != nil {
		writeError(w, h.logger, "session events", err)
		return
	}
	detach, err := h.sessions.Attach(id)
	if err != nil {
		writeError(w, h.logger, "session events", err)
		return
	}
	defer detach(context.WithoutCancel(r.Context()))

	initial := sse.Event{Type: sse.EventPreview, Data: map[string]string{"html": s.Preview()}}
	h.broker.Serve(w, r, sse.SessionTopic(id), &initial)
}

// PageEvents handles GET /api/pages-events/*.
func (h *Handler) PageEvents(w http.ResponseWriter, r *http.Request) {
	h.broker.Serve(w, r, sse.PageTopic(pageKey(r)), nil)
}
