package api

import (
	"github.com/starford/creolewiki/internal/models"
	"github.com/starford/creolewiki/internal/pageservice"
)

// PutPageRequest is the request body for writing a page.
type PutPageRequest struct {
	Content string `json:"content" example:"== Hello\nWorld"`
}

// RenderRequest is the request body for rendering markup.
type RenderRequest struct {
	Content string `json:"content" example:"== Hello"`
}

// InputRequest replaces an editor session's buffer.
type InputRequest struct {
	Content string `json:"content" example:"== Draft"`
}

// PageDetail is the full page response type (aliased from the domain layer).
type PageDetail = pageservice.PageDetail

// RenderResponse is the rendered markup (aliased from the domain layer).
type RenderResponse = pageservice.Rendered

// PageListResponse wraps page listings.
type PageListResponse struct {
	Pages []models.PageMeta `json:"pages"`
	Total int               `json:"total" example:"42"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []models.SearchHit `json:"results"`
}
