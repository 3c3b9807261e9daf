// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes wiki pages to LLM clients via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/creolewiki/internal/apperr"
	"github.com/starford/creolewiki/internal/pageservice"
)

// Server wraps the MCP server with wiki tools.
type Server struct {
	mcp *server.MCPServer
	svc *pageservice.Service
}

// New creates a new MCP server with all wiki tools registered.
func New(svc *pageservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"creolewiki",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("read_page",
		mcp.WithDescription("Read the raw Creole markup of a wiki page together with its checksum."),
		mcp.WithString("key", mcp.Required(), mcp.Description(`Page key, e.g. "recipes/soup"; "" is the home page`)),
	), s.readPage)

	s.mcp.AddTool(mcp.NewTool("write_page",
		mcp.WithDescription("Replace a wiki page with new Creole markup. Empty content deletes the page. "+
			"Read the markup guide first via get_markup_help or the "+MarkupHelpURI+" resource."),
		mcp.WithString("key", mcp.Required(), mcp.Description("Page key")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Creole markup")),
		mcp.WithString("if_match", mcp.Description("Checksum from read_page; the write fails if the page changed since")),
	), s.writePage)

	s.mcp.AddTool(mcp.NewTool("delete_page",
		mcp.WithDescription("Delete a wiki page."),
		mcp.WithString("key", mcp.Required(), mcp.Description("Page key")),
	), s.deletePage)

	s.mcp.AddTool(mcp.NewTool("list_pages",
		mcp.WithDescription("List page keys, optionally only those under a prefix."),
		mcp.WithString("prefix", mcp.Description(`Optional key prefix, e.g. "recipes/"`)),
	), s.listPages)

	s.mcp.AddTool(mcp.NewTool("render_page",
		mcp.WithDescription("Render Creole markup to HTML without storing it."),
		mcp.WithString("content", mcp.Required(), mcp.Description("Creole markup")),
	), s.renderPage)

	s.mcp.AddTool(mcp.NewTool("search_pages",
		mcp.WithDescription("Search page keys and content. Only available with the sqlite backend."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchPages)

	s.mcp.AddTool(mcp.NewTool("get_markup_help",
		mcp.WithDescription("Returns the wiki's key rules and Creole markup reference."),
	), s.getMarkupHelp)

	s.mcp.AddResource(
		mcp.NewResource(MarkupHelpURI, "Markup Help",
			mcp.WithResourceDescription("Key rules and Creole markup reference for wiki pages."),
			mcp.WithMIMEType("text/plain"),
		),
		s.readMarkupHelpResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func toolError(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError("page not found")
	case errors.Is(err, apperr.ErrConflict):
		return mcp.NewToolResultError("page changed since it was read; read it again and retry")
	case errors.Is(err, apperr.ErrReadOnly):
		return mcp.NewToolResultError("page is read-only")
	case errors.Is(err, apperr.ErrInvalidKey):
		return mcp.NewToolResultError("invalid page key")
	}
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(v any) *mcp.CallToolResult {
	out, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(out))
}

func (s *Server) readPage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := req.RequireString("key")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	page, err := s.svc.Get(ctx, key)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(map[string]string{
		"key":      page.Key,
		"title":    page.Title,
		"checksum": page.Checksum,
		"content":  page.Content,
	}), nil
}

func (s *Server) writePage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := req.RequireString("key")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ifMatch := ""
	if v, err := req.RequireString("if_match"); err == nil {
		ifMatch = v
	}
	page, err := s.svc.Put(ctx, key, content, ifMatch)
	if err != nil {
		return toolError(err), nil
	}
	if content == "" {
		return mcp.NewToolResultText(fmt.Sprintf("deleted: %q", key)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("written: %q checksum %s", key, page.Checksum)), nil
}

func (s *Server) deletePage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := req.RequireString("key")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.Delete(ctx, key, ""); err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %q", key)), nil
}

func (s *Server) listPages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prefix := ""
	if v, err := req.RequireString("prefix"); err == nil {
		prefix = v
	}
	metas, err := s.svc.List(ctx)
	if err != nil {
		return toolError(err), nil
	}
	var keys []string
	for _, m := range metas {
		if !strings.HasPrefix(m.Key, prefix) {
			continue
		}
		if m.Key == "" {
			keys = append(keys, `""`)
			continue
		}
		keys = append(keys, m.Key)
	}
	if len(keys) == 0 {
		return mcp.NewToolResultText("no pages found"), nil
	}
	return mcp.NewToolResultText(strings.Join(keys, "\n")), nil
}

func (s *Server) renderPage(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	r := pageservice.Render(content)
	if !r.Valid {
		return mcp.NewToolResultError("markup could not be parsed (invalid UTF-8)"), nil
	}
	return mcp.NewToolResultText(r.HTML), nil
}

func (s *Server) searchPages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !s.svc.CanSearch() {
		return mcp.NewToolResultError("search requires the sqlite storage backend"), nil
	}
	hits, err := s.svc.Search(ctx, query, 20)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(hits), nil
}

func (s *Server) getMarkupHelp(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(MarkupHelp), nil
}

func (s *Server) readMarkupHelpResource(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      MarkupHelpURI,
			MIMEType: "text/plain",
			Text:     MarkupHelp,
		},
	}, nil
}
