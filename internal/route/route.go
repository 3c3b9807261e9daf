// Package route maps URL paths to wiki pages.
package route

import (
	"net/url"
	"strings"

	"github.com/starford/creolewiki/internal/models"
)

// Route is one of Home, View, Edit, Delete, Help or NotFound.
type Route interface {
	route()
}

type (
	// Home is the editable root document.
	Home struct{}
	// View is a read-only page.
	View struct{ Path []string }
	// Edit is an editable page.
	Edit struct{ Path []string }
	// Delete is the delete-confirmation page.
	Delete struct{ Path []string }
	// Help is the built-in markup reference.
	Help struct{}
	// NotFound is any path the resolver does not recognise.
	NotFound struct{}
)

func (Home) route()     {}
func (View) route()     {}
func (Edit) route()     {}
func (Delete) route()   {}
func (Help) route()     {}
func (NotFound) route() {}

// Resolve maps already-decoded path segments to a route.
func Resolve(segments []string) Route {
	if len(segments) == 0 {
		return Home{}
	}
	head, rest := segments[0], segments[1:]
	if head == "help" && len(rest) == 0 {
		return Help{}
	}
	if len(rest) == 0 || !validSegments(rest) {
		return NotFound{}
	}
	path := append([]string(nil), rest...)
	switch head {
	case "w":
		return View{Path: path}
	case "e":
		return Edit{Path: path}
	case "d":
		return Delete{Path: path}
	}
	return NotFound{}
}

func validSegments(segs []string) bool {
	for _, s := range segs {
		if s == "" || s == "." || s == ".." || strings.Contains(s, "/") {
			return false
		}
	}
	return true
}

// Parse splits urlPath on '/', drops empty segments, percent-decodes each
// segment and resolves the result. Undecodable segments yield NotFound.
func Parse(urlPath string) Route {
	var segs []string
	for _, raw := range strings.Split(urlPath, "/") {
		if raw == "" {
			continue
		}
		s, err := url.PathUnescape(raw)
		if err != nil {
			return NotFound{}
		}
		segs = append(segs, s)
	}
	return Resolve(segs)
}

// Mode is the page mode a route opens in.
type Mode string

const (
	ModeView     Mode = "view"
	ModeEdit     Mode = "edit"
	ModeDelete   Mode = "delete"
	ModeNotFound Mode = "notfound"
)

// ModeOf returns the page mode for r.
func ModeOf(r Route) Mode {
	switch r.(type) {
	case Home, Edit:
		return ModeEdit
	case View, Help:
		return ModeView
	case Delete:
		return ModeDelete
	default:
		return ModeNotFound
	}
}

// Key returns the storage key r refers to. NotFound has none.
func Key(r Route) (string, bool) {
	switch r := r.(type) {
	case Home:
		return models.HomeKey, true
	case Help:
		return models.HelpKey, true
	case View:
		return strings.Join(r.Path, "/"), true
	case Edit:
		return strings.Join(r.Path, "/"), true
	case Delete:
		return strings.Join(r.Path, "/"), true
	default:
		return "", false
	}
}

// ViewPath returns the read-only URL for key.
func ViewPath(key string) string { return prefixed("/w/", key) }

// EditPath returns the editor URL for key. The home document edits at "/".
func EditPath(key string) string { return prefixed("/e/", key) }

// DeletePath returns the delete-confirmation URL for key.
func DeletePath(key string) string { return prefixed("/d/", key) }

func prefixed(prefix, key string) string {
	switch key {
	case models.HomeKey:
		return "/"
	case models.HelpKey:
		if prefix == "/w/" {
			return "/help"
		}
	}
	segs := strings.Split(key, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return prefix + strings.Join(segs, "/")
}
