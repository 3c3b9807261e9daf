// Package storage defines the document store abstraction and its backends.
package storage

import (
	"context"
	"strings"

	"github.com/starford/creolewiki/internal/models"
)

// Backend stores one raw markup document per key. A missing key is a valid
// empty state: Get returns ok=false and a nil error. Put with an empty value
// is the same as Delete, and Delete of a missing key succeeds.
type Backend interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Put(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Lister is implemented by backends that can enumerate their documents.
type Lister interface {
	List(ctx context.Context) ([]models.PageMeta, error)
}

// Searcher is implemented by backends that can match text in documents.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]models.SearchHit, error)
}

// ValidKey reports whether key is a canonical document key: empty (home) or
// '/'-joined non-empty segments, none of which is "." or "..".
func ValidKey(key string) bool {
	if key == "" {
		return true
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return false
		}
	}
	return true
}
