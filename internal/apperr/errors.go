// Package apperr holds the sentinel errors shared across packages.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrReadOnly      = errors.New("read-only document")
	ErrInvalidKey    = errors.New("invalid document key")
	ErrUnavailable   = errors.New("storage unavailable")
	ErrSessionClosed = errors.New("editor session closed")
)
