// Package models defines the domain types for creolewiki.
package models

import "time"

// HomeKey is the storage key of the home document.
const HomeKey = ""

// HelpKey is the reserved key of the seeded help document.
const HelpKey = "help"

// PageMeta is a lightweight representation returned by list operations.
type PageMeta struct {
	Key       string    `json:"key"`
	Size      int       `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SearchHit is one search result.
type SearchHit struct {
	Key     string `json:"key"`
	Snippet string `json:"snippet"`
}
