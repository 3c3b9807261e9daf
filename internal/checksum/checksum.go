// Package checksum computes content digests used as entity tags.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sum returns the hex-encoded SHA-256 digest of s.
func Sum(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

// ETag returns Sum(s) in quoted entity-tag form.
func ETag(s string) string {
	return `"` + Sum(s) + `"`
}

// Match reports whether an If-Match header value refers to content s.
// An empty header or "*" matches anything.
func Match(header, s string) bool {
	header = strings.TrimSpace(header)
	if header == "" || header == "*" {
		return true
	}
	return strings.Trim(header, `"`) == Sum(s)
}
