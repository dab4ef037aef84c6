// Package identity produces and validates the opaque 24-hex-character
// identifiers used for documents, metadata entries and attachments.
package identity

import (
	"encoding/hex"

	"github.com/rs/xid"
)

// New returns a fresh identifier: the 12 raw bytes of an xid encoded as
// 24 lowercase hex characters. Generation is stateless and safe for
// unsynchronized concurrent use.
func New() string {
	raw := xid.New()
	return hex.EncodeToString(raw.Bytes())
}

// IsValid reports whether id has the expected 24-hex-character shape.
// Case-insensitive, matching the boundary contract.
func IsValid(id string) bool {
	if len(id) != 24 {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
