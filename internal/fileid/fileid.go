// Package fileid derives stable thesis ids for imported files that carry no id of their own.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

// idBytes is the digest length kept; 12 bytes give the same 24-hex shape as an ObjectID.
const idBytes = 12

// ThesisID returns a stable id for the thesis file at path.
// The same cleaned path always yields the same id, so a re-import updates the
// existing row instead of duplicating it.
func ThesisID(path string) string {
	normalized := filepath.Clean(path)
	if abs, err := filepath.Abs(normalized); err == nil {
		normalized = abs
	}
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:idBytes])
}
