package dataset

import (
	"crypto/sha1"
	"encoding/hex"
	"path/filepath"
)

// GenerateIdentifier derives the identifier of the item stored at relpath.
// Separators are normalised to forward slashes first so identifiers do not
// depend on the host OS.
func GenerateIdentifier(relpath string) Identifier {
	sum := sha1.Sum([]byte(filepath.ToSlash(relpath)))
	return Identifier(hex.EncodeToString(sum[:]))
}
