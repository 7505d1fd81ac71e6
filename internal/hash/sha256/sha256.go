// Package sha256 provides content fingerprinting for the extraction cache.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher implements parser.Hasher using SHA-256. Identical bytes always
// produce the same fingerprint regardless of filename.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash fingerprints the input and returns a hex digest.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
