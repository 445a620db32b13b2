// Package fingerprint computes content fingerprints for proof records.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
)

// Size is the length of a hex-encoded fingerprint.
const Size = sha256.Size * 2

// Digest returns the lowercase hex SHA-256 digest of the exact byte
// sequence of content. No normalisation is applied.
func Digest(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
