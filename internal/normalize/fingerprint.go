package normalize

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint returns the hex-encoded SHA-256 of the normalized bytes.
// It is the sole cache key: identical normalized bytes always map to the
// same fingerprint, and nothing else (filename, upload time) feeds in.
func Fingerprint(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Fingerprint of this image's canonical bytes.
func (n *NormalizedImage) Fingerprint() string {
	return Fingerprint(n.Bytes)
}
