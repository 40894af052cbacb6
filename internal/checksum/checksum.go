// Package checksum fingerprints document content so unchanged saves and
// repeated renders can be skipped.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// shortLen is long enough to keep lock and cache keys collision-free in
// a single sandbox.
const shortLen = 16

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Short returns a truncated digest of s, usable as a file name.
func Short(s string) string {
	return Sum([]byte(s))[:shortLen]
}

// Same reports whether data hashes to sum. An empty sum never matches.
func Same(sum string, data []byte) bool {
	return sum != "" && Sum(data) == sum
}
