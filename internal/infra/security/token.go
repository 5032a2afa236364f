package security

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashToken calculates a SHA-256 hash of the provided value.
// Denylist keys are derived from it so raw tokens never reach the store.
func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
