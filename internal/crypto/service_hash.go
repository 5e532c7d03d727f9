package crypto

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// HashAPIKey computes the SHA-256 hex hash an API key is compared by.
func HashAPIKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}

// MatchAPIKey compares a presented key against a stored hash in constant time.
func MatchAPIKey(presented, storedHash string) bool {
	return subtle.ConstantTimeCompare([]byte(HashAPIKey(presented)), []byte(storedHash)) == 1
}
