package cryptox

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// Digest returns the hex-encoded SHA-256 of the plaintext. It is computed
// before encryption and checked against whatever is later decrypted.
func Digest(plaintext []byte) string {
	sum := sha256.Sum256(plaintext)
	return hex.EncodeToString(sum[:])
}

// VerifyDigest reports whether plaintext hashes to expected. The comparison
// is constant-time.
func VerifyDigest(plaintext []byte, expected string) bool {
	actual := Digest(plaintext)
	return subtle.ConstantTimeCompare([]byte(actual), []byte(expected)) == 1
}
