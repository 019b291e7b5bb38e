package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

// tokenBytes is the entropy of a session token. 32 bytes is double the
// 128-bit floor for an unguessable bearer credential.
const tokenBytes = 32

// TokenLength is the length of an issued token in hex characters.
const TokenLength = tokenBytes * 2

// NewToken returns a hex-encoded, cryptographically random session token.
func NewToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// DigestToken returns the SHA-256 digest under which a token is stored.
// Only digests are persisted, so a leaked sessions table does not yield
// usable bearer tokens.
func DigestToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// WellFormedToken reports whether a presented token has the shape this
// service issues. Anything else can be rejected before touching the store.
func WellFormedToken(token string) bool {
	if len(token) != TokenLength {
		return false
	}
	for i := 0; i < len(token); i++ {
		c := token[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
