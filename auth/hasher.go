// Package auth holds the authentication primitives shared by the account
// service and the HTTP layer: password hashing, session token generation,
// and the role/identity model.
package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrCorruptCredential indicates a stored password hash that bcrypt cannot
// parse. This is a storage fault, not a failed login.
var ErrCorruptCredential = errors.New("corrupt credential record")

// Hasher hashes and verifies passwords with bcrypt.
type Hasher struct {
	cost int
}

// NewHasher returns a Hasher at bcrypt's default cost.
func NewHasher() *Hasher {
	return &Hasher{cost: bcrypt.DefaultCost}
}

// Hash returns a salted, self-describing digest of plaintext. Two calls
// with the same input produce different records.
func (h *Hasher) Hash(plaintext string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(digest), nil
}

// Verify reports whether plaintext matches record. A normal mismatch is
// (false, nil); a record bcrypt cannot parse yields ErrCorruptCredential.
func (h *Hasher) Verify(plaintext, record string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(record), []byte(plaintext))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %v", ErrCorruptCredential, err)
	}
}
