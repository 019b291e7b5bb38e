// Package store persists users and sessions. Implementations must enforce
// email uniqueness inside the database itself, so concurrent writers —
// including other server instances sharing the store — cannot both succeed.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/quay-labs/rosterd/auth"
)

// Sentinel errors for store operations.
var (
	ErrUserNotFound    = errors.New("user not found")
	ErrEmailExists     = errors.New("email already in use")
	ErrSessionNotFound = errors.New("session not found")
)

// UserRecord represents a stored user account.
type UserRecord struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"` // never leaves the store boundary
	Role         auth.Role `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// SessionRecord represents an active session. TokenHash is the SHA-256
// digest of the bearer token; the plaintext token is never persisted.
type SessionRecord struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Store is the persistence contract shared by the SQLite and Postgres
// implementations.
type Store interface {
	// CreateUser inserts a user row. A duplicate email is ErrEmailExists.
	CreateUser(ctx context.Context, rec UserRecord) error

	// GetUserByEmail retrieves a user by exact email value.
	GetUserByEmail(ctx context.Context, email string) (UserRecord, bool, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id string) (UserRecord, bool, error)

	// ListUsers returns all users ordered by creation time.
	ListUsers(ctx context.Context) ([]UserRecord, error)

	// UpdateUser rewrites the mutable fields of an existing row.
	// A missing row is ErrUserNotFound; an email collision with a
	// different row is ErrEmailExists.
	UpdateUser(ctx context.Context, rec UserRecord) error

	// DeleteUser removes a user and, in the same transaction, every
	// session belonging to it. A missing row is ErrUserNotFound.
	DeleteUser(ctx context.Context, id string) error

	// CreateSession inserts a session row.
	CreateSession(ctx context.Context, sess SessionRecord) error

	// GetSessionByTokenHash retrieves a session by token digest. Expiry is
	// not checked here; the verifier owns that decision.
	GetSessionByTokenHash(ctx context.Context, tokenHash string) (SessionRecord, bool, error)

	// DeleteSession removes a session by ID. A missing row is
	// ErrSessionNotFound; callers revoking idempotently ignore it.
	DeleteSession(ctx context.Context, id string) error

	// DeleteUserSessions removes all sessions for a user.
	DeleteUserSessions(ctx context.Context, userID string) error

	// DeleteExpiredSessions removes sessions whose expiry is at or before
	// now and reports how many rows went away.
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)

	Close() error
}
