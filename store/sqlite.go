package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/quay-labs/rosterd/auth"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	role TEXT NOT NULL DEFAULT 'user',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	token_hash TEXT NOT NULL UNIQUE,
	expires_at TEXT NOT NULL,
	created_at TEXT NOT NULL,
	FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_sessions_token_hash ON sessions(token_hash);
CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);
CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at);
`

// SQLiteConfig configures the SQLite store.
type SQLiteConfig struct {
	DSN string
}

// SQLite persists users and sessions in a SQLite database. It is the
// default backend for single-node deployments and for tests.
type SQLite struct {
	db *sql.DB
}

var _ Store = (*SQLite)(nil)

// NewSQLite opens (or creates) a SQLite-backed store.
func NewSQLite(cfg SQLiteConfig) (*SQLite, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("sqlite store: dsn is required")
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlite store open: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite store set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite store enable foreign keys: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite store create schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// CreateUser inserts a user row.
func (s *SQLite) CreateUser(ctx context.Context, rec UserRecord) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO users (id, email, name, password_hash, role, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.Email,
		rec.Name,
		rec.PasswordHash,
		string(rec.Role),
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isSQLiteEmailViolation(err) {
			return ErrEmailExists
		}
		return fmt.Errorf("sqlite store create user: %w", err)
	}
	return nil
}

// GetUserByEmail retrieves a user by exact email value.
func (s *SQLite) GetUserByEmail(ctx context.Context, email string) (UserRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, email, name, password_hash, role, created_at, updated_at
FROM users
WHERE email = ?`, email)
	return scanSQLiteUser(row)
}

// GetUserByID retrieves a user by ID.
func (s *SQLite) GetUserByID(ctx context.Context, id string) (UserRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, email, name, password_hash, role, created_at, updated_at
FROM users
WHERE id = ?`, id)
	return scanSQLiteUser(row)
}

// ListUsers returns all users ordered by creation time.
func (s *SQLite) ListUsers(ctx context.Context) ([]UserRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, email, name, password_hash, role, created_at, updated_at
FROM users
ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite store list users: %w", err)
	}
	defer rows.Close()

	var records []UserRecord
	for rows.Next() {
		rec, err := scanSQLiteUserRow(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite store list users: %w", err)
	}
	return records, nil
}

// UpdateUser rewrites the mutable fields of an existing row.
func (s *SQLite) UpdateUser(ctx context.Context, rec UserRecord) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE users
SET email = ?, name = ?, password_hash = ?, role = ?, updated_at = ?
WHERE id = ?`,
		rec.Email,
		rec.Name,
		rec.PasswordHash,
		string(rec.Role),
		rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
		rec.ID,
	)
	if err != nil {
		if isSQLiteEmailViolation(err) {
			return ErrEmailExists
		}
		return fmt.Errorf("sqlite store update user: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite store update user affected rows: %w", err)
	}
	if affected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// DeleteUser removes a user and its sessions in one transaction.
func (s *SQLite) DeleteUser(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite store delete user begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, id); err != nil {
		return fmt.Errorf("sqlite store delete user sessions: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite store delete user: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite store delete user affected rows: %w", err)
	}
	if affected == 0 {
		return ErrUserNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite store delete user commit: %w", err)
	}
	return nil
}

// CreateSession inserts a session row.
func (s *SQLite) CreateSession(ctx context.Context, sess SessionRecord) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO sessions (id, user_id, token_hash, expires_at, created_at)
VALUES (?, ?, ?, ?, ?)`,
		sess.ID,
		sess.UserID,
		sess.TokenHash,
		sess.ExpiresAt.UTC().Format(time.RFC3339Nano),
		sess.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("sqlite store create session: %w", err)
	}
	return nil
}

// GetSessionByTokenHash retrieves a session by token digest.
func (s *SQLite) GetSessionByTokenHash(ctx context.Context, tokenHash string) (SessionRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, user_id, token_hash, expires_at, created_at
FROM sessions
WHERE token_hash = ?`, tokenHash)

	var (
		sess      SessionRecord
		expiresAt string
		createdAt string
	)
	if err := row.Scan(&sess.ID, &sess.UserID, &sess.TokenHash, &expiresAt, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SessionRecord{}, false, nil
		}
		return SessionRecord{}, false, fmt.Errorf("sqlite store get session: %w", err)
	}

	var err error
	if sess.ExpiresAt, err = time.Parse(time.RFC3339Nano, expiresAt); err != nil {
		return SessionRecord{}, false, fmt.Errorf("sqlite store parse expires_at: %w", err)
	}
	if sess.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return SessionRecord{}, false, fmt.Errorf("sqlite store parse created_at: %w", err)
	}
	return sess, true, nil
}

// DeleteSession removes a session by ID.
func (s *SQLite) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite store delete session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite store delete session affected rows: %w", err)
	}
	if affected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// DeleteUserSessions removes all sessions for a user.
func (s *SQLite) DeleteUserSessions(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("sqlite store delete user sessions: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes sessions that expired at or before now.
func (s *SQLite) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`,
		now.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("sqlite store delete expired sessions: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite store delete expired sessions affected rows: %w", err)
	}
	return affected, nil
}

type sqliteRowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteUserRow(scanner sqliteRowScanner) (UserRecord, error) {
	var (
		rec       UserRecord
		role      string
		createdAt string
		updatedAt string
	)
	if err := scanner.Scan(&rec.ID, &rec.Email, &rec.Name, &rec.PasswordHash, &role, &createdAt, &updatedAt); err != nil {
		return UserRecord{}, err
	}

	rec.Role = auth.Role(role)
	var err error
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return UserRecord{}, fmt.Errorf("sqlite store parse created_at: %w", err)
	}
	if rec.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return UserRecord{}, fmt.Errorf("sqlite store parse updated_at: %w", err)
	}
	return rec, nil
}

func scanSQLiteUser(row *sql.Row) (UserRecord, bool, error) {
	rec, err := scanSQLiteUserRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return UserRecord{}, false, nil
		}
		return UserRecord{}, false, fmt.Errorf("sqlite store get user: %w", err)
	}
	return rec, true, nil
}

func isSQLiteEmailViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed: users.email")
}
