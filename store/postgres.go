package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/quay-labs/rosterd/auth"
	"github.com/quay-labs/rosterd/store/migrations"
)

// pgUniqueViolation is the Postgres error code for a unique constraint hit.
const pgUniqueViolation = "23505"

// PostgresConfig configures the Postgres store.
type PostgresConfig struct {
	DSN string
}

// Postgres persists users and sessions in PostgreSQL via the pgx stdlib
// driver. Multiple server instances may share one database; uniqueness is
// enforced by the schema, not by this process.
type Postgres struct {
	db *sql.DB
}

var _ Store = (*Postgres)(nil)

// NewPostgres opens a connection pool and applies pending migrations.
func NewPostgres(ctx context.Context, cfg PostgresConfig) (*Postgres, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("postgres store: dsn is required")
	}

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres store open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres store ping: %w", err)
	}

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres store set dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres store migrate: %w", err)
	}

	return &Postgres{db: db}, nil
}

// NewPostgresFromDB wraps an existing connection without running
// migrations. Used by tests.
func NewPostgresFromDB(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Close releases the connection pool.
func (s *Postgres) Close() error {
	return s.db.Close()
}

// CreateUser inserts a user row.
func (s *Postgres) CreateUser(ctx context.Context, rec UserRecord) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO users (id, email, name, password_hash, role, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.Email, rec.Name, rec.PasswordHash, string(rec.Role),
		rec.CreatedAt.UTC(), rec.UpdatedAt.UTC(),
	)
	if err != nil {
		if isPGEmailViolation(err) {
			return ErrEmailExists
		}
		return fmt.Errorf("postgres store create user: %w", err)
	}
	return nil
}

// GetUserByEmail retrieves a user by exact email value.
func (s *Postgres) GetUserByEmail(ctx context.Context, email string) (UserRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, email, name, password_hash, role, created_at, updated_at
FROM users
WHERE email = $1`, email)
	return scanPGUser(row)
}

// GetUserByID retrieves a user by ID.
func (s *Postgres) GetUserByID(ctx context.Context, id string) (UserRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, email, name, password_hash, role, created_at, updated_at
FROM users
WHERE id = $1`, id)
	return scanPGUser(row)
}

// ListUsers returns all users ordered by creation time.
func (s *Postgres) ListUsers(ctx context.Context) ([]UserRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, email, name, password_hash, role, created_at, updated_at
FROM users
ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres store list users: %w", err)
	}
	defer rows.Close()

	var records []UserRecord
	for rows.Next() {
		var (
			rec  UserRecord
			role string
		)
		if err := rows.Scan(&rec.ID, &rec.Email, &rec.Name, &rec.PasswordHash, &role, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres store scan user: %w", err)
		}
		rec.Role = auth.Role(role)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres store list users: %w", err)
	}
	return records, nil
}

// UpdateUser rewrites the mutable fields of an existing row.
func (s *Postgres) UpdateUser(ctx context.Context, rec UserRecord) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE users
SET email = $1, name = $2, password_hash = $3, role = $4, updated_at = $5
WHERE id = $6`,
		rec.Email, rec.Name, rec.PasswordHash, string(rec.Role),
		rec.UpdatedAt.UTC(), rec.ID,
	)
	if err != nil {
		if isPGEmailViolation(err) {
			return ErrEmailExists
		}
		return fmt.Errorf("postgres store update user: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres store update user affected rows: %w", err)
	}
	if affected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// DeleteUser removes a user and its sessions in one transaction. The
// schema also cascades, but the explicit delete keeps both backends
// behaviorally identical.
func (s *Postgres) DeleteUser(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres store delete user begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = $1`, id); err != nil {
		return fmt.Errorf("postgres store delete user sessions: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres store delete user: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres store delete user affected rows: %w", err)
	}
	if affected == 0 {
		return ErrUserNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres store delete user commit: %w", err)
	}
	return nil
}

// CreateSession inserts a session row.
func (s *Postgres) CreateSession(ctx context.Context, sess SessionRecord) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO sessions (id, user_id, token_hash, expires_at, created_at)
VALUES ($1, $2, $3, $4, $5)`,
		sess.ID, sess.UserID, sess.TokenHash,
		sess.ExpiresAt.UTC(), sess.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("postgres store create session: %w", err)
	}
	return nil
}

// GetSessionByTokenHash retrieves a session by token digest.
func (s *Postgres) GetSessionByTokenHash(ctx context.Context, tokenHash string) (SessionRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, user_id, token_hash, expires_at, created_at
FROM sessions
WHERE token_hash = $1`, tokenHash)

	var sess SessionRecord
	if err := row.Scan(&sess.ID, &sess.UserID, &sess.TokenHash, &sess.ExpiresAt, &sess.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SessionRecord{}, false, nil
		}
		return SessionRecord{}, false, fmt.Errorf("postgres store get session: %w", err)
	}
	return sess, true, nil
}

// DeleteSession removes a session by ID.
func (s *Postgres) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres store delete session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres store delete session affected rows: %w", err)
	}
	if affected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// DeleteUserSessions removes all sessions for a user.
func (s *Postgres) DeleteUserSessions(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("postgres store delete user sessions: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes sessions that expired at or before now.
func (s *Postgres) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("postgres store delete expired sessions: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("postgres store delete expired sessions affected rows: %w", err)
	}
	return affected, nil
}

func scanPGUser(row *sql.Row) (UserRecord, bool, error) {
	var (
		rec  UserRecord
		role string
	)
	if err := row.Scan(&rec.ID, &rec.Email, &rec.Name, &rec.PasswordHash, &role, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return UserRecord{}, false, nil
		}
		return UserRecord{}, false, fmt.Errorf("postgres store get user: %w", err)
	}
	rec.Role = auth.Role(role)
	return rec, true, nil
}

func isPGEmailViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation && strings.Contains(pgErr.ConstraintName, "email")
}
