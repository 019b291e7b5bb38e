package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quay-labs/rosterd/auth"
)

func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()

	path := filepath.Join(t.TempDir(), "rosterd.db")
	st, err := NewSQLite(SQLiteConfig{DSN: path})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func testUser(id, email string) UserRecord {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return UserRecord{
		ID:           id,
		Email:        email,
		Name:         "Test User",
		PasswordHash: "$2a$10$fakefakefakefakefakefake",
		Role:         auth.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func testSession(id, userID, tokenHash string, expiresAt time.Time) SessionRecord {
	return SessionRecord{
		ID:        id,
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestSQLiteRequiresDSN(t *testing.T) {
	_, err := NewSQLite(SQLiteConfig{})
	require.Error(t, err)
}

func TestSQLiteUserCRUD(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()

	rec := testUser("u1", "alice@example.com")
	require.NoError(t, st.CreateUser(ctx, rec))

	got, ok, err := st.GetUserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, rec.Email, got.Email)
	assert.Equal(t, rec.PasswordHash, got.PasswordHash)
	assert.Equal(t, auth.RoleUser, got.Role)
	assert.True(t, got.CreatedAt.Equal(rec.CreatedAt))

	got, ok, err = st.GetUserByID(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "alice@example.com", got.Email)

	_, ok, err = st.GetUserByID(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = st.GetUserByEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteDuplicateEmail(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, st.CreateUser(ctx, testUser("u1", "alice@example.com")))

	err := st.CreateUser(ctx, testUser("u2", "alice@example.com"))
	require.ErrorIs(t, err, ErrEmailExists)
}

func TestSQLiteListUsersOrdered(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()

	first := testUser("u1", "first@example.com")
	second := testUser("u2", "second@example.com")
	second.CreatedAt = first.CreatedAt.Add(time.Minute)
	second.UpdatedAt = second.CreatedAt

	require.NoError(t, st.CreateUser(ctx, second))
	require.NoError(t, st.CreateUser(ctx, first))

	users, err := st.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "u1", users[0].ID)
	assert.Equal(t, "u2", users[1].ID)
}

func TestSQLiteUpdateUser(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()

	rec := testUser("u1", "alice@example.com")
	require.NoError(t, st.CreateUser(ctx, rec))

	rec.Email = "alice.new@example.com"
	rec.Role = auth.RoleAdmin
	rec.UpdatedAt = rec.UpdatedAt.Add(time.Hour)
	require.NoError(t, st.UpdateUser(ctx, rec))

	got, ok, err := st.GetUserByID(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "alice.new@example.com", got.Email)
	assert.Equal(t, auth.RoleAdmin, got.Role)
}

func TestSQLiteUpdateUserKeepingOwnEmail(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()

	rec := testUser("u1", "alice@example.com")
	require.NoError(t, st.CreateUser(ctx, rec))

	// Rewriting the row with its current email is not a conflict.
	rec.Name = "Alice Renamed"
	require.NoError(t, st.UpdateUser(ctx, rec))
}

func TestSQLiteUpdateUserEmailCollision(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, st.CreateUser(ctx, testUser("u1", "alice@example.com")))
	bob := testUser("u2", "bob@example.com")
	require.NoError(t, st.CreateUser(ctx, bob))

	bob.Email = "alice@example.com"
	err := st.UpdateUser(ctx, bob)
	require.ErrorIs(t, err, ErrEmailExists)
}

func TestSQLiteUpdateMissingUser(t *testing.T) {
	st := newTestSQLite(t)

	err := st.UpdateUser(context.Background(), testUser("ghost", "ghost@example.com"))
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestSQLiteDeleteUserCascadesSessions(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, st.CreateUser(ctx, testUser("u1", "alice@example.com")))
	expires := time.Now().Add(time.Hour)
	require.NoError(t, st.CreateSession(ctx, testSession("s1", "u1", "hash-1", expires)))
	require.NoError(t, st.CreateSession(ctx, testSession("s2", "u1", "hash-2", expires)))

	require.NoError(t, st.DeleteUser(ctx, "u1"))

	_, ok, err := st.GetUserByID(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	for _, hash := range []string{"hash-1", "hash-2"} {
		_, ok, err := st.GetSessionByTokenHash(ctx, hash)
		require.NoError(t, err)
		assert.False(t, ok, "session %s should be gone", hash)
	}
}

func TestSQLiteDeleteMissingUser(t *testing.T) {
	st := newTestSQLite(t)

	err := st.DeleteUser(context.Background(), "ghost")
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestSQLiteSessionLifecycle(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, st.CreateUser(ctx, testUser("u1", "alice@example.com")))
	expires := time.Date(2026, 3, 8, 12, 0, 0, 0, time.UTC)
	require.NoError(t, st.CreateSession(ctx, testSession("s1", "u1", "hash-1", expires)))

	sess, ok, err := st.GetSessionByTokenHash(ctx, "hash-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "s1", sess.ID)
	assert.Equal(t, "u1", sess.UserID)
	assert.True(t, sess.ExpiresAt.Equal(expires))

	require.NoError(t, st.DeleteSession(ctx, "s1"))

	_, ok, err = st.GetSessionByTokenHash(ctx, "hash-1")
	require.NoError(t, err)
	assert.False(t, ok)

	err = st.DeleteSession(ctx, "s1")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSQLiteDeleteUserSessions(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, st.CreateUser(ctx, testUser("u1", "alice@example.com")))
	require.NoError(t, st.CreateUser(ctx, testUser("u2", "bob@example.com")))
	expires := time.Now().Add(time.Hour)
	require.NoError(t, st.CreateSession(ctx, testSession("s1", "u1", "hash-1", expires)))
	require.NoError(t, st.CreateSession(ctx, testSession("s2", "u2", "hash-2", expires)))

	require.NoError(t, st.DeleteUserSessions(ctx, "u1"))

	_, ok, err := st.GetSessionByTokenHash(ctx, "hash-1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = st.GetSessionByTokenHash(ctx, "hash-2")
	require.NoError(t, err)
	assert.True(t, ok, "other user's session must survive")
}

func TestSQLiteDeleteExpiredSessions(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, st.CreateUser(ctx, testUser("u1", "alice@example.com")))

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, st.CreateSession(ctx, testSession("s1", "u1", "old-1", now.Add(-time.Hour))))
	require.NoError(t, st.CreateSession(ctx, testSession("s2", "u1", "edge", now)))
	require.NoError(t, st.CreateSession(ctx, testSession("s3", "u1", "live", now.Add(time.Hour))))

	swept, err := st.DeleteExpiredSessions(ctx, now)
	require.NoError(t, err)
	// The boundary row counts as expired: expiry is exclusive of validity.
	assert.Equal(t, int64(2), swept)

	_, ok, err := st.GetSessionByTokenHash(ctx, "live")
	require.NoError(t, err)
	assert.True(t, ok)
}
