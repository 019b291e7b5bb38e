// Package account implements the authentication and user-management core:
// registration, login, session issue/verify/revoke, and the role-gated
// admin CRUD operations over the credential store.
package account

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quay-labs/rosterd/auth"
	"github.com/quay-labs/rosterd/store"
)

// DefaultSessionTTL is how long an issued session stays valid unless
// configured otherwise.
const DefaultSessionTTL = 7 * 24 * time.Hour

const minPasswordLength = 8

// Config configures a Service.
type Config struct {
	Store      store.Store
	Hasher     *auth.Hasher
	SessionTTL time.Duration

	// Clock overrides time.Now. Tests use it to cross expiry boundaries.
	Clock func() time.Time

	Logger *slog.Logger
}

// AuthResult is returned by Register and Login: the account plus a fresh
// bearer token. The token exists only here and in the client's hands; the
// store keeps its digest.
type AuthResult struct {
	User      store.UserRecord
	Token     string
	ExpiresAt time.Time
}

// UserUpdate is a partial update; nil fields stay unchanged.
type UserUpdate struct {
	Email    *string
	Name     *string
	Password *string
	Role     *auth.Role
}

// Service is the authentication and user-management core. All state lives
// in the store; a Service holds no per-request caches and is safe for
// concurrent use.
type Service struct {
	store      store.Store
	hasher     *auth.Hasher
	sessionTTL time.Duration
	clock      func() time.Time
	logger     *slog.Logger

	// decoyHash absorbs a bcrypt comparison when the email is unknown so
	// login latency does not reveal account existence.
	decoyHash string
}

// NewService creates a Service with the given configuration.
func NewService(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("account service: store is required")
	}
	hasher := cfg.Hasher
	if hasher == nil {
		hasher = auth.NewHasher()
	}
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	decoy, err := hasher.Hash("rosterd-decoy-credential")
	if err != nil {
		return nil, fmt.Errorf("account service: prepare decoy hash: %w", err)
	}

	return &Service{
		store:      cfg.Store,
		hasher:     hasher,
		sessionTTL: ttl,
		clock:      clock,
		logger:     logger,
		decoyHash:  decoy,
	}, nil
}

// Register creates an account with role "user" and logs it in. The public
// registration path can never mint an admin.
func (s *Service) Register(ctx context.Context, email, name, password string) (AuthResult, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return AuthResult{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return AuthResult{}, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if err := validatePassword(password); err != nil {
		return AuthResult{}, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return AuthResult{}, fmt.Errorf("register: %w", err)
	}

	now := s.clock().UTC()
	rec := store.UserRecord{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Role:         auth.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateUser(ctx, rec); err != nil {
		return AuthResult{}, err
	}

	return s.issueSession(ctx, rec)
}

// Login verifies credentials and mints a session. Unknown email and wrong
// password both come back as ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (AuthResult, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return AuthResult{}, ErrInvalidCredentials
	}

	user, ok, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return AuthResult{}, fmt.Errorf("login: %w", err)
	}
	if !ok {
		// Burn a comparison anyway; see decoyHash.
		_, _ = s.hasher.Verify(password, s.decoyHash)
		return AuthResult{}, ErrInvalidCredentials
	}

	match, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return AuthResult{}, fmt.Errorf("login user %s: %w", user.ID, err)
	}
	if !match {
		return AuthResult{}, ErrInvalidCredentials
	}

	return s.issueSession(ctx, user)
}

// Logout revokes the session behind token. Revoking an unknown or already
// revoked token succeeds; there is nothing useful to tell the caller.
func (s *Service) Logout(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if !auth.WellFormedToken(token) {
		return nil
	}
	sess, ok, err := s.store.GetSessionByTokenHash(ctx, auth.DigestToken(token))
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	if !ok {
		return nil
	}
	if err := s.store.DeleteSession(ctx, sess.ID); err != nil && err != store.ErrSessionNotFound {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// Resolve turns a bearer token into an authenticated identity. It is the
// single choke point every protected operation passes through. Missing,
// malformed, unknown, and expired tokens all resolve to
// ErrUnauthenticated; a session whose user is gone is revoked on sight.
func (s *Service) Resolve(ctx context.Context, token string) (auth.Identity, error) {
	token = strings.TrimSpace(token)
	if !auth.WellFormedToken(token) {
		return auth.Identity{}, ErrUnauthenticated
	}

	sess, ok, err := s.store.GetSessionByTokenHash(ctx, auth.DigestToken(token))
	if err != nil {
		return auth.Identity{}, fmt.Errorf("resolve session: %w", err)
	}
	if !ok {
		return auth.Identity{}, ErrUnauthenticated
	}

	// Lazy expiry: the row may still exist, the verifier treats it as
	// absent from the instant now >= expires_at.
	if !s.clock().Before(sess.ExpiresAt) {
		return auth.Identity{}, ErrUnauthenticated
	}

	user, ok, err := s.store.GetUserByID(ctx, sess.UserID)
	if err != nil {
		return auth.Identity{}, fmt.Errorf("resolve user: %w", err)
	}
	if !ok {
		// Dangling session for a deleted user. Revoke it; best effort.
		if err := s.store.DeleteSession(ctx, sess.ID); err != nil && err != store.ErrSessionNotFound {
			s.logger.Warn("revoke dangling session failed", "session_id", sess.ID, "error", err)
		}
		return auth.Identity{}, ErrUnauthenticated
	}

	return auth.Identity{UserID: user.ID, Role: user.Role}, nil
}

// GetSelf returns the caller's own account.
func (s *Service) GetSelf(ctx context.Context, id auth.Identity) (store.UserRecord, error) {
	if err := auth.Require(id, auth.RoleUser); err != nil {
		return store.UserRecord{}, err
	}
	user, ok, err := s.store.GetUserByID(ctx, id.UserID)
	if err != nil {
		return store.UserRecord{}, fmt.Errorf("get self: %w", err)
	}
	if !ok {
		return store.UserRecord{}, ErrUnauthenticated
	}
	return scrubbed(user), nil
}

// ListAll returns every account. Admin only.
func (s *Service) ListAll(ctx context.Context, id auth.Identity) ([]store.UserRecord, error) {
	if err := auth.Require(id, auth.RoleAdmin); err != nil {
		return nil, err
	}
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		users[i] = scrubbed(users[i])
	}
	return users, nil
}

// CreateUser creates an account with an explicit role. Admin only.
func (s *Service) CreateUser(ctx context.Context, id auth.Identity, email, name, password string, role auth.Role) (store.UserRecord, error) {
	if err := auth.Require(id, auth.RoleAdmin); err != nil {
		return store.UserRecord{}, err
	}

	email, err := normalizeEmail(email)
	if err != nil {
		return store.UserRecord{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return store.UserRecord{}, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if err := validatePassword(password); err != nil {
		return store.UserRecord{}, err
	}
	if !role.Valid() {
		return store.UserRecord{}, fmt.Errorf("%w: role must be %q or %q", ErrValidation, auth.RoleUser, auth.RoleAdmin)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return store.UserRecord{}, fmt.Errorf("create user: %w", err)
	}

	now := s.clock().UTC()
	rec := store.UserRecord{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateUser(ctx, rec); err != nil {
		return store.UserRecord{}, err
	}
	return scrubbed(rec), nil
}

// UpdateUser applies a partial update to the target account. Admin only.
// Omitted fields are untouched; setting the email to its current value is
// not a conflict.
func (s *Service) UpdateUser(ctx context.Context, id auth.Identity, targetID string, upd UserUpdate) (store.UserRecord, error) {
	if err := auth.Require(id, auth.RoleAdmin); err != nil {
		return store.UserRecord{}, err
	}

	user, ok, err := s.store.GetUserByID(ctx, targetID)
	if err != nil {
		return store.UserRecord{}, fmt.Errorf("update user: %w", err)
	}
	if !ok {
		return store.UserRecord{}, store.ErrUserNotFound
	}

	if upd.Email != nil {
		email, err := normalizeEmail(*upd.Email)
		if err != nil {
			return store.UserRecord{}, err
		}
		user.Email = email
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return store.UserRecord{}, fmt.Errorf("%w: name is required", ErrValidation)
		}
		user.Name = name
	}
	if upd.Password != nil {
		if err := validatePassword(*upd.Password); err != nil {
			return store.UserRecord{}, err
		}
		hash, err := s.hasher.Hash(*upd.Password)
		if err != nil {
			return store.UserRecord{}, fmt.Errorf("update user: %w", err)
		}
		user.PasswordHash = hash
	}
	if upd.Role != nil {
		if !upd.Role.Valid() {
			return store.UserRecord{}, fmt.Errorf("%w: role must be %q or %q", ErrValidation, auth.RoleUser, auth.RoleAdmin)
		}
		user.Role = *upd.Role
	}

	user.UpdatedAt = s.clock().UTC()
	if err := s.store.UpdateUser(ctx, user); err != nil {
		return store.UserRecord{}, err
	}
	return scrubbed(user), nil
}

// DeleteUser removes the target account and revokes all of its sessions.
// Admin only, and never the caller's own account: an admin locked into
// self-service deletion is how a console loses its last administrator.
func (s *Service) DeleteUser(ctx context.Context, id auth.Identity, targetID string) error {
	if err := auth.Require(id, auth.RoleAdmin); err != nil {
		return err
	}
	if targetID == id.UserID {
		return auth.ErrForbidden
	}
	return s.store.DeleteUser(ctx, targetID)
}

func (s *Service) issueSession(ctx context.Context, user store.UserRecord) (AuthResult, error) {
	token, err := auth.NewToken()
	if err != nil {
		return AuthResult{}, fmt.Errorf("issue session token: %w", err)
	}

	now := s.clock().UTC()
	sess := store.SessionRecord{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		TokenHash: auth.DigestToken(token),
		ExpiresAt: now.Add(s.sessionTTL),
		CreatedAt: now,
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return AuthResult{}, fmt.Errorf("issue session: %w", err)
	}

	return AuthResult{User: scrubbed(user), Token: token, ExpiresAt: sess.ExpiresAt}, nil
}

// scrubbed returns a copy of rec safe to hand out of the service. The
// stored password hash never crosses this boundary.
func scrubbed(rec store.UserRecord) store.UserRecord {
	rec.PasswordHash = ""
	return rec
}

// normalizeEmail lowercases and trims the address; uniqueness operates on
// this canonical form.
func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	at := strings.IndexByte(email, '@')
	if at <= 0 || at == len(email)-1 || strings.ContainsAny(email, " \t") {
		return "", fmt.Errorf("%w: a valid email is required", ErrValidation)
	}
	return email, nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrValidation, minPasswordLength)
	}
	return nil
}
