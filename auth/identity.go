package auth

import "errors"

// ErrForbidden is returned by Require when an identity lacks the needed
// role. The HTTP layer maps it to 403.
var ErrForbidden = errors.New("forbidden")

// Identity is the authenticated principal a resolved session token carries.
// It is passed explicitly into every downstream call; nothing reads it from
// ambient request state.
type Identity struct {
	UserID string
	Role   Role
}

// Require enforces the role gate. Admin-only operations demand an exact
// admin role; user-level operations accept either role. Any role outside
// the closed set is denied.
func Require(id Identity, required Role) error {
	switch required {
	case RoleAdmin:
		if id.Role == RoleAdmin {
			return nil
		}
	case RoleUser:
		if id.Role == RoleUser || id.Role == RoleAdmin {
			return nil
		}
	}
	return ErrForbidden
}
