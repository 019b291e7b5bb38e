package auth

import "fmt"

// Role is the coarse authorization tier attached to every user. The set is
// closed: exactly two values exist, with no hierarchy beyond "admin passes
// user-level gates".
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ParseRole validates an incoming role string against the closed set.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleUser, RoleAdmin:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Valid reports whether r is one of the two defined roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}
