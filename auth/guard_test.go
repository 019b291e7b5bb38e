package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequire(t *testing.T) {
	tests := []struct {
		name     string
		role     Role
		required Role
		allowed  bool
	}{
		{"user passes user gate", RoleUser, RoleUser, true},
		{"admin passes user gate", RoleAdmin, RoleUser, true},
		{"admin passes admin gate", RoleAdmin, RoleAdmin, true},
		{"user fails admin gate", RoleUser, RoleAdmin, false},
		{"unknown role fails user gate", Role("superuser"), RoleUser, false},
		{"unknown role fails admin gate", Role("superuser"), RoleAdmin, false},
		{"empty role fails", Role(""), RoleUser, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Require(Identity{UserID: "u1", Role: tt.role}, tt.required)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrForbidden)
			}
		})
	}
}

func TestParseRole(t *testing.T) {
	role, err := ParseRole("admin")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, role)

	role, err = ParseRole("user")
	require.NoError(t, err)
	assert.Equal(t, RoleUser, role)

	_, err = ParseRole("root")
	assert.Error(t, err)

	_, err = ParseRole("Admin")
	assert.Error(t, err, "roles are case-sensitive")
}

func TestRoleValid(t *testing.T) {
	assert.True(t, RoleUser.Valid())
	assert.True(t, RoleAdmin.Valid())
	assert.False(t, Role("moderator").Valid())
	assert.False(t, Role("").Valid())
}
