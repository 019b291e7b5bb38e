package account

import "errors"

// Sentinel errors forming the request-facing taxonomy. Together with
// auth.ErrForbidden, store.ErrUserNotFound, and store.ErrEmailExists they
// are everything the HTTP layer maps to a status code; driver errors and
// SQL text never cross the API boundary.
var (
	// ErrValidation marks malformed or missing input. Wrapped values add
	// the field-level detail.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidCredentials is the uniform login failure. Unknown email
	// and wrong password are deliberately indistinguishable.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrUnauthenticated covers missing, malformed, expired, revoked, and
	// dangling session tokens alike.
	ErrUnauthenticated = errors.New("unauthenticated")
)
