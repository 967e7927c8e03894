package models

// IsNotFoundError returns whether an error represents a "not found" error.
func IsNotFoundError(err error) bool {
	switch err.(type) {
	case UserNotFoundError, *UserNotFoundError:
		return true
	case OIDCStateNotFoundError, *OIDCStateNotFoundError:
		return true
	}
	return false
}

// UserNotFoundError represents when a user is not found.
type UserNotFoundError struct{}

func (e UserNotFoundError) Error() string {
	return "User not found"
}

// OIDCStateNotFoundError represents when a login state is unknown, already
// consumed or expired.
type OIDCStateNotFoundError struct{}

func (e OIDCStateNotFoundError) Error() string {
	return "OIDC state not found"
}
