package desired

import "errors"

var (
	// ErrWeakPassword is returned when a database password fails the strength policy.
	ErrWeakPassword = errors.New("invalid postgresql password: must be at least 16 characters long with uppercase and lowercase letters, numbers, and special characters")

	// ErrMissingCredentials is returned when a credential secret lacks the
	// POSTGRES_USER or POSTGRES_PASSWORD key.
	ErrMissingCredentials = errors.New("missing postgresql credentials: provide a secret with postgresql username (POSTGRES_USER) and password (POSTGRES_PASSWORD)")

	// ErrInvalidMapping is returned when the container mapping cannot be normalized.
	ErrInvalidMapping = errors.New("invalid container mapping")
)

// IsFatal reports whether err makes the desired state unusable until it is
// corrected upstream. Fatal errors are never retried.
func IsFatal(err error) bool {
	return errors.Is(err, ErrWeakPassword) ||
		errors.Is(err, ErrMissingCredentials) ||
		errors.Is(err, ErrInvalidMapping)
}
