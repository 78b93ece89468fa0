package session

import "errors"

var (
	// ErrInvalidToken is returned when a token fails signature, claim or kind validation,
	// or when its digest does not match the ledger.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenNotFound is returned when a refresh token id has no ledger entry.
	ErrTokenNotFound = errors.New("token not found")

	// ErrTokenExpired is returned when the ledger entry is past its expiry.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenRevoked is returned when the ledger entry has been revoked.
	ErrTokenRevoked = errors.New("token revoked")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)

// IsRejected reports whether err is one of the refresh-token rejection kinds
// (as opposed to a storage failure).
func IsRejected(err error) bool {
	return errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrTokenNotFound) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrTokenRevoked)
}
