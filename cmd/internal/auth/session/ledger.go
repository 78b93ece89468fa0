package session

import (
	"context"
	"time"
)

// LedgerEntry is the server-side record of one issued refresh token.
type LedgerEntry struct {
	TokenID   string
	UserID    string
	TokenHash string // hex digest from security/token.Hasher
	IssuedAt  time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
}

// Revoked reports whether the entry has been revoked.
func (e LedgerEntry) Revoked() bool { return e.RevokedAt != nil }

// Ledger persists refresh-token entries and their revocation state.
type Ledger interface {
	// Record inserts a new entry.
	Record(ctx context.Context, e LedgerEntry) error

	// Get returns the entry for tokenID or ErrTokenNotFound.
	Get(ctx context.Context, tokenID string) (LedgerEntry, error)

	// Revoke marks the entry revoked. Revoking an already revoked entry is a no-op;
	// a missing entry is ErrTokenNotFound.
	Revoke(ctx context.Context, tokenID string, now time.Time) error

	// Rotate atomically revokes oldTokenID and records next. It fails with ErrTokenRevoked
	// if oldTokenID was revoked concurrently, leaving next unrecorded.
	Rotate(ctx context.Context, oldTokenID string, next LedgerEntry, now time.Time) error

	// RevokeAllForUser revokes every live entry owned by userID.
	RevokeAllForUser(ctx context.Context, userID string, now time.Time) error

	// DeleteForUser removes every entry owned by userID (account deletion).
	DeleteForUser(ctx context.Context, userID string) error
}
