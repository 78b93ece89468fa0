package session

import "time"

// Kind distinguishes access from refresh tokens. A token of one kind never validates as the other.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Claims is the verified content of a token.
type Claims struct {
	UserID    string
	TokenID   string // empty for access tokens
	Kind      Kind
	Issuer    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenManager signs and verifies tokens of both kinds.
type TokenManager interface {
	Issue(userID, tokenID string, kind Kind, now time.Time) (token string, exp time.Time, err error)
	Verify(token string, kind Kind, now time.Time) (Claims, error)
}

// NewTokenManager returns the manager selected by cfg.Signer.
func NewTokenManager(cfg Config) (TokenManager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Signer {
	case SignerJWT:
		return NewJWTManager(cfg)
	default:
		return NewPasetoV4PublicManager(cfg)
	}
}

func ttlFor(cfg Config, kind Kind) time.Duration {
	if kind == KindRefresh {
		return cfg.RefreshTTL
	}
	return cfg.AccessTTL
}
