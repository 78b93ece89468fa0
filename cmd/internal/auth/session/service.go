package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Fillsogood/promptbook/cmd/identity/ids"
	"github.com/Fillsogood/promptbook/cmd/security/token"
)

// maxTokenLen bounds presented tokens before any parsing.
const maxTokenLen = 4096

// Service implements issuance, refresh, revocation and access verification.
type Service struct {
	cfg    Config
	tokens TokenManager
	ledger Ledger
	hasher token.Hasher
	now    func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithHasher sets the digest used for ledger entries. The default is unkeyed SHA-256.
func WithHasher(h token.Hasher) ServiceOption {
	return func(s *Service) { s.hasher = h }
}

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Pair is a freshly minted access + refresh token pair.
type Pair struct {
	AccessToken  string
	AccessExp    time.Time
	RefreshToken string
	RefreshExp   time.Time
}

// Refreshed is the result of a refresh. RefreshToken is set only when rotation is enabled.
type Refreshed struct {
	AccessToken  string
	AccessExp    time.Time
	RefreshToken string
	RefreshExp   time.Time
}

// NewService constructs a Service.
func NewService(cfg Config, tokens TokenManager, ledger Ledger, opts ...ServiceOption) (*Service, error) {
	if tokens == nil || ledger == nil {
		return nil, fmt.Errorf("%w: nil token manager or ledger", ErrConfig)
	}

	s := &Service{
		cfg:    cfg,
		tokens: tokens,
		ledger: ledger,
		hasher: token.NewHasher(""),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Config returns the service configuration (TTLs are needed for cookie lifetimes).
func (s *Service) Config() Config { return s.cfg }

// Issue mints an access + refresh pair for userID and records the refresh token in the ledger.
func (s *Service) Issue(ctx context.Context, userID string) (Pair, error) {
	if strings.TrimSpace(userID) == "" {
		return Pair{}, fmt.Errorf("session: missing user id")
	}
	now := s.now()

	access, accessExp, err := s.tokens.Issue(userID, "", KindAccess, now)
	if err != nil {
		return Pair{}, err
	}

	refresh, entry, err := s.mintRefresh(userID, now)
	if err != nil {
		return Pair{}, err
	}
	if err := s.ledger.Record(ctx, entry); err != nil {
		return Pair{}, err
	}

	return Pair{
		AccessToken:  access,
		AccessExp:    accessExp,
		RefreshToken: refresh,
		RefreshExp:   entry.ExpiresAt,
	}, nil
}

// Refresh validates a refresh token against its signature and the ledger, then mints a
// new access token. With RotateRefresh the presented token is revoked and replaced.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Refreshed, error) {
	now := s.now()

	claims, entry, err := s.checkRefresh(ctx, refreshToken, now)
	if err != nil {
		return Refreshed{}, err
	}
	if entry.Revoked() {
		return Refreshed{}, ErrTokenRevoked
	}
	if !entry.ExpiresAt.After(now) {
		return Refreshed{}, ErrTokenExpired
	}

	access, accessExp, err := s.tokens.Issue(claims.UserID, "", KindAccess, now)
	if err != nil {
		return Refreshed{}, err
	}
	out := Refreshed{AccessToken: access, AccessExp: accessExp}

	if !s.cfg.RotateRefresh {
		return out, nil
	}

	next, nextEntry, err := s.mintRefresh(claims.UserID, now)
	if err != nil {
		return Refreshed{}, err
	}
	if err := s.ledger.Rotate(ctx, entry.TokenID, nextEntry, now); err != nil {
		return Refreshed{}, err
	}
	out.RefreshToken = next
	out.RefreshExp = nextEntry.ExpiresAt
	return out, nil
}

// Revoke revokes the ledger entry of refreshToken on behalf of userID.
// A token owned by another user is ErrInvalidToken. Revoking twice is not an error.
func (s *Service) Revoke(ctx context.Context, refreshToken, userID string) error {
	now := s.now()

	claims, entry, err := s.checkRefresh(ctx, refreshToken, now)
	if err != nil {
		return err
	}
	if claims.UserID != userID {
		return ErrInvalidToken
	}
	return s.ledger.Revoke(ctx, entry.TokenID, now)
}

// RevokeAll revokes every refresh token of userID.
func (s *Service) RevokeAll(ctx context.Context, userID string) error {
	return s.ledger.RevokeAllForUser(ctx, userID, s.now())
}

// PurgeUser deletes the user's ledger entries. It satisfies identity.Purger.
func (s *Service) PurgeUser(ctx context.Context, userID string) error {
	return s.ledger.DeleteForUser(ctx, userID)
}

// VerifyAccess verifies an access token. Refresh tokens are rejected.
func (s *Service) VerifyAccess(accessToken string) (Claims, error) {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" || len(accessToken) > maxTokenLen {
		return Claims{}, ErrInvalidToken
	}
	return s.tokens.Verify(accessToken, KindAccess, s.now())
}

// checkRefresh verifies signature and kind, loads the ledger entry and checks owner and digest.
// Revocation and ledger expiry are left to the caller.
func (s *Service) checkRefresh(ctx context.Context, refreshToken string, now time.Time) (Claims, LedgerEntry, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" || len(refreshToken) > maxTokenLen {
		return Claims{}, LedgerEntry{}, ErrInvalidToken
	}

	claims, err := s.tokens.Verify(refreshToken, KindRefresh, now)
	if err != nil {
		return Claims{}, LedgerEntry{}, err
	}

	entry, err := s.ledger.Get(ctx, claims.TokenID)
	if err != nil {
		return Claims{}, LedgerEntry{}, err
	}
	if entry.UserID != claims.UserID || !s.hasher.Matches(refreshToken, entry.TokenHash) {
		return Claims{}, LedgerEntry{}, ErrInvalidToken
	}
	return claims, entry, nil
}

func (s *Service) mintRefresh(userID string, now time.Time) (string, LedgerEntry, error) {
	jti, err := ids.NewULID(now)
	if err != nil {
		return "", LedgerEntry{}, err
	}

	tok, exp, err := s.tokens.Issue(userID, jti, KindRefresh, now)
	if err != nil {
		return "", LedgerEntry{}, err
	}

	return tok, LedgerEntry{
		TokenID:   jti,
		UserID:    userID,
		TokenHash: s.hasher.Hash(tok),
		IssuedAt:  now,
		ExpiresAt: exp,
	}, nil
}
