package app

import (
	"errors"
	"strings"

	"github.com/Fillsogood/promptbook/cmd/internal/auth/session"
	"github.com/Fillsogood/promptbook/cmd/security/token"
)

// ValidateSecurityConfig enforces the startup security policy.
//
// Startup fails instead of silently falling back to weaker crypto:
//   - PROMPTBOOK_REQUIRE_TOKEN_HMAC=true demands a refresh-digest key of at least 32 bytes.
//   - Outside dev mode the selected token signer must have its key configured.
func ValidateSecurityConfig(cfg Config) error {
	if cfg.RequireTokenHMAC {
		if _, err := refreshHasher(cfg); err != nil {
			switch {
			case errors.Is(err, token.ErrHMACKeyMissing):
				return errors.New("security policy: PROMPTBOOK_REQUIRE_TOKEN_HMAC=true but PROMPTBOOK_TOKEN_HMAC_KEY is missing")
			case errors.Is(err, token.ErrHMACKeyTooShort):
				return errors.New("security policy: PROMPTBOOK_REQUIRE_TOKEN_HMAC=true but PROMPTBOOK_TOKEN_HMAC_KEY is too short (min 32 bytes)")
			default:
				return err
			}
		}
	}

	if cfg.DevMode {
		return nil
	}
	switch cfg.AuthSigner {
	case session.SignerPaseto:
		if strings.TrimSpace(cfg.PasetoSecretKeyHex) == "" {
			return errors.New("security policy: PROMPTBOOK_PASETO_V4_SECRET_KEY_HEX is required outside dev mode")
		}
	case session.SignerJWT:
		if len(cfg.JWTSecret) < session.MinJWTSecretBytes {
			return errors.New("security policy: PROMPTBOOK_JWT_SECRET must be at least 32 bytes")
		}
	}
	return nil
}

// refreshHasher builds the ledger digest hasher. Under the HMAC policy there is no SHA-256 fallback.
func refreshHasher(cfg Config) (token.Hasher, error) {
	if cfg.RequireTokenHMAC {
		return token.NewStrictHasher(cfg.TokenHMACKey, token.MinHMACKeyBytes)
	}
	return token.NewHasher(cfg.TokenHMACKey), nil
}
