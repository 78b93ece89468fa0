package session

import (
	"fmt"
	"strings"
	"time"
)

// Signer names accepted in Config.Signer.
const (
	SignerPaseto = "paseto"
	SignerJWT    = "jwt"
)

// MinJWTSecretBytes is the shortest accepted HS256 secret.
const MinJWTSecretBytes = 32

// Config defines runtime configuration for the session subsystem.
// It is a plain struct; the app layer fills it from its own configuration.
type Config struct {
	// Issuer is the "iss" claim of every token.
	Issuer string

	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// ClockSkew is tolerated during token validation.
	ClockSkew time.Duration

	// Signer selects the token format: SignerPaseto or SignerJWT.
	Signer string

	// PasetoV4SecretKeyHex is the hex-encoded Ed25519 secret key for v4.public tokens.
	PasetoV4SecretKeyHex string

	// JWTSecret is the HS256 key.
	JWTSecret string

	// RotateRefresh revokes the presented refresh token on every refresh and issues a new one.
	RotateRefresh bool
}

// DefaultConfig returns the production lifetimes: 30 minute access, 7 day refresh.
// Signing keys are left empty.
func DefaultConfig() Config {
	return Config{
		Issuer:     "promptbook",
		AccessTTL:  30 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
		ClockSkew:  30 * time.Second,
		Signer:     SignerPaseto,
	}
}

// Validate checks lifetimes and the presence of the selected signer's key.
// Errors wrap ErrConfig.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Issuer) == "" {
		return fmt.Errorf("%w: issuer is required", ErrConfig)
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		return fmt.Errorf("%w: token lifetimes must be positive", ErrConfig)
	}
	if c.AccessTTL >= c.RefreshTTL {
		return fmt.Errorf("%w: access ttl must be shorter than refresh ttl", ErrConfig)
	}
	if c.ClockSkew < 0 || c.ClockSkew > 5*time.Minute {
		return fmt.Errorf("%w: clock skew out of range [0..5m]", ErrConfig)
	}

	switch c.Signer {
	case SignerPaseto:
		if strings.TrimSpace(c.PasetoV4SecretKeyHex) == "" {
			return fmt.Errorf("%w: paseto secret key is required", ErrConfig)
		}
	case SignerJWT:
		if len(c.JWTSecret) < MinJWTSecretBytes {
			return fmt.Errorf("%w: jwt secret must be at least %d bytes", ErrConfig, MinJWTSecretBytes)
		}
	default:
		return fmt.Errorf("%w: unknown signer %q", ErrConfig, c.Signer)
	}
	return nil
}
