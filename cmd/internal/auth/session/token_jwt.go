package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type jwtClaims struct {
	Kind string `json:"kind"`
	jwt.RegisteredClaims
}

type jwtManager struct {
	cfg    Config
	secret []byte
}

// NewJWTManager builds an HS256 TokenManager.
func NewJWTManager(cfg Config) (TokenManager, error) {
	if len(cfg.JWTSecret) < MinJWTSecretBytes {
		return nil, ErrConfig
	}
	return &jwtManager{cfg: cfg, secret: []byte(cfg.JWTSecret)}, nil
}

func (m *jwtManager) Issue(userID, tokenID string, kind Kind, now time.Time) (string, time.Time, error) {
	exp := now.Add(ttlFor(m.cfg, kind))

	claims := jwtClaims{
		Kind: string(kind),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.cfg.Issuer,
			Subject:   userID,
			ID:        tokenID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	// NumericDate has second precision; report what the token actually carries.
	return signed, claims.ExpiresAt.Time, nil
}

func (m *jwtManager) Verify(token string, kind Kind, now time.Time) (Claims, error) {
	var c jwtClaims

	_, err := jwt.ParseWithClaims(token, &c,
		func(*jwt.Token) (any, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(m.cfg.ClockSkew),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}

	// Leeway covers iat/nbf only; expiry is exact for every signer.
	if c.ExpiresAt == nil || !c.ExpiresAt.After(now) {
		return Claims{}, ErrInvalidToken
	}
	if Kind(c.Kind) != kind || c.Subject == "" {
		return Claims{}, ErrInvalidToken
	}
	if kind == KindRefresh && c.ID == "" {
		return Claims{}, ErrInvalidToken
	}

	out := Claims{
		UserID:  c.Subject,
		TokenID: c.ID,
		Kind:    kind,
		Issuer:  c.Issuer,
	}
	if kind == KindAccess {
		out.TokenID = ""
	}
	if c.IssuedAt != nil {
		out.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		out.ExpiresAt = c.ExpiresAt.Time
	}
	return out, nil
}
