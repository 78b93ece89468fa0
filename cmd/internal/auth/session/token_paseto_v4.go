package session

import (
	"time"

	paseto "aidanwoods.dev/go-paseto"
)

type pasetoV4PublicManager struct {
	cfg Config

	secret paseto.V4AsymmetricSecretKey
	public paseto.V4AsymmetricPublicKey
}

// NewPasetoV4PublicManager builds a TokenManager based on PASETO v4.public (Ed25519).
func NewPasetoV4PublicManager(cfg Config) (TokenManager, error) {
	secret, err := paseto.NewV4AsymmetricSecretKeyFromHex(cfg.PasetoV4SecretKeyHex)
	if err != nil {
		return nil, ErrConfig
	}

	return &pasetoV4PublicManager{
		cfg:    cfg,
		secret: secret,
		public: secret.Public(),
	}, nil
}

func (m *pasetoV4PublicManager) Issue(userID, tokenID string, kind Kind, now time.Time) (string, time.Time, error) {
	exp := now.Add(ttlFor(m.cfg, kind))

	tok := paseto.NewToken()
	tok.SetIssuer(m.cfg.Issuer)
	tok.SetSubject(userID)
	tok.SetIssuedAt(now)
	tok.SetNotBefore(now)
	tok.SetExpiration(exp)
	if tokenID != "" {
		tok.SetJti(tokenID)
	}
	if err := tok.Set("kind", string(kind)); err != nil {
		return "", time.Time{}, err
	}

	return tok.V4Sign(m.secret, nil), exp, nil
}

func (m *pasetoV4PublicManager) Verify(token string, kind Kind, now time.Time) (Claims, error) {
	// Fresh parser per call; rules accumulate otherwise.
	// ValidAt with skew tolerates early nbf/iat and shortens the usable lifetime by the same amount.
	p := paseto.NewParserWithoutExpiryCheck()
	p.AddRule(paseto.IssuedBy(m.cfg.Issuer))
	p.AddRule(paseto.ValidAt(now.Add(m.cfg.ClockSkew)))

	parsed, err := p.ParseV4Public(m.public, token, nil)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}

	exp, err := parsed.GetExpiration()
	if err != nil || !exp.After(now) {
		return Claims{}, ErrInvalidToken
	}

	got, err := parsed.GetString("kind")
	if err != nil || Kind(got) != kind {
		return Claims{}, ErrInvalidToken
	}

	sub, err := parsed.GetSubject()
	if err != nil || sub == "" {
		return Claims{}, ErrInvalidToken
	}

	out := Claims{UserID: sub, Kind: kind, ExpiresAt: exp}
	out.Issuer, _ = parsed.GetIssuer()
	out.IssuedAt, _ = parsed.GetIssuedAt()

	if kind == KindRefresh {
		jti, err := parsed.GetJti()
		if err != nil || jti == "" {
			return Claims{}, ErrInvalidToken
		}
		out.TokenID = jti
	}
	return out, nil
}
