package session

import (
	"strings"
	"testing"
	"time"
)

func testManagers(t *testing.T) map[string]TokenManager {
	t.Helper()

	pcfg := validPasetoConfig()
	pm, err := NewTokenManager(pcfg)
	if err != nil {
		t.Fatalf("paseto manager: %v", err)
	}

	jcfg := DefaultConfig()
	jcfg.Signer = SignerJWT
	jcfg.JWTSecret = strings.Repeat("s", 48)
	jm, err := NewTokenManager(jcfg)
	if err != nil {
		t.Fatalf("jwt manager: %v", err)
	}

	return map[string]TokenManager{SignerPaseto: pm, SignerJWT: jm}
}

const testUserID = "01HZZZZZZZZZZZZZZZZZZZZZZZ"

func TestTokenManagers_IssueAndVerify(t *testing.T) {
	for name, mgr := range testManagers(t) {
		now := time.Now().UTC()

		tok, exp, err := mgr.Issue(testUserID, "", KindAccess, now)
		if err != nil {
			t.Fatalf("%s: issue access: %v", name, err)
		}
		if exp.Sub(now) > 30*time.Minute || exp.Sub(now) < 29*time.Minute {
			t.Fatalf("%s: access exp %v not ~30m after now", name, exp.Sub(now))
		}

		claims, err := mgr.Verify(tok, KindAccess, now.Add(time.Second))
		if err != nil {
			t.Fatalf("%s: verify access: %v", name, err)
		}
		if claims.UserID != testUserID || claims.Kind != KindAccess || claims.TokenID != "" {
			t.Fatalf("%s: unexpected access claims: %+v", name, claims)
		}

		rtok, rexp, err := mgr.Issue(testUserID, "01HYYYYYYYYYYYYYYYYYYYYYYY", KindRefresh, now)
		if err != nil {
			t.Fatalf("%s: issue refresh: %v", name, err)
		}
		if rexp.Sub(now) < 7*24*time.Hour-time.Second {
			t.Fatalf("%s: refresh exp too short: %v", name, rexp.Sub(now))
		}
		rc, err := mgr.Verify(rtok, KindRefresh, now.Add(time.Second))
		if err != nil {
			t.Fatalf("%s: verify refresh: %v", name, err)
		}
		if rc.TokenID != "01HYYYYYYYYYYYYYYYYYYYYYYY" {
			t.Fatalf("%s: jti mismatch: %q", name, rc.TokenID)
		}
	}
}

func TestTokenManagers_KindIsEnforced(t *testing.T) {
	for name, mgr := range testManagers(t) {
		now := time.Now().UTC()

		access, _, _ := mgr.Issue(testUserID, "", KindAccess, now)
		refresh, _, _ := mgr.Issue(testUserID, "01HYYYYYYYYYYYYYYYYYYYYYYY", KindRefresh, now)

		if _, err := mgr.Verify(access, KindRefresh, now); err != ErrInvalidToken {
			t.Fatalf("%s: access accepted as refresh: %v", name, err)
		}
		if _, err := mgr.Verify(refresh, KindAccess, now); err != ErrInvalidToken {
			t.Fatalf("%s: refresh accepted as access: %v", name, err)
		}
	}
}

func TestTokenManagers_RejectExpiredAndTampered(t *testing.T) {
	for name, mgr := range testManagers(t) {
		now := time.Now().UTC()

		tok, _, _ := mgr.Issue(testUserID, "", KindAccess, now)

		if _, err := mgr.Verify(tok, KindAccess, now.Add(31*time.Minute+time.Minute)); err != ErrInvalidToken {
			t.Fatalf("%s: expired token accepted: %v", name, err)
		}

		tampered := flipMiddleChar(tok)
		if _, err := mgr.Verify(tampered, KindAccess, now); err != ErrInvalidToken {
			t.Fatalf("%s: tampered token accepted: %v", name, err)
		}

		if _, err := mgr.Verify("not-a-token", KindAccess, now); err != ErrInvalidToken {
			t.Fatalf("%s: garbage accepted: %v", name, err)
		}
	}
}

func TestPaseto_ForeignKeyRejected(t *testing.T) {
	a, err := NewPasetoV4PublicManager(validPasetoConfig())
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	b, err := NewPasetoV4PublicManager(validPasetoConfig())
	if err != nil {
		t.Fatalf("manager: %v", err)
	}

	now := time.Now().UTC()
	tok, _, _ := a.Issue(testUserID, "", KindAccess, now)
	if _, err := b.Verify(tok, KindAccess, now); err != ErrInvalidToken {
		t.Fatalf("token signed by another key accepted: %v", err)
	}
}

func TestTokenManagers_WrongIssuerRejected(t *testing.T) {
	cfg := validPasetoConfig()
	issuer, err := NewPasetoV4PublicManager(cfg)
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	cfg.Issuer = "someone-else"
	verifier, err := NewPasetoV4PublicManager(cfg)
	if err != nil {
		t.Fatalf("manager: %v", err)
	}

	now := time.Now().UTC()
	tok, _, _ := issuer.Issue(testUserID, "", KindAccess, now)
	if _, err := verifier.Verify(tok, KindAccess, now); err != ErrInvalidToken {
		t.Fatalf("wrong issuer accepted: %v", err)
	}
}

func flipMiddleChar(tok string) string {
	b := []byte(tok)
	i := len(b) / 2
	for b[i] == '.' {
		i++
	}
	if b[i] == 'A' {
		b[i] = 'B'
	} else {
		b[i] = 'A'
	}
	return string(b)
}

func TestTokenManagers_ExpiryIgnoresClockSkew(t *testing.T) {
	for name, mgr := range testManagers(t) {
		now := time.Now().UTC().Truncate(time.Second)

		tok, exp, err := mgr.Issue(testUserID, "", KindAccess, now)
		if err != nil {
			t.Fatalf("%s: issue: %v", name, err)
		}
		if _, err := mgr.Verify(tok, KindAccess, now.Add(time.Second)); err != nil {
			t.Fatalf("%s: rejected fresh token: %v", name, err)
		}
		if _, err := mgr.Verify(tok, KindAccess, exp.Add(time.Second)); err != ErrInvalidToken {
			t.Fatalf("%s: accepted 1s after exp: %v", name, err)
		}
		if _, err := mgr.Verify(tok, KindAccess, exp.Add(20*time.Second)); err != ErrInvalidToken {
			t.Fatalf("%s: accepted within clock skew after exp: %v", name, err)
		}
	}
}
