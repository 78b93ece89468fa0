package identity

import (
	"strings"

	"golang.org/x/net/idna"
	"golang.org/x/text/unicode/norm"
)

// NormalizeEmail trims the address and canonicalizes its domain: lower case, IDNA ASCII form.
// The local part is kept as typed. Use EmailKey for lookups and uniqueness.
func NormalizeEmail(raw string) (string, error) {
	const op = "identity.NormalizeEmail"

	s := strings.TrimSpace(raw)
	at := strings.LastIndexByte(s, '@')
	if at <= 0 || at == len(s)-1 {
		return "", FieldError{Op: op, Field: "email", Reason: "enter a valid email address"}
	}

	domain, err := idna.Lookup.ToASCII(strings.ToLower(s[at+1:]))
	if err != nil || domain == "" {
		return "", FieldError{Op: op, Field: "email", Reason: "enter a valid email address"}
	}
	return s[:at] + "@" + domain, nil
}

// EmailKey is the case-insensitive uniqueness key for an already normalized email.
func EmailKey(normalized string) string {
	return strings.ToLower(normalized)
}

// NormalizeUsername trims and applies Unicode NFKC so visually identical names compare equal.
func NormalizeUsername(s string) string {
	return norm.NFKC.String(strings.TrimSpace(s))
}
