package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// MinHMACKeyBytes is the smallest key accepted when HMAC mode is mandatory.
const MinHMACKeyBytes = 32

// Hasher digests refresh tokens. The zero value hashes with plain SHA-256.
type Hasher struct {
	key []byte
}

// NewHasher returns a Hasher keyed with key (trimmed). A blank key selects SHA-256 mode.
func NewHasher(key string) Hasher {
	key = strings.TrimSpace(key)
	if key == "" {
		return Hasher{}
	}
	return Hasher{key: []byte(key)}
}

// NewStrictHasher is NewHasher for deployments that must not fall back to SHA-256.
// Key length is measured in bytes because the key is used as raw bytes.
func NewStrictHasher(key string, minBytes int) (Hasher, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Hasher{}, ErrHMACKeyMissing
	}
	if minBytes > 0 && len(key) < minBytes {
		return Hasher{}, ErrHMACKeyTooShort
	}
	return Hasher{key: []byte(key)}, nil
}

// HMACEnabled reports whether digests are keyed.
func (h Hasher) HMACEnabled() bool { return len(h.key) > 0 }

// Hash returns the hex digest stored for tok.
func (h Hasher) Hash(tok string) string {
	if len(h.key) == 0 {
		return HashSHA256Hex(tok)
	}
	return HashHMACSHA256Hex(tok, h.key)
}

// Matches reports whether tok hashes to digestHex, in constant time.
func (h Hasher) Matches(tok, digestHex string) bool {
	return equalHex64(h.Hash(tok), digestHex)
}

// HashSHA256Hex returns a SHA-256 hex digest of s.
func HashSHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashHMACSHA256Hex returns an HMAC-SHA256 hex digest of s using key.
func HashHMACSHA256Hex(s string, key []byte) string {
	m := hmac.New(sha256.New, key)
	_, _ = m.Write([]byte(s))
	return hex.EncodeToString(m.Sum(nil))
}

// equalHex64 rejects anything that is not a 64-char digest before comparing,
// so timing does not depend on attacker-chosen lengths.
func equalHex64(a, b string) bool {
	if len(a) != 64 || len(b) != 64 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
