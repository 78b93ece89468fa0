package token

import "errors"

// Returned by NewStrictHasher when PROMPTBOOK_REQUIRE_TOKEN_HMAC is set; the app matches them
// with errors.Is to name the misconfigured variable at startup.
var (
	ErrHMACKeyMissing  = errors.New("refresh token hashing: HMAC key required but not set")
	ErrHMACKeyTooShort = errors.New("refresh token hashing: HMAC key shorter than MinHMACKeyBytes")
)
