// Package session issues and validates promptbook's signed session tokens.
//
// Access tokens are short-lived and stateless. Refresh tokens are signed too, but each one
// carries a token id (jti) that must have a live entry in the revocation Ledger; the ledger
// stores a digest of the token (HMAC-SHA256 when a key is configured, otherwise SHA-256),
// never the token itself.
//
// Two signers are available: PASETO v4.public (default) and HS256 JWT.
// Cookie transport lives in the HTTP layer, not here.
package session
