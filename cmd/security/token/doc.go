// Package token computes the digests the revocation ledger stores for refresh tokens.
//
// Only the digest is persisted, never the token itself. With a key configured the digest is
// HMAC-SHA256(token, key); without one it is SHA-256(token), which is acceptable for local
// development only. Digests are always 64 lowercase hex characters.
package token
