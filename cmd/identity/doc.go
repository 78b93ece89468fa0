// Package identity is the credential store: user records, email/username canonicalization,
// password verification and account lifecycle.
//
// Accounts is the service used by the HTTP layer. Store implementations (Postgres, memory)
// persist users and their password hashes; they never see plaintext passwords.
package identity
