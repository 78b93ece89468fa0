// Package password hashes and verifies account passwords with Argon2id.
//
// Hashes use the PHC string format:
//
//	$argon2id$v=19$m=<KiB>,t=<iterations>,p=<threads>$<salt>$<key>
//
// Stored hashes are treated as untrusted input during Verify: malformed strings are rejected
// and parameters far above the configured cost are refused.
package password
