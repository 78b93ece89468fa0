// Package prompt holds the Prompt resource: owner-scoped prompts, shared tags and the
// append-only run log.
//
// Every read and write takes the owning user id; a prompt that belongs to someone else
// is reported as ErrNotFound, never as forbidden.
package prompt
