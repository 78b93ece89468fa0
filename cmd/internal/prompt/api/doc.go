// Package promptapi exposes the prompt resource under /api/prompt/.
//
// Every route expects authapi.RequireAuth in front of it and scopes reads and writes to the
// authenticated principal.
package promptapi
