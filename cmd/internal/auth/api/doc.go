// Package authapi serves promptbook's account endpoints under /api/accounts/ and provides
// RequireAuth, the middleware that resolves the access-token cookie to an active identity.
//
// Tokens travel only in HttpOnly cookies; response bodies never echo them, except the
// refresh endpoint which returns the new access token for non-browser clients.
package authapi
