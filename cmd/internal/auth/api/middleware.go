package authapi

import (
	"context"
	"net/http"

	"github.com/Fillsogood/promptbook/cmd/identity"
	"github.com/Fillsogood/promptbook/cmd/internal/web"
)

// UnauthenticatedMessage is the single 401 body message for any access-token failure.
const UnauthenticatedMessage = "authentication credentials were not provided or are invalid"

// Principal is the authenticated identity attached to a request.
type Principal struct {
	UserID   string
	Email    string
	Username string
	IsAdmin  bool
}

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal set by RequireAuth.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok && p.UserID != ""
}

// RequireAuth rejects requests without a valid access-token cookie for an active identity.
func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok, ok := cookieValue(r, AccessCookieName)
		if !ok {
			web.WriteError(w, http.StatusUnauthorized, UnauthenticatedMessage)
			return
		}

		claims, err := h.sessions.VerifyAccess(tok)
		if err != nil {
			web.WriteError(w, http.StatusUnauthorized, UnauthenticatedMessage)
			return
		}

		u, err := h.accounts.Get(r.Context(), claims.UserID)
		if err != nil && !identity.IsNotFound(err) {
			h.log.Error("auth.require.lookup.fail", "err", err, "user_id", claims.UserID)
			web.WriteError(w, http.StatusInternalServerError, msgInternal)
			return
		}
		if err != nil || !u.IsActive {
			web.WriteError(w, http.StatusUnauthorized, UnauthenticatedMessage)
			return
		}

		ctx := WithPrincipal(r.Context(), Principal{
			UserID:   u.ID,
			Email:    u.Email,
			Username: u.Username,
			IsAdmin:  u.IsAdmin,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
