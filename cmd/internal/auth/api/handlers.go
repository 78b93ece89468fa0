package authapi

import (
	"errors"
	"net/http"

	"github.com/Fillsogood/promptbook/cmd/identity"
	"github.com/Fillsogood/promptbook/cmd/internal/auth/session"
	"github.com/Fillsogood/promptbook/cmd/internal/web"
)

const (
	msgValidationFailed = "validation failed"
	msgInternal         = "internal error"
	msgRefreshMissing   = "refresh token not present"
	msgRefreshInvalid   = "refresh token invalid"
	msgEmailTaken       = "user with this email already exists"
)

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := web.DecodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		web.WriteDecodeError(w, err)
		return
	}
	if !h.checkRequest(w, &req) {
		return
	}

	u, err := h.accounts.Register(r.Context(), identity.RegisterInput{
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		if fe, ok := identity.AsFieldError(err); ok {
			web.WriteFieldErrors(w, msgValidationFailed, map[string][]string{fe.Field: {fe.Reason}})
			return
		}
		if field, ok := identity.IsConflict(err); ok {
			if field == "email" {
				web.WriteFieldErrors(w, msgValidationFailed, map[string][]string{"email": {msgEmailTaken}})
				return
			}
			web.WriteError(w, http.StatusBadRequest, "data integrity error")
			return
		}
		h.log.Error("auth.register.fail", "err", err)
		web.WriteError(w, http.StatusInternalServerError, msgInternal)
		return
	}

	h.audit(r, "register", "user_id", u.ID)
	web.WriteMessage(w, http.StatusCreated, "registered")
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ip := ipString(ClientIP(r, h.cfg.TrustProxy))
	if ok, retryAfter := h.limiter.allow(ip, h.now()); !ok {
		h.audit(r, "login.rate_limited", "retry_after_s", int64(retryAfter.Seconds()))
		writeRateLimited(w, retryAfter)
		return
	}

	var req loginRequest
	if err := web.DecodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		web.WriteDecodeError(w, err)
		return
	}
	if !h.checkRequest(w, &req) {
		return
	}

	u, err := h.accounts.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if identity.IsInvalidCredentials(err) {
			h.audit(r, "login.fail")
			web.WriteError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		h.log.Error("auth.login.authenticate.fail", "err", err)
		web.WriteError(w, http.StatusInternalServerError, msgInternal)
		return
	}

	pair, err := h.sessions.Issue(r.Context(), u.ID)
	if err != nil {
		h.log.Error("auth.login.issue.fail", "err", err, "user_id", u.ID)
		web.WriteError(w, http.StatusInternalServerError, msgInternal)
		return
	}

	h.setSessionCookies(w, pair.AccessToken, pair.RefreshToken)
	h.audit(r, "login.success", "user_id", u.ID)
	web.WriteMessage(w, http.StatusOK, "login succeeded")
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	tok, ok := cookieValue(r, RefreshCookieName)
	if !ok {
		web.WriteError(w, http.StatusUnauthorized, msgRefreshMissing)
		return
	}

	out, err := h.sessions.Refresh(r.Context(), tok)
	if err != nil {
		if session.IsRejected(err) {
			h.audit(r, "refresh.rejected", "reason", err.Error())
			web.WriteError(w, http.StatusUnauthorized, msgRefreshInvalid)
			return
		}
		h.log.Error("auth.refresh.fail", "err", err)
		web.WriteError(w, http.StatusInternalServerError, msgInternal)
		return
	}

	h.setSessionCookies(w, out.AccessToken, out.RefreshToken)
	h.audit(r, "refresh", "rotated", out.RefreshToken != "")
	web.WriteJSON(w, http.StatusOK, refreshResponse{
		Access:          out.AccessToken,
		AccessExpiresAt: out.AccessExp,
		Refresh:         out.RefreshToken,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFromContext(r.Context())

	tok, ok := cookieValue(r, RefreshCookieName)
	if !ok {
		web.WriteError(w, http.StatusBadRequest, msgRefreshMissing)
		return
	}

	if err := h.sessions.Revoke(r.Context(), tok, p.UserID); err != nil {
		if session.IsRejected(err) {
			web.WriteError(w, http.StatusUnauthorized, msgRefreshInvalid)
			return
		}
		h.log.Error("auth.logout.revoke.fail", "err", err, "user_id", p.UserID)
		web.WriteError(w, http.StatusInternalServerError, msgInternal)
		return
	}

	h.clearSessionCookies(w)
	h.audit(r, "logout", "user_id", p.UserID)
	web.WriteMessage(w, http.StatusOK, "logged out")
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFromContext(r.Context())
	web.WriteJSON(w, http.StatusOK, meResponse{Email: p.Email, Username: p.Username})
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFromContext(r.Context())

	var req changePasswordRequest
	if err := web.DecodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		web.WriteDecodeError(w, err)
		return
	}
	if !h.checkRequest(w, &req) {
		return
	}

	err := h.accounts.ChangePassword(r.Context(), p.UserID, req.CurrentPassword, req.NewPassword)
	switch {
	case err == nil:
	case identity.IsInvalidCredentials(err):
		h.audit(r, "password_change.fail", "user_id", p.UserID)
		web.WriteError(w, http.StatusBadRequest, "current password is incorrect")
		return
	default:
		if fe, ok := identity.AsFieldError(err); ok {
			web.WriteFieldErrors(w, msgValidationFailed, map[string][]string{fe.Field: {fe.Reason}})
			return
		}
		h.log.Error("auth.password_change.fail", "err", err, "user_id", p.UserID)
		web.WriteError(w, http.StatusInternalServerError, msgInternal)
		return
	}

	h.audit(r, "password_changed", "user_id", p.UserID)
	h.resetSessions(w, r, p.UserID)
	web.WriteMessage(w, http.StatusOK, "password changed")
}

// resetSessions revokes every refresh token of userID after a credential change and signs the
// current client back in with a fresh pair. The password change itself has already succeeded,
// so failures here are logged and end with cleared cookies instead of an error response.
func (h *Handler) resetSessions(w http.ResponseWriter, r *http.Request, userID string) {
	if err := h.sessions.RevokeAll(r.Context(), userID); err != nil {
		h.log.Error("auth.password_change.revoke_all.fail", "err", err, "user_id", userID)
		h.clearSessionCookies(w)
		return
	}
	h.audit(r, "sessions_revoked", "user_id", userID, "reason", "password_changed")

	pair, err := h.sessions.Issue(r.Context(), userID)
	if err != nil {
		h.log.Error("auth.password_change.issue.fail", "err", err, "user_id", userID)
		h.clearSessionCookies(w)
		return
	}
	h.setSessionCookies(w, pair.AccessToken, pair.RefreshToken)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFromContext(r.Context())

	if err := h.accounts.Delete(r.Context(), p.UserID); err != nil {
		h.log.Error("auth.account_delete.fail", "err", err, "user_id", p.UserID)
		web.WriteError(w, http.StatusInternalServerError, msgInternal)
		return
	}

	h.clearSessionCookies(w)
	h.audit(r, "account_deleted", "user_id", p.UserID)
	w.WriteHeader(http.StatusNoContent)
}

// checkRequest validates req and writes the 400 field map on failure.
func (h *Handler) checkRequest(w http.ResponseWriter, req any) bool {
	err := h.validate.Validate(req)
	if err == nil {
		return true
	}
	var verr *web.ValidationError
	if errors.As(err, &verr) {
		web.WriteFieldErrors(w, msgValidationFailed, verr.Fields)
		return false
	}
	h.log.Error("auth.validate.fail", "err", err)
	web.WriteError(w, http.StatusInternalServerError, msgInternal)
	return false
}
