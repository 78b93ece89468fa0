package authapi

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Fillsogood/promptbook/cmd/identity"
	"github.com/Fillsogood/promptbook/cmd/internal/auth/session"
	"github.com/Fillsogood/promptbook/cmd/internal/web"
)

// Accounts is the identity surface the handlers need.
type Accounts interface {
	Register(ctx context.Context, in identity.RegisterInput) (identity.User, error)
	Authenticate(ctx context.Context, email, password string) (identity.User, error)
	Get(ctx context.Context, userID string) (identity.User, error)
	ChangePassword(ctx context.Context, userID, current, next string) error
	Delete(ctx context.Context, userID string) error
}

// Sessions is the token surface the handlers need.
type Sessions interface {
	Config() session.Config
	Issue(ctx context.Context, userID string) (session.Pair, error)
	Refresh(ctx context.Context, refreshToken string) (session.Refreshed, error)
	Revoke(ctx context.Context, refreshToken, userID string) error
	RevokeAll(ctx context.Context, userID string) error
	VerifyAccess(accessToken string) (session.Claims, error)
}

// Handler wires HTTP account endpoints to the identity and session services.
type Handler struct {
	log      *slog.Logger
	cfg      Config
	accounts Accounts
	sessions Sessions
	validate *web.Validator
	limiter  *keyedLimiter
	now      func() time.Time
}

// HandlerOption configures optional handler dependencies.
type HandlerOption func(*Handler)

// WithClock overrides time.Now for the login limiter (tests).
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHandler constructs an auth Handler.
func NewHandler(log *slog.Logger, cfg Config, accounts Accounts, sessions Sessions, opts ...HandlerOption) (*Handler, error) {
	if accounts == nil || sessions == nil {
		return nil, errors.New("authapi: nil accounts or sessions")
	}
	if log == nil {
		log = slog.Default()
	}
	cfg = cfg.withDefaults()

	h := &Handler{
		log:      log,
		cfg:      cfg,
		accounts: accounts,
		sessions: sessions,
		validate: web.NewValidator(),
		limiter:  newKeyedLimiter(cfg.LoginRate, cfg.LoginBurst, cfg.LimiterIdleTTL),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h, nil
}

// Routes mounts the account endpoints on r (expected to be the /api/accounts sub-router).
func (h *Handler) Routes(r chi.Router) {
	r.Post("/register/", h.handleRegister)
	r.Post("/login/", h.handleLogin)
	r.Post("/login/refresh/", h.handleRefresh)

	r.Group(func(r chi.Router) {
		r.Use(h.RequireAuth)
		r.Post("/logout/", h.handleLogout)
		r.Get("/me/", h.handleMe)
		r.Put("/change-password/", h.handleChangePassword)
		r.Delete("/delete/", h.handleDelete)
	})
}
