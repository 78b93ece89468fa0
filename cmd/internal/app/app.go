// Package app wires the promptbook server runtime: configuration, logging, storage, HTTP routes and
// the server lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"aidanwoods.dev/go-paseto"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Fillsogood/promptbook/cmd/identity"
	authapi "github.com/Fillsogood/promptbook/cmd/internal/auth/api"
	"github.com/Fillsogood/promptbook/cmd/internal/auth/session"
	"github.com/Fillsogood/promptbook/cmd/internal/migrations"
	"github.com/Fillsogood/promptbook/cmd/internal/prompt"
	promptapi "github.com/Fillsogood/promptbook/cmd/internal/prompt/api"
)

// App owns the server's dependencies. Build it with New and release it with Close.
type App struct {
	cfg Config
	log *slog.Logger

	pool    *pgxpool.Pool // nil in in-memory mode
	metrics *Metrics

	accounts *identity.Accounts
	sessions *session.Service
	prompts  *prompt.Service

	authAPI   *authapi.Handler
	promptAPI *promptapi.Handler

	handler http.Handler
}

type stores struct {
	users  identity.Store
	ledger session.Ledger
	prompt prompt.Store
}

// New constructs a fully wired App. Without PROMPTBOOK_DATABASE_URL every store is in memory.
func New(ctx context.Context, cfg Config, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}

	a := &App{cfg: cfg, log: log, metrics: NewMetrics()}

	st, err := a.openStores(ctx)
	if err != nil {
		return nil, err
	}

	if err := a.wire(st); err != nil {
		a.Close()
		return nil, err
	}

	a.handler = a.routes()
	return a, nil
}

func (a *App) openStores(ctx context.Context) (stores, error) {
	if a.cfg.DatabaseURL == "" {
		a.log.Info("db.disabled.inmemory_store")
		return stores{
			users:  identity.NewMemoryStore(),
			ledger: session.NewMemoryLedger(),
			prompt: prompt.NewMemoryStore(),
		}, nil
	}

	pool, err := NewDBPool(ctx, a.cfg)
	if err != nil {
		return stores{}, err
	}
	a.pool = pool

	if a.cfg.AutoMigrate {
		if err := migrations.Up(ctx, pool, a.log); err != nil {
			a.Close()
			return stores{}, err
		}
	}

	users, err := identity.NewPostgresStore(pool, identity.WithSchema(a.cfg.DBSchema))
	if err != nil {
		a.Close()
		return stores{}, err
	}
	prompts, err := prompt.NewPostgresStore(pool, a.cfg.DBSchema)
	if err != nil {
		a.Close()
		return stores{}, err
	}

	a.log.Info("db.enabled.postgres_store", "schema", a.cfg.DBSchema)
	return stores{
		users:  users,
		ledger: session.NewPostgresLedger(pool, a.cfg.DBSchema),
		prompt: prompts,
	}, nil
}

func (a *App) wire(st stores) error {
	sessCfg := a.cfg.SessionConfig()
	if sessCfg.Signer == session.SignerPaseto && sessCfg.PasetoV4SecretKeyHex == "" && a.cfg.DevMode {
		sessCfg.PasetoV4SecretKeyHex = paseto.NewV4AsymmetricSecretKey().ExportHex()
		a.log.Warn("auth.signing_key.ephemeral", "reason", "dev mode without PROMPTBOOK_PASETO_V4_SECRET_KEY_HEX")
	}

	tokens, err := session.NewTokenManager(sessCfg)
	if err != nil {
		return err
	}
	hasher, err := refreshHasher(a.cfg)
	if err != nil {
		return err
	}
	if !hasher.HMACEnabled() {
		a.log.Warn("auth.refresh_digest.sha256", "hint", "set PROMPTBOOK_TOKEN_HMAC_KEY")
	}

	a.sessions, err = session.NewService(sessCfg, tokens, st.ledger, session.WithHasher(hasher))
	if err != nil {
		return err
	}

	a.prompts, err = prompt.NewService(st.prompt, prompt.MockResponder{}, prompt.WithRunCounter(a.metrics.PromptRuns))
	if err != nil {
		return err
	}

	// Postgres deletes dependents through ON DELETE CASCADE in the same statement as the
	// user row. The memory stores have no foreign keys and need explicit purging.
	var acctOpts []identity.AccountsOption
	if a.pool == nil {
		acctOpts = append(acctOpts, identity.WithPurgers(a.prompts, a.sessions))
	}
	a.accounts, err = identity.NewAccounts(st.users, a.cfg.PasswordConfig(), acctOpts...)
	if err != nil {
		return err
	}

	a.authAPI, err = authapi.NewHandler(a.log, a.cfg.AuthAPIConfig(), a.accounts, a.sessions)
	if err != nil {
		return err
	}
	a.promptAPI, err = promptapi.NewHandler(a.log, a.prompts, promptapi.WithMaxBodyBytes(a.cfg.MaxBodyBytes))
	return err
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Accounts exposes the account service for operator commands such as admin creation.
func (a *App) Accounts() *identity.Accounts { return a.accounts }

// SetAccountActive enables or disables the account registered under email. Disabling also
// revokes every refresh token so no session outlives the decision.
func (a *App) SetAccountActive(ctx context.Context, email string, active bool) (identity.User, error) {
	u, err := a.accounts.FindByEmail(ctx, email)
	if err != nil {
		return identity.User{}, err
	}
	if err := a.accounts.SetActive(ctx, u.ID, active); err != nil {
		return identity.User{}, err
	}
	if !active {
		if err := a.sessions.RevokeAll(ctx, u.ID); err != nil {
			return identity.User{}, fmt.Errorf("revoke sessions: %w", err)
		}
	}
	u.IsActive = active
	a.log.Info("account.active.set", "user_id", u.ID, "active", active)
	return u, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
		ErrorLog:          slog.NewLogLogger(a.log.Handler(), slog.LevelWarn),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.pool != nil, "dev", a.cfg.DevMode)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	a.log.Info("server.stopped")
	return nil
}

// Close releases the database pool. It is safe to call more than once.
func (a *App) Close() {
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
