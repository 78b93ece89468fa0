package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/Fillsogood/promptbook/cmd/identity"
)

// Run is the server entrypoint used by cmd/promptbook.
// It returns an error instead of calling os.Exit so deferred cleanup runs.
func Run() error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	log := NewLogger(cfg)

	if err := ValidateSecurityConfig(cfg); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	return a.Run(ctx)
}

// CreateAdmin registers an admin account against the configured store and exits.
func CreateAdmin(ctx context.Context, in identity.RegisterInput) (identity.User, error) {
	var u identity.User
	err := withOperatorApp(ctx, "create-admin", func(a *App) error {
		var err error
		u, err = a.Accounts().RegisterAdmin(ctx, in)
		if err == nil {
			a.log.Info("admin.created", "user_id", u.ID)
		}
		return err
	})
	return u, err
}

// SetAccountActive enables or disables an account by email against the configured store.
func SetAccountActive(ctx context.Context, email string, active bool) (identity.User, error) {
	var u identity.User
	err := withOperatorApp(ctx, "set-active", func(a *App) error {
		var err error
		u, err = a.SetAccountActive(ctx, email, active)
		return err
	})
	return u, err
}

// withOperatorApp builds an App for a one-shot operator command. In in-memory mode any change
// would vanish with the process, so a database is required.
func withOperatorApp(ctx context.Context, cmd string, fn func(*App) error) error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return errors.New(cmd + ": PROMPTBOOK_DATABASE_URL is required")
	}
	log := NewLogger(cfg)

	if err := ValidateSecurityConfig(cfg); err != nil {
		return err
	}

	a, err := New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(a)
}
