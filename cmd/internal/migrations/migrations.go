// Package migrations embeds the promptbook schema and applies it with goose.
//
// Table names are unqualified; they resolve through the connection's search_path,
// which the pool config pins to the configured schema.
package migrations

import (
	"context"
	"embed"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed *.sql
var Migrations embed.FS

// Up applies all pending migrations. It is safe to call from concurrent tests
// (each call builds its own goose provider; no package globals are touched).
func Up(ctx context.Context, pool *pgxpool.Pool, log *slog.Logger) error {
	if pool == nil {
		return fmt.Errorf("migrations: nil pool")
	}

	db := stdlib.OpenDBFromPool(pool)
	defer func() { _ = db.Close() }()

	provider, err := goose.NewProvider(goose.DialectPostgres, db, Migrations)
	if err != nil {
		return fmt.Errorf("migrations: provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("migrations: up: %w", err)
	}

	if log != nil {
		for _, r := range results {
			log.Info("db.migrate.applied",
				"version", r.Source.Version,
				"file", r.Source.Path,
				"duration_ms", r.Duration.Milliseconds(),
			)
		}
	}
	return nil
}

// Version returns the highest applied migration version.
func Version(ctx context.Context, pool *pgxpool.Pool) (int64, error) {
	db := stdlib.OpenDBFromPool(pool)
	defer func() { _ = db.Close() }()

	provider, err := goose.NewProvider(goose.DialectPostgres, db, Migrations)
	if err != nil {
		return 0, fmt.Errorf("migrations: provider: %w", err)
	}
	return provider.GetDBVersion(ctx)
}
