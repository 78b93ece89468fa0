// Package pgtest opens throwaway Postgres schemas for integration tests.
//
// Tests are opt-in: without PROMPTBOOK_DATABASE_URL they are skipped. Outside CI an
// unreachable server also skips, so local runs stay fast.
package pgtest

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Fillsogood/promptbook/cmd/identity/ids"
	"github.com/Fillsogood/promptbook/cmd/internal/migrations"
)

// EnvDatabaseURL names the variable holding the integration database DSN.
const EnvDatabaseURL = "PROMPTBOOK_DATABASE_URL"

// Open creates a fresh schema, runs every migration into it and returns a pool whose
// search_path points at that schema. The schema is dropped on test cleanup.
func Open(t *testing.T) (*pgxpool.Pool, string) {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv(EnvDatabaseURL))
	if dsn == "" {
		t.Skip(EnvDatabaseURL + " not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	admin, err := pgxpool.New(ctx, dsn)
	if err != nil {
		skipOrFail(t, "open pool", err)
	}
	if err := admin.Ping(ctx); err != nil {
		admin.Close()
		skipOrFail(t, "ping", err)
	}

	id, err := ids.NewULID(time.Now().UTC())
	if err != nil {
		admin.Close()
		t.Fatalf("schema id: %v", err)
	}
	schema := "pb_test_" + strings.ToLower(id)

	if _, err := admin.Exec(ctx, `CREATE SCHEMA `+pgx.Identifier{schema}.Sanitize()); err != nil {
		admin.Close()
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() {
		dctx, dcancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer dcancel()
		_, _ = admin.Exec(dctx, `DROP SCHEMA IF EXISTS `+pgx.Identifier{schema}.Sanitize()+` CASCADE`)
		admin.Close()
	})

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("parse dsn: %v", err)
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	cfg.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("open schema pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := migrations.Up(ctx, pool, nil); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return pool, schema
}

// Count returns SELECT count(*) for a schema-qualified table.
func Count(t *testing.T, pool *pgxpool.Pool, schema, table, where string, args ...any) int {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	q := `SELECT count(*) FROM ` + pgx.Identifier{schema, table}.Sanitize()
	if where != "" {
		q += ` WHERE ` + where
	}

	var n int
	if err := pool.QueryRow(ctx, q, args...).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func skipOrFail(t *testing.T, what string, err error) {
	t.Helper()
	if shouldSkipIntegration(err) {
		t.Skipf("postgres unavailable (%s): %v", what, err)
	}
	t.Fatalf("%s: %v", what, err)
}

func shouldSkipIntegration(err error) bool {
	if err == nil {
		return false
	}
	if os.Getenv("CI") != "" {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "dial tcp") ||
		strings.Contains(msg, "no such host")
}
