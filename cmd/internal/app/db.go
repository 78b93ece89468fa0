package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Fillsogood/promptbook/cmd/identity"
)

const (
	dbConnectPingTimeout = 3 * time.Second
	dbReadyPingTimeout   = 2 * time.Second
)

// NewDBPool opens the pool shared by the identity, session and prompt stores.
// Every connection runs with search_path set to cfg.DBSchema so migrations and the
// stores agree on where tables live. Migrations are applied separately by the caller.
func NewDBPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if !identity.ValidSchemaIdent(cfg.DBSchema) {
		return nil, fmt.Errorf("db: invalid schema %q", cfg.DBSchema)
	}

	pcfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("db: parse PROMPTBOOK_DATABASE_URL: %w", err)
	}

	if cfg.DBMaxConns > 0 {
		pcfg.MaxConns = cfg.DBMaxConns
	}
	if cfg.DBMinConns >= 0 {
		pcfg.MinConns = cfg.DBMinConns
	}
	pcfg.ConnConfig.RuntimeParams["search_path"] = cfg.DBSchema
	if _, ok := pcfg.ConnConfig.RuntimeParams["application_name"]; !ok {
		pcfg.ConnConfig.RuntimeParams["application_name"] = "promptbook"
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("db: open pool: %w", err)
	}

	if err := PingDB(ctx, pool, dbConnectPingTimeout); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db: ping: %w", err)
	}
	return pool, nil
}

// PingDB acquires a connection and pings it within timeout. /readyz uses it per request.
func PingDB(parent context.Context, pool *pgxpool.Pool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()
	return conn.Ping(ctx)
}
