package session

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLedger implements Ledger over the refresh_tokens table.
type PostgresLedger struct {
	pool  *pgxpool.Pool
	table string
}

// NewPostgresLedger creates a Postgres-backed ledger in schema.
func NewPostgresLedger(pool *pgxpool.Pool, schema string) *PostgresLedger {
	if schema == "" {
		schema = "public"
	}
	return &PostgresLedger{pool: pool, table: pgx.Identifier{schema, "refresh_tokens"}.Sanitize()}
}

func (l *PostgresLedger) Record(ctx context.Context, e LedgerEntry) error {
	return recordTx(ctx, l.pool, l.table, e)
}

func (l *PostgresLedger) Get(ctx context.Context, tokenID string) (LedgerEntry, error) {
	var e LedgerEntry

	err := l.pool.QueryRow(ctx, `
		SELECT id, user_id, token_hash, issued_at, expires_at, revoked_at
		FROM `+l.table+`
		WHERE id = $1
	`, tokenID).Scan(
		&e.TokenID,
		&e.UserID,
		&e.TokenHash,
		&e.IssuedAt,
		&e.ExpiresAt,
		&e.RevokedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return LedgerEntry{}, ErrTokenNotFound
	}
	if err != nil {
		return LedgerEntry{}, err
	}
	return e, nil
}

// Revoke is idempotent: revoked_at keeps its first value.
func (l *PostgresLedger) Revoke(ctx context.Context, tokenID string, now time.Time) error {
	tag, err := l.pool.Exec(ctx, `
		UPDATE `+l.table+`
		SET revoked_at = COALESCE(revoked_at, $2)
		WHERE id = $1
	`, tokenID, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTokenNotFound
	}
	return nil
}

// Rotate locks the old row, revokes it and inserts the replacement in one transaction.
func (l *PostgresLedger) Rotate(ctx context.Context, oldTokenID string, next LedgerEntry, now time.Time) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var revokedAt *time.Time
	err = tx.QueryRow(ctx, `
		SELECT revoked_at FROM `+l.table+`
		WHERE id = $1
		FOR UPDATE
	`, oldTokenID).Scan(&revokedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrTokenNotFound
	}
	if err != nil {
		return err
	}
	if revokedAt != nil {
		return ErrTokenRevoked
	}

	if _, err := tx.Exec(ctx, `UPDATE `+l.table+` SET revoked_at = $2 WHERE id = $1`, oldTokenID, now); err != nil {
		return err
	}
	if err := recordTx(ctx, tx, l.table, next); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (l *PostgresLedger) RevokeAllForUser(ctx context.Context, userID string, now time.Time) error {
	_, err := l.pool.Exec(ctx, `
		UPDATE `+l.table+`
		SET revoked_at = $2
		WHERE user_id = $1 AND revoked_at IS NULL
	`, userID, now)
	return err
}

func (l *PostgresLedger) DeleteForUser(ctx context.Context, userID string) error {
	_, err := l.pool.Exec(ctx, `DELETE FROM `+l.table+` WHERE user_id = $1`, userID)
	return err
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func recordTx(ctx context.Context, db execer, table string, e LedgerEntry) error {
	_, err := db.Exec(ctx, `
		INSERT INTO `+table+` (id, user_id, token_hash, issued_at, expires_at, revoked_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.TokenID, e.UserID, e.TokenHash, e.IssuedAt, e.ExpiresAt, e.RevokedAt)
	return err
}
