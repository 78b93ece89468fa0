package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store over PostgreSQL.
//
// The pgx pool is owned by the caller; this store never closes it.
// Schema and table identifiers are quoted with pgx.Identifier.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema holding the identity tables (default "public").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !ValidSchemaIdent(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "public",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

// CreateUser inserts the user row and its credential row in one transaction.
func (s *PostgresStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	email := strings.TrimSpace(in.Email)
	if email == "" || in.PasswordHash == "" {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "email and password hash are required"}
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := NewID(now)
	if err != nil {
		return User{}, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return User{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	u := User{
		ID:        id,
		Email:     email,
		EmailNorm: EmailKey(email),
		Username:  in.Username,
		IsActive:  true,
		IsAdmin:   in.IsAdmin,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO `+s.table("users")+` (
		     id, email, email_norm, username, is_active, is_admin, created_at, updated_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`,
		u.ID, u.Email, u.EmailNorm, u.Username, u.IsActive, u.IsAdmin, now,
	)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return User{}, ConflictError{Op: op, Field: field}
		}
		return User{}, err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO `+s.table("user_credentials")+` (user_id, password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $3)`,
		u.ID, in.PasswordHash, now,
	)
	if err != nil {
		return User{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return User{}, err
	}
	return u, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (User, error) {
	ua, err := s.GetUserAuthByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	return ua.User, nil
}

func (s *PostgresStore) GetUserAuthByID(ctx context.Context, id string) (UserAuth, error) {
	return s.getUserAuth(ctx, "identity.GetUserByID", "u.id = $1", strings.TrimSpace(id))
}

func (s *PostgresStore) GetUserAuthByEmail(ctx context.Context, emailNorm string) (UserAuth, error) {
	return s.getUserAuth(ctx, "identity.GetUserByEmail", "u.email_norm = $1", strings.TrimSpace(emailNorm))
}

func (s *PostgresStore) getUserAuth(ctx context.Context, op, where, arg string) (UserAuth, error) {
	if err := ctx.Err(); err != nil {
		return UserAuth{}, err
	}
	if arg == "" {
		return UserAuth{}, NotFoundError{Op: op, Resource: "user"}
	}

	var ua UserAuth
	err := s.pool.QueryRow(ctx,
		`SELECT u.id, u.email, u.email_norm, u.username, u.is_active, u.is_admin,
		        u.created_at, u.updated_at, c.password_hash
		   FROM `+s.table("users")+` u
		   JOIN `+s.table("user_credentials")+` c ON c.user_id = u.id
		  WHERE `+where,
		arg,
	).Scan(
		&ua.ID, &ua.Email, &ua.EmailNorm, &ua.Username, &ua.IsActive, &ua.IsAdmin,
		&ua.CreatedAt, &ua.UpdatedAt, &ua.PasswordHash,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UserAuth{}, NotFoundError{Op: op, Resource: "user"}
		}
		return UserAuth{}, err
	}
	return ua, nil
}

func (s *PostgresStore) UpdatePasswordHash(ctx context.Context, userID, hash string, now time.Time) error {
	const op = "identity.UpdatePasswordHash"

	if err := ctx.Err(); err != nil {
		return err
	}
	if hash == "" {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "empty hash"}
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE `+s.table("user_credentials")+`
		    SET password_hash = $2, updated_at = $3
		  WHERE user_id = $1`,
		userID, hash, now,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "user"}
	}

	_, err = s.pool.Exec(ctx, `UPDATE `+s.table("users")+` SET updated_at = $2 WHERE id = $1`, userID, now)
	return err
}

// SetActive flips is_active. Inactive users cannot log in or use existing access tokens.
func (s *PostgresStore) SetActive(ctx context.Context, userID string, active bool, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE `+s.table("users")+` SET is_active = $2, updated_at = $3 WHERE id = $1`,
		userID, active, now,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return NotFoundError{Op: "identity.SetActive", Resource: "user"}
	}
	return nil
}

// DeleteUser removes the user row. Credentials, ledger rows and prompt data follow via ON DELETE CASCADE.
func (s *PostgresStore) DeleteUser(ctx context.Context, id string) error {
	const op = "identity.DeleteUser"

	if err := ctx.Err(); err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `DELETE FROM `+s.table("users")+` WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "user"}
	}
	return nil
}

func (s *PostgresStore) table(name string) string {
	return pgx.Identifier{s.schema, name}.Sanitize()
}

// ValidSchemaIdent reports whether s is a plain, unquoted-safe Postgres identifier.
func ValidSchemaIdent(s string) bool {
	return pgIdentRe.MatchString(s)
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))
	switch {
	case c == "uq_users_email_norm", strings.Contains(c, "email"):
		return "email", true
	default:
		return "unique", true
	}
}
