package identity

import (
	"context"
	"time"
)

// User is a registered account. PasswordHash lives in UserAuth so ordinary reads never carry it.
type User struct {
	ID        string
	Email     string // domain-normalized, local part as typed
	EmailNorm string // case-folded uniqueness key
	Username  string
	IsActive  bool
	IsAdmin   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserAuth is a User together with its encoded Argon2id hash.
type UserAuth struct {
	User
	PasswordHash string
}

// CreateUserInput is a fully validated, already hashed registration.
type CreateUserInput struct {
	Email        string
	Username     string
	PasswordHash string
	IsAdmin      bool
	Now          time.Time
}

// Store is the identity persistence boundary.
//
// Implementations return ConflictError{Field: "email"} for duplicate emails and
// NotFoundError for missing users.
type Store interface {
	CreateUser(ctx context.Context, in CreateUserInput) (User, error)
	GetUserByID(ctx context.Context, id string) (User, error)
	GetUserAuthByID(ctx context.Context, id string) (UserAuth, error)
	GetUserAuthByEmail(ctx context.Context, emailNorm string) (UserAuth, error)
	UpdatePasswordHash(ctx context.Context, userID, hash string, now time.Time) error
	SetActive(ctx context.Context, userID string, active bool, now time.Time) error
	DeleteUser(ctx context.Context, id string) error
}
