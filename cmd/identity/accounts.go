package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Fillsogood/promptbook/cmd/security/password"
)

// Purger removes data owned by a user. Accounts.Delete runs purgers in registration order
// before the user row is removed.
type Purger interface {
	PurgeUser(ctx context.Context, userID string) error
}

// PurgerFunc adapts a function to Purger.
type PurgerFunc func(ctx context.Context, userID string) error

func (f PurgerFunc) PurgeUser(ctx context.Context, userID string) error { return f(ctx, userID) }

// MaxUsernameLength bounds usernames in runes after normalization.
const MaxUsernameLength = 100

// RegisterInput is an unvalidated registration request.
type RegisterInput struct {
	Email    string
	Username string
	Password string
}

// Accounts implements registration, login verification, password change and account deletion.
type Accounts struct {
	store     Store
	pw        password.Config
	purgers   []Purger
	dummyHash string
	now       func() time.Time
}

// AccountsOption configures Accounts.
type AccountsOption func(*Accounts)

// WithPurgers appends owned-data purgers run by Delete.
func WithPurgers(p ...Purger) AccountsOption {
	return func(a *Accounts) {
		for _, x := range p {
			if x != nil {
				a.purgers = append(a.purgers, x)
			}
		}
	}
}

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) AccountsOption {
	return func(a *Accounts) {
		if now != nil {
			a.now = now
		}
	}
}

// NewAccounts builds the service. It precomputes a dummy hash so unknown-email logins
// pay the same Argon2id cost as real ones.
func NewAccounts(store Store, pw password.Config, opts ...AccountsOption) (*Accounts, error) {
	if store == nil {
		return nil, errors.New("identity: nil store")
	}
	if err := pw.Check(); err != nil {
		return nil, fmt.Errorf("identity: %w", err)
	}

	a := &Accounts{
		store: store,
		pw:    pw,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}

	dummyCfg := pw
	dummyCfg.Policy = password.Policy{MinLength: 1, MaxLength: 4096}
	h, err := dummyCfg.Hash("promptbook-dummy-password-not-a-secret")
	if err != nil {
		return nil, fmt.Errorf("identity: dummy hash: %w", err)
	}
	a.dummyHash = h

	return a, nil
}

// Register creates an active, non-admin account.
func (a *Accounts) Register(ctx context.Context, in RegisterInput) (User, error) {
	return a.create(ctx, "identity.Register", in, false)
}

// RegisterAdmin creates an active admin account. Used by the bootstrap CLI only.
func (a *Accounts) RegisterAdmin(ctx context.Context, in RegisterInput) (User, error) {
	return a.create(ctx, "identity.RegisterAdmin", in, true)
}

func (a *Accounts) create(ctx context.Context, op string, in RegisterInput, admin bool) (User, error) {
	email, err := NormalizeEmail(in.Email)
	if err != nil {
		return User{}, err
	}

	username := NormalizeUsername(in.Username)
	if username == "" {
		return User{}, FieldError{Op: op, Field: "username", Reason: "this field may not be blank"}
	}
	if utf8.RuneCountInString(username) > MaxUsernameLength {
		return User{}, FieldError{Op: op, Field: "username", Reason: fmt.Sprintf("must contain at most %d characters", MaxUsernameLength)}
	}

	hash, err := a.pw.Hash(in.Password)
	if err != nil {
		if password.IsPolicyViolation(err) {
			return User{}, FieldError{Op: op, Field: "password", Reason: a.policyReason(err)}
		}
		return User{}, err
	}

	return a.store.CreateUser(ctx, CreateUserInput{
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		IsAdmin:      admin,
		Now:          a.now(),
	})
}

// Authenticate verifies credentials. Unknown email, wrong password and inactive accounts
// all return ErrInvalidCredentials.
func (a *Accounts) Authenticate(ctx context.Context, email, plain string) (User, error) {
	const op = "identity.Authenticate"
	invalid := OpError{Op: op, Kind: ErrInvalidCredentials}

	norm, err := NormalizeEmail(email)
	if err != nil {
		_, _ = a.pw.Verify(a.dummyHash, plain)
		return User{}, invalid
	}

	ua, err := a.store.GetUserAuthByEmail(ctx, EmailKey(norm))
	if err != nil {
		if IsNotFound(err) {
			_, _ = a.pw.Verify(a.dummyHash, plain)
			return User{}, invalid
		}
		return User{}, err
	}

	ok, err := a.pw.Verify(ua.PasswordHash, plain)
	if err != nil {
		if errors.Is(err, password.ErrInvalidHash) {
			return User{}, invalid
		}
		return User{}, err
	}
	if !ok || !ua.IsActive {
		return User{}, invalid
	}

	// Upgrade hashes made with older cost settings; a failure here must not block the login.
	if a.pw.NeedsRehash(ua.PasswordHash) {
		if h, err := a.pw.Hash(plain); err == nil {
			_ = a.store.UpdatePasswordHash(ctx, ua.ID, h, a.now())
		}
	}

	return ua.User, nil
}

// Get returns the user by id.
func (a *Accounts) Get(ctx context.Context, userID string) (User, error) {
	return a.store.GetUserByID(ctx, userID)
}

// ChangePassword replaces the password after verifying the current one.
// A wrong current password returns ErrInvalidCredentials and changes nothing.
func (a *Accounts) ChangePassword(ctx context.Context, userID, current, next string) error {
	const op = "identity.ChangePassword"

	ua, err := a.store.GetUserAuthByID(ctx, userID)
	if err != nil {
		return err
	}

	ok, err := a.pw.Verify(ua.PasswordHash, current)
	if err != nil && !errors.Is(err, password.ErrInvalidHash) {
		return err
	}
	if !ok {
		return OpError{Op: op, Kind: ErrInvalidCredentials, Msg: "current password does not match"}
	}

	hash, err := a.pw.Hash(next)
	if err != nil {
		if password.IsPolicyViolation(err) {
			return FieldError{Op: op, Field: "new_password", Reason: a.policyReason(err)}
		}
		return err
	}

	return a.store.UpdatePasswordHash(ctx, userID, hash, a.now())
}

// FindByEmail returns the account registered under email (any case).
func (a *Accounts) FindByEmail(ctx context.Context, email string) (User, error) {
	norm, err := NormalizeEmail(email)
	if err != nil {
		return User{}, err
	}
	ua, err := a.store.GetUserAuthByEmail(ctx, EmailKey(norm))
	if err != nil {
		return User{}, err
	}
	return ua.User, nil
}

// SetActive activates or deactivates an account. Inactive accounts cannot log in and their
// access tokens stop authorizing requests.
func (a *Accounts) SetActive(ctx context.Context, userID string, active bool) error {
	return a.store.SetActive(ctx, userID, active, a.now())
}

// Delete removes the account and everything it owns. Purgers run first, in order;
// the first purger error aborts the deletion with the user row intact.
func (a *Accounts) Delete(ctx context.Context, userID string) error {
	const op = "identity.Delete"

	if strings.TrimSpace(userID) == "" {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "missing user id"}
	}
	if _, err := a.store.GetUserByID(ctx, userID); err != nil {
		return err
	}

	for _, p := range a.purgers {
		if err := p.PurgeUser(ctx, userID); err != nil {
			return fmt.Errorf("%s: purge: %w", op, err)
		}
	}
	return a.store.DeleteUser(ctx, userID)
}

func (a *Accounts) policyReason(err error) string {
	switch {
	case errors.Is(err, password.ErrPasswordTooShort):
		return fmt.Sprintf("must contain at least %d characters", a.pw.Policy.MinLength)
	case errors.Is(err, password.ErrPasswordTooLong):
		return fmt.Sprintf("must contain at most %d characters", a.pw.Policy.MaxLength)
	default:
		return "this password is too common"
	}
}
