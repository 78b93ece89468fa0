package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Fillsogood/promptbook/cmd/security/password"
)

func fastPasswordConfig() password.Config {
	cfg := password.DefaultConfig()
	cfg.Params.MemoryKiB = 8 * 1024
	cfg.Params.Iterations = 1
	cfg.Params.Parallelism = 1
	return cfg
}

func newTestAccounts(t *testing.T, opts ...AccountsOption) (*Accounts, *MemoryStore) {
	t.Helper()

	st := NewMemoryStore()
	acc, err := NewAccounts(st, fastPasswordConfig(), opts...)
	require.NoError(t, err)
	return acc, st
}

func TestAccounts_RegisterAndAuthenticate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	acc, _ := newTestAccounts(t)

	u, err := acc.Register(ctx, RegisterInput{Email: "a@example.com", Username: "alice", Password: "pass1234"})
	require.NoError(t, err)
	assert.Len(t, u.ID, 26)
	assert.True(t, u.IsActive)
	assert.False(t, u.IsAdmin)
	assert.Equal(t, "a@example.com", u.Email)

	got, err := acc.Authenticate(ctx, "A@Example.com", "pass1234")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
}

func TestAccounts_Register_DuplicateEmail(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	acc, st := newTestAccounts(t)

	_, err := acc.Register(ctx, RegisterInput{Email: "a@example.com", Username: "alice", Password: "pass1234"})
	require.NoError(t, err)

	_, err = acc.Register(ctx, RegisterInput{Email: "A@EXAMPLE.com", Username: "alice2", Password: "pass1234"})
	require.Error(t, err)
	field, ok := IsConflict(err)
	require.True(t, ok)
	assert.Equal(t, "email", field)
	assert.Equal(t, 1, st.Len())
}

func TestAccounts_Register_FieldErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	acc, st := newTestAccounts(t)

	cases := []struct {
		name  string
		in    RegisterInput
		field string
	}{
		{"bad email", RegisterInput{Email: "nope", Username: "u", Password: "pass1234"}, "email"},
		{"blank username", RegisterInput{Email: "a@example.com", Username: "  ", Password: "pass1234"}, "username"},
		{"short password", RegisterInput{Email: "a@example.com", Username: "u", Password: "short"}, "password"},
	}
	for _, tc := range cases {
		_, err := acc.Register(ctx, tc.in)
		fe, ok := AsFieldError(err)
		require.True(t, ok, tc.name)
		assert.Equal(t, tc.field, fe.Field, tc.name)
	}
	assert.Equal(t, 0, st.Len())
}

func TestAccounts_Authenticate_Failures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	acc, _ := newTestAccounts(t)

	u, err := acc.Register(ctx, RegisterInput{Email: "a@example.com", Username: "alice", Password: "pass1234"})
	require.NoError(t, err)

	_, err = acc.Authenticate(ctx, "a@example.com", "wrong-pass")
	assert.True(t, IsInvalidCredentials(err))

	_, err = acc.Authenticate(ctx, "ghost@example.com", "pass1234")
	assert.True(t, IsInvalidCredentials(err))

	_, err = acc.Authenticate(ctx, "not-an-email", "pass1234")
	assert.True(t, IsInvalidCredentials(err))

	require.NoError(t, acc.SetActive(ctx, u.ID, false))

	_, err = acc.Authenticate(ctx, "a@example.com", "pass1234")
	assert.True(t, IsInvalidCredentials(err))
}

func TestAccounts_ChangePassword(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	acc, _ := newTestAccounts(t)

	u, err := acc.Register(ctx, RegisterInput{Email: "a@example.com", Username: "alice", Password: "pass1234"})
	require.NoError(t, err)

	err = acc.ChangePassword(ctx, u.ID, "not-current", "newpass123")
	require.True(t, IsInvalidCredentials(err))

	// Unchanged after a failed attempt.
	_, err = acc.Authenticate(ctx, "a@example.com", "pass1234")
	require.NoError(t, err)

	err = acc.ChangePassword(ctx, u.ID, "pass1234", "short")
	fe, ok := AsFieldError(err)
	require.True(t, ok)
	assert.Equal(t, "new_password", fe.Field)

	require.NoError(t, acc.ChangePassword(ctx, u.ID, "pass1234", "newpass123"))

	_, err = acc.Authenticate(ctx, "a@example.com", "pass1234")
	assert.True(t, IsInvalidCredentials(err))
	_, err = acc.Authenticate(ctx, "a@example.com", "newpass123")
	assert.NoError(t, err)
}

func TestAccounts_Authenticate_RehashesOnParamChange(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := NewMemoryStore()

	old := fastPasswordConfig()
	accOld, err := NewAccounts(st, old)
	require.NoError(t, err)
	u, err := accOld.Register(ctx, RegisterInput{Email: "a@example.com", Username: "alice", Password: "pass1234"})
	require.NoError(t, err)

	newer := old
	newer.Params.Iterations = 2
	accNew, err := NewAccounts(st, newer)
	require.NoError(t, err)

	_, err = accNew.Authenticate(ctx, "a@example.com", "pass1234")
	require.NoError(t, err)

	ua, err := st.GetUserAuthByID(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, newer.NeedsRehash(ua.PasswordHash))
}

func TestAccounts_Delete_RunsPurgersInOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	var calls []string
	first := PurgerFunc(func(_ context.Context, id string) error {
		calls = append(calls, "first:"+id)
		return nil
	})
	second := PurgerFunc(func(_ context.Context, id string) error {
		calls = append(calls, "second:"+id)
		return nil
	})

	acc, st := newTestAccounts(t, WithPurgers(first, second))
	u, err := acc.Register(ctx, RegisterInput{Email: "a@example.com", Username: "alice", Password: "pass1234"})
	require.NoError(t, err)

	require.NoError(t, acc.Delete(ctx, u.ID))
	assert.Equal(t, []string{"first:" + u.ID, "second:" + u.ID}, calls)
	assert.Equal(t, 0, st.Len())

	_, err = acc.Authenticate(ctx, "a@example.com", "pass1234")
	assert.True(t, IsInvalidCredentials(err))

	// Email is free again.
	_, err = acc.Register(ctx, RegisterInput{Email: "a@example.com", Username: "alice", Password: "pass1234"})
	assert.NoError(t, err)
}

func TestAccounts_Delete_PurgerFailureKeepsUser(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	boom := errors.New("boom")
	acc, st := newTestAccounts(t, WithPurgers(PurgerFunc(func(context.Context, string) error { return boom })))

	u, err := acc.Register(ctx, RegisterInput{Email: "a@example.com", Username: "alice", Password: "pass1234"})
	require.NoError(t, err)

	err = acc.Delete(ctx, u.ID)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, st.Len())

	assert.True(t, IsNotFound(acc.Delete(ctx, "01ARZ3NDEKTSV4RRFFQ69G5FAV")))
}

func TestAccounts_RegisterAdmin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	acc, _ := newTestAccounts(t)

	u, err := acc.RegisterAdmin(ctx, RegisterInput{Email: "root@example.com", Username: "root", Password: "pass1234"})
	require.NoError(t, err)
	assert.True(t, u.IsAdmin)
	assert.True(t, u.IsActive)

	got, err := acc.Authenticate(ctx, "root@example.com", "pass1234")
	require.NoError(t, err)
	assert.True(t, got.IsAdmin)
}

func TestAccounts_FindByEmailAndSetActive(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	acc, _ := newTestAccounts(t)

	u, err := acc.Register(ctx, RegisterInput{Email: "a@example.com", Username: "alice", Password: "pass1234"})
	require.NoError(t, err)

	got, err := acc.FindByEmail(ctx, "A@EXAMPLE.COM")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = acc.FindByEmail(ctx, "missing@example.com")
	assert.True(t, IsNotFound(err))

	require.NoError(t, acc.SetActive(ctx, u.ID, false))
	_, err = acc.Authenticate(ctx, "a@example.com", "pass1234")
	assert.True(t, IsInvalidCredentials(err))

	require.NoError(t, acc.SetActive(ctx, u.ID, true))
	_, err = acc.Authenticate(ctx, "a@example.com", "pass1234")
	assert.NoError(t, err)
}
