package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Fillsogood/promptbook/cmd/security/token"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestService(t *testing.T, mutate func(*Config)) (*Service, *MemoryLedger, *testClock) {
	t.Helper()

	cfg := validPasetoConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	tm, err := NewTokenManager(cfg)
	require.NoError(t, err)

	clock := &testClock{now: time.Now().UTC()}
	ledger := NewMemoryLedger()
	svc, err := NewService(cfg, tm, ledger,
		WithClock(clock.Now),
		WithHasher(token.NewHasher("0123456789abcdef0123456789abcdef")),
	)
	require.NoError(t, err)
	return svc, ledger, clock
}

func TestService_IssueRecordsLedgerEntry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, ledger, _ := newTestService(t, nil)

	pair, err := svc.Issue(ctx, testUserID)
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, 1, ledger.CountForUser(testUserID))

	claims, err := svc.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, testUserID, claims.UserID)

	_, err = svc.VerifyAccess(pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestService_RefreshWithoutRotation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, ledger, clock := newTestService(t, nil)

	pair, err := svc.Issue(ctx, testUserID)
	require.NoError(t, err)

	clock.Advance(time.Minute)
	out, err := svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, out.AccessToken)
	assert.Empty(t, out.RefreshToken)
	assert.True(t, out.AccessExp.After(pair.AccessExp))
	assert.Equal(t, 1, ledger.CountForUser(testUserID))

	// Still usable.
	_, err = svc.Refresh(ctx, pair.RefreshToken)
	assert.NoError(t, err)
}

func TestService_RefreshWithRotation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, ledger, clock := newTestService(t, func(c *Config) { c.RotateRefresh = true })

	pair, err := svc.Issue(ctx, testUserID)
	require.NoError(t, err)

	clock.Advance(time.Minute)
	out, err := svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	require.NotEmpty(t, out.RefreshToken)
	assert.NotEqual(t, pair.RefreshToken, out.RefreshToken)
	assert.Equal(t, 2, ledger.CountForUser(testUserID))

	_, err = svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenRevoked)

	_, err = svc.Refresh(ctx, out.RefreshToken)
	assert.NoError(t, err)
}

func TestService_RefreshRejections(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, ledger, clock := newTestService(t, nil)

	_, err := svc.Refresh(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.Refresh(ctx, "garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)

	pair, err := svc.Issue(ctx, testUserID)
	require.NoError(t, err)

	// Access token presented as refresh.
	_, err = svc.Refresh(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Validly signed token whose ledger entry is gone.
	require.NoError(t, ledger.DeleteForUser(ctx, testUserID))
	_, err = svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenNotFound)

	// Digest mismatch.
	pair, err = svc.Issue(ctx, testUserID)
	require.NoError(t, err)
	claims, err := svc.tokens.Verify(pair.RefreshToken, KindRefresh, clock.Now())
	require.NoError(t, err)
	e, err := ledger.Get(ctx, claims.TokenID)
	require.NoError(t, err)
	e.TokenHash = token.HashSHA256Hex("something else")
	require.NoError(t, ledger.Record(ctx, e))
	_, err = svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Expired.
	pair, err = svc.Issue(ctx, testUserID)
	require.NoError(t, err)
	clock.Advance(8 * 24 * time.Hour)
	_, err = svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.True(t, IsRejected(err))
}

func TestService_LedgerExpiryIsEnforced(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, ledger, clock := newTestService(t, nil)

	pair, err := svc.Issue(ctx, testUserID)
	require.NoError(t, err)

	claims, err := svc.tokens.Verify(pair.RefreshToken, KindRefresh, clock.Now())
	require.NoError(t, err)
	e, err := ledger.Get(ctx, claims.TokenID)
	require.NoError(t, err)
	e.ExpiresAt = clock.Now().Add(-time.Second)
	require.NoError(t, ledger.Record(ctx, e))

	_, err = svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestService_Revoke(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _, _ := newTestService(t, nil)

	pair, err := svc.Issue(ctx, testUserID)
	require.NoError(t, err)

	err = svc.Revoke(ctx, pair.RefreshToken, "01HXXXXXXXXXXXXXXXXXXXXXXX")
	assert.ErrorIs(t, err, ErrInvalidToken)

	require.NoError(t, svc.Revoke(ctx, pair.RefreshToken, testUserID))
	require.NoError(t, svc.Revoke(ctx, pair.RefreshToken, testUserID), "revocation is idempotent")

	_, err = svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenRevoked)
}

func TestService_RevokeAllAndPurge(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, ledger, _ := newTestService(t, nil)

	p1, err := svc.Issue(ctx, testUserID)
	require.NoError(t, err)
	p2, err := svc.Issue(ctx, testUserID)
	require.NoError(t, err)

	require.NoError(t, svc.RevokeAll(ctx, testUserID))
	for _, p := range []Pair{p1, p2} {
		_, err := svc.Refresh(ctx, p.RefreshToken)
		assert.ErrorIs(t, err, ErrTokenRevoked)
	}

	require.NoError(t, svc.PurgeUser(ctx, testUserID))
	assert.Equal(t, 0, ledger.CountForUser(testUserID))
}

func TestService_JWTSigner(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _, clock := newTestService(t, func(c *Config) {
		c.Signer = SignerJWT
		c.JWTSecret = "this-is-a-test-secret-of-32-bytes!!"
		c.RotateRefresh = true
	})

	pair, err := svc.Issue(ctx, testUserID)
	require.NoError(t, err)

	clock.Advance(2 * time.Second)
	out, err := svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)

	_, err = svc.VerifyAccess(out.AccessToken)
	require.NoError(t, err)

	_, err = svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenRevoked)
}
