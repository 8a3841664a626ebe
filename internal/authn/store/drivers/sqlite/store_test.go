package sqlite

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/doorman/internal/authn/domain"
	"github.com/aussiebroadwan/doorman/internal/authn/store"
	"github.com/aussiebroadwan/doorman/pkg/idx"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	st, err := NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func seedPrincipal(t *testing.T, st store.Store, email string) domain.Principal {
	t.Helper()

	now := time.Now().UTC()
	p := domain.Principal{
		ID:             idx.New().String(),
		Email:          email,
		CredentialHash: "$argon2id$v=19$m=19456,t=2,p=1$c2FsdHNhbHQ$aGFzaGhhc2g",
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, st.Principals().Create(context.Background(), p))
	return p
}

func seedRefreshToken(t *testing.T, st store.Store, principalID string, expiresAt time.Time) domain.RefreshToken {
	t.Helper()

	now := time.Now().UTC()
	rt := domain.RefreshToken{
		ID:          idx.New().String(),
		PrincipalID: principalID,
		TokenHash:   idx.New().String(),
		IssuedAt:    now,
		ExpiresAt:   expiresAt,
	}
	require.NoError(t, st.RefreshTokens().Create(context.Background(), rt))
	return rt
}

func TestPrincipals(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	ctx := context.Background()

	t.Run("empty store reports empty", func(t *testing.T) {
		empty, err := st.Principals().IsEmpty(ctx)
		require.NoError(t, err)
		require.True(t, empty)
	})

	p := seedPrincipal(t, st, "Alice@Example.COM")

	t.Run("email lookup is case insensitive", func(t *testing.T) {
		got, err := st.Principals().FindByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		require.Equal(t, p.ID, got.ID)

		got, err = st.Principals().FindByEmail(ctx, "  ALICE@EXAMPLE.COM  ")
		require.NoError(t, err)
		require.Equal(t, p.ID, got.ID)
	})

	t.Run("duplicate email is rejected", func(t *testing.T) {
		dup := p
		dup.ID = idx.New().String()
		dup.Email = "alice@example.com"
		err := st.Principals().Create(ctx, dup)
		require.ErrorIs(t, err, store.ErrAlreadyExists)
	})

	t.Run("unknown lookups return not found", func(t *testing.T) {
		_, err := st.Principals().FindByEmail(ctx, "ghost@example.com")
		require.ErrorIs(t, err, store.ErrNotFound)

		_, err = st.Principals().GetByID(ctx, "missing")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("credential hash update", func(t *testing.T) {
		require.NoError(t, st.Principals().UpdateCredentialHash(ctx, p.ID, "newhash"))
		got, err := st.Principals().GetByID(ctx, p.ID)
		require.NoError(t, err)
		require.Equal(t, "newhash", got.CredentialHash)

		err = st.Principals().UpdateCredentialHash(ctx, "missing", "x")
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestRefreshTokenConsume(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	p := seedPrincipal(t, st, "alice@example.com")

	t.Run("usable token is consumed once", func(t *testing.T) {
		rt := seedRefreshToken(t, st, p.ID, now.Add(time.Hour))

		got, err := st.RefreshTokens().Consume(ctx, rt.TokenHash, now)
		require.NoError(t, err)
		require.Equal(t, rt.ID, got.ID)

		// Second redemption surfaces the reuse signal.
		_, err = st.RefreshTokens().Consume(ctx, rt.TokenHash, now)
		require.ErrorIs(t, err, store.ErrTokenRevoked)
	})

	t.Run("expired token", func(t *testing.T) {
		rt := seedRefreshToken(t, st, p.ID, now.Add(-time.Minute))

		_, err := st.RefreshTokens().Consume(ctx, rt.TokenHash, now)
		require.ErrorIs(t, err, store.ErrTokenExpired)
	})

	t.Run("unknown token", func(t *testing.T) {
		_, err := st.RefreshTokens().Consume(ctx, "no-such-hash", now)
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("concurrent redemption has one winner", func(t *testing.T) {
		rt := seedRefreshToken(t, st, p.ID, now.Add(time.Hour))

		const racers = 8
		errs := make([]error, racers)
		var wg sync.WaitGroup
		wg.Add(racers)
		for i := 0; i < racers; i++ {
			go func(i int) {
				defer wg.Done()
				_, errs[i] = st.RefreshTokens().Consume(ctx, rt.TokenHash, time.Now().UTC())
			}(i)
		}
		wg.Wait()

		var wins int
		for _, err := range errs {
			if err == nil {
				wins++
			} else {
				require.ErrorIs(t, err, store.ErrTokenRevoked)
			}
		}
		require.Equal(t, 1, wins)
	})
}

func TestRevokeRefreshToken(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	p := seedPrincipal(t, st, "alice@example.com")
	rt := seedRefreshToken(t, st, p.ID, now.Add(time.Hour))
	other := seedRefreshToken(t, st, p.ID, now.Add(time.Hour))

	require.NoError(t, st.RefreshTokens().Revoke(ctx, rt.ID, now))

	got, err := st.RefreshTokens().GetByHash(ctx, rt.TokenHash)
	require.NoError(t, err)
	require.NotNil(t, got.RevokedAt)

	// A second revoke finds no active row.
	require.ErrorIs(t, st.RefreshTokens().Revoke(ctx, rt.ID, now), store.ErrNotFound)

	// The revoked token cannot be consumed; the sibling is unaffected.
	_, err = st.RefreshTokens().Consume(ctx, rt.TokenHash, now)
	require.ErrorIs(t, err, store.ErrTokenRevoked)
	_, err = st.RefreshTokens().Consume(ctx, other.TokenHash, now)
	require.NoError(t, err)
}

func TestRevokeAllForPrincipal(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	p := seedPrincipal(t, st, "alice@example.com")
	other := seedPrincipal(t, st, "bob@example.com")

	for i := 0; i < 3; i++ {
		seedRefreshToken(t, st, p.ID, now.Add(time.Hour))
	}
	kept := seedRefreshToken(t, st, other.ID, now.Add(time.Hour))

	n, err := st.RefreshTokens().RevokeAllForPrincipal(ctx, p.ID, now)
	require.NoError(t, err)
	require.EqualValues(t, 3, n)

	// Idempotent: nothing left to revoke.
	n, err = st.RefreshTokens().RevokeAllForPrincipal(ctx, p.ID, now)
	require.NoError(t, err)
	require.EqualValues(t, 0, n)

	// Other principals are untouched.
	got, err := st.RefreshTokens().GetByHash(ctx, kept.TokenHash)
	require.NoError(t, err)
	require.False(t, got.Revoked)
}

func TestDeleteExpiredRefreshTokens(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	p := seedPrincipal(t, st, "alice@example.com")

	seedRefreshToken(t, st, p.ID, now.Add(-48*time.Hour))
	recentlyExpired := seedRefreshToken(t, st, p.ID, now.Add(-time.Hour))
	live := seedRefreshToken(t, st, p.ID, now.Add(time.Hour))

	n, err := st.RefreshTokens().DeleteExpired(ctx, now, 24*time.Hour)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	// Inside the grace period the expired row survives for reuse detection.
	_, err = st.RefreshTokens().GetByHash(ctx, recentlyExpired.TokenHash)
	require.NoError(t, err)

	_, err = st.RefreshTokens().GetByHash(ctx, live.TokenHash)
	require.NoError(t, err)
}

func TestLoginAttemptQueries(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	appendAttempt := func(email, ip string, at time.Time, success bool) {
		a := domain.LoginAttempt{
			ID:          idx.NewAt(at).String(),
			Email:       email,
			SourceIP:    ip,
			Success:     success,
			AttemptedAt: at,
		}
		if !success {
			reason := domain.FailureWrongPassword
			a.FailureReason = &reason
		}
		require.NoError(t, st.LoginAttempts().Create(ctx, a))
	}

	for i := 0; i < 4; i++ {
		appendAttempt("alice@example.com", "10.0.0.1", now.Add(-time.Duration(i)*time.Minute), false)
	}
	appendAttempt("alice@example.com", "10.0.0.1", now.Add(-20*time.Minute), false)
	appendAttempt("bob@example.com", "10.0.0.1", now.Add(-time.Minute), false)

	t.Run("window scoping", func(t *testing.T) {
		n, err := st.LoginAttempts().CountFailuresByEmail(ctx, "alice@example.com", now.Add(-15*time.Minute))
		require.NoError(t, err)
		require.Equal(t, 4, n)

		n, err = st.LoginAttempts().CountFailuresByIP(ctx, "10.0.0.1", now.Add(-15*time.Minute))
		require.NoError(t, err)
		require.Equal(t, 5, n)
	})

	t.Run("nth recent failure time", func(t *testing.T) {
		at, err := st.LoginAttempts().NthRecentFailureTimeByEmail(ctx, "alice@example.com", now.Add(-15*time.Minute), 4)
		require.NoError(t, err)
		require.WithinDuration(t, now.Add(-3*time.Minute), at, time.Second)

		_, err = st.LoginAttempts().NthRecentFailureTimeByEmail(ctx, "alice@example.com", now.Add(-15*time.Minute), 5)
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("consecutive failures reset on success", func(t *testing.T) {
		n, err := st.LoginAttempts().CountConsecutiveFailures(ctx, "alice@example.com")
		require.NoError(t, err)
		require.Equal(t, 5, n)

		appendAttempt("alice@example.com", "10.0.0.1", now, true)
		n, err = st.LoginAttempts().CountConsecutiveFailures(ctx, "alice@example.com")
		require.NoError(t, err)
		require.Equal(t, 0, n)
	})
}

func TestLoginAttemptBulkDelete(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	// A large stale batch exercises the single-statement delete path.
	for i := 0; i < 10000; i++ {
		reason := domain.FailureWrongPassword
		require.NoError(t, st.LoginAttempts().Create(ctx, domain.LoginAttempt{
			ID:            idx.New().String(),
			Email:         fmt.Sprintf("user%d@example.com", i%100),
			SourceIP:      "10.0.0.1",
			Success:       false,
			FailureReason: &reason,
			AttemptedAt:   now.Add(-100 * 24 * time.Hour),
		}))
	}

	n, err := st.LoginAttempts().DeleteOlderThan(ctx, now.Add(-90*24*time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 10000, n)
}

func TestPasswordResets(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	p := seedPrincipal(t, st, "alice@example.com")

	rt := domain.PasswordResetToken{
		ID:          idx.New().String(),
		PrincipalID: p.ID,
		TokenHash:   "reset-hash",
		IssuedAt:    now,
		ExpiresAt:   now.Add(time.Hour),
	}
	require.NoError(t, st.PasswordResets().Create(ctx, rt))

	t.Run("mark used flips exactly once", func(t *testing.T) {
		require.NoError(t, st.PasswordResets().MarkUsed(ctx, rt.ID, now))
		err := st.PasswordResets().MarkUsed(ctx, rt.ID, now)
		require.ErrorIs(t, err, store.ErrAlreadyUsed)

		got, err := st.PasswordResets().GetByHash(ctx, "reset-hash")
		require.NoError(t, err)
		require.True(t, got.Used)
		require.NotNil(t, got.UsedAt)
	})

	t.Run("sweep removes used and expired rows", func(t *testing.T) {
		expired := domain.PasswordResetToken{
			ID:          idx.New().String(),
			PrincipalID: p.ID,
			TokenHash:   "expired-hash",
			IssuedAt:    now.Add(-2 * time.Hour),
			ExpiresAt:   now.Add(-time.Hour),
		}
		require.NoError(t, st.PasswordResets().Create(ctx, expired))

		n, err := st.PasswordResets().DeleteExpired(ctx, now)
		require.NoError(t, err)
		require.EqualValues(t, 2, n)
	})
}

func TestWithTxRollsBackOnError(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	ctx := context.Background()

	p := seedPrincipal(t, st, "alice@example.com")

	sentinel := fmt.Errorf("boom")
	err := st.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Principals().UpdateCredentialHash(ctx, p.ID, "changed"); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	got, err := st.Principals().GetByID(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, p.CredentialHash, got.CredentialHash)
}
