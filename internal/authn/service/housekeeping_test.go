package service

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/aussiebroadwan/doorman/internal/authn/domain"
	"github.com/aussiebroadwan/doorman/pkg/cryptox"
	"github.com/aussiebroadwan/doorman/pkg/idx"
	"github.com/stretchr/testify/require"
)

func TestSweepRemovesStaleRows(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	ctx := context.Background()

	p := createPrincipal(t, st, "alice@example.com", "correct horse battery")
	now := time.Now().UTC()

	// One long-dead refresh token and one live one.
	for i, exp := range []time.Time{now.Add(-48 * time.Hour), now.Add(24 * time.Hour)} {
		opaque, err := cryptox.GenerateToken(cryptox.TokenSize256)
		require.NoError(t, err)
		require.NoError(t, st.RefreshTokens().Create(ctx, domain.RefreshToken{
			ID:          idx.New().String(),
			PrincipalID: p.ID,
			TokenHash:   cryptox.FingerprintToken(opaque),
			IssuedAt:    now.Add(-time.Duration(i) * time.Hour),
			ExpiresAt:   exp,
		}))
	}

	// Attempts past the retention horizon.
	for i := 0; i < 10; i++ {
		failAttempt(t, st, "alice@example.com", "10.0.0.1",
			now.Add(-91*24*time.Hour).Add(-time.Duration(i)*time.Second))
	}
	failAttempt(t, st, "alice@example.com", "10.0.0.1", now)

	// An expired reset token.
	opaque, err := cryptox.GenerateToken(cryptox.TokenSize256)
	require.NoError(t, err)
	require.NoError(t, st.PasswordResets().Create(ctx, domain.PasswordResetToken{
		ID:          idx.New().String(),
		PrincipalID: p.ID,
		TokenHash:   cryptox.FingerprintToken(opaque),
		IssuedAt:    now.Add(-2 * time.Hour),
		ExpiresAt:   now.Add(-time.Hour),
	}))

	hk := NewHousekeepingService(st, slog.Default(), time.Hour, 0, 0)
	hk.Sweep(ctx)

	// The recent attempt survives, the stale batch is gone.
	count, err := st.LoginAttempts().CountFailuresByEmail(ctx, "alice@example.com", now.Add(-100*24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, count)

	// The expired reset token is gone.
	_, err = st.PasswordResets().GetByHash(ctx, cryptox.FingerprintToken(opaque))
	require.Error(t, err)
}

func TestSweepHonoursConfiguredRetention(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	failAttempt(t, st, "bob@example.com", "10.0.0.2", now.Add(-35*24*time.Hour))
	failAttempt(t, st, "bob@example.com", "10.0.0.2", now.Add(-20*24*time.Hour))

	hk := NewHousekeepingService(st, slog.Default(), time.Hour, 24*time.Hour, 30*24*time.Hour)
	require.Equal(t, 30*24*time.Hour, hk.AttemptRetention)

	hk.Sweep(ctx)

	// Only the attempt inside the retention horizon survives.
	count, err := st.LoginAttempts().CountFailuresByEmail(ctx, "bob@example.com", now.Add(-60*24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestHousekeepingStartStop(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	hk := NewHousekeepingService(st, slog.Default(), time.Hour, 0, 0)

	hk.Start()
	hk.Stop()
}

func TestBootstrapEnsurePrincipal(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	svc := &BootstrapService{Store: st}
	ctx := context.Background()

	id, err := svc.EnsurePrincipal(ctx, "admin@example.com", "initial admin pass")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	p, err := st.Principals().GetByID(ctx, id)
	require.NoError(t, err)
	require.True(t, p.Active)
	require.True(t, p.Superuser)

	// A populated store is left alone.
	again, err := svc.EnsurePrincipal(ctx, "other@example.com", "whatever password")
	require.NoError(t, err)
	require.Empty(t, again)
}
