package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFailureDelay(t *testing.T) {
	t.Parallel()

	g := NewGuardService(nil, GuardConfig{DelayCap: 30 * time.Second})

	require.Equal(t, time.Duration(0), g.FailureDelay(0))
	require.Equal(t, time.Duration(0), g.FailureDelay(1))
	require.Equal(t, 2*time.Second, g.FailureDelay(2))
	require.Equal(t, 4*time.Second, g.FailureDelay(3))
	require.Equal(t, 8*time.Second, g.FailureDelay(4))
	require.Equal(t, 16*time.Second, g.FailureDelay(5))
	require.Equal(t, 30*time.Second, g.FailureDelay(6))
	require.Equal(t, 30*time.Second, g.FailureDelay(100))
}

func TestCanAttemptEmailLockout(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	g := fastGuard(st)
	ctx := context.Background()

	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		failAttempt(t, st, "alice@example.com", "10.0.0.1", now.Add(-time.Duration(i)*time.Minute))
	}

	_, ok, err := g.CanAttempt(ctx, "alice@example.com", "10.0.0.99")
	require.NoError(t, err)
	require.False(t, ok)

	// Other emails from unrelated IPs are untouched.
	_, ok, err = g.CanAttempt(ctx, "bob@example.com", "10.0.0.99")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCanAttemptRetryAfterIsExact(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	g := fastGuard(st)
	ctx := context.Background()

	// Five failures within the last minute: the oldest in-window failure
	// ages out of the 15 minute window roughly 14 minutes from now.
	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		failAttempt(t, st, "alice@example.com", "10.0.0.1", now.Add(-time.Duration(i*10)*time.Second))
	}

	retryAfter, ok, err := g.CanAttempt(ctx, "alice@example.com", "10.0.0.1")
	require.NoError(t, err)
	require.False(t, ok)
	require.InDelta(t, (14*time.Minute + 20*time.Second).Seconds(), retryAfter.Seconds(), 5)
}

func TestCanAttemptIPLockout(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	g := fastGuard(st)
	ctx := context.Background()

	// Ten failures across distinct emails from the same IP trip the IP
	// scope without tripping any email scope.
	now := time.Now().UTC()
	emails := []string{"a@x.com", "b@x.com", "c@x.com", "d@x.com", "e@x.com",
		"f@x.com", "g@x.com", "h@x.com", "i@x.com", "j@x.com"}
	for i, email := range emails {
		failAttempt(t, st, email, "198.51.100.7", now.Add(-time.Duration(i)*time.Second))
	}

	retryAfter, ok, err := g.CanAttempt(ctx, "fresh@x.com", "198.51.100.7")
	require.NoError(t, err)
	require.False(t, ok)
	require.Greater(t, retryAfter, time.Duration(0))

	_, ok, err = g.CanAttempt(ctx, "a@x.com", "203.0.113.9")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCanAttemptIgnoresFailuresOutsideWindow(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	g := fastGuard(st)
	ctx := context.Background()

	old := time.Now().UTC().Add(-16 * time.Minute)
	for i := 0; i < 20; i++ {
		failAttempt(t, st, "alice@example.com", "10.0.0.1", old.Add(-time.Duration(i)*time.Second))
	}

	_, ok, err := g.CanAttempt(ctx, "alice@example.com", "10.0.0.1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestWaitHonoursCancellation(t *testing.T) {
	t.Parallel()

	g := NewGuardService(nil, GuardConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := g.Wait(ctx, time.Minute)
	require.ErrorIs(t, err, context.Canceled)

	require.NoError(t, g.Wait(context.Background(), 0))
}

func TestConsecutiveFailuresResetOnSuccess(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	g := fastGuard(st)
	ctx := context.Background()

	now := time.Now().UTC()
	failAttempt(t, st, "alice@example.com", "10.0.0.1", now.Add(-5*time.Minute))
	failAttempt(t, st, "alice@example.com", "10.0.0.1", now.Add(-4*time.Minute))

	streak, err := g.ConsecutiveFailures(ctx, "alice@example.com")
	require.NoError(t, err)
	require.Equal(t, 2, streak)

	require.NoError(t, g.RecordAttempt(ctx, attemptAt("alice@example.com", now.Add(-3*time.Minute), true)))
	failAttempt(t, st, "alice@example.com", "10.0.0.1", now.Add(-2*time.Minute))

	streak, err = g.ConsecutiveFailures(ctx, "alice@example.com")
	require.NoError(t, err)
	require.Equal(t, 1, streak)
}

func TestPurgeOlderThanBulkDeletes(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	g := fastGuard(st)
	ctx := context.Background()

	old := time.Now().UTC().Add(-100 * 24 * time.Hour)
	for i := 0; i < 500; i++ {
		failAttempt(t, st, "stale@example.com", "10.0.0.1", old.Add(-time.Duration(i)*time.Second))
	}
	failAttempt(t, st, "fresh@example.com", "10.0.0.1", time.Now().UTC())

	n, err := g.PurgeOlderThan(ctx, 90*24*time.Hour)
	require.NoError(t, err)
	require.EqualValues(t, 500, n)

	count, err := st.LoginAttempts().CountFailuresByEmail(ctx, "fresh@example.com", old)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}
