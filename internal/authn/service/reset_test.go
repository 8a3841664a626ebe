package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/doorman/internal/authn/audit"
	"github.com/stretchr/testify/require"
)

// captureDelivery records the last message so tests can fish the token out
// of the body the way a recipient would.
type captureDelivery struct {
	mu   sync.Mutex
	to   string
	body string
}

func (d *captureDelivery) Send(_ context.Context, to, _, body string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.to, d.body = to, body
	return nil
}

func (d *captureDelivery) last() (string, string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.to, d.body
}

func extractToken(t *testing.T, body string) string {
	t.Helper()

	const marker = "Reset token: "
	i := strings.Index(body, marker)
	require.GreaterOrEqual(t, i, 0)
	rest := body[i+len(marker):]
	if j := strings.IndexByte(rest, '\n'); j >= 0 {
		rest = rest[:j]
	}
	return rest
}

func TestResetRequestSilentForUnknownEmail(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	rec := &audit.Recorder{}
	d := &captureDelivery{}
	svc := &ResetService{Store: st, Delivery: d, Audit: rec, TokenTTL: time.Hour}

	// No account, no panic, no observable difference.
	svc.Request(context.Background(), ResetRequest{Email: "nobody@example.com", SourceIP: "10.0.0.1"})

	to, _ := d.last()
	require.Empty(t, to)
	_, ok := rec.Last(audit.EventResetRequested)
	require.False(t, ok)
}

func TestResetRoundTrip(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	rec := &audit.Recorder{}
	d := &captureDelivery{}
	reset := &ResetService{Store: st, Delivery: d, Audit: rec, TokenTTL: time.Hour}
	auth := newTestAuthService(t, st, rec)
	ctx := context.Background()

	createPrincipal(t, st, "alice@example.com", "old password here")

	// An active session that the reset must sever.
	pair, err := auth.Login(ctx, LoginRequest{
		Email: "alice@example.com", Password: "old password here", SourceIP: "10.0.0.1",
	})
	require.NoError(t, err)

	reset.Request(ctx, ResetRequest{Email: "alice@example.com", SourceIP: "10.0.0.1"})
	to, body := d.last()
	require.Equal(t, "alice@example.com", to)
	token := extractToken(t, body)
	require.NotEmpty(t, token)

	require.NoError(t, reset.Confirm(ctx, ConfirmRequest{
		Token: token, NewPassword: "brand new password", SourceIP: "10.0.0.1",
	}))

	_, ok := rec.Last(audit.EventResetCompleted)
	require.True(t, ok)

	// Old password dead, new password live.
	_, err = auth.Login(ctx, LoginRequest{
		Email: "alice@example.com", Password: "old password here", SourceIP: "10.0.0.1",
	})
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = auth.Login(ctx, LoginRequest{
		Email: "alice@example.com", Password: "brand new password", SourceIP: "10.0.0.1",
	})
	require.NoError(t, err)

	// The pre-reset refresh token was revoked with the credential change.
	_, err = auth.Refresh(ctx, RefreshRequest{RefreshToken: pair.RefreshToken, SourceIP: "10.0.0.1"})
	require.ErrorIs(t, err, ErrTokenReuseDetected)
}

func TestResetConfirmSingleUse(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	rec := &audit.Recorder{}
	d := &captureDelivery{}
	svc := &ResetService{Store: st, Delivery: d, Audit: rec, TokenTTL: time.Hour}
	ctx := context.Background()

	createPrincipal(t, st, "alice@example.com", "old password here")
	svc.Request(ctx, ResetRequest{Email: "alice@example.com", SourceIP: "10.0.0.1"})
	_, body := d.last()
	token := extractToken(t, body)

	require.NoError(t, svc.Confirm(ctx, ConfirmRequest{
		Token: token, NewPassword: "first new password", SourceIP: "10.0.0.1",
	}))

	err := svc.Confirm(ctx, ConfirmRequest{
		Token: token, NewPassword: "second new password", SourceIP: "10.0.0.1",
	})
	require.ErrorIs(t, err, ErrResetTokenAlreadyUsed)

	ev, ok := rec.Last(audit.EventResetFailed)
	require.True(t, ok)
	require.Equal(t, "already_used", ev.Reason)
}

func TestResetConfirmExpiredToken(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	rec := &audit.Recorder{}
	d := &captureDelivery{}
	svc := &ResetService{Store: st, Delivery: d, Audit: rec, TokenTTL: time.Nanosecond}
	ctx := context.Background()

	createPrincipal(t, st, "alice@example.com", "old password here")
	svc.Request(ctx, ResetRequest{Email: "alice@example.com", SourceIP: "10.0.0.1"})
	_, body := d.last()
	token := extractToken(t, body)

	time.Sleep(10 * time.Millisecond)

	err := svc.Confirm(ctx, ConfirmRequest{
		Token: token, NewPassword: "whatever new thing", SourceIP: "10.0.0.1",
	})
	require.ErrorIs(t, err, ErrResetTokenExpired)
}

func TestResetConfirmUnknownToken(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	svc := &ResetService{Store: st, Delivery: LogDelivery{}, Audit: &audit.Recorder{}}

	err := svc.Confirm(context.Background(), ConfirmRequest{
		Token: "never-issued", NewPassword: "irrelevant pass", SourceIP: "10.0.0.1",
	})
	require.ErrorIs(t, err, ErrResetTokenNotFound)
}
