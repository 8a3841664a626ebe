package service

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/doorman/internal/authn/domain"
	"github.com/aussiebroadwan/doorman/internal/authn/store"
	"github.com/aussiebroadwan/doorman/pkg/idx"
)

// GuardConfig holds the brute-force mitigation knobs. Every threshold is
// configurable; these zero-value substitutes are applied by Normalize.
type GuardConfig struct {
	// EmailThreshold is the failed-attempt count within Window that locks
	// an email scope.
	EmailThreshold int
	// IPThreshold is the failed-attempt count within Window that locks a
	// source-IP scope.
	IPThreshold int
	// Window is the trailing window failures are counted over.
	Window time.Duration
	// DelayCap bounds the progressive per-failure delay.
	DelayCap time.Duration
	// MinResponseTime is the floor every login response is padded to, so
	// failure latency cannot reveal whether an account exists.
	MinResponseTime time.Duration
}

const (
	DefaultEmailThreshold  = 5
	DefaultIPThreshold     = 10
	DefaultLockoutWindow   = 15 * time.Minute
	DefaultDelayCap        = 30 * time.Second
	DefaultMinResponseTime = 100 * time.Millisecond
)

func (c GuardConfig) Normalize() GuardConfig {
	if c.EmailThreshold <= 0 {
		c.EmailThreshold = DefaultEmailThreshold
	}
	if c.IPThreshold <= 0 {
		c.IPThreshold = DefaultIPThreshold
	}
	if c.Window <= 0 {
		c.Window = DefaultLockoutWindow
	}
	if c.DelayCap <= 0 {
		c.DelayCap = DefaultDelayCap
	}
	if c.MinResponseTime <= 0 {
		c.MinResponseTime = DefaultMinResponseTime
	}
	return c
}

// GuardService is the login security engine: it decides admit/deny/delay for
// every login attempt. All state is recomputed from the attempt ledger on
// each check, so any number of stateless instances agree.
type GuardService struct {
	Store  store.Store
	Config GuardConfig
}

func NewGuardService(st store.Store, cfg GuardConfig) *GuardService {
	return &GuardService{Store: st, Config: cfg.Normalize()}
}

// CanAttempt reports whether a login attempt for (email, ip) is admitted.
// When denied, retryAfter is the time until the relevant scope unlocks.
func (g *GuardService) CanAttempt(
	ctx context.Context,
	email, ip string,
) (retryAfter time.Duration, ok bool, err error) {
	now := time.Now().UTC()
	since := now.Add(-g.Config.Window)
	attempts := g.Store.LoginAttempts()

	emailFailures, err := attempts.CountFailuresByEmail(ctx, email, since)
	if err != nil {
		return 0, false, err
	}
	if emailFailures >= g.Config.EmailThreshold {
		ra, err := g.remainingLockout(ctx, now, func() (time.Time, error) {
			return attempts.NthRecentFailureTimeByEmail(ctx, email, since, g.Config.EmailThreshold)
		})
		if err != nil {
			return 0, false, err
		}
		return ra, false, nil
	}

	ipFailures, err := attempts.CountFailuresByIP(ctx, ip, since)
	if err != nil {
		return 0, false, err
	}
	if ipFailures >= g.Config.IPThreshold {
		ra, err := g.remainingLockout(ctx, now, func() (time.Time, error) {
			return attempts.NthRecentFailureTimeByIP(ctx, ip, since, g.Config.IPThreshold)
		})
		if err != nil {
			return 0, false, err
		}
		return ra, false, nil
	}

	return 0, true, nil
}

// remainingLockout computes when the threshold-th most recent failure ages
// out of the window, which is when the count drops back below the threshold.
func (g *GuardService) remainingLockout(
	ctx context.Context,
	now time.Time,
	nth func() (time.Time, error),
) (time.Duration, error) {
	at, err := nth()
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Count raced below threshold between the two queries.
			return 0, nil
		}
		return 0, err
	}

	remaining := at.Add(g.Config.Window).Sub(now)
	if remaining < time.Second {
		remaining = time.Second
	}
	return remaining, nil
}

// FailureDelay returns the progressive delay for the k-th consecutive
// failure on an email: 0 for the first, then doubling up to the cap.
func (g *GuardService) FailureDelay(failures int) time.Duration {
	if failures <= 1 {
		return 0
	}

	shift := failures - 1
	// Beyond 2^30 seconds the cap has long since taken over.
	if shift > 30 {
		return g.Config.DelayCap
	}

	delay := time.Duration(1<<uint(shift)) * time.Second
	if delay > g.Config.DelayCap {
		return g.Config.DelayCap
	}
	return delay
}

// ConsecutiveFailures returns the failure streak for an email, used to pick
// the progressive delay for the next attempt.
func (g *GuardService) ConsecutiveFailures(ctx context.Context, email string) (int, error) {
	return g.Store.LoginAttempts().CountConsecutiveFailures(ctx, email)
}

// Wait suspends for d without blocking an OS thread: the goroutine parks on
// a timer and resumes on fire or cancellation. It must never be a
// thread-blocking sleep, and must never run inside a DB transaction.
func (g *GuardService) Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// EnforceFloor pads the time since start up to the configured minimum
// response time. Callers invoke it after the login outcome is decided and
// outside any transaction.
func (g *GuardService) EnforceFloor(ctx context.Context, start time.Time) {
	elapsed := time.Since(start)
	if remaining := g.Config.MinResponseTime - elapsed; remaining > 0 {
		_ = g.Wait(ctx, remaining)
	}
}

// RecordAttempt appends one row to the attempt ledger. Prior rows are never
// touched.
func (g *GuardService) RecordAttempt(ctx context.Context, a domain.LoginAttempt) error {
	if a.ID == "" {
		a.ID = idx.New().String()
	}
	if a.AttemptedAt.IsZero() {
		a.AttemptedAt = time.Now().UTC()
	}
	return g.Store.LoginAttempts().Create(ctx, a)
}

// PurgeOlderThan removes attempts past the retention horizon with one bulk
// delete statement.
func (g *GuardService) PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-age)
	return g.Store.LoginAttempts().DeleteOlderThan(ctx, cutoff)
}
