package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/doorman/internal/authn/store"
)

// HousekeepingService periodically sweeps expired and stale rows so the
// refresh token, login attempt, and reset token tables stay bounded. Every
// sweep is a single bulk statement per table.
type HousekeepingService struct {
	Store    store.Store
	Logger   *slog.Logger
	Interval time.Duration

	// TokenGrace keeps expired refresh tokens around a little longer so
	// reuse of a freshly expired token is still distinguishable in the
	// audit trail.
	TokenGrace time.Duration

	// AttemptRetention is how long login attempt rows are kept.
	AttemptRetention time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates the sweeper. Zero or negative settings fall
// back to one hour between sweeps, a 24 hour token grace, and 30 days of
// attempt retention.
func NewHousekeepingService(
	st store.Store,
	logger *slog.Logger,
	interval, tokenGrace, attemptRetention time.Duration,
) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}
	if tokenGrace <= 0 {
		tokenGrace = 24 * time.Hour
	}
	if attemptRetention <= 0 {
		attemptRetention = 30 * 24 * time.Hour
	}

	return &HousekeepingService{
		Store:            st,
		Logger:           logger,
		Interval:         interval,
		TokenGrace:       tokenGrace,
		AttemptRetention: attemptRetention,
		stopCh:           make(chan struct{}),
		doneCh:           make(chan struct{}),
	}
}

// Start begins the background worker. Non-blocking; call Stop to shut it
// down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop shuts the worker down, blocking until any in-progress sweep finishes.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Sweep immediately on startup.
	s.Sweep(context.Background())

	for {
		select {
		case <-ticker.C:
			s.Sweep(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// Sweep runs one pass over every table. Each deletion is independent; a
// failure in one does not stop the others.
func (s *HousekeepingService) Sweep(ctx context.Context) {
	now := time.Now().UTC()

	if n, err := s.Store.RefreshTokens().DeleteExpired(ctx, now, s.TokenGrace); err != nil {
		s.Logger.Error("failed to sweep refresh tokens", "error", err)
	} else if n > 0 {
		s.Logger.Info("swept refresh tokens", "deleted", n)
	}

	cutoff := now.Add(-s.AttemptRetention)
	if n, err := s.Store.LoginAttempts().DeleteOlderThan(ctx, cutoff); err != nil {
		s.Logger.Error("failed to sweep login attempts", "error", err)
	} else if n > 0 {
		s.Logger.Info("swept login attempts", "deleted", n)
	}

	if n, err := s.Store.PasswordResets().DeleteExpired(ctx, now); err != nil {
		s.Logger.Error("failed to sweep reset tokens", "error", err)
	} else if n > 0 {
		s.Logger.Info("swept reset tokens", "deleted", n)
	}
}
