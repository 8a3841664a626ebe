package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/doorman/internal/authn/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")

	// ErrTokenRevoked and ErrTokenExpired let Consume distinguish a reuse
	// signal (revoked row still present) from a merely stale token.
	ErrTokenRevoked = errors.New("store: token revoked")
	ErrTokenExpired = errors.New("store: token expired")

	// ErrAlreadyUsed reports a single-use token whose use flag was already set.
	ErrAlreadyUsed = errors.New("store: already used")
)

// Store is the root data access interface. Concrete drivers (sqlite,
// postgres) implement this. It exposes sub-repositories to keep concerns
// tidy and testable, and forces multi-step mutations through WithTx so
// nobody accidentally nests transactions.
type Store interface {
	Principals() Principals
	RefreshTokens() RefreshTokens
	LoginAttempts() LoginAttempts
	PasswordResets() PasswordResets

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction: rollback if fn errors,
	// commit otherwise. This is the recommended way to run multi-step
	// ledger mutations (e.g., refresh rotation) atomically.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

// Principals is the narrow credential-store interface. Account CRUD beyond
// what authentication needs lives elsewhere.
type Principals interface {
	// FindByEmail resolves a login identifier to a principal.
	FindByEmail(ctx context.Context, email string) (domain.Principal, error)

	// GetByID returns a principal by id.
	GetByID(ctx context.Context, id string) (domain.Principal, error)

	// Create inserts a new principal (id provided by the app via ULID).
	Create(ctx context.Context, p domain.Principal) error

	// UpdateCredentialHash sets the credential hash and bumps updated_at.
	UpdateCredentialHash(ctx context.Context, principalID, newHash string) error

	// IsEmpty returns true if there are no principals (bootstrap check).
	IsEmpty(ctx context.Context) (bool, error)
}

type RefreshTokens interface {
	// Create stores a new refresh token record.
	Create(ctx context.Context, t domain.RefreshToken) error

	// GetByHash returns the record for a token fingerprint.
	GetByHash(ctx context.Context, hash string) (domain.RefreshToken, error)

	// Consume atomically redeems a token: a conditional update flips
	// revoked on the row iff it is currently usable, stamping revoked_at
	// and last_used_at. Of two concurrent redemptions exactly one wins;
	// the loser observes ErrTokenRevoked. The pre-update record is
	// returned alongside ErrTokenRevoked/ErrTokenExpired so callers can
	// react to reuse.
	Consume(ctx context.Context, hash string, now time.Time) (domain.RefreshToken, error)

	// Revoke flips revoked=1 for a single record by id.
	Revoke(ctx context.Context, id string, now time.Time) error

	// RevokeAllForPrincipal bulk-revokes every active token for a
	// principal (logout-all, password reset, reuse response); it returns
	// the number of rows touched and is idempotent.
	RevokeAllForPrincipal(ctx context.Context, principalID string, now time.Time) (int64, error)

	// DeleteExpired removes rows whose expiry (plus grace) has passed or
	// that are revoked, in one bulk statement.
	DeleteExpired(ctx context.Context, now time.Time, grace time.Duration) (int64, error)
}

// LoginAttempts is the append-only attempt ledger. Counts are recomputed
// from here on every throttle check; there is deliberately no in-process
// counter state.
type LoginAttempts interface {
	// Create appends one attempt row. Prior rows are never mutated.
	Create(ctx context.Context, a domain.LoginAttempt) error

	// CountFailuresByEmail counts failed attempts for an email at or after since.
	CountFailuresByEmail(ctx context.Context, email string, since time.Time) (int, error)

	// CountFailuresByIP counts failed attempts from a source IP at or after since.
	CountFailuresByIP(ctx context.Context, ip string, since time.Time) (int, error)

	// NthRecentFailureTimeByEmail returns the attempted_at of the n-th most
	// recent in-window failure (n is 1-based). When that row ages out of
	// the window the failure count drops below n, which is exactly the
	// retry-after a locked-out caller needs.
	NthRecentFailureTimeByEmail(ctx context.Context, email string, since time.Time, n int) (time.Time, error)

	// NthRecentFailureTimeByIP is the IP-scope counterpart.
	NthRecentFailureTimeByIP(ctx context.Context, ip string, since time.Time, n int) (time.Time, error)

	// CountConsecutiveFailures counts failures for an email since its last
	// successful attempt (all failures if it never succeeded). Drives the
	// progressive delay.
	CountConsecutiveFailures(ctx context.Context, email string) (int, error)

	// DeleteOlderThan removes attempts older than the cutoff in one bulk
	// statement, never row by row.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type PasswordResets interface {
	// Create stores a new reset token record.
	Create(ctx context.Context, t domain.PasswordResetToken) error

	// GetByHash returns the record for a token fingerprint.
	GetByHash(ctx context.Context, hash string) (domain.PasswordResetToken, error)

	// MarkUsed conditionally flips used=1; ErrAlreadyUsed if the flag was
	// already set, so concurrent confirmations get exactly one winner.
	MarkUsed(ctx context.Context, id string, now time.Time) error

	// DeleteExpired removes expired and used rows in one bulk statement.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
