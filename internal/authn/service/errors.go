package service

import (
	"errors"
	"fmt"
	"time"
)

// Service-level failure taxonomy. Handlers map all of these onto uniformly
// generic client responses; the precise reason survives only in the audit
// trail.
var (
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrInactiveAccount    = errors.New("inactive_account")

	ErrTokenExpired       = errors.New("token_expired")
	ErrTokenRevoked       = errors.New("token_revoked")
	ErrTokenMalformed     = errors.New("token_malformed")
	ErrTokenReuseDetected = errors.New("token_reuse_detected")

	ErrResetTokenNotFound    = errors.New("reset_token_not_found")
	ErrResetTokenExpired     = errors.New("reset_token_expired")
	ErrResetTokenAlreadyUsed = errors.New("reset_token_already_used")

	ErrUpstreamTimeout = errors.New("upstream_timeout")
)

// AccountLockedError denies a login attempt for a throttled scope. RetryAfter
// is the remaining lockout window, not a fixed constant.
type AccountLockedError struct {
	RetryAfter time.Duration
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account_locked: retry after %s", e.RetryAfter)
}
