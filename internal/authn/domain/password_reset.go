package domain

import "time"

// PasswordResetToken is a persisted single-use reset token. Like refresh
// tokens, only the fingerprint of the opaque value is stored. State machine:
// Issued -> Used or Issued -> Expired, both terminal; Used flips exactly
// once, atomically with the credential change.
type PasswordResetToken struct {
	ID          string
	PrincipalID string
	TokenHash   string
	IssuedAt    time.Time
	ExpiresAt   time.Time
	Used        bool
	UsedAt      *time.Time
	SourceIP    string
	UserAgent   string
}

// Usable reports whether the token can still be redeemed at the given time.
func (t PasswordResetToken) Usable(now time.Time) bool {
	return !t.Used && now.Before(t.ExpiresAt)
}
