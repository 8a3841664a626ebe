package domain

import "time"

// Failure reasons recorded on login attempts. These stay in the ledger and
// audit trail only; clients always see a generic denial.
const (
	FailureUnknownEmail    = "unknown_email"
	FailureWrongPassword   = "wrong_password"
	FailureInactiveAccount = "inactive_account"
)

// LoginAttempt is one row of the append-only attempt ledger. Rows are never
// mutated; the retention sweep is the only thing that removes them.
//
// Throttling decisions are recomputed from this ledger on every check, so
// any number of stateless instances sharing the store agree on the counts.
type LoginAttempt struct {
	ID            string
	Email         string
	PrincipalID   *string // nil when the email resolved to no account
	SourceIP      string
	UserAgent     string
	Success       bool
	FailureReason *string
	AttemptedAt   time.Time
}
