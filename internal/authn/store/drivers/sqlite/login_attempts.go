package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/doorman/internal/authn/domain"
)

type loginAttemptsRepo struct {
	db execer
}

func (r *loginAttemptsRepo) Create(ctx context.Context, a domain.LoginAttempt) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO login_attempts (id, email, principal_id, source_ip, user_agent,
		 success, failure_reason, attempted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID,
		normalizeEmail(a.Email),
		mapOptionalString(a.PrincipalID),
		a.SourceIP,
		a.UserAgent,
		a.Success,
		mapOptionalString(a.FailureReason),
		a.AttemptedAt.UTC(),
	)
	return err
}

func (r *loginAttemptsRepo) CountFailuresByEmail(
	ctx context.Context,
	email string,
	since time.Time,
) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM login_attempts
		 WHERE email = ? AND success = 0 AND attempted_at >= ?`,
		normalizeEmail(email), since.UTC(),
	).Scan(&count)
	return count, err
}

func (r *loginAttemptsRepo) CountFailuresByIP(
	ctx context.Context,
	ip string,
	since time.Time,
) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM login_attempts
		 WHERE source_ip = ? AND success = 0 AND attempted_at >= ?`,
		ip, since.UTC(),
	).Scan(&count)
	return count, err
}

func (r *loginAttemptsRepo) NthRecentFailureTimeByEmail(
	ctx context.Context,
	email string,
	since time.Time,
	n int,
) (time.Time, error) {
	return r.nthRecentFailureTime(ctx,
		`SELECT attempted_at FROM login_attempts
		 WHERE email = ? AND success = 0 AND attempted_at >= ?
		 ORDER BY attempted_at DESC LIMIT 1 OFFSET ?`,
		normalizeEmail(email), since, n)
}

func (r *loginAttemptsRepo) NthRecentFailureTimeByIP(
	ctx context.Context,
	ip string,
	since time.Time,
	n int,
) (time.Time, error) {
	return r.nthRecentFailureTime(ctx,
		`SELECT attempted_at FROM login_attempts
		 WHERE source_ip = ? AND success = 0 AND attempted_at >= ?
		 ORDER BY attempted_at DESC LIMIT 1 OFFSET ?`,
		ip, since, n)
}

func (r *loginAttemptsRepo) nthRecentFailureTime(
	ctx context.Context,
	query, scope string,
	since time.Time,
	n int,
) (time.Time, error) {
	var at time.Time
	if err := r.db.QueryRowContext(ctx, query, scope, since.UTC(), n-1).Scan(&at); err != nil {
		return time.Time{}, mapNotFound(err)
	}
	return at, nil
}

// CountConsecutiveFailures counts failures since the email's last successful
// attempt; an account that has never succeeded counts every failure.
func (r *loginAttemptsRepo) CountConsecutiveFailures(
	ctx context.Context,
	email string,
) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM login_attempts
		 WHERE email = ? AND success = 0
		   AND attempted_at > COALESCE(
		         (SELECT MAX(attempted_at) FROM login_attempts
		          WHERE email = ? AND success = 1),
		         '')`,
		normalizeEmail(email), normalizeEmail(email),
	).Scan(&count)
	return count, err
}

// DeleteOlderThan is the retention sweep: one bulk conditional delete.
func (r *loginAttemptsRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM login_attempts WHERE attempted_at < ?`,
		cutoff.UTC(),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
