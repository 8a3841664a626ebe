package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/doorman/internal/authn/domain"
	"github.com/aussiebroadwan/doorman/internal/authn/store"
)

type refreshTokensRepo struct {
	db execer
}

const refreshTokenColumns = `id, principal_id, token_hash, device_descriptor,
	issued_at, expires_at, revoked, revoked_at, last_used_at`

func (r *refreshTokensRepo) Create(ctx context.Context, t domain.RefreshToken) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (id, principal_id, token_hash, device_descriptor,
		 issued_at, expires_at, revoked, revoked_at, last_used_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID,
		t.PrincipalID,
		t.TokenHash,
		t.DeviceDescriptor,
		t.IssuedAt.UTC(),
		t.ExpiresAt.UTC(),
		t.Revoked,
		mapOptionalTime(t.RevokedAt),
		mapOptionalTime(t.LastUsedAt),
	)
	return mapUniqueViolation(err)
}

func (r *refreshTokensRepo) GetByHash(ctx context.Context, hash string) (domain.RefreshToken, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+refreshTokenColumns+` FROM refresh_tokens WHERE token_hash = ?`,
		hash,
	)
	return scanRefreshToken(row)
}

// Consume is the single-use redemption primitive. The conditional update is
// the only correctness mechanism: of two concurrent redemptions of the same
// hash, exactly one update matches the revoked=0 row and wins.
func (r *refreshTokensRepo) Consume(
	ctx context.Context,
	hash string,
	now time.Time,
) (domain.RefreshToken, error) {
	now = now.UTC()

	res, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens
		 SET revoked = 1, revoked_at = ?, last_used_at = ?
		 WHERE token_hash = ? AND revoked = 0 AND expires_at > ?`,
		now, now, hash, now,
	)
	if err != nil {
		return domain.RefreshToken{}, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return domain.RefreshToken{}, err
	}

	t, err := r.GetByHash(ctx, hash)
	if err != nil {
		return domain.RefreshToken{}, err
	}

	if n == 1 {
		return t, nil
	}

	// Lost the update: the row exists but was not usable. Distinguish why
	// so the caller can treat a revoked row as a reuse signal.
	if !now.Before(t.ExpiresAt) && t.RevokedAt == nil {
		return t, store.ErrTokenExpired
	}
	return t, store.ErrTokenRevoked
}

func (r *refreshTokensRepo) Revoke(ctx context.Context, id string, now time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = 1, revoked_at = ? WHERE id = ? AND revoked = 0`,
		now.UTC(), id,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *refreshTokensRepo) RevokeAllForPrincipal(
	ctx context.Context,
	principalID string,
	now time.Time,
) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = 1, revoked_at = ?
		 WHERE principal_id = ? AND revoked = 0`,
		now.UTC(), principalID,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteExpired is the housekeeping sweep: one bulk statement, never a
// fetch-then-delete loop.
func (r *refreshTokensRepo) DeleteExpired(
	ctx context.Context,
	now time.Time,
	grace time.Duration,
) (int64, error) {
	cutoff := now.UTC().Add(-grace)
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE expires_at < ? OR (revoked = 1 AND revoked_at < ?)`,
		cutoff, cutoff,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanRefreshToken(row rowScanner) (domain.RefreshToken, error) {
	var (
		t         domain.RefreshToken
		revokedAt sql.NullTime
		lastUsed  sql.NullTime
	)
	err := row.Scan(
		&t.ID,
		&t.PrincipalID,
		&t.TokenHash,
		&t.DeviceDescriptor,
		&t.IssuedAt,
		&t.ExpiresAt,
		&t.Revoked,
		&revokedAt,
		&lastUsed,
	)
	if err != nil {
		return domain.RefreshToken{}, mapNotFound(err)
	}
	t.RevokedAt = mapNullTimePtr(revokedAt)
	t.LastUsedAt = mapNullTimePtr(lastUsed)
	return t, nil
}
