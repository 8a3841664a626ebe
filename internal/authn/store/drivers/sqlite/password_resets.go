package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/aussiebroadwan/doorman/internal/authn/domain"
	"github.com/aussiebroadwan/doorman/internal/authn/store"
)

type passwordResetsRepo struct {
	db execer
}

const passwordResetColumns = `id, principal_id, token_hash, issued_at, expires_at,
	used, used_at, source_ip, user_agent`

func (r *passwordResetsRepo) Create(ctx context.Context, t domain.PasswordResetToken) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO password_reset_tokens (id, principal_id, token_hash, issued_at,
		 expires_at, used, used_at, source_ip, user_agent)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID,
		t.PrincipalID,
		t.TokenHash,
		t.IssuedAt.UTC(),
		t.ExpiresAt.UTC(),
		t.Used,
		mapOptionalTime(t.UsedAt),
		t.SourceIP,
		t.UserAgent,
	)
	return mapUniqueViolation(err)
}

func (r *passwordResetsRepo) GetByHash(
	ctx context.Context,
	hash string,
) (domain.PasswordResetToken, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+passwordResetColumns+` FROM password_reset_tokens WHERE token_hash = ?`,
		hash,
	)

	var (
		t      domain.PasswordResetToken
		usedAt sql.NullTime
	)
	err := row.Scan(
		&t.ID,
		&t.PrincipalID,
		&t.TokenHash,
		&t.IssuedAt,
		&t.ExpiresAt,
		&t.Used,
		&usedAt,
		&t.SourceIP,
		&t.UserAgent,
	)
	if err != nil {
		return domain.PasswordResetToken{}, mapNotFound(err)
	}
	t.UsedAt = mapNullTimePtr(usedAt)
	return t, nil
}

// MarkUsed flips the single-use flag exactly once. The used=0 guard makes
// concurrent confirmations resolve to one winner.
func (r *passwordResetsRepo) MarkUsed(ctx context.Context, id string, now time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE password_reset_tokens SET used = 1, used_at = ? WHERE id = ? AND used = 0`,
		now.UTC(), id,
	)
	if err != nil {
		return err
	}

	if err := requireRow(res); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.ErrAlreadyUsed
		}
		return err
	}
	return nil
}

func (r *passwordResetsRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM password_reset_tokens WHERE expires_at < ? OR used = 1`,
		now.UTC(),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
