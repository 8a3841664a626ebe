package sqlite

import (
	"context"
	"strings"
	"time"

	"github.com/aussiebroadwan/doorman/internal/authn/domain"
)

type principalsRepo struct {
	db execer
}

const principalColumns = `id, email, credential_hash, active, superuser, created_at, updated_at`

func (r *principalsRepo) FindByEmail(ctx context.Context, email string) (domain.Principal, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE email = ?`,
		normalizeEmail(email),
	)
	return scanPrincipal(row)
}

func (r *principalsRepo) GetByID(ctx context.Context, id string) (domain.Principal, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE id = ?`,
		id,
	)
	return scanPrincipal(row)
}

func (r *principalsRepo) Create(ctx context.Context, p domain.Principal) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO principals (id, email, credential_hash, active, superuser, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID,
		normalizeEmail(p.Email),
		p.CredentialHash,
		p.Active,
		p.Superuser,
		p.CreatedAt.UTC(),
		p.UpdatedAt.UTC(),
	)
	return mapUniqueViolation(err)
}

func (r *principalsRepo) UpdateCredentialHash(ctx context.Context, principalID, newHash string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE principals SET credential_hash = ?, updated_at = ? WHERE id = ?`,
		newHash, time.Now().UTC(), principalID,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *principalsRepo) IsEmpty(ctx context.Context) (bool, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM principals`).Scan(&count); err != nil {
		return false, err
	}
	return count == 0, nil
}

// normalizeEmail keeps lookup and storage agreeing on case; email local
// parts are matched case-insensitively like every mainstream provider.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPrincipal(row rowScanner) (domain.Principal, error) {
	var p domain.Principal
	err := row.Scan(
		&p.ID,
		&p.Email,
		&p.CredentialHash,
		&p.Active,
		&p.Superuser,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return domain.Principal{}, mapNotFound(err)
	}
	return p, nil
}
