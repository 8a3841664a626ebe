package service

import (
	"context"
	"time"

	"github.com/aussiebroadwan/doorman/internal/authn/domain"
	"github.com/aussiebroadwan/doorman/internal/authn/store"
	"github.com/aussiebroadwan/doorman/pkg/cryptox"
	"github.com/aussiebroadwan/doorman/pkg/idx"
	"github.com/aussiebroadwan/doorman/pkg/slogx"
)

// BootstrapService seeds the first principal on an empty store so a fresh
// deployment has something to log in as.
type BootstrapService struct {
	Store store.Store
}

// EnsurePrincipal creates a superuser principal with the given credentials
// iff the principal table is empty. On a populated store it does nothing and
// returns an empty id.
func (s *BootstrapService) EnsurePrincipal(ctx context.Context, email, password string) (string, error) {
	empty, err := s.Store.Principals().IsEmpty(ctx)
	if err != nil {
		return "", err
	}
	if !empty {
		return "", nil
	}

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	p := domain.Principal{
		ID:             idx.New().String(),
		Email:          email,
		CredentialHash: hash,
		Active:         true,
		Superuser:      true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.Store.Principals().Create(ctx, p); err != nil {
		return "", err
	}

	slogx.FromContext(ctx).Info("bootstrap principal created",
		"principal_id", p.ID, "email", email)
	return p.ID, nil
}
