package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/doorman/internal/authn/audit"
	"github.com/aussiebroadwan/doorman/internal/authn/domain"
	"github.com/aussiebroadwan/doorman/internal/authn/store"
	"github.com/aussiebroadwan/doorman/pkg/cryptox"
	"github.com/aussiebroadwan/doorman/pkg/idx"
	"github.com/aussiebroadwan/doorman/pkg/slogx"
)

const DefaultResetTTL = time.Hour

// ResetService owns the two-step password reset flow: request a single-use
// token, confirm it with a new password.
type ResetService struct {
	Store    store.Store
	Delivery Delivery
	Audit    audit.Emitter

	TokenTTL time.Duration
}

// ResetRequest initiates a reset for an email address.
type ResetRequest struct {
	Email     string
	SourceIP  string
	UserAgent string
}

// Request issues a reset token for the email, if an account exists, and
// hands the plaintext to the delivery channel. The outcome reported to the
// caller is identical whether or not the account exists, whether or not the
// token was issued, and whether or not delivery succeeded; this endpoint must
// not be an account-existence oracle. Real failures are logged and audited.
func (s *ResetService) Request(ctx context.Context, req ResetRequest) {
	if err := s.request(ctx, req); err != nil {
		slogx.FromContext(ctx).Error("password reset request failed",
			"email", req.Email, "error", err)
		s.Audit.Emit(ctx, audit.Event{
			Type:     audit.EventResetFailed,
			Severity: audit.SeverityWarning,
			Email:    req.Email,
			SourceIP: req.SourceIP,
			Reason:   err.Error(),
		})
	}
}

func (s *ResetService) request(ctx context.Context, req ResetRequest) error {
	principal, err := s.Store.Principals().FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Same silence as every other outcome.
			return nil
		}
		return err
	}

	now := time.Now().UTC()
	opaque, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return err
	}

	record := domain.PasswordResetToken{
		ID:          idx.New().String(),
		PrincipalID: principal.ID,
		TokenHash:   cryptox.FingerprintToken(opaque),
		IssuedAt:    now,
		ExpiresAt:   now.Add(s.tokenTTL()),
		SourceIP:    req.SourceIP,
		UserAgent:   req.UserAgent,
	}
	if err := s.Store.PasswordResets().Create(ctx, record); err != nil {
		return err
	}

	s.Audit.Emit(ctx, audit.Event{
		Type:        audit.EventResetRequested,
		Severity:    audit.SeverityInfo,
		PrincipalID: principal.ID,
		Email:       req.Email,
		SourceIP:    req.SourceIP,
	})

	body := fmt.Sprintf(
		"A password reset was requested for your account.\n\n"+
			"Reset token: %s\n\n"+
			"The token expires in %s and can be used once. "+
			"If you did not request this, no action is required.",
		opaque, s.tokenTTL(),
	)
	return s.Delivery.Send(ctx, principal.Email, "Password reset", body)
}

// ConfirmRequest completes a reset: the opaque token plus the replacement
// password.
type ConfirmRequest struct {
	Token       string
	NewPassword string
	SourceIP    string
}

// Confirm redeems a reset token and installs the new credential. Three
// mutations commit atomically: the token's single-use flag, the credential
// hash, and the bulk revocation of every active refresh token for the
// principal. Under concurrent confirmations of the same token exactly one
// wins; the rest observe ErrResetTokenAlreadyUsed.
//
// The expensive password hash is computed before the transaction opens so
// lock hold time stays short.
func (s *ResetService) Confirm(ctx context.Context, req ConfirmRequest) error {
	now := time.Now().UTC()
	hash := cryptox.FingerprintToken(req.Token)

	newHash, err := cryptox.HashPassword(req.NewPassword)
	if err != nil {
		return err
	}

	var token domain.PasswordResetToken
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		token, err = tx.PasswordResets().GetByHash(ctx, hash)
		if err != nil {
			return err
		}
		if token.Used {
			return store.ErrAlreadyUsed
		}
		if !now.Before(token.ExpiresAt) {
			return store.ErrTokenExpired
		}

		if err := tx.PasswordResets().MarkUsed(ctx, token.ID, now); err != nil {
			return err
		}
		if err := tx.Principals().UpdateCredentialHash(ctx, token.PrincipalID, newHash); err != nil {
			return err
		}
		_, err = tx.RefreshTokens().RevokeAllForPrincipal(ctx, token.PrincipalID, now)
		return err
	})
	if err != nil {
		return s.confirmFailure(ctx, req, token, err)
	}

	s.Audit.Emit(ctx, audit.Event{
		Type:        audit.EventResetCompleted,
		Severity:    audit.SeverityInfo,
		PrincipalID: token.PrincipalID,
		SourceIP:    req.SourceIP,
	})
	return nil
}

func (s *ResetService) confirmFailure(
	ctx context.Context,
	req ConfirmRequest,
	token domain.PasswordResetToken,
	err error,
) error {
	var mapped error
	var reason string
	switch {
	case errors.Is(err, store.ErrNotFound):
		mapped, reason = ErrResetTokenNotFound, "unknown_token"
	case errors.Is(err, store.ErrTokenExpired):
		mapped, reason = ErrResetTokenExpired, "expired"
	case errors.Is(err, store.ErrAlreadyUsed):
		mapped, reason = ErrResetTokenAlreadyUsed, "already_used"
	default:
		return err
	}

	s.Audit.Emit(ctx, audit.Event{
		Type:        audit.EventResetFailed,
		Severity:    audit.SeverityWarning,
		PrincipalID: token.PrincipalID,
		SourceIP:    req.SourceIP,
		Reason:      reason,
	})
	return mapped
}

func (s *ResetService) tokenTTL() time.Duration {
	if s.TokenTTL > 0 {
		return s.TokenTTL
	}
	return DefaultResetTTL
}
