package service

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/doorman/internal/authn/audit"
	"github.com/aussiebroadwan/doorman/internal/authn/domain"
	"github.com/aussiebroadwan/doorman/internal/authn/store"
	"github.com/aussiebroadwan/doorman/pkg/cryptox"
	"github.com/aussiebroadwan/doorman/pkg/idx"
	"github.com/aussiebroadwan/doorman/pkg/jwtx"
)

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 30 * 24 * time.Hour

	tokenTypeBearer = "bearer"
)

// AuthService owns the credential verification and session lifecycle flows:
// login, refresh rotation, and logout-all. It composes the guard (throttling),
// the token codec (stateless access tokens) and the store (stateful refresh
// tokens).
type AuthService struct {
	Store store.Store
	Codec *jwtx.Codec
	Guard *GuardService
	Audit audit.Emitter

	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// ReuseRevokesAll makes the first redemption of an already-revoked
	// refresh token revoke the principal's entire session family, on the
	// assumption the token leaked.
	ReuseRevokesAll bool
}

// LoginRequest carries everything the login flow needs to decide, record and
// audit one attempt.
type LoginRequest struct {
	Email    string
	Password string

	SourceIP         string
	UserAgent        string
	DeviceDescriptor string
}

// Login authenticates an email/password pair and establishes a new session.
//
// The flow is ordered so the cheap ledger checks run before the expensive
// hash verification, and so every exit path records exactly one attempt row
// and one audit event:
//
//  1. Throttle check (email scope then IP scope). A locked scope returns
//     *AccountLockedError with the exact remaining lockout; the rejected
//     attempt is NOT appended to the ledger, so lockouts do not self-extend.
//  2. Progressive delay for the current failure streak, served by parking
//     the goroutine on a timer, never inside a transaction.
//  3. Credential verification. An unknown email still burns a full argon2id
//     verification against a throwaway hash so the two failure modes are
//     indistinguishable by timing, and both collapse to ErrInvalidCredentials.
//  4. On success, a refresh token is minted and persisted (fingerprint only)
//     in the same transaction that would carry any future session state, and
//     an access token is signed.
//
// Every response, success or failure, is padded to the guard's minimum
// response time floor.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (domain.TokenPair, error) {
	start := time.Now()
	defer s.Guard.EnforceFloor(ctx, start)

	retryAfter, ok, err := s.Guard.CanAttempt(ctx, req.Email, req.SourceIP)
	if err != nil {
		// Fail closed: if the ledger cannot be consulted, deny.
		return domain.TokenPair{}, s.infraFailure(ctx, req, err)
	}
	if !ok {
		s.Audit.Emit(ctx, audit.Event{
			Type:     audit.EventLockoutTriggered,
			Severity: audit.SeverityWarning,
			Email:    req.Email,
			SourceIP: req.SourceIP,
		})
		return domain.TokenPair{}, &AccountLockedError{RetryAfter: retryAfter}
	}

	streak, err := s.Guard.ConsecutiveFailures(ctx, req.Email)
	if err != nil {
		return domain.TokenPair{}, s.infraFailure(ctx, req, err)
	}
	if delay := s.Guard.FailureDelay(streak + 1); delay > 0 {
		if err := s.Guard.Wait(ctx, delay); err != nil {
			return domain.TokenPair{}, err
		}
	}

	principal, err := s.Store.Principals().FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			cryptox.DummyVerify(req.Password)
			return domain.TokenPair{}, s.recordFailure(ctx, req, nil, domain.FailureUnknownEmail)
		}
		return domain.TokenPair{}, s.infraFailure(ctx, req, err)
	}

	if err := cryptox.VerifyPassword(req.Password, principal.CredentialHash); err != nil {
		if errors.Is(err, cryptox.ErrPasswordMismatch) {
			return domain.TokenPair{}, s.recordFailure(ctx, req, &principal.ID, domain.FailureWrongPassword)
		}
		return domain.TokenPair{}, err
	}

	if !principal.Active {
		return domain.TokenPair{}, s.recordFailure(ctx, req, &principal.ID, domain.FailureInactiveAccount)
	}

	if err := s.Guard.RecordAttempt(ctx, domain.LoginAttempt{
		Email:       req.Email,
		PrincipalID: &principal.ID,
		SourceIP:    req.SourceIP,
		UserAgent:   req.UserAgent,
		Success:     true,
	}); err != nil {
		return domain.TokenPair{}, err
	}

	pair, err := s.issueSession(ctx, principal.ID, req.DeviceDescriptor)
	if err != nil {
		return domain.TokenPair{}, err
	}

	s.Audit.Emit(ctx, audit.Event{
		Type:        audit.EventLoginSuccess,
		Severity:    audit.SeverityInfo,
		PrincipalID: principal.ID,
		Email:       req.Email,
		SourceIP:    req.SourceIP,
	})
	return pair, nil
}

// infraFailure covers login denials caused by the service itself rather than
// the caller: the attempt is audited so an unhealthy store is visible, and a
// deadline blown against the store surfaces as ErrUpstreamTimeout.
func (s *AuthService) infraFailure(ctx context.Context, req LoginRequest, err error) error {
	s.Audit.Emit(ctx, audit.Event{
		Type:     audit.EventLoginFailure,
		Severity: audit.SeverityWarning,
		Email:    req.Email,
		SourceIP: req.SourceIP,
		Reason:   "storage_error",
	})
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrUpstreamTimeout
	}
	return err
}

// recordFailure appends the attempt row, emits the failure event with the
// precise reason, and returns the generic credential error. Inactive accounts
// share that generic error so account state cannot be probed.
func (s *AuthService) recordFailure(
	ctx context.Context,
	req LoginRequest,
	principalID *string,
	reason string,
) error {
	if err := s.Guard.RecordAttempt(ctx, domain.LoginAttempt{
		Email:         req.Email,
		PrincipalID:   principalID,
		SourceIP:      req.SourceIP,
		UserAgent:     req.UserAgent,
		Success:       false,
		FailureReason: &reason,
	}); err != nil {
		return err
	}

	ev := audit.Event{
		Type:     audit.EventLoginFailure,
		Severity: audit.SeverityWarning,
		Email:    req.Email,
		SourceIP: req.SourceIP,
		Reason:   reason,
	}
	if principalID != nil {
		ev.PrincipalID = *principalID
	}
	s.Audit.Emit(ctx, ev)

	if reason == domain.FailureInactiveAccount {
		return ErrInactiveAccount
	}
	return ErrInvalidCredentials
}

// issueSession mints the opaque refresh token, persists its fingerprint, and
// signs the access token. The plaintext refresh value exists only in the
// returned pair.
func (s *AuthService) issueSession(ctx context.Context, principalID, device string) (domain.TokenPair, error) {
	now := time.Now().UTC()

	opaque, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return domain.TokenPair{}, err
	}

	record := domain.RefreshToken{
		ID:               idx.New().String(),
		PrincipalID:      principalID,
		TokenHash:        cryptox.FingerprintToken(opaque),
		DeviceDescriptor: device,
		IssuedAt:         now,
		ExpiresAt:        now.Add(s.refreshTTL()),
	}
	if err := s.Store.RefreshTokens().Create(ctx, record); err != nil {
		return domain.TokenPair{}, err
	}

	access, err := s.Codec.Issue(principalID, s.accessTTL(), now)
	if err != nil {
		return domain.TokenPair{}, err
	}

	return domain.TokenPair{
		AccessToken:  access,
		RefreshToken: opaque,
		TokenType:    tokenTypeBearer,
		ExpiresIn:    int64(s.accessTTL() / time.Second),
	}, nil
}

// RefreshRequest redeems an opaque refresh token for a rotated pair.
type RefreshRequest struct {
	RefreshToken string

	SourceIP         string
	UserAgent        string
	DeviceDescriptor string
}

// Refresh rotates a refresh token: the presented token is atomically revoked
// and a successor is issued in the same transaction, together with a fresh
// access token. Under concurrent redemption of the same token exactly one
// caller wins; every other caller observes the revoked row and is treated as
// reuse.
//
// Reuse of an already-revoked token is the theft tripwire: when
// ReuseRevokesAll is set the principal's entire active session family is
// revoked and a critical event is emitted. The client always receives the
// generic ErrTokenReuseDetected.
func (s *AuthService) Refresh(ctx context.Context, req RefreshRequest) (domain.TokenPair, error) {
	now := time.Now().UTC()
	hash := cryptox.FingerprintToken(req.RefreshToken)

	var (
		pair     domain.TokenPair
		consumed domain.RefreshToken
	)
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		consumed, err = tx.RefreshTokens().Consume(ctx, hash, now)
		if err != nil {
			return err
		}

		opaque, err := cryptox.GenerateToken(cryptox.TokenSize256)
		if err != nil {
			return err
		}

		device := req.DeviceDescriptor
		if device == "" {
			device = consumed.DeviceDescriptor
		}
		successor := domain.RefreshToken{
			ID:               idx.New().String(),
			PrincipalID:      consumed.PrincipalID,
			TokenHash:        cryptox.FingerprintToken(opaque),
			DeviceDescriptor: device,
			IssuedAt:         now,
			ExpiresAt:        now.Add(s.refreshTTL()),
		}
		if err := tx.RefreshTokens().Create(ctx, successor); err != nil {
			return err
		}

		access, err := s.Codec.Issue(consumed.PrincipalID, s.accessTTL(), now)
		if err != nil {
			return err
		}

		pair = domain.TokenPair{
			AccessToken:  access,
			RefreshToken: opaque,
			TokenType:    tokenTypeBearer,
			ExpiresIn:    int64(s.accessTTL() / time.Second),
		}
		return nil
	})
	if err != nil {
		return domain.TokenPair{}, s.refreshFailure(ctx, req, consumed, err)
	}

	s.Audit.Emit(ctx, audit.Event{
		Type:        audit.EventRefreshRotated,
		Severity:    audit.SeverityInfo,
		PrincipalID: consumed.PrincipalID,
		SourceIP:    req.SourceIP,
	})
	return pair, nil
}

// refreshFailure maps store errors from the rotation transaction onto the
// service taxonomy and runs the reuse response. The revoke-all happens
// outside the failed transaction.
func (s *AuthService) refreshFailure(
	ctx context.Context,
	req RefreshRequest,
	consumed domain.RefreshToken,
	err error,
) error {
	switch {
	case errors.Is(err, store.ErrTokenRevoked):
		var revoked int64
		if s.ReuseRevokesAll && consumed.PrincipalID != "" {
			n, revokeErr := s.Store.RefreshTokens().
				RevokeAllForPrincipal(ctx, consumed.PrincipalID, time.Now().UTC())
			if revokeErr != nil {
				return revokeErr
			}
			revoked = n
		}
		s.Audit.Emit(ctx, audit.Event{
			Type:        audit.EventRefreshReuse,
			Severity:    audit.SeverityCritical,
			PrincipalID: consumed.PrincipalID,
			SourceIP:    req.SourceIP,
			Count:       revoked,
		})
		return ErrTokenReuseDetected

	case errors.Is(err, store.ErrTokenExpired):
		s.auditRefreshFailure(ctx, req, consumed.PrincipalID, "expired")
		return ErrTokenExpired

	case errors.Is(err, store.ErrNotFound):
		s.auditRefreshFailure(ctx, req, "", "unknown_token")
		return ErrTokenRevoked

	default:
		return err
	}
}

func (s *AuthService) auditRefreshFailure(ctx context.Context, req RefreshRequest, principalID, reason string) {
	s.Audit.Emit(ctx, audit.Event{
		Type:        audit.EventRefreshFailure,
		Severity:    audit.SeverityWarning,
		PrincipalID: principalID,
		SourceIP:    req.SourceIP,
		Reason:      reason,
	})
}

// Logout revokes the single session behind the presented refresh token. The
// token must belong to the principal; a token someone else owns is treated as
// unknown so logout leaks nothing about other accounts.
func (s *AuthService) Logout(ctx context.Context, principalID, refreshToken, sourceIP string) error {
	hash := cryptox.FingerprintToken(refreshToken)

	t, err := s.Store.RefreshTokens().GetByHash(ctx, hash)
	if err != nil {
		return err
	}
	if t.PrincipalID != principalID {
		return store.ErrNotFound
	}

	if err := s.Store.RefreshTokens().Revoke(ctx, t.ID, time.Now().UTC()); err != nil {
		return err
	}

	s.Audit.Emit(ctx, audit.Event{
		Type:        audit.EventRefreshRevoked,
		Severity:    audit.SeverityInfo,
		PrincipalID: principalID,
		SourceIP:    sourceIP,
	})
	return nil
}

// LogoutAll revokes every active refresh token for the principal in one bulk
// statement. Already-issued access tokens remain valid until natural expiry;
// the short access TTL bounds that exposure. Idempotent: a second call
// reports zero revocations and no error.
func (s *AuthService) LogoutAll(ctx context.Context, principalID, sourceIP string) (int64, error) {
	n, err := s.Store.RefreshTokens().RevokeAllForPrincipal(ctx, principalID, time.Now().UTC())
	if err != nil {
		return 0, err
	}

	s.Audit.Emit(ctx, audit.Event{
		Type:        audit.EventRefreshRevokedAll,
		Severity:    audit.SeverityInfo,
		PrincipalID: principalID,
		SourceIP:    sourceIP,
		Count:       n,
	})
	return n, nil
}

func (s *AuthService) accessTTL() time.Duration {
	if s.AccessTTL > 0 {
		return s.AccessTTL
	}
	return DefaultAccessTTL
}

func (s *AuthService) refreshTTL() time.Duration {
	if s.RefreshTTL > 0 {
		return s.RefreshTTL
	}
	return DefaultRefreshTTL
}
