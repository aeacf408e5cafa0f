package authcore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cobaltcms/authcore/internal/audit"
	"github.com/cobaltcms/authcore/internal/metrics"
	"github.com/cobaltcms/authcore/internal/rate"
)

// dummyHash is verified against when the identifier resolves to no account,
// so the unknown-user path costs roughly the same as a real verification.
const dummyHash = "$argon2id$v=19$m=65536,t=3,p=2$MDEyMzQ1Njc4OWFiY2RlZg==$MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY="

// Login authenticates identifier (email or username) and password and
// returns a token pair. Failed attempts advance the lockout counter through
// a single atomic store update; attempts during an active lockout are
// rejected without advancing it. The coarse rate limiter is charged even
// when the identifier resolves to no account.
func (s *Service) Login(ctx context.Context, identifier, pass string) (*AuthResult, error) {
	identifier = strings.TrimSpace(identifier)
	ip := ClientIP(ctx)

	err := s.limiter.CheckLogin(ctx, identifier, ip)
	switch {
	case errors.Is(err, rate.ErrRateLimited):
		s.inc(metrics.MetricLoginRateLimited)
		s.emit(ctx, audit.EventLoginRateLimited, "", false, "window exhausted", map[string]string{"identifier": identifier})
		return nil, ErrLoginRateLimited
	case err != nil:
		return nil, backendError(err)
	}

	user, err := s.lookupByIdentifier(ctx, identifier)
	switch {
	case errors.Is(err, ErrUserNotFound):
		s.chargeLogin(ctx, identifier, ip)
		// Burn a verification anyway; see dummyHash.
		_, _ = s.hasher.Verify(ctx, pass, dummyHash)
		s.inc(metrics.MetricLoginFailure)
		s.emit(ctx, audit.EventLoginFailure, "", false, "unknown identifier", map[string]string{"identifier": identifier})
		return nil, ErrInvalidCredentials
	case err != nil:
		return nil, backendError(err)
	}

	if !user.Active {
		s.inc(metrics.MetricLoginFailure)
		s.emit(ctx, audit.EventLoginFailure, user.ID, false, "account deactivated", nil)
		return nil, ErrAccountDeactivated
	}

	if locked, remaining := s.guard.RetryAfter(user.LockedUntil); locked {
		s.inc(metrics.MetricLoginLocked)
		s.emit(ctx, audit.EventLoginLocked, user.ID, false, "lockout active", nil)
		return nil, &LockedError{RetryAfter: remaining}
	}

	ok, err := s.hasher.Verify(ctx, pass, user.PasswordHash)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backendError(err)
		}
		// Corrupt stored hash. Fail closed as a credential mismatch.
		s.warn("authcore: verifying stored hash for user %s: %v", user.ID, err)
		ok = false
	}
	if !ok {
		return nil, s.failLogin(ctx, user, identifier, ip)
	}

	if s.config.Verification.RequireForLogin && !user.EmailVerified {
		s.inc(metrics.MetricLoginFailure)
		s.emit(ctx, audit.EventLoginFailure, user.ID, false, "email not verified", nil)
		return nil, ErrEmailNotVerified
	}

	if err := s.guard.OnSuccess(ctx, user.ID); err != nil {
		return nil, backendError(err)
	}
	user.FailedLoginCount = 0
	user.LockedUntil = time.Time{}

	if err := s.limiter.ResetLogin(ctx, identifier, ip); err != nil {
		s.warn("authcore: resetting login rate window: %v", err)
	}

	now := s.clock()
	if err := s.store.RecordLogin(ctx, user.ID, now); err != nil {
		s.warn("authcore: recording last login for user %s: %v", user.ID, err)
	}
	user.LastLoginAt = now

	s.maybeUpgradeHash(ctx, user, pass)

	pair, sessionID, err := s.issueTokenPair(ctx, user)
	if err != nil {
		return nil, err
	}

	s.inc(metrics.MetricLoginSuccess)
	s.emit(ctx, audit.EventLoginSuccess, user.ID, true, "", map[string]string{"session_id": sessionID})

	advisory := s.policy.ExpiryWarning(user.PasswordChangedAt, now)
	return &AuthResult{
		User:              user,
		Tokens:            pair,
		SessionID:         sessionID,
		PasswordExpiring:  advisory.Expiring,
		PasswordExpiresIn: advisory.ExpiresIn,
	}, nil
}

// failLogin charges the limiter, advances the lockout counter atomically,
// and picks the error the caller sees.
func (s *Service) failLogin(ctx context.Context, user *User, identifier, ip string) error {
	s.chargeLogin(ctx, identifier, ip)

	state, lockedNow, err := s.guard.RecordFailure(ctx, user.ID)
	if err != nil {
		return backendError(err)
	}

	s.inc(metrics.MetricLoginFailure)
	s.emit(ctx, audit.EventLoginFailure, user.ID, false, "password mismatch", nil)

	if lockedNow {
		s.inc(metrics.MetricLoginLocked)
		s.emit(ctx, audit.EventLoginLocked, user.ID, false, "threshold reached", nil)
		_, remaining := s.guard.RetryAfter(state.LockedUntil)
		if remaining <= 0 {
			remaining = s.config.Guard.LockoutDuration
		}
		return &LockedError{RetryAfter: remaining}
	}
	if s.config.Guard.RevealAttemptsLeft {
		return &CredentialsError{AttemptsRemaining: s.guard.AttemptsRemaining(state)}
	}
	return ErrInvalidCredentials
}

func (s *Service) lookupByIdentifier(ctx context.Context, identifier string) (*User, error) {
	if strings.Contains(identifier, "@") {
		return s.store.GetUserByEmail(ctx, strings.ToLower(identifier))
	}
	return s.store.GetUserByUsername(ctx, identifier)
}

func (s *Service) chargeLogin(ctx context.Context, identifier, ip string) {
	if err := s.limiter.ChargeLogin(ctx, identifier, ip); err != nil {
		s.warn("authcore: charging login rate window: %v", err)
	}
}

// maybeUpgradeHash transparently re-hashes with current parameters after a
// successful verification against a weaker hash.
func (s *Service) maybeUpgradeHash(ctx context.Context, user *User, pass string) {
	if !s.config.Password.UpgradeOnLogin {
		return
	}
	upgrade, err := s.hasher.NeedsUpgrade(user.PasswordHash)
	if err != nil || !upgrade {
		return
	}
	newHash, err := s.hasher.Hash(ctx, pass)
	if err != nil {
		s.warn("authcore: re-hashing on upgrade for user %s: %v", user.ID, err)
		return
	}
	if err := s.store.UpdatePasswordHash(ctx, user.ID, newHash); err != nil {
		s.warn("authcore: storing upgraded hash for user %s: %v", user.ID, err)
		return
	}
	user.PasswordHash = newHash
}
