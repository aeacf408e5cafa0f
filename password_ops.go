package authcore

import (
	"context"
	"errors"

	"github.com/cobaltcms/authcore/internal"
	"github.com/cobaltcms/authcore/internal/audit"
	"github.com/cobaltcms/authcore/internal/metrics"
	"github.com/cobaltcms/authcore/internal/rate"
	"github.com/cobaltcms/authcore/internal/stores"
	"github.com/cobaltcms/authcore/policy"
)

// ChangePassword rotates the credential of an authenticated user. On
// success every existing session is revoked; the caller must log in again.
func (s *Service) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrUserNotFound
		}
		return backendError(err)
	}

	ok, err := s.hasher.Verify(ctx, currentPassword, user.PasswordHash)
	if err != nil {
		return backendError(err)
	}
	if !ok {
		s.inc(metrics.MetricPasswordChangeInvalidOld)
		s.emit(ctx, audit.EventPasswordChanged, user.ID, false, "current password incorrect", nil)
		return ErrInvalidCurrentPassword
	}

	same, err := s.hasher.Verify(ctx, newPassword, user.PasswordHash)
	if err == nil && same {
		s.inc(metrics.MetricPasswordChangeRejected)
		return ErrPasswordUnchanged
	}

	if err := s.vetNewPassword(ctx, user, newPassword, true); err != nil {
		s.inc(metrics.MetricPasswordChangeRejected)
		return err
	}

	if err := s.applyNewPassword(ctx, user, newPassword); err != nil {
		return err
	}

	s.inc(metrics.MetricPasswordChangeSuccess)
	s.emit(ctx, audit.EventPasswordChanged, user.ID, true, "", nil)
	return nil
}

// RequestPasswordReset issues a single-use reset token delivered through
// the notifier. The outcome is uniform whether or not the email resolves to
// an account, and the rate window is charged either way.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	ip := ClientIP(ctx)

	err := s.limiter.ChargeResetRequest(ctx, email, ip)
	switch {
	case errors.Is(err, rate.ErrRateLimited):
		// Swallowed: a limited caller gets the same generic response.
		s.emit(ctx, audit.EventPasswordResetRequest, "", false, "rate limited", map[string]string{"email": email})
		return nil
	case err != nil:
		return backendError(err)
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	switch {
	case errors.Is(err, ErrUserNotFound):
		s.emit(ctx, audit.EventPasswordResetRequest, "", false, "unknown email", map[string]string{"email": email})
		return nil
	case err != nil:
		return backendError(err)
	}
	if !user.Active {
		return nil
	}

	recordID, err := internal.NewRecordID()
	if err != nil {
		return backendError(err)
	}
	secret, err := internal.NewSecret()
	if err != nil {
		return backendError(err)
	}
	raw, err := internal.EncodeOpaqueToken(recordID.String(), secret)
	if err != nil {
		return backendError(err)
	}

	record := &stores.Record{
		UserID:     user.ID,
		SecretHash: internal.HashSecret(secret),
		ExpiresAt:  s.clock().Add(s.config.Reset.TokenTTL).Unix(),
		Kind:       stores.KindPasswordReset,
	}
	if err := s.onetime.Save(ctx, recordID.String(), record, s.config.Reset.TokenTTL); err != nil {
		return backendError(err)
	}

	s.notify("password reset", func() error {
		return s.notifier.SendPasswordReset(ctx, user.Email, raw)
	})

	s.inc(metrics.MetricPasswordResetRequest)
	s.emit(ctx, audit.EventPasswordResetRequest, user.ID, true, "", nil)
	return nil
}

// ResetPassword consumes a reset token and sets a new password. The token
// is burned on first presentation even when the new password is rejected;
// the user requests a fresh one rather than retrying the same token. On
// success every session is revoked and any active lockout is cleared.
func (s *Service) ResetPassword(ctx context.Context, tokenValue, newPassword string) error {
	recordID, secret, err := internal.DecodeOpaqueToken(tokenValue)
	if err != nil {
		s.inc(metrics.MetricPasswordResetFailure)
		return ErrResetTokenInvalid
	}

	record, err := s.onetime.Consume(ctx, stores.KindPasswordReset, recordID, internal.HashSecret(secret), s.config.Reset.MaxAttempts)
	switch {
	case errors.Is(err, stores.ErrTokenNotFound),
		errors.Is(err, stores.ErrTokenSecretMismatch),
		errors.Is(err, stores.ErrTokenAttemptsExceeded):
		s.inc(metrics.MetricPasswordResetFailure)
		s.emit(ctx, audit.EventPasswordResetFailed, "", false, err.Error(), nil)
		return ErrResetTokenInvalid
	case err != nil:
		return backendError(err)
	}

	user, err := s.store.GetUserByID(ctx, record.UserID)
	switch {
	case errors.Is(err, ErrUserNotFound):
		s.inc(metrics.MetricPasswordResetFailure)
		return ErrResetTokenInvalid
	case err != nil:
		return backendError(err)
	}

	if err := s.vetNewPassword(ctx, user, newPassword, false); err != nil {
		s.inc(metrics.MetricPasswordResetFailure)
		return err
	}

	if err := s.applyNewPassword(ctx, user, newPassword); err != nil {
		return err
	}
	if err := s.store.ResetLoginFailures(ctx, user.ID); err != nil {
		s.warn("authcore: clearing lockout after reset for user %s: %v", user.ID, err)
	}

	s.inc(metrics.MetricPasswordResetSuccess)
	s.emit(ctx, audit.EventPasswordResetDone, user.ID, true, "", nil)
	return nil
}

// vetNewPassword runs the policy rules, the minimum-age check (change flow
// only; a reset proves mailbox control and may always proceed), and the
// history comparison, including the hash currently in service.
func (s *Service) vetNewPassword(ctx context.Context, user *User, candidate string, enforceMinAge bool) error {
	if enforceMinAge {
		if decision := s.policy.CanChangeNow(user.PasswordChangedAt, s.clock()); !decision.Allowed {
			return ErrPasswordTooYoung
		}
	}

	result := s.policy.Validate(candidate, policy.UserContext{
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Username:  user.Username,
		Email:     user.Email,
	})
	if !result.Valid {
		return &PolicyError{Result: result}
	}

	history, err := s.store.PasswordHistory(ctx, user.ID)
	if err != nil {
		return backendError(err)
	}
	history = append(history, user.PasswordHash)
	violation, err := s.policy.CheckHistory(candidate, history, func(p, h string) (bool, error) {
		return s.hasher.Verify(ctx, p, h)
	})
	if err != nil {
		return backendError(err)
	}
	if violation != nil {
		return ErrPasswordReused
	}
	return nil
}

// applyNewPassword hashes, persists the rotation, and revokes every live
// session so stolen refresh tokens die with the old credential.
func (s *Service) applyNewPassword(ctx context.Context, user *User, candidate string) error {
	newHash, err := s.hasher.Hash(ctx, candidate)
	if err != nil {
		return backendError(err)
	}

	now := s.clock()
	if err := s.store.UpdatePassword(ctx, user.ID, newHash, now, s.policy.HistorySize()); err != nil {
		return backendError(err)
	}
	user.PasswordHash = newHash
	user.PasswordChangedAt = now

	revoked, err := s.sessions.RevokeAll(ctx, user.ID)
	if err != nil {
		return backendError(err)
	}
	if revoked > 0 {
		s.inc(metrics.MetricLogoutAll)
	}
	return nil
}
