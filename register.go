package authcore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/cobaltcms/authcore/internal"
	"github.com/cobaltcms/authcore/internal/audit"
	"github.com/cobaltcms/authcore/internal/metrics"
	"github.com/cobaltcms/authcore/internal/stores"
	"github.com/cobaltcms/authcore/policy"
)

// Register creates an account, issues an email-verification token, and logs
// the new user straight in with a fresh token pair.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*AuthResult, error) {
	email := normalizeEmail(input.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: valid email required", ErrInvalidInput)
	}
	role := input.Role
	if role == "" {
		role = RoleViewer
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, input.Role)
	}
	username := strings.TrimSpace(input.Username)

	result := s.policy.Validate(input.Password, policy.UserContext{
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Username:  username,
		Email:     email,
	})
	if !result.Valid {
		s.inc(metrics.MetricRegisterRejected)
		return nil, &PolicyError{Result: result}
	}

	hash, err := s.hasher.Hash(ctx, input.Password)
	if err != nil {
		return nil, backendError(err)
	}

	user := &User{
		ID:                uuid.NewString(),
		Email:             email,
		Username:          username,
		FirstName:         strings.TrimSpace(input.FirstName),
		LastName:          strings.TrimSpace(input.LastName),
		PasswordHash:      hash,
		Role:              role,
		Active:            true,
		PasswordChangedAt: s.clock(),
	}

	err = s.store.CreateUser(ctx, user)
	switch {
	case errors.Is(err, ErrUserExists):
		s.inc(metrics.MetricRegisterConflict)
		s.emit(ctx, audit.EventRegister, "", false, "duplicate identity", nil)
		return nil, ErrUserExists
	case err != nil:
		return nil, backendError(err)
	}

	// Verification delivery is best-effort; the account is usable (subject
	// to RequireForLogin) and can re-request a token later.
	if err := s.issueVerification(ctx, user); err != nil {
		s.warn("authcore: issuing verification token: %v", err)
	}

	pair, sessionID, err := s.issueTokenPair(ctx, user)
	if err != nil {
		return nil, err
	}

	s.inc(metrics.MetricRegisterSuccess)
	s.emit(ctx, audit.EventRegister, user.ID, true, "", map[string]string{"role": string(role)})

	return &AuthResult{User: user, Tokens: pair, SessionID: sessionID}, nil
}

// RequestEmailVerification issues a fresh verification token for an
// unverified account. The response is uniform whether or not the email
// resolves to an account.
func (s *Service) RequestEmailVerification(ctx context.Context, email string) error {
	user, err := s.store.GetUserByEmail(ctx, normalizeEmail(email))
	switch {
	case errors.Is(err, ErrUserNotFound):
		return nil
	case err != nil:
		return backendError(err)
	}
	if user.EmailVerified {
		return nil
	}
	if err := s.issueVerification(ctx, user); err != nil {
		return backendError(err)
	}
	return nil
}

// VerifyEmail consumes a verification token and marks the account verified.
// A token is accepted exactly once.
func (s *Service) VerifyEmail(ctx context.Context, tokenValue string) error {
	recordID, secret, err := internal.DecodeOpaqueToken(tokenValue)
	if err != nil {
		s.inc(metrics.MetricEmailVerifyFailure)
		return ErrVerificationTokenInvalid
	}

	record, err := s.onetime.Consume(ctx, stores.KindEmailVerification, recordID, internal.HashSecret(secret), s.config.Verification.MaxAttempts)
	switch {
	case errors.Is(err, stores.ErrTokenNotFound),
		errors.Is(err, stores.ErrTokenSecretMismatch),
		errors.Is(err, stores.ErrTokenAttemptsExceeded):
		s.inc(metrics.MetricEmailVerifyFailure)
		s.emit(ctx, audit.EventEmailVerified, "", false, err.Error(), nil)
		return ErrVerificationTokenInvalid
	case err != nil:
		return backendError(err)
	}

	if err := s.store.SetEmailVerified(ctx, record.UserID); err != nil {
		return backendError(err)
	}

	s.inc(metrics.MetricEmailVerifySuccess)
	s.emit(ctx, audit.EventEmailVerified, record.UserID, true, "", nil)
	return nil
}

func (s *Service) issueVerification(ctx context.Context, user *User) error {
	recordID, err := internal.NewRecordID()
	if err != nil {
		return err
	}
	secret, err := internal.NewSecret()
	if err != nil {
		return err
	}
	raw, err := internal.EncodeOpaqueToken(recordID.String(), secret)
	if err != nil {
		return err
	}

	record := &stores.Record{
		UserID:     user.ID,
		SecretHash: internal.HashSecret(secret),
		ExpiresAt:  s.clock().Add(s.config.Verification.TokenTTL).Unix(),
		Kind:       stores.KindEmailVerification,
	}
	if err := s.onetime.Save(ctx, recordID.String(), record, s.config.Verification.TokenTTL); err != nil {
		return err
	}

	s.notify("email verification", func() error {
		return s.notifier.SendEmailVerification(ctx, user.Email, raw)
	})
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
