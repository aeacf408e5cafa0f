package authcore

import (
	"errors"
	"fmt"
	"time"

	"github.com/cobaltcms/authcore/policy"
	"github.com/cobaltcms/authcore/token"
)

var (
	// ErrInvalidCredentials is returned for a wrong password or an unknown
	// identifier. The two cases are intentionally indistinguishable.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is returned while a lockout window is active. The
	// concrete error is a *LockedError carrying the remaining duration.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountDeactivated is returned when the account exists but has been
	// deactivated by an administrator.
	ErrAccountDeactivated = errors.New("account deactivated")
	// ErrEmailNotVerified is returned on login when verified email is
	// required and the account has not completed verification.
	ErrEmailNotVerified = errors.New("email not verified")
	// ErrInvalidInput is returned for structurally invalid request fields
	// (missing email, unknown role). Password rule failures use
	// *PolicyError instead.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUserExists is returned on registration when the email or username
	// is already taken.
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound is returned by CredentialStore implementations when no
	// record matches the lookup.
	ErrUserNotFound = errors.New("user not found")
	// ErrPasswordPolicy is the sentinel matched by *PolicyError.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrPasswordReused is returned when the new password matches a retained
	// prior hash.
	ErrPasswordReused = errors.New("password was used recently")
	// ErrPasswordTooYoung is returned when the minimum interval since the
	// last password change has not elapsed.
	ErrPasswordTooYoung = errors.New("password changed too recently")
	// ErrPasswordUnchanged is returned when the new password equals the
	// current one.
	ErrPasswordUnchanged = errors.New("new password must differ from current password")
	// ErrInvalidCurrentPassword is returned on password change when the
	// presented current password does not verify.
	ErrInvalidCurrentPassword = errors.New("current password incorrect")
	// ErrRefreshInvalid covers malformed, unknown, expired, revoked, and
	// rotated-away refresh tokens.
	ErrRefreshInvalid = errors.New("invalid refresh token")
	// ErrRefreshReuse is returned when a refresh token's secret does not
	// match its live record. It indicates a replay of a rotated token and is
	// a possible compromise signal.
	ErrRefreshReuse = errors.New("refresh token reuse detected")
	// ErrResetTokenInvalid covers unknown, expired, consumed, and mismatched
	// password-reset tokens.
	ErrResetTokenInvalid = errors.New("invalid or expired reset token")
	// ErrVerificationTokenInvalid covers unknown, expired, consumed, and
	// mismatched email-verification tokens.
	ErrVerificationTokenInvalid = errors.New("invalid or expired verification token")
	// ErrSessionNotFound is returned when a session id does not resolve to a
	// live record owned by the caller.
	ErrSessionNotFound = errors.New("session not found")
	// ErrLoginRateLimited is returned when the coarse per-identifier or
	// per-IP login budget is exhausted. Independent from account lockout.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrBackendUnavailable wraps infrastructure failures (store or Redis
	// unreachable). Callers must map it to a generic 5xx.
	ErrBackendUnavailable = errors.New("authentication backend unavailable")
)

// Token verification sentinels, shared with the token package so callers can
// match either import path.
var (
	ErrTokenExpired = token.ErrTokenExpired
	ErrTokenInvalid = token.ErrTokenInvalid
)

// LockedError reports an active lockout together with the time remaining
// until login attempts are evaluated again. Matches ErrAccountLocked under
// errors.Is.
type LockedError struct {
	RetryAfter time.Duration
}

func (e *LockedError) Error() string {
	minutes := int(e.RetryAfter.Minutes())
	if minutes < 1 {
		minutes = 1
	}
	return fmt.Sprintf("account locked, try again in %d minute(s)", minutes)
}

func (e *LockedError) Is(target error) bool {
	return target == ErrAccountLocked
}

// CredentialsError is the config-gated variant of ErrInvalidCredentials that
// additionally reveals how many attempts remain before lockout. Matches
// ErrInvalidCredentials under errors.Is.
type CredentialsError struct {
	AttemptsRemaining int
}

func (e *CredentialsError) Error() string {
	return fmt.Sprintf("invalid credentials, %d attempt(s) remaining", e.AttemptsRemaining)
}

func (e *CredentialsError) Is(target error) bool {
	return target == ErrInvalidCredentials
}

// PolicyError carries the full validation result for a rejected password.
// Matches ErrPasswordPolicy under errors.Is.
type PolicyError struct {
	Result policy.ValidationResult
}

func (e *PolicyError) Error() string {
	if len(e.Result.Violations) == 0 {
		return ErrPasswordPolicy.Error()
	}
	return fmt.Sprintf("password policy violation: %s", e.Result.Violations[0].Message)
}

func (e *PolicyError) Is(target error) bool {
	return target == ErrPasswordPolicy
}

func backendError(err error) error {
	return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
}
