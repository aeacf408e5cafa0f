package policy

import (
	"fmt"
	"time"
)

// AgeDecision is the result of a minimum-age check.
type AgeDecision struct {
	Allowed bool
	Reason  string
}

// ExpiryAdvisory is a non-blocking warning ahead of password expiry.
type ExpiryAdvisory struct {
	Expiring  bool
	ExpiresIn time.Duration
}

// CanChangeNow enforces the minimum interval since the last password change.
// Rapid changes would let a user cycle through the history window and land
// back on an old password. A zero changedAt (never changed) always allows.
func (e *Engine) CanChangeNow(changedAt time.Time, now time.Time) AgeDecision {
	if changedAt.IsZero() {
		return AgeDecision{Allowed: true}
	}

	elapsed := now.Sub(changedAt)
	if elapsed >= e.config.MinPasswordAge {
		return AgeDecision{Allowed: true}
	}

	wait := e.config.MinPasswordAge - elapsed
	return AgeDecision{
		Allowed: false,
		Reason:  fmt.Sprintf("password was changed recently; retry in %s", wait.Round(time.Minute)),
	}
}

// IsExpired reports whether the password is older than the maximum age.
// A zero changedAt is treated as not expired (age unknown).
func (e *Engine) IsExpired(changedAt time.Time, now time.Time) bool {
	if changedAt.IsZero() {
		return false
	}
	return now.Sub(changedAt) > e.config.MaxPasswordAge
}

// ExpiryWarning returns an advisory once the password enters the
// warn window before expiry. Already-expired passwords report
// Expiring with ExpiresIn zero.
func (e *Engine) ExpiryWarning(changedAt time.Time, now time.Time) ExpiryAdvisory {
	if changedAt.IsZero() {
		return ExpiryAdvisory{}
	}

	expiresAt := changedAt.Add(e.config.MaxPasswordAge)
	remaining := expiresAt.Sub(now)
	if remaining <= 0 {
		return ExpiryAdvisory{Expiring: true}
	}
	if remaining <= e.config.ExpiryWarnWindow {
		return ExpiryAdvisory{Expiring: true, ExpiresIn: remaining}
	}
	return ExpiryAdvisory{}
}
