// Package guard implements the per-account lockout state machine sitting
// behind the coarse IP/identifier rate limiter. Counter updates are pushed
// down into the credential store as single atomic read-modify-write
// operations so concurrent failures cannot under-count and slip past the
// threshold.
package guard

import (
	"context"
	"time"
)

// LockoutState is the post-update view of an account's lockout fields,
// returned by the store's atomic failure recording.
type LockoutState struct {
	FailedCount int
	LockedUntil time.Time
}

// LockoutStore is the narrow slice of the credential store the guard needs.
//
// RecordLoginFailure must perform, atomically: if an expired lock is still
// recorded, clear it and zero the counter; increment the counter; when the
// counter reaches threshold, set LockedUntil = now + lockout. A SQL
// implementation would use a single UPDATE ... RETURNING; the in-memory
// implementation serializes on a mutex.
type LockoutStore interface {
	RecordLoginFailure(ctx context.Context, userID string, threshold int, lockout time.Duration) (LockoutState, error)
	ResetLoginFailures(ctx context.Context, userID string) error
}

// Config holds lockout thresholds.
type Config struct {
	MaxAttempts     int
	LockoutDuration time.Duration
}

// Guard evaluates and advances the Normal -> Locked -> Normal account state.
type Guard struct {
	store  LockoutStore
	config Config
	now    func() time.Time
}

func New(store LockoutStore, cfg Config) *Guard {
	return &Guard{
		store:  store,
		config: cfg,
		now:    time.Now,
	}
}

// WithClock overrides the time source. Test hook.
func (g *Guard) WithClock(now func() time.Time) *Guard {
	g.now = now
	return g
}

// RetryAfter reports whether the account is currently locked out and, if so,
// how long until the lock expires. An expired lock reads as unlocked; the
// stale fields are cleared lazily by the next RecordFailure or OnSuccess.
func (g *Guard) RetryAfter(lockedUntil time.Time) (bool, time.Duration) {
	if lockedUntil.IsZero() {
		return false, 0
	}
	remaining := lockedUntil.Sub(g.now())
	if remaining <= 0 {
		return false, 0
	}
	return true, remaining
}

// RecordFailure charges one failed attempt and reports the resulting state.
// locked is true when this failure tripped (or re-tripped) the threshold.
func (g *Guard) RecordFailure(ctx context.Context, userID string) (state LockoutState, locked bool, err error) {
	state, err = g.store.RecordLoginFailure(ctx, userID, g.config.MaxAttempts, g.config.LockoutDuration)
	if err != nil {
		return LockoutState{}, false, err
	}
	return state, !state.LockedUntil.IsZero() && state.LockedUntil.After(g.now()), nil
}

// OnSuccess resets the counter and clears any expired lock.
func (g *Guard) OnSuccess(ctx context.Context, userID string) error {
	return g.store.ResetLoginFailures(ctx, userID)
}

// AttemptsRemaining converts a post-failure count into the "attempts left"
// hint. Zero or negative means the account is at or past the threshold.
func (g *Guard) AttemptsRemaining(state LockoutState) int {
	return g.config.MaxAttempts - state.FailedCount
}
