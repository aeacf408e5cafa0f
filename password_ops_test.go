package authcore

import (
	"errors"
	"testing"
	"time"
)

func TestChangePasswordRevokesSessions(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	res := mustRegister(t, svc, "dana@example.com", "dana", passAlpha)

	login, err := svc.Login(testCtx(), "dana@example.com", passAlpha)
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.ChangePassword(testCtx(), res.User.ID, passAlpha, passBravo); err != nil {
		t.Fatalf("changing password: %v", err)
	}

	sessions, err := svc.ListSessions(testCtx(), res.User.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 0 {
		t.Fatalf("%d sessions survived the password change", len(sessions))
	}

	// Refresh tokens issued before the change are dead.
	if _, err := svc.Refresh(testCtx(), login.Tokens.RefreshToken); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("old refresh token: got %v, want ErrRefreshInvalid", err)
	}

	if _, err := svc.Login(testCtx(), "dana@example.com", passAlpha); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password: got %v, want ErrInvalidCredentials", err)
	}
	if _, err := svc.Login(testCtx(), "dana@example.com", passBravo); err != nil {
		t.Fatalf("new password: %v", err)
	}
}

func TestChangePasswordRejections(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	res := mustRegister(t, svc, "dana@example.com", "dana", passAlpha)

	if err := svc.ChangePassword(testCtx(), res.User.ID, "wrong-current-1!", passBravo); !errors.Is(err, ErrInvalidCurrentPassword) {
		t.Fatalf("wrong current: got %v, want ErrInvalidCurrentPassword", err)
	}
	if err := svc.ChangePassword(testCtx(), res.User.ID, passAlpha, passAlpha); !errors.Is(err, ErrPasswordUnchanged) {
		t.Fatalf("same password: got %v, want ErrPasswordUnchanged", err)
	}
	if err := svc.ChangePassword(testCtx(), res.User.ID, passAlpha, "short"); !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("weak password: got %v, want ErrPasswordPolicy", err)
	}
	if err := svc.ChangePassword(testCtx(), "no-such-user", passAlpha, passBravo); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("unknown user: got %v, want ErrUserNotFound", err)
	}
}

func TestChangePasswordMinimumAge(t *testing.T) {
	svc, _, _ := newTestService(t, func(cfg *Config) {
		cfg.Policy.MinPasswordAge = time.Hour
	})
	res := mustRegister(t, svc, "dana@example.com", "dana", passAlpha)

	if err := svc.ChangePassword(testCtx(), res.User.ID, passAlpha, passBravo); !errors.Is(err, ErrPasswordTooYoung) {
		t.Fatalf("immediate change: got %v, want ErrPasswordTooYoung", err)
	}
}

func TestPasswordHistoryBlocksReuse(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	res := mustRegister(t, svc, "dana@example.com", "dana", passAlpha)

	if err := svc.ChangePassword(testCtx(), res.User.ID, passAlpha, passBravo); err != nil {
		t.Fatal(err)
	}
	if err := svc.ChangePassword(testCtx(), res.User.ID, passBravo, passAlpha); !errors.Is(err, ErrPasswordReused) {
		t.Fatalf("returning to a retained password: got %v, want ErrPasswordReused", err)
	}
	// A genuinely new password is fine.
	if err := svc.ChangePassword(testCtx(), res.User.ID, passBravo, passGamma); err != nil {
		t.Fatal(err)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	svc, _, notifier := newTestService(t, nil)
	mustRegister(t, svc, "dana@example.com", "dana", passAlpha)

	if err := svc.RequestPasswordReset(testCtx(), "dana@example.com"); err != nil {
		t.Fatal(err)
	}
	resetToken := notifier.lastReset(t)

	if err := svc.ResetPassword(testCtx(), resetToken, passBravo); err != nil {
		t.Fatalf("resetting password: %v", err)
	}

	if _, err := svc.Login(testCtx(), "dana@example.com", passAlpha); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password after reset: got %v, want ErrInvalidCredentials", err)
	}
	if _, err := svc.Login(testCtx(), "dana@example.com", passBravo); err != nil {
		t.Fatalf("new password after reset: %v", err)
	}

	// A reset token is consumed exactly once.
	if err := svc.ResetPassword(testCtx(), resetToken, passGamma); !errors.Is(err, ErrResetTokenInvalid) {
		t.Fatalf("replayed reset token: got %v, want ErrResetTokenInvalid", err)
	}
}

func TestPasswordResetUniformForUnknownEmail(t *testing.T) {
	svc, _, notifier := newTestService(t, nil)
	mustRegister(t, svc, "dana@example.com", "dana", passAlpha)

	if err := svc.RequestPasswordReset(testCtx(), "ghost@example.com"); err != nil {
		t.Fatalf("unknown email must not error: %v", err)
	}
	if notifier.resetCount() != 0 {
		t.Fatal("a token was delivered for an unknown email")
	}
}

func TestPasswordResetClearsLockout(t *testing.T) {
	svc, _, notifier := newTestService(t, func(cfg *Config) {
		cfg.Guard.MaxAttempts = 3
	})
	mustRegister(t, svc, "dana@example.com", "dana", passAlpha)

	for i := 0; i < 3; i++ {
		svc.Login(testCtx(), "dana@example.com", "wrong-password-1!")
	}
	if _, err := svc.Login(testCtx(), "dana@example.com", passAlpha); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected an active lockout, got %v", err)
	}

	if err := svc.RequestPasswordReset(testCtx(), "dana@example.com"); err != nil {
		t.Fatal(err)
	}
	if err := svc.ResetPassword(testCtx(), notifier.lastReset(t), passBravo); err != nil {
		t.Fatal(err)
	}

	// The reset proves account control; the lockout is lifted with it.
	if _, err := svc.Login(testCtx(), "dana@example.com", passBravo); err != nil {
		t.Fatalf("login after reset: %v", err)
	}
}

func TestResetTokenGarbage(t *testing.T) {
	svc, _, _ := newTestService(t, nil)

	if err := svc.ResetPassword(testCtx(), "not-a-token", passBravo); !errors.Is(err, ErrResetTokenInvalid) {
		t.Fatalf("malformed token: got %v, want ErrResetTokenInvalid", err)
	}
}

func TestVerifyEmailFlow(t *testing.T) {
	svc, store, notifier := newTestService(t, nil)
	res := mustRegister(t, svc, "dana@example.com", "dana", passAlpha)

	if res.User.EmailVerified {
		t.Fatal("account verified before the token was consumed")
	}
	verifyToken := notifier.lastVerification(t)

	if err := svc.VerifyEmail(testCtx(), verifyToken); err != nil {
		t.Fatalf("verifying email: %v", err)
	}

	user, err := store.GetUserByID(testCtx(), res.User.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !user.EmailVerified {
		t.Fatal("verification did not stick")
	}

	if err := svc.VerifyEmail(testCtx(), verifyToken); !errors.Is(err, ErrVerificationTokenInvalid) {
		t.Fatalf("replayed verification token: got %v, want ErrVerificationTokenInvalid", err)
	}
}

func TestLoginRequiresVerifiedEmail(t *testing.T) {
	svc, _, notifier := newTestService(t, func(cfg *Config) {
		cfg.Verification.RequireForLogin = true
	})
	mustRegister(t, svc, "dana@example.com", "dana", passAlpha)

	if _, err := svc.Login(testCtx(), "dana@example.com", passAlpha); !errors.Is(err, ErrEmailNotVerified) {
		t.Fatalf("unverified login: got %v, want ErrEmailNotVerified", err)
	}

	if err := svc.VerifyEmail(testCtx(), notifier.lastVerification(t)); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Login(testCtx(), "dana@example.com", passAlpha); err != nil {
		t.Fatalf("verified login: %v", err)
	}
}
