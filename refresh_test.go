package authcore

import (
	"errors"
	"testing"

	"github.com/cobaltcms/authcore/internal/metrics"
)

func TestRefreshRotation(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	mustRegister(t, svc, "dana@example.com", "dana", passAlpha)

	login, err := svc.Login(testCtx(), "dana@example.com", passAlpha)
	if err != nil {
		t.Fatal(err)
	}

	rotated, err := svc.Refresh(testCtx(), login.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	if rotated.SessionID == login.SessionID {
		t.Fatal("rotation kept the old session id")
	}
	if rotated.Tokens.RefreshToken == login.Tokens.RefreshToken {
		t.Fatal("rotation returned the same refresh token")
	}

	claims, err := svc.VerifyAccessToken(rotated.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("verifying rotated access token: %v", err)
	}
	if claims.SID != rotated.SessionID {
		t.Fatalf("access token sid = %q, want %q", claims.SID, rotated.SessionID)
	}

	// The rotated-in token keeps working.
	if _, err := svc.Refresh(testCtx(), rotated.Tokens.RefreshToken); err != nil {
		t.Fatalf("refreshing the replacement token: %v", err)
	}
}

func TestRefreshReplayDetected(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	mustRegister(t, svc, "dana@example.com", "dana", passAlpha)

	login, err := svc.Login(testCtx(), "dana@example.com", passAlpha)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Refresh(testCtx(), login.Tokens.RefreshToken); err != nil {
		t.Fatal(err)
	}

	// Presenting the already-rotated token again is the replay pattern.
	_, err = svc.Refresh(testCtx(), login.Tokens.RefreshToken)
	if !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("replayed token: got %v, want ErrRefreshInvalid", err)
	}

	snap := svc.MetricsSnapshot()
	if got := snap.Counters[metrics.MetricRefreshReuseDetected]; got != 1 {
		t.Fatalf("reuse counter = %d, want 1", got)
	}
}

func TestRefreshMalformedToken(t *testing.T) {
	svc, _, _ := newTestService(t, nil)

	for _, tok := range []string{"", "garbage", "AAAA.BBBB.CCCC"} {
		if _, err := svc.Refresh(testCtx(), tok); !errors.Is(err, ErrRefreshInvalid) {
			t.Fatalf("token %q: got %v, want ErrRefreshInvalid", tok, err)
		}
	}
}

func TestRefreshDeactivatedUser(t *testing.T) {
	svc, store, _ := newTestService(t, nil)
	res := mustRegister(t, svc, "dana@example.com", "dana", passAlpha)

	if err := store.SetActive(res.User.ID, false); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Refresh(testCtx(), res.Tokens.RefreshToken); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("deactivated refresh: got %v, want ErrRefreshInvalid", err)
	}

	// The record was revoked on the way out; re-activation does not revive
	// the session.
	if err := store.SetActive(res.User.ID, true); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Refresh(testCtx(), res.Tokens.RefreshToken); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("refresh after re-activation: got %v, want ErrRefreshInvalid", err)
	}
}
