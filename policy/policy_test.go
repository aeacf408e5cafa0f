package policy

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return NewEngine(Config{})
}

func hasViolation(result ValidationResult, code ViolationCode) bool {
	for _, v := range result.Violations {
		if v.Code == code {
			return true
		}
	}
	return false
}

func TestValidateSingleRuleFailures(t *testing.T) {
	engine := newTestEngine(t)

	cases := []struct {
		name     string
		password string
		code     ViolationCode
	}{
		{"too short", "Ab1!xyz", ViolationTooShort},
		{"too long", strings.Repeat("Ab1!", 33), ViolationTooLong},
		{"no lowercase", "HELLOWORLD1!", ViolationNoLowercase},
		{"no uppercase", "helloworld1!", ViolationNoUppercase},
		{"no digit", "HelloWorld!!", ViolationNoDigit},
		{"no special", "HelloWorld11", ViolationNoSpecial},
		{"sequential alpha", "Hxyzrq2W!kmp", ViolationSequential},
		{"sequential digits", "Hq2W!kmp4567", ViolationSequential},
		{"sequential reversed", "Hq2W!kmpcba9", ViolationSequential},
		{"keyboard run", "Hq2W!kmqwert", ViolationSequential},
		{"repeated", "Hq2W!kmaaa91", ViolationRepeated},
		{"common word", "P@ssw0rd", ViolationCommonPassword},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := engine.Validate(tc.password, UserContext{})
			if result.Valid {
				t.Fatalf("password %q unexpectedly valid", tc.password)
			}
			if !hasViolation(result, tc.code) {
				t.Fatalf("expected violation %s, got %v", tc.code, result.Violations)
			}
		})
	}
}

func TestValidateAcceptsStrongPassword(t *testing.T) {
	engine := newTestEngine(t)

	result := engine.Validate("Str0ng!Pvx9Q", UserContext{})
	if !result.Valid {
		t.Fatalf("expected valid, got violations %v", result.Violations)
	}
	if result.Score <= 0 {
		t.Fatalf("expected positive score, got %d", result.Score)
	}
	if result.Strength == "" {
		t.Fatal("expected a strength label")
	}
}

func TestValidateUserContextOverlap(t *testing.T) {
	engine := newTestEngine(t)

	cases := []struct {
		name     string
		password string
		user     UserContext
	}{
		{"first name", "Xalicev1!Qz", UserContext{FirstName: "Alice"}},
		{"last name", "Xsmithv1!Qz", UserContext{LastName: "Smith"}},
		{"username", "Xbober1!Qzw", UserContext{Username: "bober"}},
		{"email local part", "Xcarolv1!Qz", UserContext{Email: "carol@example.com"}},
		{"password inside name", "berto", UserContext{FirstName: "Albertonio"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := engine.Validate(tc.password, tc.user)
			if !hasViolation(result, ViolationContainsUser) {
				t.Fatalf("expected contains_user_info violation, got %v", result.Violations)
			}
		})
	}

	// Fields shorter than three characters are ignored.
	result := engine.Validate("Xaqv9m!QzWp", UserContext{FirstName: "aq"})
	if hasViolation(result, ViolationContainsUser) {
		t.Fatal("two-character field should not trigger overlap")
	}
}

func TestCommonPasswordLeetVariants(t *testing.T) {
	engine := newTestEngine(t)

	for _, pw := range []string{"password", "P@55w0rd", "l3tm31n", "qw3rty"} {
		result := engine.Validate(pw, UserContext{})
		if !hasViolation(result, ViolationCommonPassword) {
			t.Fatalf("expected %q to match the common dictionary", pw)
		}
	}
}

func TestExtraCommonPasswords(t *testing.T) {
	engine := NewEngine(Config{ExtraCommonPasswords: []string{"companyname"}})

	result := engine.Validate("c0mpanyName", UserContext{})
	if !hasViolation(result, ViolationCommonPassword) {
		t.Fatal("extra dictionary entry not matched through normalization")
	}
}

func TestScoreMonotonicInLength(t *testing.T) {
	engine := newTestEngine(t)

	// Same class mix, growing length: score must never decrease.
	base := "aB3!"
	prev := -1
	for i := 2; i <= 20; i++ {
		pw := strings.Repeat(base, i)
		// Avoid the repeat penalty flipping between lengths: all of these
		// contain no 3-run, and identical class mix keeps penalties equal.
		result := engine.Validate(pw, UserContext{})
		if result.Score < prev {
			t.Fatalf("score decreased from %d to %d at length %d", prev, result.Score, len(pw))
		}
		prev = result.Score
	}
}

func TestStrengthLabels(t *testing.T) {
	cases := []struct {
		score int
		want  StrengthLabel
	}{
		{95, StrengthVeryStrong},
		{80, StrengthVeryStrong},
		{79, StrengthStrong},
		{60, StrengthStrong},
		{45, StrengthModerate},
		{25, StrengthWeak},
		{5, StrengthVeryWeak},
	}
	for _, tc := range cases {
		if got := labelFor(tc.score); got != tc.want {
			t.Errorf("labelFor(%d) = %s, want %s", tc.score, got, tc.want)
		}
	}
}

func TestCheckHistory(t *testing.T) {
	engine := newTestEngine(t)

	compare := func(password, encodedHash string) (bool, error) {
		return "h:"+password == encodedHash, nil
	}

	violation, err := engine.CheckHistory("NewOne!9Qz", []string{"h:OldOne!9Qz", "h:NewOne!9Qz"}, compare)
	if err != nil {
		t.Fatal(err)
	}
	if violation == nil || violation.Code != ViolationPasswordReused {
		t.Fatalf("expected reuse violation, got %v", violation)
	}

	violation, err = engine.CheckHistory("Fresh!9Qzw", []string{"h:OldOne!9Qz", ""}, compare)
	if err != nil {
		t.Fatal(err)
	}
	if violation != nil {
		t.Fatalf("unexpected violation %v", violation)
	}

	compareErr := errors.New("hasher unavailable")
	failing := func(password, encodedHash string) (bool, error) {
		return false, compareErr
	}
	violation, err = engine.CheckHistory("Fresh!9Qzw", []string{"h:OldOne!9Qz"}, failing)
	if !errors.Is(err, compareErr) {
		t.Fatalf("expected comparison error to propagate, got %v", err)
	}
	if violation != nil {
		t.Fatalf("unexpected violation %v", violation)
	}
}

func TestAgeChecks(t *testing.T) {
	engine := newTestEngine(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if d := engine.CanChangeNow(now.Add(-time.Hour), now); d.Allowed {
		t.Fatal("change allowed within minimum age window")
	}
	if d := engine.CanChangeNow(now.Add(-25*time.Hour), now); !d.Allowed {
		t.Fatalf("change rejected after minimum age: %s", d.Reason)
	}
	if d := engine.CanChangeNow(time.Time{}, now); !d.Allowed {
		t.Fatal("never-changed password must always allow change")
	}

	if engine.IsExpired(now.Add(-89*24*time.Hour), now) {
		t.Fatal("password expired one day early")
	}
	if !engine.IsExpired(now.Add(-91*24*time.Hour), now) {
		t.Fatal("password not expired past the maximum age")
	}

	adv := engine.ExpiryWarning(now.Add(-88*24*time.Hour), now)
	if !adv.Expiring {
		t.Fatal("expected expiry advisory inside warn window")
	}
	if adv.ExpiresIn <= 0 || adv.ExpiresIn > 7*24*time.Hour {
		t.Fatalf("advisory remaining out of range: %s", adv.ExpiresIn)
	}
	if adv := engine.ExpiryWarning(now.Add(-10*24*time.Hour), now); adv.Expiring {
		t.Fatal("advisory raised far from expiry")
	}
}

func TestSuggest(t *testing.T) {
	engine := newTestEngine(t)

	seen := map[string]bool{}
	for i := 0; i < 16; i++ {
		pw, err := engine.Suggest(16)
		if err != nil {
			t.Fatal(err)
		}
		if len(pw) != 16 {
			t.Fatalf("suggested length %d, want 16", len(pw))
		}
		if seen[pw] {
			t.Fatalf("duplicate suggestion %q", pw)
		}
		seen[pw] = true

		result := engine.Validate(pw, UserContext{})
		for _, v := range result.Violations {
			switch v.Code {
			case ViolationNoLowercase, ViolationNoUppercase, ViolationNoDigit, ViolationNoSpecial:
				t.Fatalf("suggestion %q missing a required class: %s", pw, v.Code)
			}
		}
	}
}
