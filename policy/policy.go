package policy

import (
	"strings"
	"time"
)

// ViolationCode identifies one failed policy rule.
type ViolationCode string

const (
	ViolationTooShort        ViolationCode = "too_short"
	ViolationTooLong         ViolationCode = "too_long"
	ViolationNoLowercase     ViolationCode = "no_lowercase"
	ViolationNoUppercase     ViolationCode = "no_uppercase"
	ViolationNoDigit         ViolationCode = "no_digit"
	ViolationNoSpecial       ViolationCode = "no_special"
	ViolationSequential      ViolationCode = "sequential_characters"
	ViolationRepeated        ViolationCode = "repeated_characters"
	ViolationCommonPassword  ViolationCode = "common_password"
	ViolationContainsUser    ViolationCode = "contains_user_info"
	ViolationPasswordReused  ViolationCode = "password_reused"
)

// Violation pairs a machine-readable code with a human-readable message.
type Violation struct {
	Code    ViolationCode `json:"code"`
	Message string        `json:"message"`
}

// StrengthLabel buckets the advisory score.
type StrengthLabel string

const (
	StrengthVeryWeak   StrengthLabel = "Very Weak"
	StrengthWeak       StrengthLabel = "Weak"
	StrengthModerate   StrengthLabel = "Moderate"
	StrengthStrong     StrengthLabel = "Strong"
	StrengthVeryStrong StrengthLabel = "Very Strong"
)

// ValidationResult is the outcome of a policy evaluation.
type ValidationResult struct {
	Valid      bool          `json:"valid"`
	Violations []Violation   `json:"violations,omitempty"`
	Score      int           `json:"score"`
	Strength   StrengthLabel `json:"strength"`
}

// UserContext carries the identity fields a password must not overlap with.
// Fields shorter than three characters are ignored.
type UserContext struct {
	FirstName string
	LastName  string
	Username  string
	Email     string
}

// SpecialCharacters is the accepted symbol set for the composition rule.
const SpecialCharacters = "!@#$%^&*()_+-=[]{}|;:'\",.<>?/~`\\"

// Config holds the policy knobs. Zero values fall back to the defaults
// applied by NewEngine.
type Config struct {
	MinLength        int
	MaxLength        int
	HistorySize      int
	MinPasswordAge   time.Duration
	MaxPasswordAge   time.Duration
	ExpiryWarnWindow time.Duration

	// ExtraCommonPasswords extends the built-in dictionary. Entries are
	// matched case-insensitively after leet-speak normalization.
	ExtraCommonPasswords []string
}

// Engine evaluates passwords against the configured policy. Immutable after
// construction; safe for concurrent use.
type Engine struct {
	config Config
	common map[string]struct{}
}

// NewEngine builds an engine, filling config defaults and indexing the
// common-password dictionary.
func NewEngine(cfg Config) *Engine {
	if cfg.MinLength <= 0 {
		cfg.MinLength = 8
	}
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = 128
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 5
	}
	if cfg.MinPasswordAge <= 0 {
		cfg.MinPasswordAge = 24 * time.Hour
	}
	if cfg.MaxPasswordAge <= 0 {
		cfg.MaxPasswordAge = 90 * 24 * time.Hour
	}
	if cfg.ExpiryWarnWindow <= 0 {
		cfg.ExpiryWarnWindow = 7 * 24 * time.Hour
	}

	common := make(map[string]struct{}, len(commonPasswords)+len(cfg.ExtraCommonPasswords))
	for _, p := range commonPasswords {
		common[normalizeLeet(strings.ToLower(p))] = struct{}{}
	}
	for _, p := range cfg.ExtraCommonPasswords {
		common[normalizeLeet(strings.ToLower(p))] = struct{}{}
	}

	return &Engine{
		config: cfg,
		common: common,
	}
}

// Config returns the effective configuration after defaulting.
func (e *Engine) Config() Config {
	return e.config
}

// HistorySize returns the retention count for prior password hashes.
func (e *Engine) HistorySize() int {
	return e.config.HistorySize
}

// Validate evaluates password against every composition rule and computes
// the advisory strength score. The violations list alone decides validity.
func (e *Engine) Validate(password string, user UserContext) ValidationResult {
	var violations []Violation

	length := len([]rune(password))
	if length < e.config.MinLength {
		violations = append(violations, Violation{
			Code:    ViolationTooShort,
			Message: "password is too short",
		})
	}
	if length > e.config.MaxLength {
		violations = append(violations, Violation{
			Code:    ViolationTooLong,
			Message: "password is too long",
		})
	}

	classes := classifyCharacters(password)
	if !classes.lower {
		violations = append(violations, Violation{
			Code:    ViolationNoLowercase,
			Message: "password must contain a lowercase letter",
		})
	}
	if !classes.upper {
		violations = append(violations, Violation{
			Code:    ViolationNoUppercase,
			Message: "password must contain an uppercase letter",
		})
	}
	if !classes.digit {
		violations = append(violations, Violation{
			Code:    ViolationNoDigit,
			Message: "password must contain a digit",
		})
	}
	if !classes.special {
		violations = append(violations, Violation{
			Code:    ViolationNoSpecial,
			Message: "password must contain a special character",
		})
	}

	sequential := hasSequentialRun(password, 3)
	if sequential {
		violations = append(violations, Violation{
			Code:    ViolationSequential,
			Message: "password contains a sequential character run",
		})
	}

	repeated := hasRepeatedRun(password, 3)
	if repeated {
		violations = append(violations, Violation{
			Code:    ViolationRepeated,
			Message: "password contains repeated characters",
		})
	}

	common := e.isCommon(password)
	if common {
		violations = append(violations, Violation{
			Code:    ViolationCommonPassword,
			Message: "password is too common",
		})
	}

	if overlapsUserContext(password, user) {
		violations = append(violations, Violation{
			Code:    ViolationContainsUser,
			Message: "password must not contain account information",
		})
	}

	score := e.score(password, classes, scorePenalties{
		sequential: sequential,
		repeated:   repeated,
		common:     common,
	})

	return ValidationResult{
		Valid:      len(violations) == 0,
		Violations: violations,
		Score:      score,
		Strength:   labelFor(score),
	}
}

// CompareFunc is the hash-comparison primitive used for history checks,
// typically the same argon2 verify used at login.
type CompareFunc func(password, encodedHash string) (bool, error)

// CheckHistory compares candidate against each retained prior hash. A match
// yields the password_reused violation. Any error from the comparison
// primitive aborts the check and propagates; treating an uncheckable hash
// as a non-match would let a recent password slip through.
func (e *Engine) CheckHistory(candidate string, priorHashes []string, compare CompareFunc) (*Violation, error) {
	for _, hash := range priorHashes {
		if hash == "" {
			continue
		}
		match, err := compare(candidate, hash)
		if err != nil {
			return nil, err
		}
		if match {
			return &Violation{
				Code:    ViolationPasswordReused,
				Message: "password was used recently",
			}, nil
		}
	}
	return nil, nil
}

func (e *Engine) isCommon(password string) bool {
	normalized := normalizeLeet(strings.ToLower(password))
	_, found := e.common[normalized]
	if found {
		return true
	}
	// The raw lowercase form may differ from the leet-normalized one when
	// the password mixes substitutions with literal letters.
	_, found = e.common[strings.ToLower(password)]
	return found
}

// normalizeLeet folds the simple substitution alphabet attackers use to
// sneak dictionary words past composition rules.
func normalizeLeet(lower string) string {
	var b strings.Builder
	b.Grow(len(lower))
	for _, r := range lower {
		switch r {
		case '0':
			b.WriteRune('o')
		case '3':
			b.WriteRune('e')
		case '1', '!':
			b.WriteRune('i')
		case '5', '$':
			b.WriteRune('s')
		case '7':
			b.WriteRune('t')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func overlapsUserContext(password string, user UserContext) bool {
	lowered := strings.ToLower(password)

	fields := []string{
		user.FirstName,
		user.LastName,
		user.Username,
		emailLocalPart(user.Email),
	}

	for _, field := range fields {
		f := strings.ToLower(strings.TrimSpace(field))
		if len(f) < 3 {
			continue
		}
		if strings.Contains(lowered, f) || strings.Contains(f, lowered) {
			return true
		}
	}
	return false
}

func emailLocalPart(email string) string {
	at := strings.IndexByte(email, '@')
	if at <= 0 {
		return ""
	}
	return email[:at]
}

func labelFor(score int) StrengthLabel {
	switch {
	case score >= 80:
		return StrengthVeryStrong
	case score >= 60:
		return StrengthStrong
	case score >= 40:
		return StrengthModerate
	case score >= 20:
		return StrengthWeak
	default:
		return StrengthVeryWeak
	}
}
