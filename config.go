package authcore

import (
	"errors"
	"fmt"
	"time"

	"github.com/cobaltcms/authcore/password"
	"github.com/cobaltcms/authcore/policy"
	"github.com/cobaltcms/authcore/token"
)

// Config aggregates every tunable of the service. Obtain a baseline with
// DefaultConfig, override fields, and hand it to the Builder. The builder
// clones the config; later mutation by the caller has no effect.
type Config struct {
	Token        token.Config
	Password     PasswordConfig
	Policy       policy.Config
	Guard        GuardConfig
	RateLimit    RateLimitConfig
	Reset        ResetConfig
	Verification VerificationConfig
	Session      SessionConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
}

// PasswordConfig tunes hashing parameters and the bounded worker pool that
// keeps argon2 bursts from starving the scheduler.
type PasswordConfig struct {
	Argon2 password.Config
	// PoolWorkers caps concurrent hash/verify operations. Zero means
	// GOMAXPROCS.
	PoolWorkers int
	// UpgradeOnLogin transparently re-hashes on successful login when the
	// stored hash was produced with weaker parameters.
	UpgradeOnLogin bool
}

// GuardConfig tunes the account-lockout state machine.
type GuardConfig struct {
	MaxAttempts     int
	LockoutDuration time.Duration
	// RevealAttemptsLeft includes an attempts-remaining hint in failed
	// login errors. Off by default; the hint aids attackers profiling the
	// threshold.
	RevealAttemptsLeft bool
}

// RateLimitConfig tunes the coarse fixed-window limiter layered outside the
// account lockout. The two are complementary; the limiter also charges
// attempts against identifiers that resolve to no account.
type RateLimitConfig struct {
	EnableIPThrottle bool
	MaxLoginAttempts int
	LoginWindow      time.Duration
	MaxResetRequests int
	ResetWindow      time.Duration
}

// ResetConfig tunes password-reset tokens.
type ResetConfig struct {
	TokenTTL    time.Duration
	MaxAttempts int
}

// VerificationConfig tunes email-verification tokens.
type VerificationConfig struct {
	TokenTTL    time.Duration
	MaxAttempts int
	// RequireForLogin rejects logins from accounts that have not verified
	// their email address.
	RequireForLogin bool
}

// SessionConfig tunes the Redis session registry.
type SessionConfig struct {
	// KeyPrefix namespaces every registry key. Defaults to "sr".
	KeyPrefix string
}

// AuditConfig tunes the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull drops events instead of blocking when the buffer is full.
	// Dropped events are counted and retrievable via AuditDropped.
	DropIfFull bool
}

// MetricsConfig toggles in-process counters.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig returns the baseline configuration. Signing keys are empty
// and must be supplied by the caller; Validate rejects a config without
// them.
func DefaultConfig() Config {
	return Config{
		Token: token.Config{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: token.MethodHS256,
			Issuer:        "authcore",
			Audience:      "authcore",
			Leeway:        30 * time.Second,
		},
		Password: PasswordConfig{
			Argon2: password.Config{
				Memory:      64 * 1024,
				Time:        3,
				Parallelism: 2,
				SaltLength:  16,
				KeyLength:   32,
			},
			UpgradeOnLogin: true,
		},
		Policy: policy.Config{
			MinLength:        8,
			MaxLength:        128,
			HistorySize:      5,
			MinPasswordAge:   24 * time.Hour,
			MaxPasswordAge:   90 * 24 * time.Hour,
			ExpiryWarnWindow: 7 * 24 * time.Hour,
		},
		Guard: GuardConfig{
			MaxAttempts:     5,
			LockoutDuration: 15 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			EnableIPThrottle: true,
			MaxLoginAttempts: 5,
			LoginWindow:      15 * time.Minute,
			MaxResetRequests: 3,
			ResetWindow:      time.Hour,
		},
		Reset: ResetConfig{
			TokenTTL:    time.Hour,
			MaxAttempts: 5,
		},
		Verification: VerificationConfig{
			TokenTTL:    24 * time.Hour,
			MaxAttempts: 5,
		},
		Session: SessionConfig{
			KeyPrefix: "sr",
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate checks cross-field consistency. Token key material is validated
// in depth by the token manager at build time; this catches the structural
// mistakes early.
func (c *Config) Validate() error {
	if c.Token.AccessTTL <= 0 || c.Token.RefreshTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}
	if c.Token.RefreshTTL <= c.Token.AccessTTL {
		return errors.New("refresh TTL must exceed access TTL")
	}
	if len(c.Token.AccessKey) == 0 {
		return errors.New("token access key required")
	}
	if len(c.Token.RefreshKey) == 0 {
		return errors.New("token refresh key required")
	}
	if c.Guard.MaxAttempts < 1 {
		return errors.New("guard max attempts must be at least 1")
	}
	if c.Guard.LockoutDuration <= 0 {
		return errors.New("guard lockout duration must be positive")
	}
	if c.RateLimit.MaxLoginAttempts < 1 || c.RateLimit.LoginWindow <= 0 {
		return errors.New("login rate limit window misconfigured")
	}
	if c.RateLimit.MaxResetRequests < 1 || c.RateLimit.ResetWindow <= 0 {
		return errors.New("reset rate limit window misconfigured")
	}
	if c.Reset.TokenTTL <= 0 || c.Reset.MaxAttempts < 1 {
		return errors.New("reset token settings misconfigured")
	}
	if c.Verification.TokenTTL <= 0 || c.Verification.MaxAttempts < 1 {
		return errors.New("verification token settings misconfigured")
	}
	if c.Policy.MinLength > 0 && c.Policy.MaxLength > 0 && c.Policy.MinLength > c.Policy.MaxLength {
		return fmt.Errorf("policy min length %d exceeds max length %d", c.Policy.MinLength, c.Policy.MaxLength)
	}
	if c.Audit.Enabled && c.Audit.BufferSize < 1 {
		return errors.New("audit buffer size must be at least 1 when auditing is enabled")
	}
	return nil
}

// cloneConfig deep-copies the slices and key material so a caller mutating
// its copy after Build cannot reach into the running service.
func cloneConfig(c Config) Config {
	out := c
	out.Token.AccessKey = append([]byte(nil), c.Token.AccessKey...)
	out.Token.AccessPublicKey = append([]byte(nil), c.Token.AccessPublicKey...)
	out.Token.RefreshKey = append([]byte(nil), c.Token.RefreshKey...)
	out.Policy.ExtraCommonPasswords = append([]string(nil), c.Policy.ExtraCommonPasswords...)
	return out
}
