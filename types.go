package authcore

import (
	"context"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/cobaltcms/authcore/internal/audit"
	"github.com/cobaltcms/authcore/internal/guard"
)

// Role is the coarse authorization tier carried as an access-token claim.
// The module does not interpret roles beyond validating the enum.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleAuthor Role = "author"
	RoleViewer Role = "viewer"
)

// Valid reports whether r is one of the defined roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleEditor, RoleAuthor, RoleViewer:
		return true
	}
	return false
}

// User is the identity record exchanged with the CredentialStore. The store
// owns durable persistence; the service owns every rule applied to it.
type User struct {
	ID            string
	Email         string
	Username      string
	FirstName     string
	LastName      string
	PasswordHash  string
	Role          Role
	Active        bool
	EmailVerified bool

	FailedLoginCount  int
	LockedUntil       time.Time
	LastLoginAt       time.Time
	PasswordChangedAt time.Time

	// PasswordHistory holds up to the retention limit of prior hashes,
	// most recent first. Managed by CredentialStore.UpdatePassword.
	PasswordHistory []string
}

// PublicUser is the JSON-safe projection of a User. It never carries hash
// material or lockout counters.
type PublicUser struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Username      string    `json:"username,omitempty"`
	FirstName     string    `json:"firstName,omitempty"`
	LastName      string    `json:"lastName,omitempty"`
	Role          Role      `json:"role"`
	EmailVerified bool      `json:"emailVerified"`
	LastLoginAt   time.Time `json:"lastLoginAt,omitzero"`
}

// Public returns the JSON-safe projection of u.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:            u.ID,
		Email:         u.Email,
		Username:      u.Username,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		Role:          u.Role,
		EmailVerified: u.EmailVerified,
		LastLoginAt:   u.LastLoginAt,
	}
}

// LockoutState mirrors the counters returned by an atomic failed-login
// update: the post-increment count and, when the threshold was reached, the
// lockout deadline.
type LockoutState = guard.LockoutState

// CredentialStore is the persistence interface the host application must
// implement. The service is the sole caller; the store is the sole mutator
// of durable user state.
//
// RecordLoginFailure must be a single atomic read-modify-write: clear an
// expired lock, increment the counter, and set LockedUntil when the counter
// reaches threshold. A naive read-then-write sequence under-counts under
// concurrent attempts and lets an attacker slip past the lockout.
//
// Lookups return ErrUserNotFound when no record matches; CreateUser returns
// ErrUserExists on a duplicate email or username (case-insensitive email).
type CredentialStore interface {
	CreateUser(ctx context.Context, user *User) error
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	RecordLoginFailure(ctx context.Context, userID string, threshold int, lockout time.Duration) (LockoutState, error)
	ResetLoginFailures(ctx context.Context, userID string) error
	RecordLogin(ctx context.Context, userID string, at time.Time) error

	// UpdatePassword rotates the credential: it pushes the previous hash
	// onto the history (evicting beyond historyLimit), sets the new hash,
	// and stamps changedAt.
	UpdatePassword(ctx context.Context, userID, newHash string, changedAt time.Time, historyLimit int) error
	// UpdatePasswordHash replaces the hash in place without touching
	// history or the change timestamp. Used for transparent parameter
	// upgrades on login.
	UpdatePasswordHash(ctx context.Context, userID, newHash string) error
	PasswordHistory(ctx context.Context, userID string) ([]string, error)

	SetEmailVerified(ctx context.Context, userID string) error
}

// EmailNotifier delivers out-of-band secrets. Failures are logged through
// the warn hook and never block or fail the originating flow.
type EmailNotifier interface {
	SendPasswordReset(ctx context.Context, email, tokenValue string) error
	SendEmailVerification(ctx context.Context, email, tokenValue string) error
}

// NoOpNotifier discards every notification. The default when no notifier is
// injected.
type NoOpNotifier struct{}

func (NoOpNotifier) SendPasswordReset(context.Context, string, string) error      { return nil }
func (NoOpNotifier) SendEmailVerification(context.Context, string, string) error { return nil }

// AuditEvent is the record handed to audit sinks.
type AuditEvent = audit.Event

// AuditSink receives audit events through the async dispatcher.
// Implementations must be safe for concurrent use.
type AuditSink = audit.Sink

// NewZerologAuditSink adapts a zerolog logger into an AuditSink. Failures
// log at warn level, successes at info.
func NewZerologAuditSink(logger zerolog.Logger) AuditSink {
	return audit.NewZerologSink(logger)
}

// NewJSONAuditSink writes one JSON object per event to w.
func NewJSONAuditSink(w io.Writer) AuditSink {
	return audit.NewJSONWriterSink(w)
}

// TokenPair is the credential pair returned by registration, login, and
// refresh.
type TokenPair struct {
	AccessToken     string    `json:"accessToken"`
	RefreshToken    string    `json:"refreshToken"`
	AccessExpiresAt time.Time `json:"accessExpiresAt"`
}

// RegisterInput carries the fields accepted at registration. Role defaults
// to RoleViewer when empty.
type RegisterInput struct {
	Email     string
	Username  string
	Password  string
	FirstName string
	LastName  string
	Role      Role
}

// AuthResult is returned by Register, Login, and Refresh. PasswordExpiring
// is a non-blocking advisory raised inside the pre-expiry warning window.
type AuthResult struct {
	User      *User
	Tokens    TokenPair
	SessionID string

	PasswordExpiring  bool
	PasswordExpiresIn time.Duration
}
