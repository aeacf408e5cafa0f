package authcore

import (
	"context"
	"time"

	"github.com/cobaltcms/authcore/internal/audit"
	"github.com/cobaltcms/authcore/internal/guard"
	"github.com/cobaltcms/authcore/internal/metrics"
	"github.com/cobaltcms/authcore/internal/rate"
	"github.com/cobaltcms/authcore/internal/stores"
	"github.com/cobaltcms/authcore/password"
	"github.com/cobaltcms/authcore/policy"
	"github.com/cobaltcms/authcore/session"
	"github.com/cobaltcms/authcore/token"
)

// Service is the consolidated authentication surface: registration, login
// with lockout and rate limiting, token issuance and rotation, session
// management, and password lifecycle. Construct it through the Builder; all
// methods are safe for concurrent use.
type Service struct {
	config   Config
	store    CredentialStore
	policy   *policy.Engine
	hasher   *password.Pool
	tokens   *token.Manager
	sessions *session.Registry
	guard    *guard.Guard
	limiter  *rate.Limiter
	onetime  *stores.OneTimeTokenStore
	audit    *audit.Dispatcher
	metrics  *metrics.Metrics
	notifier EmailNotifier
	warn     func(format string, args ...any)

	// now overrides the clock in tests.
	now func() time.Time
}

func (s *Service) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// Policy exposes the password policy engine for read-only evaluation, e.g.
// client-side strength meters backed by the same rules.
func (s *Service) Policy() *policy.Engine {
	return s.policy
}

// VerifyAccessToken validates signature, expiry, issuer, and audience, and
// returns the decoded claims. Fails with ErrTokenExpired or ErrTokenInvalid.
// Access tokens are stateless: revocation takes effect at expiry, not
// before.
func (s *Service) VerifyAccessToken(tokenStr string) (*token.AccessClaims, error) {
	return s.tokens.VerifyAccess(tokenStr)
}

// RefreshTTL reports the configured refresh-token lifetime, e.g. for
// cookie expiry at the HTTP layer.
func (s *Service) RefreshTTL() time.Duration {
	return s.tokens.RefreshTTL()
}

// MetricsSnapshot returns a point-in-time copy of the counters. Zero-valued
// when metrics are disabled.
func (s *Service) MetricsSnapshot() metrics.Snapshot {
	return s.metrics.TakeSnapshot()
}

// AuditDropped reports how many audit events were discarded because the
// dispatch buffer was full.
func (s *Service) AuditDropped() uint64 {
	return s.audit.Dropped()
}

// Close drains and stops the audit dispatcher. The Redis client and
// credential store are owned by the caller and are not closed.
func (s *Service) Close() {
	s.audit.Close()
}

func (s *Service) emit(ctx context.Context, eventType, userID string, success bool, errMsg string, meta map[string]string) {
	s.audit.Emit(ctx, audit.Event{
		Timestamp: s.clock(),
		EventType: eventType,
		UserID:    userID,
		IP:        ClientIP(ctx),
		Success:   success,
		Error:     errMsg,
		Metadata:  meta,
	})
}

func (s *Service) inc(id metrics.MetricID) {
	s.metrics.Inc(id)
}

// notify runs fn and downgrades any error to a warning. Delivery problems
// must never fail or block the flow that triggered them.
func (s *Service) notify(what string, fn func() error) {
	if err := fn(); err != nil {
		s.warn("authcore: %s notification failed: %v", what, err)
	}
}
