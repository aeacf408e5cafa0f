package authcore

import (
	"errors"
	"log"
	"runtime"

	"github.com/redis/go-redis/v9"

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

// Builder assembles a Service from its configuration and collaborators.
// Single-use; Build fails on a second call.
type Builder struct {
	config   Config
	redis    redis.UniversalClient
	store    CredentialStore
	sink     AuditSink
	notifier EmailNotifier
	warn     func(format string, args ...any)

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

// WithConfig replaces the builder's configuration with a clone of cfg.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing the session registry, the rate
// limiter, and the one-time token stores. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithCredentialStore sets the user persistence implementation. Required.
func (b *Builder) WithCredentialStore(store CredentialStore) *Builder {
	b.store = store
	return b
}

// WithAuditSink sets the destination for audit events. Defaults to a no-op
// sink.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.sink = sink
	return b
}

// WithEmailNotifier sets the out-of-band delivery channel for reset and
// verification tokens. Defaults to NoOpNotifier.
func (b *Builder) WithEmailNotifier(n EmailNotifier) *Builder {
	b.notifier = n
	return b
}

// WithWarnLogger sets the hook for infrastructure warnings the service
// swallows (notifier failures, best-effort Redis writes). Defaults to the
// stdlib logger.
func (b *Builder) WithWarnLogger(fn func(format string, args ...any)) *Builder {
	b.warn = fn
	return b
}

// Build validates the configuration and wires the service together.
func (b *Builder) Build() (*Service, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.store == nil {
		return nil, errors.New("credential store required")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tokens, err := token.NewManager(cfg.Token)
	if err != nil {
		return nil, err
	}

	hasher, err := password.NewArgon2(cfg.Password.Argon2)
	if err != nil {
		return nil, err
	}
	workers := cfg.Password.PoolWorkers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	pool := password.NewPool(hasher, workers)

	sink := b.sink
	if sink == nil {
		sink = audit.NoOpSink{}
	}
	warn := b.warn
	if warn == nil {
		warn = log.Printf
	}
	notifier := b.notifier
	if notifier == nil {
		notifier = NoOpNotifier{}
	}

	svc := &Service{
		config:   cfg,
		store:    b.store,
		policy:   policy.NewEngine(cfg.Policy),
		hasher:   pool,
		tokens:   tokens,
		sessions: session.NewRegistry(b.redis, cfg.Session.KeyPrefix),
		guard: guard.New(b.store, guard.Config{
			MaxAttempts:     cfg.Guard.MaxAttempts,
			LockoutDuration: cfg.Guard.LockoutDuration,
		}),
		limiter: rate.New(b.redis, rate.Config{
			EnableIPThrottle: cfg.RateLimit.EnableIPThrottle,
			MaxLoginAttempts: cfg.RateLimit.MaxLoginAttempts,
			LoginWindow:      cfg.RateLimit.LoginWindow,
			MaxResetRequests: cfg.RateLimit.MaxResetRequests,
			ResetWindow:      cfg.RateLimit.ResetWindow,
		}),
		onetime: stores.NewOneTimeTokenStore(b.redis, "ott"),
		audit: audit.NewDispatcher(audit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, sink),
		metrics:  metrics.New(metrics.Config{Enabled: cfg.Metrics.Enabled}),
		notifier: notifier,
		warn:     warn,
		now:      nil,
	}

	b.built = true
	return svc, nil
}
