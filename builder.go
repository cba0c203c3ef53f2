package authkit

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/opennotebook/authkit/credential"
	internalaudit "github.com/opennotebook/authkit/internal/audit"
	internalmetrics "github.com/opennotebook/authkit/internal/metrics"
	"github.com/opennotebook/authkit/internal/rate"
	"github.com/opennotebook/authkit/session"
	"github.com/opennotebook/authkit/token"
)

// Builder assembles an [Engine]. Construction is allocation-only until
// Build, which validates the configuration, connects to Redis, and
// preloads the rotation scripts so nothing is lazily initialized on the
// request path.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	userStore UserStore
	notifier  NotificationSender
	auditSink AuditSink

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

// WithConfig replaces the entire configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing sessions, single-use tokens, and
// the optional shared rate limiter.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserStore sets the user record store capability.
func (b *Builder) WithUserStore(store UserStore) *Builder {
	b.userStore = store
	return b
}

// WithNotificationSender sets the out-of-band token delivery capability.
// When unset, tokens are generated but not delivered, and each undelivered
// token is audited.
func (b *Builder) WithNotificationSender(sender NotificationSender) *Builder {
	b.notifier = sender
	return b
}

// WithAuditSink sets the destination for audit events.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// Build validates the configuration and assembles the engine. It pings
// Redis and loads the session Lua scripts up front; a Build that returns
// nil error means the engine is ready to serve traffic.
func (b *Builder) Build(ctx context.Context) (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.userStore == nil {
		return nil, errors.New("user store required")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	hasher, err := credential.NewHasher(cfg.Password.Hasher)
	if err != nil {
		return nil, err
	}

	codec, err := token.NewCodec(token.Config{
		AccessSecret:  cfg.Token.AccessSecret,
		RefreshSecret: cfg.Token.RefreshSecret,
		AccessTTL:     cfg.Token.AccessTTL,
		RefreshTTL:    cfg.Token.RefreshTTL,
		Issuer:        cfg.Token.Issuer,
		Leeway:        cfg.Token.Leeway,
	})
	if err != nil {
		return nil, err
	}

	// The decoy hash equalizes login timing for unknown accounts: a miss
	// still pays one argon2 verification against this hash.
	decoyPassword, err := credential.NewOpaqueToken()
	if err != nil {
		return nil, err
	}
	decoyHash, err := hasher.Hash(decoyPassword)
	if err != nil {
		return nil, err
	}

	sessions := session.NewStore(b.redis, cfg.KeyPrefix+"s")
	if _, err := sessions.Ping(ctx); err != nil {
		return nil, err
	}
	if err := sessions.LoadScripts(ctx); err != nil {
		return nil, err
	}

	var limiter rate.Limiter
	if cfg.RateLimit.Enabled {
		rules := map[string]rate.Rule{
			opLogin:    {Max: cfg.RateLimit.Login.MaxAttempts, Window: cfg.RateLimit.Login.Window},
			opRegister: {Max: cfg.RateLimit.Register.MaxAttempts, Window: cfg.RateLimit.Register.Window},
			opRefresh:  {Max: cfg.RateLimit.Refresh.MaxAttempts, Window: cfg.RateLimit.Refresh.Window},
		}
		if cfg.RateLimit.UseRedis {
			limiter = rate.NewRedisLimiter(b.redis, cfg.KeyPrefix+"r", rules)
		} else {
			limiter = rate.NewMemoryLimiter(rules)
		}
	}

	engine := &Engine{
		config:       cfg,
		userStore:    b.userStore,
		notifier:     b.notifier,
		hasher:       hasher,
		codec:        codec,
		sessions:     sessions,
		verifyTokens: newTokenStore(b.redis, cfg.KeyPrefix+"v"),
		resetTokens:  newTokenStore(b.redis, cfg.KeyPrefix+"p"),
		limiter:      limiter,
		decoyHash:    decoyHash,
		metrics:      internalmetrics.New(internalmetrics.Config{Enabled: cfg.Metrics.Enabled}),
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink),
	}

	b.built = true
	return engine, nil
}
