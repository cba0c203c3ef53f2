package authkit

import (
	"bytes"
	"errors"
	"time"

	"github.com/opennotebook/authkit/credential"
)

// TokenConfig holds signing material and lifetimes for the two credential
// kinds. The secrets must be distinct so a leaked access credential can
// never be replayed as a refresh credential.
type TokenConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Leeway        time.Duration
}

// PasswordConfig holds the hashing parameters and policy.
type PasswordConfig struct {
	MinLength int
	Hasher    credential.HasherConfig
}

// RateRule is the attempt budget of one operation within a fixed window.
type RateRule struct {
	MaxAttempts int
	Window      time.Duration
}

// RateLimitConfig guards the credential-issuing entry points. The default
// limiter is process-local; set UseRedis for shared counters when running
// more than one service instance.
type RateLimitConfig struct {
	Enabled  bool
	UseRedis bool
	Login    RateRule
	Register RateRule
	Refresh  RateRule
}

// VerificationConfig controls email verification tokens.
type VerificationConfig struct {
	Enabled  bool
	TokenTTL time.Duration
}

// ResetConfig controls password reset tokens.
type ResetConfig struct {
	TokenTTL time.Duration
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process metric collection.
type MetricsConfig struct {
	Enabled bool
}

// SessionConfig controls server-side session retention. Retention extends
// a session's Redis TTL past the refresh lifetime so revoked records stay
// readable for audit.
type SessionConfig struct {
	Retention time.Duration
}

// Config is the full engine configuration. Construct with defaults via
// [DefaultConfig], override fields, and pass to [Builder.WithConfig];
// Build validates it once and treats it as immutable afterwards.
type Config struct {
	Token        TokenConfig
	Password     PasswordConfig
	RateLimit    RateLimitConfig
	Verification VerificationConfig
	Reset        ResetConfig
	Session      SessionConfig
	Audit        AuditConfig
	Metrics      MetricsConfig

	// KeyPrefix namespaces every Redis key the engine writes.
	KeyPrefix string
}

// DefaultConfig returns the production defaults. Token secrets must still
// be supplied by the operator.
func DefaultConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 30 * 24 * time.Hour,
			Leeway:     30 * time.Second,
		},
		Password: PasswordConfig{
			MinLength: 8,
			Hasher:    credential.DefaultHasherConfig(),
		},
		RateLimit: RateLimitConfig{
			Enabled:  true,
			Login:    RateRule{MaxAttempts: 10, Window: 15 * time.Minute},
			Register: RateRule{MaxAttempts: 5, Window: time.Hour},
			Refresh:  RateRule{MaxAttempts: 30, Window: time.Minute},
		},
		Verification: VerificationConfig{
			Enabled:  true,
			TokenTTL: 24 * time.Hour,
		},
		Reset: ResetConfig{
			TokenTTL: time.Hour,
		},
		Session: SessionConfig{
			Retention: 24 * time.Hour,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		KeyPrefix: "ak",
	}
}

const minSecretLength = 32

// Validate checks the configuration for unsafe or inconsistent values.
// Called once from [Builder.Build].
func (c *Config) Validate() error {
	if len(c.Token.AccessSecret) < minSecretLength {
		return errors.New("access secret must be at least 32 bytes")
	}
	if len(c.Token.RefreshSecret) < minSecretLength {
		return errors.New("refresh secret must be at least 32 bytes")
	}
	if bytes.Equal(c.Token.AccessSecret, c.Token.RefreshSecret) {
		return errors.New("access and refresh secrets must be distinct")
	}
	if c.Token.AccessTTL <= 0 || c.Token.RefreshTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}
	if c.Token.AccessTTL >= c.Token.RefreshTTL {
		return errors.New("access TTL must be shorter than refresh TTL")
	}
	if c.Password.MinLength < 8 {
		return errors.New("password minimum length must be at least 8")
	}
	if c.Verification.Enabled && c.Verification.TokenTTL <= 0 {
		return errors.New("verification token TTL must be positive")
	}
	if c.Reset.TokenTTL <= 0 {
		return errors.New("reset token TTL must be positive")
	}
	if c.Session.Retention < 0 {
		return errors.New("session retention must not be negative")
	}
	if c.KeyPrefix == "" {
		return errors.New("key prefix required")
	}
	return nil
}

func cloneConfig(c Config) Config {
	out := c
	out.Token.AccessSecret = append([]byte(nil), c.Token.AccessSecret...)
	out.Token.RefreshSecret = append([]byte(nil), c.Token.RefreshSecret...)
	return out
}
