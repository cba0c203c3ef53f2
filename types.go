package authkit

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/opennotebook/authkit/internal/audit"
	internalmetrics "github.com/opennotebook/authkit/internal/metrics"
)

// Provider tags on a [User]. A local account upgrades to a federated
// provider on first federated login; a federated account is never
// downgraded back to local.
const (
	ProviderLocal  = "local"
	ProviderGoogle = "google"
)

// Profile keys stored in [User.Profile].
const (
	ProfileName   = "name"
	ProfileAvatar = "avatar"
)

// User is the identity record owned by the caller's storage layer.
// PasswordHash is either empty (OAuth-only account) or a one-way argon2id
// hash; plaintext is never stored.
type User struct {
	ID              string
	Email           string
	PasswordHash    string
	Provider        string
	EmailVerified   bool
	EmailVerifiedAt *time.Time
	Profile         map[string]string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CreateUserInput is the input for [UserStore.Create]. Email arrives
// already normalized (lowercase, trimmed).
type CreateUserInput struct {
	Email           string
	PasswordHash    string
	Provider        string
	EmailVerified   bool
	EmailVerifiedAt *time.Time
	Profile         map[string]string
}

// UserMerge is a partial update applied by [UserStore.Merge]. Nil pointer
// fields are left untouched; Profile entries are merged key by key.
type UserMerge struct {
	Provider        *string
	PasswordHash    *string
	EmailVerified   *bool
	EmailVerifiedAt *time.Time
	Profile         map[string]string
}

// UserStore is the record-store capability over the caller's user
// collection. Create must enforce email uniqueness and return
// [ErrEmailTaken] on conflict; lookups return [ErrUserNotFound] on miss.
type UserStore interface {
	Create(ctx context.Context, input CreateUserInput) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	Merge(ctx context.Context, id string, merge UserMerge) (*User, error)
}

// NotificationSender delivers raw single-use tokens out of band.
// Fire-and-forget: the engine absorbs and audits failures, never surfaces
// them, so user-facing flows stay resilient to mail outages and cannot
// leak account existence.
type NotificationSender interface {
	SendVerification(ctx context.Context, email, rawToken string) error
	SendReset(ctx context.Context, email, rawToken string) error
}

// VerifiedProfile is the outcome of a completed external OAuth handshake:
// an email the provider has verified, plus display metadata.
type VerifiedProfile struct {
	Provider  string
	Email     string
	Name      string
	AvatarURL string
}

// IdentityProvider completes an external OAuth handshake. Implementations
// must wrap invalid_grant-class failures with [ErrInvalidGrant] so the
// caller can redirect for retry instead of surfacing a hard failure.
type IdentityProvider interface {
	AuthURL(state string) string
	Complete(ctx context.Context, code string) (*VerifiedProfile, error)
}

// AuthResult is returned by [Engine.Login], [Engine.Refresh], and
// [Engine.CompleteOAuthLogin]. The credentials are opaque strings for the
// transport layer to place as it sees fit.
type AuthResult struct {
	User         *User
	AccessToken  string
	RefreshToken string
}

// RegisterRequest is the input for [Engine.Register]. IP, when present,
// keys the registration rate limit.
type RegisterRequest struct {
	Email       string
	Password    string
	DisplayName string
	IP          string
}

// RegisteredUser is returned by [Engine.Register].
type RegisteredUser struct {
	ID    string
	Email string
}

// AccessIdentity is the verified claim set of an access credential.
type AccessIdentity struct {
	UserID string
	Email  string
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// MetricID identifies a specific counter in the in-process metrics system.
type MetricID = internalmetrics.MetricID

const (
	MetricLoginSuccess             = internalmetrics.MetricLoginSuccess
	MetricLoginFailure             = internalmetrics.MetricLoginFailure
	MetricLoginRateLimited         = internalmetrics.MetricLoginRateLimited
	MetricRefreshSuccess           = internalmetrics.MetricRefreshSuccess
	MetricRefreshFailure           = internalmetrics.MetricRefreshFailure
	MetricRefreshReuseDetected     = internalmetrics.MetricRefreshReuseDetected
	MetricRefreshRateLimited       = internalmetrics.MetricRefreshRateLimited
	MetricLogout                   = internalmetrics.MetricLogout
	MetricRegisterSuccess          = internalmetrics.MetricRegisterSuccess
	MetricRegisterConflict         = internalmetrics.MetricRegisterConflict
	MetricRegisterRateLimited      = internalmetrics.MetricRegisterRateLimited
	MetricEmailVerificationRequest = internalmetrics.MetricEmailVerificationRequest
	MetricEmailVerificationSuccess = internalmetrics.MetricEmailVerificationSuccess
	MetricEmailVerificationFailure = internalmetrics.MetricEmailVerificationFailure
	MetricPasswordResetRequest     = internalmetrics.MetricPasswordResetRequest
	MetricPasswordResetSuccess     = internalmetrics.MetricPasswordResetSuccess
	MetricPasswordResetFailure     = internalmetrics.MetricPasswordResetFailure
	MetricPasswordChangeSuccess    = internalmetrics.MetricPasswordChangeSuccess
	MetricPasswordChangeFailure    = internalmetrics.MetricPasswordChangeFailure
	MetricOAuthLoginSuccess        = internalmetrics.MetricOAuthLoginSuccess
	MetricOAuthLoginLinked         = internalmetrics.MetricOAuthLoginLinked
	MetricNotificationFailure      = internalmetrics.MetricNotificationFailure
	MetricSessionCreated           = internalmetrics.MetricSessionCreated
	MetricSessionRevoked           = internalmetrics.MetricSessionRevoked
)

// Metrics holds the engine's atomic counters.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time deep copy of all metrics.
type MetricsSnapshot = internalmetrics.Snapshot
