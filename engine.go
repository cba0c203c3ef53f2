package authkit

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/opennotebook/authkit/credential"
	internalaudit "github.com/opennotebook/authkit/internal/audit"
	internalmetrics "github.com/opennotebook/authkit/internal/metrics"
	"github.com/opennotebook/authkit/internal/rate"
	"github.com/opennotebook/authkit/internal/stores"
	"github.com/opennotebook/authkit/session"
	"github.com/opennotebook/authkit/token"
)

const (
	opLogin    = "login"
	opRegister = "register"
	opRefresh  = "refresh"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Engine is the authentication engine. Safe for concurrent use after
// [Builder.Build]; all request-scoped state lives in arguments and the
// storage layer.
type Engine struct {
	config    Config
	userStore UserStore
	notifier  NotificationSender

	hasher       *credential.Hasher
	codec        *token.Codec
	sessions     *session.Store
	verifyTokens *stores.TokenStore
	resetTokens  *stores.TokenStore
	limiter      rate.Limiter
	decoyHash    string

	metrics *internalmetrics.Metrics
	audit   *internalaudit.Dispatcher
}

func newTokenStore(client redis.UniversalClient, prefix string) *stores.TokenStore {
	return stores.NewTokenStore(client, prefix)
}

// Login verifies the email/password pair and, on success, mints a new
// session and returns the user with a fresh access/refresh credential
// pair. Every failure mode returns [ErrInvalidCredentials]; which
// precondition failed is never revealed.
func (e *Engine) Login(ctx context.Context, email, password, ip, userAgent string) (*AuthResult, error) {
	if e.userStore == nil {
		return nil, ErrEngineNotReady
	}

	email = normalizeEmail(email)
	if err := e.allow(ctx, opLogin, clientKey(ip, email)); err != nil {
		e.metricInc(MetricLoginRateLimited)
		e.emitAudit(ctx, auditLogin, false, "", "", ip, ErrRateLimited, nil)
		return nil, ErrRateLimited
	}

	user, err := e.userStore.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			return nil, storeErr(err)
		}
		// Unknown account pays the same verification cost as a real one.
		_, _ = e.hasher.Verify(password, e.decoyHash)
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditLogin, false, "", "", ip, ErrInvalidCredentials, nil)
		return nil, ErrInvalidCredentials
	}

	if user.PasswordHash == "" {
		_, _ = e.hasher.Verify(password, e.decoyHash)
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditLogin, false, user.ID, "", ip, ErrInvalidCredentials, nil)
		return nil, ErrInvalidCredentials
	}

	ok, err := e.hasher.Verify(password, user.PasswordHash)
	if err != nil || !ok {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditLogin, false, user.ID, "", ip, ErrInvalidCredentials, nil)
		return nil, ErrInvalidCredentials
	}

	access, refresh, jti, err := e.issueSession(ctx, user, ip, userAgent)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditLogin, true, user.ID, jti, ip, nil, nil)

	return &AuthResult{User: user, AccessToken: access, RefreshToken: refresh}, nil
}

// Refresh rotates a refresh credential: the presented credential is
// verified, its session atomically revoked, and a brand-new session with
// fresh credentials issued. A credential that has already been rotated
// fails the stored-hash comparison — the replay signal — and is rejected.
// All failures return [ErrInvalidRefresh].
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	if e.userStore == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.codec.VerifyRefresh(refreshToken)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditRefresh, false, "", "", "", ErrInvalidRefresh, nil)
		return nil, ErrInvalidRefresh
	}

	if err := e.allow(ctx, opRefresh, claims.ID); err != nil {
		e.metricInc(MetricRefreshRateLimited)
		e.emitAudit(ctx, auditRefresh, false, claims.Subject, claims.ID, "", ErrRateLimited, nil)
		return nil, ErrRateLimited
	}

	old, err := e.sessions.RevokeIfCurrent(ctx, claims.ID, credential.Digest(refreshToken))
	if err != nil {
		switch {
		case errors.Is(err, session.ErrRefreshHashMismatch):
			e.metricInc(MetricRefreshReuseDetected)
			e.emitAudit(ctx, auditRefresh, false, claims.Subject, claims.ID, "", ErrInvalidRefresh, func() map[string]string {
				return map[string]string{"reason": "replay_detected"}
			})
		case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, session.ErrSessionRevoked):
			e.metricInc(MetricRefreshFailure)
			e.emitAudit(ctx, auditRefresh, false, claims.Subject, claims.ID, "", ErrInvalidRefresh, nil)
		default:
			return nil, storeErr(err)
		}
		return nil, ErrInvalidRefresh
	}
	e.metricInc(MetricSessionRevoked)

	if old.UserID != claims.Subject {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditRefresh, false, claims.Subject, claims.ID, "", ErrInvalidRefresh, func() map[string]string {
			return map[string]string{"reason": "subject_mismatch"}
		})
		return nil, ErrInvalidRefresh
	}

	user, err := e.userStore.GetByID(ctx, old.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.metricInc(MetricRefreshFailure)
			e.emitAudit(ctx, auditRefresh, false, old.UserID, claims.ID, "", ErrInvalidRefresh, nil)
			return nil, ErrInvalidRefresh
		}
		return nil, storeErr(err)
	}

	// The new session preserves the original client provenance.
	access, refresh, jti, err := e.issueSession(ctx, user, old.IP, old.UserAgent)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditRefresh, true, user.ID, jti, old.IP, nil, func() map[string]string {
		return map[string]string{"rotated_from": claims.ID}
	})

	return &AuthResult{User: user, AccessToken: access, RefreshToken: refresh}, nil
}

// Logout revokes the session identified by the presented refresh
// credential, preventing reuse after logout. An invalid or expired
// credential is not an error: the client clears its copies either way.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	claims, err := e.codec.VerifyRefresh(refreshToken)
	if err != nil {
		return nil
	}

	if err := e.sessions.Revoke(ctx, claims.ID); err != nil {
		return storeErr(err)
	}

	e.metricInc(MetricLogout)
	e.metricInc(MetricSessionRevoked)
	e.emitAudit(ctx, auditLogout, true, claims.Subject, claims.ID, "", nil, nil)
	return nil
}

// ValidateAccess verifies an access credential and returns its identity.
func (e *Engine) ValidateAccess(_ context.Context, accessToken string) (*AccessIdentity, error) {
	claims, err := e.codec.VerifyAccess(accessToken)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	return &AccessIdentity{UserID: claims.Subject, Email: claims.Email}, nil
}

// RequireVerifiedAccess verifies an access credential and additionally
// requires the account's email to be verified. Routes gated on verified
// email use this instead of [Engine.ValidateAccess].
func (e *Engine) RequireVerifiedAccess(ctx context.Context, accessToken string) (*AccessIdentity, error) {
	identity, err := e.ValidateAccess(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	user, err := e.userStore.GetByID(ctx, identity.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, storeErr(err)
	}
	if !user.EmailVerified {
		return nil, ErrAccountUnverified
	}
	return identity, nil
}

// Close flushes and stops the audit dispatcher.
func (e *Engine) Close() {
	e.audit.Close()
}

// MetricsSnapshot returns a point-in-time copy of all engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	return e.metrics.Snapshot()
}

// AuditDropped reports how many audit events were discarded under
// DropIfFull backpressure.
func (e *Engine) AuditDropped() uint64 {
	return e.audit.Dropped()
}

// issueSession mints a session with a fresh jti, signs the credential
// pair bound to it, and persists the session holding the refresh digest.
func (e *Engine) issueSession(ctx context.Context, user *User, ip, userAgent string) (access, refresh, jti string, err error) {
	jti = uuid.NewString()

	access, err = e.codec.SignAccess(user.ID, user.Email)
	if err != nil {
		return "", "", "", err
	}
	refresh, err = e.codec.SignRefresh(user.ID, jti)
	if err != nil {
		return "", "", "", err
	}

	sess := &session.Session{
		ID:          jti,
		UserID:      user.ID,
		IP:          ip,
		UserAgent:   userAgent,
		RefreshHash: credential.Digest(refresh),
		CreatedAt:   time.Now().Unix(),
	}
	if err = e.sessions.Create(ctx, sess, e.config.Token.RefreshTTL+e.config.Session.Retention); err != nil {
		return "", "", "", storeErr(err)
	}

	e.metricInc(MetricSessionCreated)
	return access, refresh, jti, nil
}

func (e *Engine) allow(ctx context.Context, op, key string) error {
	if e.limiter == nil {
		return nil
	}
	if err := e.limiter.Allow(ctx, op, key); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			return ErrRateLimited
		}
		// A broken limiter backend fails open: blocking every login on a
		// counter outage is a worse failure than briefly unthrottled
		// traffic. The outage itself is audited.
		e.emitAudit(ctx, auditRateLimiterDown, false, "", "", "", err, nil)
	}
	return nil
}

func (e *Engine) metricInc(id MetricID) {
	e.metrics.Inc(id)
}

func clientKey(ip, fallback string) string {
	if ip != "" {
		return ip
	}
	return fallback
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	return len(email) <= 254 && emailPattern.MatchString(email)
}

func storeErr(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return errors.Join(ErrStoreUnavailable, err)
}
