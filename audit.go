package authkit

import (
	"context"
	"time"

	internalaudit "github.com/opennotebook/authkit/internal/audit"
)

const (
	auditLogin              = "login"
	auditRefresh            = "refresh"
	auditLogout             = "logout"
	auditRegister           = "register"
	auditVerifyRequest      = "email_verification_request"
	auditVerifyConfirm      = "email_verification_confirm"
	auditResetRequest       = "password_reset_request"
	auditResetConfirm       = "password_reset_confirm"
	auditPasswordChange     = "password_change"
	auditOAuthLogin         = "oauth_login"
	auditNotificationFailed = "notification_failed"
	auditRateLimiterDown    = "rate_limiter_unavailable"
)

// emitAudit queues one audit event. The metadata closure is only invoked
// when the dispatcher is active, keeping the disabled path allocation-free.
func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID, sessionID, ip string,
	failure error,
	metadata func() map[string]string,
) {
	if e.audit == nil {
		return
	}

	event := internalaudit.Event{
		Timestamp: time.Now(),
		EventType: eventType,
		UserID:    userID,
		SessionID: sessionID,
		IP:        ip,
		Success:   success,
	}
	if failure != nil {
		event.Error = failure.Error()
	}
	if metadata != nil {
		event.Metadata = metadata()
	}

	e.audit.Emit(ctx, event)
}
