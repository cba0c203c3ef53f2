package authkit

import (
	"context"
	"errors"
	"time"

	"github.com/opennotebook/authkit/internal/stores"
)

// RequestPasswordReset issues a single-use reset token delivered out of
// band. It reports success for well-formed emails whether or not an
// account exists, with equivalent work on both paths; for unknown emails
// no token is stored and no notification is sent.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if e.userStore == nil {
		return ErrEngineNotReady
	}

	email = normalizeEmail(email)
	if !validEmail(email) {
		return ErrValidation
	}

	user, err := e.userStore.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			return storeErr(err)
		}
		e.decoyTokenWork()
		e.metricInc(MetricPasswordResetRequest)
		e.emitAudit(ctx, auditResetRequest, true, "", "", "", nil, enumerationSafeMeta)
		return nil
	}

	raw, _, err := e.resetTokens.Create(ctx, user.ID, e.config.Reset.TokenTTL)
	if err != nil {
		e.emitAudit(ctx, auditResetRequest, false, user.ID, "", "", err, nil)
		// Still report success: a storage hiccup on this path must not
		// become an account-existence oracle.
		return nil
	}
	e.sendNotification(ctx, user, raw, true)

	e.metricInc(MetricPasswordResetRequest)
	e.emitAudit(ctx, auditResetRequest, true, user.ID, "", "", nil, nil)
	return nil
}

// ResetPassword redeems a reset token and installs a new password hash.
// Completion revokes every live session of the user: a reset is the
// recovery path for a possibly-compromised account.
func (e *Engine) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	if e.userStore == nil {
		return ErrEngineNotReady
	}
	if len(newPassword) < e.config.Password.MinLength {
		return ErrWeakPassword
	}
	if rawToken == "" {
		return ErrInvalidOrExpiredToken
	}

	record, err := e.resetTokens.Find(ctx, rawToken)
	if err != nil {
		if errors.Is(err, stores.ErrTokenNotFound) {
			e.metricInc(MetricPasswordResetFailure)
			e.emitAudit(ctx, auditResetConfirm, false, "", "", "", ErrInvalidOrExpiredToken, nil)
			return ErrInvalidOrExpiredToken
		}
		return storeErr(err)
	}
	if record.Used() || record.Expired(time.Now()) {
		e.metricInc(MetricPasswordResetFailure)
		e.emitAudit(ctx, auditResetConfirm, false, record.UserID, "", "", ErrInvalidOrExpiredToken, nil)
		return ErrInvalidOrExpiredToken
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	if err := e.userStore.UpdatePasswordHash(ctx, record.UserID, hash); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.metricInc(MetricPasswordResetFailure)
			e.emitAudit(ctx, auditResetConfirm, false, record.UserID, "", "", ErrInvalidOrExpiredToken, nil)
			return ErrInvalidOrExpiredToken
		}
		return storeErr(err)
	}

	if err := e.resetTokens.MarkUsed(ctx, record.ID); err != nil {
		return storeErr(err)
	}

	if err := e.sessions.RevokeAllForUser(ctx, record.UserID); err != nil {
		return storeErr(err)
	}

	e.metricInc(MetricPasswordResetSuccess)
	e.emitAudit(ctx, auditResetConfirm, true, record.UserID, "", "", nil, nil)
	return nil
}

// UpdatePassword changes an authenticated user's password after verifying
// the current one. A wrong current password returns [ErrInvalidPassword];
// existing sessions stay live (this is an authenticated change, not a
// recovery).
func (e *Engine) UpdatePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if e.userStore == nil {
		return ErrEngineNotReady
	}
	if len(newPassword) < e.config.Password.MinLength {
		return ErrWeakPassword
	}

	user, err := e.userStore.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrUserNotFound
		}
		return storeErr(err)
	}

	if user.PasswordHash == "" {
		e.metricInc(MetricPasswordChangeFailure)
		e.emitAudit(ctx, auditPasswordChange, false, user.ID, "", "", ErrInvalidPassword, nil)
		return ErrInvalidPassword
	}

	ok, err := e.hasher.Verify(currentPassword, user.PasswordHash)
	if err != nil || !ok {
		e.metricInc(MetricPasswordChangeFailure)
		e.emitAudit(ctx, auditPasswordChange, false, user.ID, "", "", ErrInvalidPassword, nil)
		return ErrInvalidPassword
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := e.userStore.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		return storeErr(err)
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditPasswordChange, true, user.ID, "", "", nil, nil)
	return nil
}
