package authkit

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/opennotebook/authkit/credential"
	"github.com/opennotebook/authkit/internal/stores"
)

// Register creates a local account and, when verification is enabled,
// issues a verification token delivered out of band. The caller receives
// only the new user's id and email; login does not require verification.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*RegisteredUser, error) {
	if e.userStore == nil {
		return nil, ErrEngineNotReady
	}

	email := normalizeEmail(req.Email)
	if !validEmail(email) {
		return nil, ErrValidation
	}
	if len(req.Password) < e.config.Password.MinLength {
		return nil, ErrWeakPassword
	}

	if err := e.allow(ctx, opRegister, clientKey(req.IP, email)); err != nil {
		e.metricInc(MetricRegisterRateLimited)
		e.emitAudit(ctx, auditRegister, false, "", "", req.IP, ErrRateLimited, nil)
		return nil, ErrRateLimited
	}

	hash, err := e.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	input := CreateUserInput{
		Email:        email,
		PasswordHash: hash,
		Provider:     ProviderLocal,
	}
	if name := trimmed(req.DisplayName); name != "" {
		input.Profile = map[string]string{ProfileName: name}
	}

	user, err := e.userStore.Create(ctx, input)
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			e.metricInc(MetricRegisterConflict)
			e.emitAudit(ctx, auditRegister, false, "", "", req.IP, ErrEmailTaken, nil)
			return nil, ErrEmailTaken
		}
		return nil, storeErr(err)
	}

	if e.config.Verification.Enabled {
		e.issueVerification(ctx, user)
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditRegister, true, user.ID, "", req.IP, nil, nil)

	return &RegisteredUser{ID: user.ID, Email: user.Email}, nil
}

// VerifyEmail redeems a verification token. The token must exist, be
// unused, and be unexpired; every other case is [ErrInvalidOrExpiredToken].
// Redemption is permanent — retrying with the same raw value always fails.
func (e *Engine) VerifyEmail(ctx context.Context, rawToken string) error {
	if e.userStore == nil {
		return ErrEngineNotReady
	}
	if rawToken == "" {
		return ErrInvalidOrExpiredToken
	}

	record, err := e.verifyTokens.Find(ctx, rawToken)
	if err != nil {
		if errors.Is(err, stores.ErrTokenNotFound) {
			e.metricInc(MetricEmailVerificationFailure)
			e.emitAudit(ctx, auditVerifyConfirm, false, "", "", "", ErrInvalidOrExpiredToken, nil)
			return ErrInvalidOrExpiredToken
		}
		return storeErr(err)
	}
	if record.Used() || record.Expired(time.Now()) {
		e.metricInc(MetricEmailVerificationFailure)
		e.emitAudit(ctx, auditVerifyConfirm, false, record.UserID, "", "", ErrInvalidOrExpiredToken, nil)
		return ErrInvalidOrExpiredToken
	}

	user, err := e.userStore.GetByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.metricInc(MetricEmailVerificationFailure)
			e.emitAudit(ctx, auditVerifyConfirm, false, record.UserID, "", "", ErrInvalidOrExpiredToken, nil)
			return ErrInvalidOrExpiredToken
		}
		return storeErr(err)
	}

	if user.EmailVerified {
		// Burn the token anyway; a stale link must not stay redeemable.
		if err := e.verifyTokens.MarkUsed(ctx, record.ID); err != nil {
			return storeErr(err)
		}
		e.emitAudit(ctx, auditVerifyConfirm, false, user.ID, "", "", ErrAlreadyVerified, nil)
		return ErrAlreadyVerified
	}

	if err := e.verifyTokens.MarkUsed(ctx, record.ID); err != nil {
		return storeErr(err)
	}

	now := time.Now()
	verified := true
	if _, err := e.userStore.Merge(ctx, user.ID, UserMerge{
		EmailVerified:   &verified,
		EmailVerifiedAt: &now,
	}); err != nil {
		return storeErr(err)
	}

	e.metricInc(MetricEmailVerificationSuccess)
	e.emitAudit(ctx, auditVerifyConfirm, true, user.ID, "", "", nil, nil)
	return nil
}

// ResendVerification issues a fresh verification token, invalidating any
// outstanding ones. It reports success for well-formed emails regardless
// of whether an account exists — and performs equivalent work either way,
// so neither the response nor its latency reveals account existence.
func (e *Engine) ResendVerification(ctx context.Context, email string) error {
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
		e.metricInc(MetricEmailVerificationRequest)
		e.emitAudit(ctx, auditVerifyRequest, true, "", "", "", nil, enumerationSafeMeta)
		return nil
	}

	if user.EmailVerified {
		e.decoyTokenWork()
		e.metricInc(MetricEmailVerificationRequest)
		e.emitAudit(ctx, auditVerifyRequest, true, user.ID, "", "", nil, func() map[string]string {
			return map[string]string{"noop": "already_verified"}
		})
		return nil
	}

	if err := e.verifyTokens.InvalidateAllForUser(ctx, user.ID); err != nil {
		return storeErr(err)
	}
	e.issueVerification(ctx, user)

	e.metricInc(MetricEmailVerificationRequest)
	e.emitAudit(ctx, auditVerifyRequest, true, user.ID, "", "", nil, nil)
	return nil
}

// issueVerification creates a verification token and hands the raw value
// to the notification sender. Delivery failure is audited, never surfaced.
func (e *Engine) issueVerification(ctx context.Context, user *User) {
	raw, _, err := e.verifyTokens.Create(ctx, user.ID, e.config.Verification.TokenTTL)
	if err != nil {
		e.emitAudit(ctx, auditVerifyRequest, false, user.ID, "", "", err, nil)
		return
	}
	e.sendNotification(ctx, user, raw, false)
}

// sendNotification delivers a raw token out of band. reset selects the
// reset template over the verification one.
func (e *Engine) sendNotification(ctx context.Context, user *User, raw string, reset bool) {
	if e.notifier == nil {
		e.metricInc(MetricNotificationFailure)
		e.emitAudit(ctx, auditNotificationFailed, false, user.ID, "", "", errors.New("no notification sender configured"), nil)
		return
	}

	var err error
	if reset {
		err = e.notifier.SendReset(ctx, user.Email, raw)
	} else {
		err = e.notifier.SendVerification(ctx, user.Email, raw)
	}
	if err != nil {
		e.metricInc(MetricNotificationFailure)
		e.emitAudit(ctx, auditNotificationFailed, false, user.ID, "", "", err, nil)
	}
}

// decoyTokenWork generates and discards a token so the unknown-account
// path costs roughly what the real path costs.
func (e *Engine) decoyTokenWork() {
	if raw, err := credential.NewOpaqueToken(); err == nil {
		_ = credential.DigestHex(raw)
	}
}

func enumerationSafeMeta() map[string]string {
	return map[string]string{"enumeration_safe": "true"}
}

func trimmed(s string) string {
	const maxDisplayName = 200
	s = strings.TrimSpace(s)
	if len(s) > maxDisplayName {
		s = s[:maxDisplayName]
	}
	return s
}
