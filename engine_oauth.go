package authkit

import (
	"context"
	"errors"
	"time"
)

// CompleteOAuthLogin reconciles a verified external profile with the local
// user collection and issues a session for the resulting account.
//
// A new account is created with the external provider tag, no password
// hash, and a verified email — federated providers are trusted to have
// verified it. An existing account is merged: missing profile fields are
// filled from the external profile, existing ones are kept, and the
// provider tag is upgraded from local to the external provider. The
// upgrade is one-way; a federated account is never downgraded, and the
// password hash is never touched, so a locally-registered user keeps
// their password after linking.
func (e *Engine) CompleteOAuthLogin(ctx context.Context, profile VerifiedProfile, ip, userAgent string) (*AuthResult, error) {
	if e.userStore == nil {
		return nil, ErrEngineNotReady
	}

	email := normalizeEmail(profile.Email)
	if !validEmail(email) {
		return nil, ErrValidation
	}
	provider := profile.Provider
	if provider == "" || provider == ProviderLocal {
		return nil, ErrValidation
	}

	user, err := e.userStore.GetByEmail(ctx, email)
	switch {
	case err == nil:
		user, err = e.linkProfile(ctx, user, provider, profile)
		if err != nil {
			return nil, err
		}
	case errors.Is(err, ErrUserNotFound):
		user, err = e.createFederated(ctx, email, provider, profile)
		if err != nil {
			return nil, err
		}
	default:
		return nil, storeErr(err)
	}

	access, refresh, jti, err := e.issueSession(ctx, user, ip, userAgent)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricOAuthLoginSuccess)
	e.emitAudit(ctx, auditOAuthLogin, true, user.ID, jti, ip, nil, func() map[string]string {
		return map[string]string{"provider": provider}
	})

	return &AuthResult{User: user, AccessToken: access, RefreshToken: refresh}, nil
}

// createFederated creates a fresh account for a first-time federated
// login. A concurrent registration with the same email loses the race at
// the uniqueness constraint and is retried as a merge.
func (e *Engine) createFederated(ctx context.Context, email, provider string, profile VerifiedProfile) (*User, error) {
	now := time.Now()
	input := CreateUserInput{
		Email:           email,
		Provider:        provider,
		EmailVerified:   true,
		EmailVerifiedAt: &now,
		Profile:         map[string]string{},
	}
	if profile.Name != "" {
		input.Profile[ProfileName] = profile.Name
	}
	if profile.AvatarURL != "" {
		input.Profile[ProfileAvatar] = profile.AvatarURL
	}

	user, err := e.userStore.Create(ctx, input)
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			existing, getErr := e.userStore.GetByEmail(ctx, email)
			if getErr != nil {
				return nil, storeErr(getErr)
			}
			return e.linkProfile(ctx, existing, provider, profile)
		}
		return nil, storeErr(err)
	}
	return user, nil
}

// linkProfile merges an external profile into an existing account.
func (e *Engine) linkProfile(ctx context.Context, user *User, provider string, profile VerifiedProfile) (*User, error) {
	merge := UserMerge{Profile: map[string]string{}}
	changed := false

	if profile.Name != "" && user.Profile[ProfileName] == "" {
		merge.Profile[ProfileName] = profile.Name
		changed = true
	}
	if profile.AvatarURL != "" && user.Profile[ProfileAvatar] == "" {
		merge.Profile[ProfileAvatar] = profile.AvatarURL
		changed = true
	}

	// Upgrade only from local; an already-federated tag stays put.
	if user.Provider == ProviderLocal {
		merge.Provider = &provider
		changed = true
	}

	if !user.EmailVerified {
		verified := true
		now := time.Now()
		merge.EmailVerified = &verified
		merge.EmailVerifiedAt = &now
		changed = true
	}

	if !changed {
		return user, nil
	}

	merged, err := e.userStore.Merge(ctx, user.ID, merge)
	if err != nil {
		return nil, storeErr(err)
	}

	e.metricInc(MetricOAuthLoginLinked)
	return merged, nil
}
