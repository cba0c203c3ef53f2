package authkit

import "errors"

var (
	// ErrValidation reports malformed input (bad email syntax, missing
	// fields). Field-level, recoverable by the caller.
	ErrValidation = errors.New("invalid input")
	// ErrEmailTaken reports a duplicate email on registration. UserStore
	// implementations must return it from Create on the uniqueness
	// constraint, distinguishable from other write failures.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidCredentials is the single undifferentiated login failure:
	// unknown email, password-less account, and wrong password are
	// deliberately indistinguishable.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidRefresh is the single undifferentiated refresh failure:
	// bad signature, expired, unknown session, revoked session, and
	// replayed credential all collapse into it.
	ErrInvalidRefresh = errors.New("refresh token invalid")
	// ErrInvalidOrExpiredToken covers every single-use token failure.
	// Missing, used, and expired are deliberately indistinguishable so
	// callers cannot probe which tokens exist.
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	// ErrWeakPassword reports a password policy violation.
	ErrWeakPassword = errors.New("password does not meet policy")
	// ErrAlreadyVerified reports verification of an already-verified email.
	ErrAlreadyVerified = errors.New("email already verified")
	// ErrInvalidPassword reports a wrong current password on password change.
	ErrInvalidPassword = errors.New("invalid password")
	// ErrUserNotFound is the UserStore contract's miss signal.
	ErrUserNotFound = errors.New("user not found")
	// ErrAccountUnverified is returned by RequireVerifiedAccess for
	// accounts that have not completed email verification.
	ErrAccountUnverified = errors.New("account unverified")
	// ErrRateLimited reports an exhausted attempt budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrInvalidGrant classifies IdentityProvider failures that should be
	// retried with a fresh authorization redirect rather than surfaced.
	ErrInvalidGrant = errors.New("invalid oauth grant")
	// ErrStoreUnavailable wraps unexpected storage failures.
	ErrStoreUnavailable = errors.New("storage unavailable")
	// ErrEngineNotReady is returned when a required capability was not wired.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// IsValidation reports whether err is a recoverable input problem the
// caller should map to a 4xx request error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrWeakPassword) ||
		errors.Is(err, ErrInvalidOrExpiredToken) ||
		errors.Is(err, ErrAlreadyVerified)
}

// IsAuthFailure reports whether err is an authentication rejection.
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrInvalidRefresh) ||
		errors.Is(err, ErrInvalidPassword) ||
		errors.Is(err, ErrAccountUnverified)
}

// IsConflict reports whether err is a uniqueness conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrEmailTaken)
}

// IsRateLimited reports whether err is an exhausted attempt budget.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}
