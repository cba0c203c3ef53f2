// Package authkit is an embeddable authentication and session-lifecycle
// engine: short-lived JWT access credentials, rotating refresh credentials
// with replay detection, revocable Redis-backed sessions, single-use hashed
// tokens for email verification and password reset, federated identity
// linking, and fixed-window rate limiting on credential-issuing operations.
//
// The package is the public surface. It exposes [Engine], [Builder],
// [Config], error sentinels, and value types. Coordination internals —
// single-use stores, rate limiting, audit dispatch, metrics storage — live
// under internal/ and are never exported.
//
// # Capabilities
//
// Callers integrate by supplying three capabilities: a [UserStore] over
// their user database (with an email uniqueness constraint), a
// [NotificationSender] for out-of-band token delivery, and optionally an
// [IdentityProvider] that completes an external OAuth handshake. Access and
// refresh credentials are returned as opaque strings; where the transport
// places them (cookies, headers) is its own concern.
//
// # Security contract
//
// Stored secrets are hash-only: argon2id for passwords, SHA-256 digests for
// every opaque token and refresh credential at rest. Refresh rotation is
// atomic compare-and-revoke, so a concurrent replay of a stale credential
// loses deterministically. Failure causes that would reveal account
// existence are deliberately collapsed into single error values.
package authkit
