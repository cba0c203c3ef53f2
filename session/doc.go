// Package session is the server-side record of issued refresh grants.
//
// Each session is keyed by the refresh credential's jti and stores the
// digest of the credential currently bound to it. Rotation revokes the old
// session through a Lua compare-and-revoke script, so concurrent refresh
// attempts with the same stale credential resolve to at most one winner.
// Sessions are revoked, never deleted; revoked records remain readable for
// audit until their Redis TTL lapses.
package session
