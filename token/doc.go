// Package token signs and verifies the two bearer credential kinds the
// engine issues: short-lived access credentials carrying {subject, email}
// and long-lived refresh credentials carrying {subject, jti}.
//
// The two kinds are signed with distinct HMAC keys so a leaked access
// credential can never be replayed as a refresh credential. The codec is
// stateless; it never touches storage.
package token
