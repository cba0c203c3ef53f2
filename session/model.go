package session

// Session is one outstanding refresh grant. RefreshHash is the SHA-256
// digest of the refresh credential currently bound to the session; the
// credential itself is never stored.
type Session struct {
	ID          string
	UserID      string
	IP          string
	UserAgent   string
	RefreshHash [32]byte

	CreatedAt int64
	RevokedAt int64
}

// Revoked reports whether the session has been terminally revoked.
// A session is either live or revoked; it is never reactivated.
func (s *Session) Revoked() bool {
	return s.RevokedAt != 0
}
