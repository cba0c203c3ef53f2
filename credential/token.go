package credential

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
)

// opaqueTokenSize is the entropy of a raw opaque token in bytes. 32 bytes
// (256 bits) makes collisions and online guessing negligible.
const opaqueTokenSize = 32

// NewOpaqueToken returns a fresh random token, base64url encoded without
// padding. The raw value is delivered to the user out of band and must
// never be persisted; store Digest(raw) instead.
func NewOpaqueToken() (string, error) {
	var buf [opaqueTokenSize]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf[:]), nil
}

// Digest returns the deterministic storage digest of a raw token. Hashing
// the same raw value always yields the same digest, which is what makes
// lookup-by-hash possible without storing the raw value.
func Digest(raw string) [32]byte {
	return sha256.Sum256([]byte(raw))
}

// DigestHex returns Digest(raw) as a lowercase hex string, the form used
// for storage keys.
func DigestHex(raw string) string {
	sum := Digest(raw)
	return hex.EncodeToString(sum[:])
}

// DigestEqual compares two digests in constant time.
func DigestEqual(a, b [32]byte) bool {
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}
