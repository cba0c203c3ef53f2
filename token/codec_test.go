package token

import (
	"errors"
	"testing"
	"time"
)

func testCodecConfig() Config {
	return Config{
		AccessSecret:  []byte("test-access-secret-0123456789abc"),
		RefreshSecret: []byte("test-refresh-secret-0123456789ab"),
		AccessTTL:     5 * time.Minute,
		RefreshTTL:    time.Hour,
		Issuer:        "codec-test",
	}
}

func newTestCodec(t *testing.T, cfg Config) *Codec {
	t.Helper()

	c, err := NewCodec(cfg)
	if err != nil {
		t.Fatalf("NewCodec failed: %v", err)
	}
	return c
}

func TestAccessRoundTrip(t *testing.T) {
	c := newTestCodec(t, testCodecConfig())

	signed, err := c.SignAccess("u1", "alice@example.com")
	if err != nil {
		t.Fatalf("SignAccess failed: %v", err)
	}

	claims, err := c.VerifyAccess(signed)
	if err != nil {
		t.Fatalf("VerifyAccess failed: %v", err)
	}
	if claims.Subject != "u1" || claims.Email != "alice@example.com" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestRefreshRoundTrip(t *testing.T) {
	c := newTestCodec(t, testCodecConfig())

	signed, err := c.SignRefresh("u1", "jti-1")
	if err != nil {
		t.Fatalf("SignRefresh failed: %v", err)
	}

	claims, err := c.VerifyRefresh(signed)
	if err != nil {
		t.Fatalf("VerifyRefresh failed: %v", err)
	}
	if claims.Subject != "u1" || claims.ID != "jti-1" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestCredentialKindsDoNotCross(t *testing.T) {
	c := newTestCodec(t, testCodecConfig())

	access, err := c.SignAccess("u1", "alice@example.com")
	if err != nil {
		t.Fatalf("SignAccess failed: %v", err)
	}
	refresh, err := c.SignRefresh("u1", "jti-1")
	if err != nil {
		t.Fatalf("SignRefresh failed: %v", err)
	}

	if _, err := c.VerifyRefresh(access); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected access token to fail refresh verification, got %v", err)
	}
	if _, err := c.VerifyAccess(refresh); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected refresh token to fail access verification, got %v", err)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	cfg := testCodecConfig()
	cfg.AccessTTL = -time.Minute
	cfg.RefreshTTL = time.Hour
	c := &Codec{config: cfg}

	signed, err := c.SignAccess("u1", "alice@example.com")
	if err != nil {
		t.Fatalf("SignAccess failed: %v", err)
	}
	if _, err := c.VerifyAccess(signed); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired credential, got %v", err)
	}
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	first := newTestCodec(t, testCodecConfig())

	cfg := testCodecConfig()
	cfg.AccessSecret = []byte("another-access-secret-0123456789")
	second := newTestCodec(t, cfg)

	signed, err := first.SignAccess("u1", "alice@example.com")
	if err != nil {
		t.Fatalf("SignAccess failed: %v", err)
	}
	if _, err := second.VerifyAccess(signed); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for wrong key, got %v", err)
	}
}

func TestVerifyRejectsWrongIssuer(t *testing.T) {
	c := newTestCodec(t, testCodecConfig())

	other := testCodecConfig()
	other.Issuer = "someone-else"
	signedElsewhere, err := newTestCodec(t, other).SignAccess("u1", "alice@example.com")
	if err != nil {
		t.Fatalf("SignAccess failed: %v", err)
	}

	if _, err := c.VerifyAccess(signedElsewhere); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for wrong issuer, got %v", err)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	c := newTestCodec(t, testCodecConfig())

	for _, raw := range []string{"", "x", "a.b.c", "eyJhbGciOiJub25lIn0.e30."} {
		if _, err := c.VerifyAccess(raw); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("token %q: expected ErrInvalidToken, got %v", raw, err)
		}
	}
}

func TestNewCodecValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing access secret", func(c *Config) { c.AccessSecret = nil }},
		{"missing refresh secret", func(c *Config) { c.RefreshSecret = nil }},
		{"equal secrets", func(c *Config) { c.RefreshSecret = append([]byte(nil), c.AccessSecret...) }},
		{"zero access TTL", func(c *Config) { c.AccessTTL = 0 }},
		{"zero refresh TTL", func(c *Config) { c.RefreshTTL = 0 }},
		{"negative leeway", func(c *Config) { c.Leeway = -time.Second }},
		{"excessive leeway", func(c *Config) { c.Leeway = time.Hour }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testCodecConfig()
			tc.mutate(&cfg)
			if _, err := NewCodec(cfg); err == nil {
				t.Fatal("expected config to be rejected")
			}
		})
	}
}
