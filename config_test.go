package authkit

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"short access secret", func(c *Config) { c.Token.AccessSecret = []byte("short") }, "access secret"},
		{"short refresh secret", func(c *Config) { c.Token.RefreshSecret = []byte("short") }, "refresh secret"},
		{"equal secrets", func(c *Config) { c.Token.RefreshSecret = append([]byte(nil), c.Token.AccessSecret...) }, "distinct"},
		{"zero access TTL", func(c *Config) { c.Token.AccessTTL = 0 }, "TTLs must be positive"},
		{"access TTL not below refresh", func(c *Config) { c.Token.AccessTTL = c.Token.RefreshTTL }, "shorter than refresh"},
		{"weak password policy", func(c *Config) { c.Password.MinLength = 4 }, "minimum length"},
		{"zero verification TTL", func(c *Config) { c.Verification.TokenTTL = 0 }, "verification token TTL"},
		{"zero reset TTL", func(c *Config) { c.Reset.TokenTTL = 0 }, "reset token TTL"},
		{"negative retention", func(c *Config) { c.Session.Retention = -time.Hour }, "retention"},
		{"empty key prefix", func(c *Config) { c.KeyPrefix = "" }, "key prefix"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)

			err := cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("expected valid config, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestDefaultConfigNeedsSecrets(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected defaults without secrets to fail validation")
	}
}

func TestBuilderRequiresDependencies(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	if _, err := New().WithConfig(testConfig()).WithUserStore(newMockUserStore()).Build(context.Background()); err == nil {
		t.Fatal("expected Build without redis to fail")
	}
	if _, err := New().WithConfig(testConfig()).WithRedis(rdb).Build(context.Background()); err == nil {
		t.Fatal("expected Build without user store to fail")
	}
}

func TestBuilderSingleUse(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	builder := New().
		WithConfig(testConfig()).
		WithRedis(rdb).
		WithUserStore(newMockUserStore())

	engine, err := builder.Build(context.Background())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	if _, err := builder.Build(context.Background()); err == nil {
		t.Fatal("expected second Build to fail")
	}
}

func TestBuilderFailsOnDeadRedis(t *testing.T) {
	mr, rdb := newTestRedis(t)
	mr.Close()

	if _, err := New().
		WithConfig(testConfig()).
		WithRedis(rdb).
		WithUserStore(newMockUserStore()).
		Build(context.Background()); err == nil {
		t.Fatal("expected Build against dead redis to fail")
	}
}

func TestConfigCloneIsolatesSecrets(t *testing.T) {
	cfg := testConfig()
	clone := cloneConfig(cfg)

	cfg.Token.AccessSecret[0] ^= 0xff
	if clone.Token.AccessSecret[0] == cfg.Token.AccessSecret[0] {
		t.Fatal("expected cloned secret to be an independent copy")
	}
}
