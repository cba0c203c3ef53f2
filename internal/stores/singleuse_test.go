package stores

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/opennotebook/authkit/credential"
)

func newTestTokenStore(t *testing.T) (*TokenStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewTokenStore(client, "tt"), mr
}

func TestCreateAndFind(t *testing.T) {
	store, _ := newTestTokenStore(t)
	ctx := context.Background()

	raw, record, err := store.Create(ctx, "u1", time.Hour)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if raw == "" {
		t.Fatal("expected a raw token")
	}
	if record.ID != credential.DigestHex(raw) {
		t.Fatal("record id must be the digest of the raw token")
	}
	if record.Used() {
		t.Fatal("new token must be unused")
	}

	found, err := store.Find(ctx, raw)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if found.UserID != "u1" || found.ExpiresAt != record.ExpiresAt {
		t.Fatalf("unexpected record %+v", found)
	}
	if found.Expired(time.Now()) {
		t.Fatal("fresh token must not be expired")
	}
}

func TestFindUnknown(t *testing.T) {
	store, _ := newTestTokenStore(t)

	if _, err := store.Find(context.Background(), "never-issued"); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound, got %v", err)
	}
}

func TestMarkUsedIsPermanent(t *testing.T) {
	store, _ := newTestTokenStore(t)
	ctx := context.Background()

	raw, record, err := store.Create(ctx, "u1", time.Hour)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := store.MarkUsed(ctx, record.ID); err != nil {
		t.Fatalf("MarkUsed failed: %v", err)
	}

	// The record stays findable and reports used.
	found, err := store.Find(ctx, raw)
	if err != nil {
		t.Fatalf("Find after MarkUsed failed: %v", err)
	}
	if !found.Used() {
		t.Fatal("expected record to report used")
	}
}

func TestRecordExpiry(t *testing.T) {
	record := &Record{ExpiresAt: time.Now().Add(time.Minute).Unix()}
	if record.Expired(time.Now()) {
		t.Fatal("token within TTL must not be expired")
	}
	if !record.Expired(time.Now().Add(2 * time.Minute)) {
		t.Fatal("token past TTL must be expired")
	}
}

func TestKeyAgesOutOfRedis(t *testing.T) {
	store, mr := newTestTokenStore(t)
	ctx := context.Background()

	raw, _, err := store.Create(ctx, "u1", time.Minute)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// TTL plus the used-record retention window.
	mr.FastForward(time.Minute + usedRetention + time.Second)

	if _, err := store.Find(ctx, raw); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound after retention, got %v", err)
	}
}

func TestInvalidateAllForUser(t *testing.T) {
	store, _ := newTestTokenStore(t)
	ctx := context.Background()

	first, _, err := store.Create(ctx, "u1", time.Hour)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	second, _, err := store.Create(ctx, "u1", time.Hour)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	other, _, err := store.Create(ctx, "u2", time.Hour)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := store.InvalidateAllForUser(ctx, "u1"); err != nil {
		t.Fatalf("InvalidateAllForUser failed: %v", err)
	}

	for _, raw := range []string{first, second} {
		found, err := store.Find(ctx, raw)
		if err != nil {
			t.Fatalf("Find failed: %v", err)
		}
		if !found.Used() {
			t.Fatal("expected token to be invalidated")
		}
	}

	// The other user's token is untouched.
	found, err := store.Find(ctx, other)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if found.Used() {
		t.Fatal("expected other user's token to stay live")
	}
}

func TestPurposesAreIsolatedByPrefix(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	verify := NewTokenStore(client, "tv")
	reset := NewTokenStore(client, "tp")

	ctx := context.Background()
	raw, _, err := verify.Create(ctx, "u1", time.Hour)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// A verification token must never redeem in the reset store.
	if _, err := reset.Find(ctx, raw); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound across purposes, got %v", err)
	}
}
