package stores

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opennotebook/authkit/credential"
)

// ErrRedisUnavailable wraps any transport-level Redis failure.
var ErrRedisUnavailable = errors.New("single-use store redis unavailable")

// ErrTokenNotFound is returned when no record exists for the digest.
var ErrTokenNotFound = errors.New("single-use token not found")

// usedRetention keeps redeemed records around after use so a replayed raw
// value resolves to a visibly-used record instead of silently vanishing.
const usedRetention = 24 * time.Hour

// Record is one stored single-use token. ID is the hex digest of the raw
// token, which doubles as the lookup key.
type Record struct {
	ID        string
	UserID    string
	ExpiresAt int64
	UsedAt    int64
}

// Used reports whether the token has been redeemed.
func (r *Record) Used() bool {
	return r.UsedAt != 0
}

// Expired reports whether the token is past its expiry at the given time.
func (r *Record) Expired(now time.Time) bool {
	return now.Unix() >= r.ExpiresAt
}

// TokenStore manages hashed, expiring, single-use tokens for one purpose
// (email verification or password reset). Purposes are isolated by key
// prefix so a verification token can never redeem a reset.
type TokenStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewTokenStore creates a TokenStore namespaced under prefix.
func NewTokenStore(redisClient redis.UniversalClient, prefix string) *TokenStore {
	return &TokenStore{redis: redisClient, prefix: prefix}
}

func (s *TokenStore) key(digest string) string {
	return s.prefix + ":" + digest
}

func (s *TokenStore) userKey(userID string) string {
	return s.prefix + "u:" + userID
}

// Create generates a fresh opaque token, stores its digest with the given
// lifetime, and returns the raw value for out-of-band delivery along with
// the stored record. The raw value is never persisted.
func (s *TokenStore) Create(ctx context.Context, userID string, ttl time.Duration) (string, *Record, error) {
	raw, err := credential.NewOpaqueToken()
	if err != nil {
		return "", nil, err
	}

	record := &Record{
		ID:        credential.DigestHex(raw),
		UserID:    userID,
		ExpiresAt: time.Now().Add(ttl).Unix(),
	}

	key := s.key(record.ID)
	retention := ttl + usedRetention
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"user_id", record.UserID,
			"expires_at", record.ExpiresAt,
			"used_at", int64(0),
		)
		pipe.Expire(ctx, key, retention)
		pipe.SAdd(ctx, s.userKey(userID), record.ID)
		pipe.Expire(ctx, s.userKey(userID), retention)
		return nil
	})
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return raw, record, nil
}

// Find looks up a record by the digest of the supplied raw token. Callers
// are responsible for the validity check (unused and unexpired).
func (s *TokenStore) Find(ctx context.Context, raw string) (*Record, error) {
	digest := credential.DigestHex(raw)
	fields, err := s.redis.HGetAll(ctx, s.key(digest)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrTokenNotFound
	}
	return decodeRecord(digest, fields)
}

// MarkUsed unconditionally transitions the record to used. The store does
// not re-check validity; callers must have done so before calling.
func (s *TokenStore) MarkUsed(ctx context.Context, recordID string) error {
	if err := s.redis.HSet(ctx, s.key(recordID), "used_at", time.Now().Unix()).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// InvalidateAllForUser marks every currently-unused token of the user as
// used, so stale links stop working the moment a new one is issued.
func (s *TokenStore) InvalidateAllForUser(ctx context.Context, userID string) error {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	now := time.Now().Unix()
	for _, id := range ids {
		key := s.key(id)
		used, err := s.redis.HGet(ctx, key, "used_at").Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		if used != "0" {
			continue
		}
		if err := s.redis.HSet(ctx, key, "used_at", now).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return nil
}

func decodeRecord(digest string, fields map[string]string) (*Record, error) {
	record := &Record{
		ID:     digest,
		UserID: fields["user_id"],
	}

	var err error
	if v := fields["expires_at"]; v != "" {
		if record.ExpiresAt, err = strconv.ParseInt(v, 10, 64); err != nil {
			return nil, errors.New("corrupt token record expires_at")
		}
	}
	if v := fields["used_at"]; v != "" {
		if record.UsedAt, err = strconv.ParseInt(v, 10, 64); err != nil {
			return nil, errors.New("corrupt token record used_at")
		}
	}
	return record, nil
}
