package session

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps any transport-level Redis failure.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrSessionNotFound is returned when no record exists for the jti.
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionRevoked is returned when the target session is already revoked.
var ErrSessionRevoked = errors.New("session revoked")

// ErrRefreshHashMismatch is returned when the presented refresh digest does
// not match the session's current one. This is the replay signal: the
// credential was already rotated away.
var ErrRefreshHashMismatch = errors.New("refresh hash mismatch")

const (
	revokeStatusNotFound int64 = 0
	revokeStatusRevoked  int64 = 1
	revokeStatusMismatch int64 = 2
	revokeStatusOK       int64 = 3
)

// revokeIfCurrentScript atomically performs the check-then-revoke step of
// refresh rotation: the session must exist, be live, and hold exactly the
// presented refresh digest. On a digest mismatch the session is revoked as
// well, cutting off the legitimate chain once reuse has been observed.
const revokeIfCurrentScript = `
local key = KEYS[1]
if redis.call("EXISTS", key) == 0 then
  return {0}
end
local revoked = redis.call("HGET", key, "revoked_at")
if revoked and revoked ~= "0" then
  return {1}
end
if redis.call("HGET", key, "refresh_hash") ~= ARGV[1] then
  redis.call("HSET", key, "revoked_at", ARGV[2])
  return {2}
end
redis.call("HSET", key, "revoked_at", ARGV[2])
return {3, redis.call("HGETALL", key)}
`

var revokeIfCurrentLua = redis.NewScript(revokeIfCurrentScript)

// revokeScript marks a session revoked if it exists and is still live.
// Revoking twice leaves it revoked with the original timestamp.
const revokeScript = `
local key = KEYS[1]
if redis.call("EXISTS", key) == 0 then
  return 0
end
local revoked = redis.call("HGET", key, "revoked_at")
if revoked and revoked ~= "0" then
  return 1
end
redis.call("HSET", key, "revoked_at", ARGV[1])
return 1
`

var revokeLua = redis.NewScript(revokeScript)

// Store is a Redis-backed session store. Sessions are Redis hashes keyed
// by jti, with a per-user set index for revoke-all.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a session Store. prefix sets the Redis key namespace.
func NewStore(redisClient redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "aks"
	}
	return &Store{redis: redisClient, prefix: prefix}
}

func (s *Store) key(jti string) string {
	return s.prefix + ":" + jti
}

func (s *Store) userKey(userID string) string {
	return s.prefix + "u:" + userID
}

// LoadScripts preloads the Lua scripts so no EVAL compilation happens on
// the request path. Called once from Builder.Build.
func (s *Store) LoadScripts(ctx context.Context) error {
	for _, script := range []*redis.Script{revokeIfCurrentLua, revokeLua} {
		if err := script.Load(ctx, s.redis).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return nil
}

// Create inserts a new live session with the given retention TTL.
func (s *Store) Create(ctx context.Context, sess *Session, ttl time.Duration) error {
	key := s.key(sess.ID)
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"user_id", sess.UserID,
			"ip", sess.IP,
			"ua", sess.UserAgent,
			"refresh_hash", hex.EncodeToString(sess.RefreshHash[:]),
			"created_at", sess.CreatedAt,
			"revoked_at", sess.RevokedAt,
		)
		pipe.Expire(ctx, key, ttl)
		pipe.SAdd(ctx, s.userKey(sess.UserID), sess.ID)
		pipe.Expire(ctx, s.userKey(sess.UserID), ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Get retrieves a session by jti, revoked or not.
func (s *Store) Get(ctx context.Context, jti string) (*Session, error) {
	fields, err := s.redis.HGetAll(ctx, s.key(jti)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrSessionNotFound
	}
	return decodeFields(jti, fields)
}

// RevokeIfCurrent atomically revokes the session iff it is live and holds
// exactly providedHash, returning the revoked session. Concurrent calls
// with the same stale digest resolve to one ErrRefreshHashMismatch-free
// winner; the rest observe ErrSessionRevoked.
func (s *Store) RevokeIfCurrent(ctx context.Context, jti string, providedHash [32]byte) (*Session, error) {
	result, err := revokeIfCurrentLua.Run(
		ctx,
		s.redis,
		[]string{s.key(jti)},
		hex.EncodeToString(providedHash[:]),
		time.Now().Unix(),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) == 0 {
		return nil, fmt.Errorf("%w: invalid revoke script response", ErrRedisUnavailable)
	}
	code, ok := parts[0].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: invalid revoke script status", ErrRedisUnavailable)
	}

	switch code {
	case revokeStatusNotFound:
		return nil, ErrSessionNotFound
	case revokeStatusRevoked:
		return nil, ErrSessionRevoked
	case revokeStatusMismatch:
		return nil, ErrRefreshHashMismatch
	case revokeStatusOK:
		if len(parts) < 2 {
			return nil, fmt.Errorf("%w: missing revoked session payload", ErrRedisUnavailable)
		}
		flat, ok := parts[1].([]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: invalid revoked session payload", ErrRedisUnavailable)
		}
		fields := make(map[string]string, len(flat)/2)
		for i := 0; i+1 < len(flat); i += 2 {
			k, kok := flat[i].(string)
			v, vok := flat[i+1].(string)
			if !kok || !vok {
				return nil, fmt.Errorf("%w: invalid revoked session field", ErrRedisUnavailable)
			}
			fields[k] = v
		}
		return decodeFields(jti, fields)
	default:
		return nil, fmt.Errorf("%w: unknown revoke script status", ErrRedisUnavailable)
	}
}

// Revoke marks a session revoked regardless of its refresh digest.
// Idempotent in effect; a missing session is not an error.
func (s *Store) Revoke(ctx context.Context, jti string) error {
	if err := revokeLua.Run(ctx, s.redis, []string{s.key(jti)}, time.Now().Unix()).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// RevokeAllForUser revokes every tracked session of a user. Used when a
// password reset completes.
func (s *Store) RevokeAllForUser(ctx context.Context, userID string) error {
	jtis, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	for _, jti := range jtis {
		if err := s.Revoke(ctx, jti); err != nil {
			return err
		}
	}
	return nil
}

// ActiveSessionCount returns how many live sessions a user currently holds.
func (s *Store) ActiveSessionCount(ctx context.Context, userID string) (int, error) {
	jtis, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	live := 0
	for _, jti := range jtis {
		sess, err := s.Get(ctx, jti)
		if err != nil {
			if errors.Is(err, ErrSessionNotFound) {
				continue
			}
			return 0, err
		}
		if !sess.Revoked() {
			live++
		}
	}
	return live, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

func decodeFields(jti string, fields map[string]string) (*Session, error) {
	hashBytes, err := hex.DecodeString(fields["refresh_hash"])
	if err != nil || len(hashBytes) != 32 {
		return nil, errors.New("corrupt session refresh hash")
	}

	sess := &Session{
		ID:        jti,
		UserID:    fields["user_id"],
		IP:        fields["ip"],
		UserAgent: fields["ua"],
	}
	copy(sess.RefreshHash[:], hashBytes)

	if v := fields["created_at"]; v != "" {
		if sess.CreatedAt, err = strconv.ParseInt(v, 10, 64); err != nil {
			return nil, errors.New("corrupt session created_at")
		}
	}
	if v := fields["revoked_at"]; v != "" {
		if sess.RevokedAt, err = strconv.ParseInt(v, 10, 64); err != nil {
			return nil, errors.New("corrupt session revoked_at")
		}
	}
	return sess, nil
}
