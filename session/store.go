package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrStoreUnavailable is returned when the backing store cannot be reached.
var ErrStoreUnavailable = errors.New("session store unavailable")

// ErrCorrupt is returned when a persisted session cannot be decoded or unsealed.
var ErrCorrupt = errors.New("persisted session corrupt")

// DefaultStorageKey is the key a session is persisted under when none is configured.
const DefaultStorageKey = "sb-auth-token"

// Store persists at most one session for the device.
//
// Load returns (nil, nil) when nothing is stored. Remove is idempotent.
type Store interface {
	Load(ctx context.Context) (*Session, error)
	Save(ctx context.Context, sess *Session) error
	Remove(ctx context.Context) error
}

// RedisStore is a Redis-backed [Store]. It is meant for headless deployments
// (kiosks, CLIs on shared hosts) where the device state lives outside the process.
type RedisStore struct {
	redis     redis.UniversalClient
	key       string
	retention time.Duration
	now       func() time.Time
}

// NewRedisStore creates a [RedisStore]. prefix namespaces the key, storageKey names the
// session slot, and retention bounds how long a blob is kept past access-token expiry
// (zero keeps it until removed).
func NewRedisStore(client redis.UniversalClient, prefix, storageKey string, retention time.Duration) *RedisStore {
	if storageKey == "" {
		storageKey = DefaultStorageKey
	}
	key := storageKey
	if prefix != "" {
		key = prefix + ":" + storageKey
	}
	return &RedisStore{
		redis:     client,
		key:       key,
		retention: retention,
		now:       time.Now,
	}
}

// Load fetches and decodes the stored session.
//
//	Performance: 1 Redis GET.
func (s *RedisStore) Load(ctx context.Context) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return sess, nil
}

// Save encodes and stores the session, replacing any previous one.
//
//	Performance: 1 Redis SET.
func (s *RedisStore) Save(ctx context.Context, sess *Session) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key, data, s.ttl(sess)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Remove deletes the stored session. Removing an absent session is not an error.
func (s *RedisStore) Remove(ctx context.Context) error {
	if err := s.redis.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *RedisStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return time.Since(start), nil
}

func (s *RedisStore) ttl(sess *Session) time.Duration {
	if s.retention <= 0 || sess.ExpiresAt == 0 {
		return 0
	}
	remaining := time.Unix(sess.ExpiresAt, 0).Sub(s.now())
	if remaining < 0 {
		remaining = 0
	}
	return remaining + s.retention
}
