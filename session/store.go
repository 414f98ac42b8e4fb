package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned by Load when no record exists for the key.
var ErrNotFound = errors.New("session not found")

// ErrRedisUnavailable wraps Redis transport failures.
var ErrRedisUnavailable = errors.New("redis unavailable")

// Store persists at most one [Record] per key.
type Store interface {
	Save(ctx context.Context, key string, r *Record) error
	Load(ctx context.Context, key string) (*Record, error)
	Delete(ctx context.Context, key string) error
}

const minRecordTTL = time.Second

// RedisStore keeps records in Redis. Records whose token expiry is known are
// written with a TTL ending at that expiry.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisStore returns a store writing keys under prefix. ttl applies to
// records with no known expiry; zero keeps them until deleted.
func NewRedisStore(rdb redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "rc"
	}
	return &RedisStore{redis: rdb, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(key string) string {
	return s.prefix + ":sess:" + key
}

// Save writes r under key, replacing any existing record. An already expired
// record deletes the key instead.
func (s *RedisStore) Save(ctx context.Context, key string, r *Record) error {
	blob, err := Encode(r)
	if err != nil {
		return err
	}

	ttl := r.TTL(time.Now(), s.ttl)
	if r.ExpiresAt != 0 && ttl <= 0 {
		return s.Delete(ctx, key)
	}
	if r.ExpiresAt != 0 && ttl < minRecordTTL {
		ttl = minRecordTTL
	}

	if err := s.redis.Set(ctx, s.key(key), blob, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Load reads the record under key. A corrupt blob is deleted and reported as
// [ErrCorrupt].
func (s *RedisStore) Load(ctx context.Context, key string) (*Record, error) {
	blob, err := s.redis.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	r, err := Decode(blob)
	if err != nil {
		_ = s.redis.Del(ctx, s.key(key)).Err()
		return nil, err
	}
	return r, nil
}

// Delete removes the record under key. Deleting a missing key is not an error.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.redis.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
