// Package redisstore provides a redis session storage implementation.
//
// RedisStore keeps encoded sessions under a key prefix. Expiration is
// delegated to redis key TTLs, so no cleanup loop is needed.
package redisstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultPrefix is prepended to every session id.
const DefaultPrefix = "authguard:session:"

// RedisStore is a redis backed storage for encoded sessions.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
}

// New creates and returns a new RedisStore instance using DefaultPrefix.
func New(rdb redis.UniversalClient) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: DefaultPrefix}
}

// WithPrefix returns a copy of the store using a different key prefix.
func (s *RedisStore) WithPrefix(prefix string) *RedisStore {
	return &RedisStore{rdb: s.rdb, prefix: prefix}
}

// Get retrieves the data stored under id. Returns the data, a boolean
// indicating whether the id was found and not expired, and an error.
func (s *RedisStore) Get(ctx context.Context, id string) ([]byte, bool, error) {
	data, err := s.rdb.Get(ctx, s.prefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return data, true, nil
}

// Set stores data under id with a TTL matching expiresAt. Records already
// past their expiration are deleted instead.
func (s *RedisStore) Set(ctx context.Context, id string, data []byte, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return s.Delete(ctx, id)
	}
	return s.rdb.Set(ctx, s.prefix+id, data, ttl).Err()
}

// Delete removes the data stored under id. Unknown ids are a no-op.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.rdb.Del(ctx, s.prefix+id).Err()
}
