package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	idemLock      = "LOCK"
	idemResPrefix = "RES:"
)

// IdempotencyStore remembers the response of a request under a client
// supplied key. A key is either locked while the first request runs or
// holds the saved response.
type IdempotencyStore struct {
	rdb     *redis.Client
	ttl     time.Duration
	lockTTL time.Duration
}

func NewIdempotencyStore(rdb *redis.Client, ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &IdempotencyStore{rdb: rdb, ttl: ttl, lockTTL: time.Minute}
}

// AcquireLock takes key for the calling request. It returns false if another
// request holds the lock or already saved a result.
func (s *IdempotencyStore) AcquireLock(ctx context.Context, key string) (bool, error) {
	return s.rdb.SetNX(ctx, key, idemLock, s.lockTTL).Result()
}

// SaveResult replaces the lock with the final response.
func (s *IdempotencyStore) SaveResult(ctx context.Context, key string, jsonPayload string) error {
	return s.rdb.Set(ctx, key, idemResPrefix+jsonPayload, s.ttl).Err()
}

func (s *IdempotencyStore) GetResult(ctx context.Context, key string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if strings.HasPrefix(v, idemResPrefix) {
		return strings.TrimPrefix(v, idemResPrefix), true, nil
	}

	return "", false, nil
}

// Release frees the key so that the request can be retried with it.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}
