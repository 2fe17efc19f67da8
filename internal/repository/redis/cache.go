package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// genTTL bounds how long a generation counter outlives its last bump.
const genTTL = 24 * time.Hour

// Writes the value only while the generation still matches the one read
// before loading it. A missing generation counts as "0".
// KEYS[1] = value key
// KEYS[2] = generation key
// ARGV[1] = generation seen by the loader
// ARGV[2] = value
// ARGV[3] = ttl_ms
const luaSetIfGeneration = `
local cur = redis.call('GET', KEYS[2])
if not cur then cur = '0' end
if cur ~= ARGV[1] then
  return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`

// Cache stores JSON documents in Redis. Every document has a generation
// counter next to it; bumping the counter drops the document and keeps
// loads that started earlier from writing it back.
type Cache struct {
	rdb      *redis.Client
	sf       singleflight.Group
	setIfGen *redis.Script
}

func New(client *redis.Client) *Cache {
	return &Cache{rdb: client, setIfGen: redis.NewScript(luaSetIfGeneration)}
}

func (c *Cache) GetString(ctx context.Context, key string) (string, bool, error) {
	s, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}

	if err != nil {
		return "", false, err
	}

	return s, true, nil
}

func GetJSON[T any](ctx context.Context, c *Cache, key string) (T, bool, error) {
	var zero T

	s, ok, err := c.GetString(ctx, key)
	if err != nil || !ok {
		return zero, ok, err
	}

	var out T
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return zero, false, err
	}

	return out, true, nil
}

// GetOrSetJSON returns the cached value under key or loads, stores and
// returns it. Concurrent misses for one key share a single loader call.
// The loaded value is stored only if genKey did not change while the
// loader ran. Loader errors are returned as is and never cached. A failing
// Redis read falls through to the loader.
func GetOrSetJSON[T any](
	ctx context.Context,
	c *Cache,
	key, genKey string,
	ttl time.Duration,
	loader func(ctx context.Context) (T, error),
) (T, error) {
	if v, ok, err := GetJSON[T](ctx, c, key); err == nil && ok {
		return v, nil
	}

	vAny, err, _ := c.sf.Do(key, func() (any, error) {
		gen, genErr := c.generation(ctx, genKey)

		v, err := loader(ctx)
		if err != nil {
			return nil, err
		}

		if genErr == nil {
			_, _ = c.setIfGeneration(ctx, key, genKey, gen, v, ttl)
		}

		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}

	v, ok := vAny.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("cache: unexpected %T for %s", vAny, key)
	}

	return v, nil
}

func (c *Cache) generation(ctx context.Context, genKey string) (string, error) {
	gen, err := c.rdb.Get(ctx, genKey).Result()
	if errors.Is(err, redis.Nil) {
		return "0", nil
	}

	return gen, err
}

func (c *Cache) setIfGeneration(
	ctx context.Context,
	key, genKey, gen string,
	val any,
	ttl time.Duration,
) (bool, error) {
	b, err := json.Marshal(val)
	if err != nil {
		return false, err
	}

	n, err := c.setIfGen.Run(ctx, c.rdb, []string{key, genKey}, gen, string(b), ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}

	return n == 1, nil
}

// Bump advances the generation under genKey and drops key.
func (c *Cache) Bump(ctx context.Context, key, genKey string) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey)
		pipe.Expire(ctx, genKey, genTTL)
		pipe.Del(ctx, key)
		return nil
	})

	return err
}

// InvalidateBooking drops the cached booking view of a user. Views loaded
// before the call are not stored afterwards.
func (c *Cache) InvalidateBooking(ctx context.Context, userID int64) error {
	return c.Bump(ctx, KeyUserBooking(userID), KeyUserBookingGen(userID))
}
