package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Stores a loaded value only if the key's generation is unchanged since the
// load started, so a load that raced an invalidation cannot write back.
//
// KEYS[1] = value key, KEYS[2] = generation key
// ARGV[1] = generation seen by the loader, ARGV[2] = value, ARGV[3] = ttl_ms
const luaSetIfGeneration = `
local gen = redis.call('GET', KEYS[2]) or '0'
if gen ~= ARGV[1] then
  return 0
end
if tonumber(ARGV[3]) > 0 then
  redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
else
  redis.call('SET', KEYS[1], ARGV[2])
end
return 1
`

const defaultLoadTimeout = 5 * time.Second

// Cache is a JSON read-through cache. A nil *Cache is valid and caches nothing.
type Cache struct {
	rdb         *redis.Client
	sf          singleflight.Group
	setIfGen    *redis.Script
	loadTimeout time.Duration
}

// New returns a cache over client. loadTimeout bounds a shared load, which
// runs detached from the caller that started it; zero means 5s.
func New(client *redis.Client, loadTimeout time.Duration) *Cache {
	if loadTimeout <= 0 {
		loadTimeout = defaultLoadTimeout
	}

	return &Cache{
		rdb:         client,
		setIfGen:    redis.NewScript(luaSetIfGeneration),
		loadTimeout: loadTimeout,
	}
}

func genKey(key string) string {
	return key + ":gen"
}

func (c *Cache) get(ctx context.Context, key string, dst any) (bool, error) {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := json.Unmarshal(b, dst); err != nil {
		return false, err
	}

	return true, nil
}

func (c *Cache) generation(ctx context.Context, key string) (int64, error) {
	n, err := c.rdb.Get(ctx, genKey(key)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

func (c *Cache) setIfGeneration(ctx context.Context, key string, gen int64, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}

	return c.setIfGen.Run(ctx, c.rdb,
		[]string{key, genKey(key)},
		strconv.FormatInt(gen, 10), b, ttl.Milliseconds(),
	).Err()
}

// GetOrSetJSON returns the cached value under key or loads, stores and returns
// it. Concurrent misses on one key share a single load, which is not cancelled
// when the caller that started it goes away. A cache error falls through to
// the loader, so the cache never decides availability.
func GetOrSetJSON[T any](
	ctx context.Context,
	c *Cache,
	key string,
	ttl time.Duration,
	loader func(ctx context.Context) (T, error),
) (T, error) {
	if c == nil {
		return loader(ctx)
	}

	var cached T
	if ok, err := c.get(ctx, key, &cached); err == nil && ok {
		return cached, nil
	}

	res := c.sf.DoChan(key, func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout)
		defer cancel()

		gen, genErr := c.generation(lctx, key)

		loaded, err := loader(lctx)
		if err != nil {
			return nil, err
		}

		if genErr == nil {
			_ = c.setIfGeneration(lctx, key, gen, loaded, ttl)
		}
		return loaded, nil
	})

	var r singleflight.Result
	select {
	case r = <-res:
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}

	if r.Err != nil {
		var zero T
		return zero, r.Err
	}

	out, ok := r.Val.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("redis.GetOrSetJSON: unexpected %T under %s", r.Val, key)
	}

	return out, nil
}

// InvalidateVenue drops the cached availability of a venue. Bumping the
// generation stops a load already in flight from storing what it read, and
// forgetting the load makes later readers start a fresh one.
func (c *Cache) InvalidateVenue(ctx context.Context, venueID int64) error {
	if c == nil {
		return nil
	}

	key := KeyVenueAvailability(venueID)
	c.sf.Forget(key)

	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, genKey(key))
		p.Del(ctx, key)
		return nil
	})
	return err
}
