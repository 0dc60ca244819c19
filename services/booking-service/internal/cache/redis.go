package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a JSON cache with per-owner generations. Bumping an owner's generation orphans
// every key built from the previous one; orphans age out through their TTL.
type Redis struct {
	rdb    redis.Cmdable
	prefix string
}

func NewRedis(rdb redis.Cmdable, prefix string) *Redis {
	if prefix == "" {
		prefix = "booking"
	}
	return &Redis{rdb: rdb, prefix: prefix}
}

func (c *Redis) key(parts ...string) string {
	k := c.prefix
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

// GetJSON decodes the value at key into dst. A miss returns false with a nil error.
func (c *Redis) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := c.rdb.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Redis) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, c.key(key), raw, ttl).Err()
}

func (c *Redis) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, 0, len(keys))
	for _, k := range keys {
		full = append(full, c.key(k))
	}
	return c.rdb.Del(ctx, full...).Err()
}

func (c *Redis) Generation(ctx context.Context, ownerID string) (int64, error) {
	v, err := c.rdb.Get(ctx, c.key("gen", ownerID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(v, 10, 64)
}

func (c *Redis) BumpGeneration(ctx context.Context, ownerID string) error {
	return c.rdb.Incr(ctx, c.key("gen", ownerID)).Err()
}

func (c *Redis) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Store is the subset of the cache the services depend on.
type Store interface {
	GetJSON(ctx context.Context, key string, dst any) (bool, error)
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Generation(ctx context.Context, ownerID string) (int64, error)
	BumpGeneration(ctx context.Context, ownerID string) error
}

var _ Store = (*Redis)(nil)
