package cache

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is the metrics store interface. Job progress, performance snapshots
// and history all go through here. Implementations must be safe for
// concurrent use.
type Cache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error)
	// AppendCapped appends value to the list at key, keeps only the newest
	// max entries and refreshes the key's TTL.
	AppendCapped(ctx context.Context, key string, value []byte, max int64, ttl time.Duration) error
	// Tail returns up to n of the newest list entries, oldest first.
	Tail(ctx context.Context, key string, n int64) ([][]byte, error)
	Stats(ctx context.Context) (Stats, error)
}

// Stats are the store's own counters.
type Stats struct {
	Hits   int64
	Misses int64
	Errors int64
	// Size is the approximate memory used by the store, in bytes.
	Size int64
}

// RedisCache implements the Cache interface using go-redis/v9.
type RedisCache struct {
	client *redis.Client

	hits   atomic.Int64
	misses atomic.Int64
	errors atomic.Int64
}

// NewRedisCache creates a new RedisCache from a Redis URL.
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisCache{client: redis.NewClient(opts)}, nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.track(c.client.Ping(ctx).Err())
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.track(c.client.Set(ctx, key, value, ttl).Err())
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		c.misses.Add(1)
		return nil, false, nil
	}
	if err != nil {
		c.errors.Add(1)
		return nil, false, err
	}
	c.hits.Add(1)
	return val, true, nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.track(c.client.Del(ctx, key).Err())
}

func (c *RedisCache) IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, expiry)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, c.track(err)
	}
	return incr.Val(), nil
}

func (c *RedisCache) AppendCapped(ctx context.Context, key string, value []byte, max int64, ttl time.Duration) error {
	if max <= 0 {
		return fmt.Errorf("append capped: max must be positive, got %d", max)
	}
	pipe := c.client.TxPipeline()
	pipe.RPush(ctx, key, value)
	pipe.LTrim(ctx, key, -max, -1)
	pipe.Expire(ctx, key, ttl)
	_, err := pipe.Exec(ctx)
	return c.track(err)
}

func (c *RedisCache) Tail(ctx context.Context, key string, n int64) ([][]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	vals, err := c.client.LRange(ctx, key, -n, -1).Result()
	if err != nil {
		return nil, c.track(err)
	}
	if len(vals) == 0 {
		c.misses.Add(1)
	} else {
		c.hits.Add(1)
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		out[i] = []byte(v)
	}
	return out, nil
}

// Stats returns hit/miss/error counters and the server's used_memory.
func (c *RedisCache) Stats(ctx context.Context) (Stats, error) {
	st := Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Errors: c.errors.Load(),
	}
	info, err := c.client.Info(ctx, "memory").Result()
	if err != nil {
		return st, c.track(err)
	}
	st.Size = parseUsedMemory(info)
	return st, nil
}

func (c *RedisCache) track(err error) error {
	if err != nil && !errors.Is(err, context.Canceled) {
		c.errors.Add(1)
	}
	return err
}

func parseUsedMemory(info string) int64 {
	sc := bufio.NewScanner(strings.NewReader(info))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		v, ok := strings.CutPrefix(line, "used_memory:")
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0
		}
		return n
	}
	return 0
}

// SetJSON marshals v and stores it at key.
func SetJSON(ctx context.Context, c Cache, key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return c.Set(ctx, key, b, ttl)
}

// GetJSON loads key into v. The bool is false when the key does not exist.
func GetJSON(ctx context.Context, c Cache, key string, v any) (bool, error) {
	b, found, err := c.Get(ctx, key)
	if err != nil || !found {
		return false, err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return true, nil
}
