package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	TagNamesRedisKey = "tags:names"
	// TagGenRedisKey is bumped by every Invalidate.
	TagGenRedisKey = "tags:gen"
)

// ErrStale is returned by Set when the cache was invalidated after the Get
// that produced gen. Nothing is written.
var ErrStale = errors.New("cache: tag list changed since read")

// TagCache stores the flat list of tag names.
//
// Get reports the current generation even on a miss. A caller that fills the
// cache after a miss passes that generation to Set, so a list read before a
// concurrent Invalidate is never written back.
type TagCache interface {
	Get(ctx context.Context) (names []string, gen int64, ok bool, err error)
	Set(ctx context.Context, names []string, gen int64) error
	Invalidate(ctx context.Context) error
}

type RedisTagCache struct {
	redisClient *redis.Client
	ttl         time.Duration
}

func NewRedisTagCache(options *redis.Options, ttl time.Duration) *RedisTagCache {
	return &RedisTagCache{
		redisClient: redis.NewClient(options),
		ttl:         ttl,
	}
}

// Ping checks the connection so startup can fail fast.
func (c *RedisTagCache) Ping(ctx context.Context) error {
	return c.redisClient.Ping(ctx).Err()
}

// Get reads the names and the generation in one MGET.
func (c *RedisTagCache) Get(ctx context.Context) ([]string, int64, bool, error) {
	vals, err := c.redisClient.MGet(ctx, TagNamesRedisKey, TagGenRedisKey).Result()
	if err != nil {
		return nil, 0, false, err
	}

	gen, err := parseGen(vals[1])
	if err != nil {
		return nil, 0, false, err
	}

	raw, ok := vals[0].(string)
	if !ok {
		return nil, gen, false, nil
	}
	var names []string
	if err := json.Unmarshal([]byte(raw), &names); err != nil {
		return nil, gen, false, err
	}
	return names, gen, true, nil
}

// Set writes names only while the generation still equals gen. The WATCH on
// the generation key aborts the write if Invalidate runs in between.
func (c *RedisTagCache) Set(ctx context.Context, names []string, gen int64) error {
	if names == nil {
		names = []string{}
	}
	data, err := json.Marshal(names)
	if err != nil {
		return err
	}

	err = c.redisClient.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, TagGenRedisKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != gen {
			return ErrStale
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, TagNamesRedisKey, data, c.ttl)
			return nil
		})
		return err
	}, TagGenRedisKey)

	if errors.Is(err, redis.TxFailedErr) {
		return ErrStale
	}
	return err
}

// Invalidate drops the names and bumps the generation atomically.
func (c *RedisTagCache) Invalidate(ctx context.Context) error {
	_, err := c.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, TagGenRedisKey)
		pipe.Del(ctx, TagNamesRedisKey)
		return nil
	})
	return err
}

func (c *RedisTagCache) Close() error {
	return c.redisClient.Close()
}

func parseGen(v interface{}) (int64, error) {
	s, ok := v.(string)
	if !ok {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}
