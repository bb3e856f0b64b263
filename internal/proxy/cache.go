package proxy

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

// Entry is one cached upstream response.
type Entry struct {
	Status      int    `msgpack:"s"`
	ContentType string `msgpack:"c"`
	Body        []byte `msgpack:"b"`
}

type Cache interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, e Entry) error
}

const redisKeyPrefix = "runcheer:proxy:"

// RedisCache shares entries between instances.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) (Entry, bool, error) {
	raw, err := c.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	var e Entry
	if err := msgpack.Unmarshal(raw, &e); err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, e Entry) error {
	raw, err := msgpack.Marshal(e)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, redisKeyPrefix+key, raw, c.ttl).Err()
}

// MemoryCache is used when no Redis is configured.
type MemoryCache struct {
	lru *expirable.LRU[string, Entry]
}

func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	return &MemoryCache{lru: expirable.NewLRU[string, Entry](size, nil, ttl)}
}

func (c *MemoryCache) Get(_ context.Context, key string) (Entry, bool, error) {
	e, ok := c.lru.Get(key)
	return e, ok, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, e Entry) error {
	c.lru.Add(key, e)
	return nil
}
