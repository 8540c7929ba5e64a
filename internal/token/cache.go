package token

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/go-redis/redis/v8"
)

// signature validity never changes, but a bounded TTL keeps the keyspace
// from growing without limit
const cacheTTL = 5 * time.Minute

// RedisCache memoizes signature validity in Redis. Keys are hashes of
// the full token so arbitrary token bytes never become Redis keys. A
// Redis failure degrades to recomputation, never to a wrong answer.
type RedisCache struct {
	Client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{Client: client}
}

func cacheKey(tok string) string {
	sum := sha256.Sum256([]byte(tok))
	return "qr:sig:" + hex.EncodeToString(sum[:])
}

func (c *RedisCache) GetValid(tok string) bool {
	if c.Client == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	val, err := c.Client.Get(ctx, cacheKey(tok)).Result()
	return err == nil && val == "1"
}

func (c *RedisCache) SetValid(tok string) {
	if c.Client == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_ = c.Client.Set(ctx, cacheKey(tok), "1", cacheTTL).Err()
}
