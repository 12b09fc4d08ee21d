package storage

import (
	"context"
	"errors"
	"io"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

// Blobs is the storage surface URLCache wraps.
type Blobs interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, keys ...string) error
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// cached URLs expire this long before the signature does
const urlCacheMargin = time.Minute

// URLCache keeps presigned URLs in redis so repeated content reads reuse them.
// Redis errors fall through to the wrapped store.
type URLCache struct {
	Blobs
	Redis *redis.Client
}

func NewRedis(addr string) *redis.Client {
	opt, err := redis.ParseURL(addr)
	if err != nil {
		opt = &redis.Options{Addr: addr}
	}
	return redis.NewClient(opt)
}

func cacheKey(key string) string { return "signed-url:" + key }

func cacheTTL(ttl time.Duration) time.Duration {
	if ttl > 2*urlCacheMargin {
		return ttl - urlCacheMargin
	}
	return ttl / 2
}

func (c *URLCache) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	url, err := c.Redis.Get(ctx, cacheKey(key)).Result()
	if err == nil {
		return url, nil
	}
	if !errors.Is(err, redis.Nil) {
		log.Printf("signed url cache get %s: %v\n", key, err)
	}

	url, err = c.Blobs.SignedURL(ctx, key, ttl)
	if err != nil {
		return "", err
	}
	if err := c.Redis.Set(ctx, cacheKey(key), url, cacheTTL(ttl)).Err(); err != nil {
		log.Printf("signed url cache set %s: %v\n", key, err)
	}
	return url, nil
}

func (c *URLCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) > 0 {
		ck := make([]string, 0, len(keys))
		for _, k := range keys {
			ck = append(ck, cacheKey(k))
		}
		if err := c.Redis.Del(ctx, ck...).Err(); err != nil {
			log.Printf("signed url cache del: %v\n", err)
		}
	}
	return c.Blobs.Delete(ctx, keys...)
}
