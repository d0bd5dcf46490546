package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache — TTL-кэш для тяжёлых read-only отчётов. Get возвращает "" на
// промахе, ошибки кэша не фатальны для вызывающего.
type Cache interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Key(operation, suffix string) string
}

type redisCache struct {
	client *redis.Client
}

func NewRedisCache(addr, password string, db int) Cache {
	return &redisCache{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db}),
	}
}

func (r *redisCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *redisCache) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

func (r *redisCache) Key(operation, suffix string) string {
	return fmt.Sprintf("ordina:%s:%s", operation, suffix)
}
