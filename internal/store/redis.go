package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

type RedisKV struct {
	client *redis.Client
}

var _ KV = (*RedisKV)(nil)

func NewRedisKV(client *redis.Client) *RedisKV {
	return &RedisKV{client: client}
}

func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "redis get %s", key)
	}
	return b, nil
}

func (r *RedisKV) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	return errors.Wrapf(r.client.Set(ctx, key, val, ttl).Err(), "redis set %s", key)
}

func (r *RedisKV) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return errors.Wrap(r.client.Del(ctx, keys...).Err(), "redis del")
}

func (r *RedisKV) Scan(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, prefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, errors.Wrapf(err, "redis scan %s*", prefix)
	}
	return keys, nil
}

func (r *RedisKV) IncrByFloat(ctx context.Context, key string, delta float64) (float64, error) {
	v, err := r.client.IncrByFloat(ctx, key, delta).Result()
	if err != nil {
		return 0, errors.Wrapf(err, "redis incrbyfloat %s", key)
	}
	return v, nil
}

func (r *RedisKV) RPush(ctx context.Context, key string, val []byte) error {
	return errors.Wrapf(r.client.RPush(ctx, key, val).Err(), "redis rpush %s", key)
}

func (r *RedisKV) LRange(ctx context.Context, key string) ([][]byte, error) {
	vals, err := r.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "redis lrange %s", key)
	}
	out := make([][]byte, 0, len(vals))
	for _, v := range vals {
		out = append(out, []byte(v))
	}
	return out, nil
}

func (r *RedisKV) LTrimHead(ctx context.Context, key string, n int) error {
	if n <= 0 {
		return nil
	}
	return errors.Wrapf(r.client.LTrim(ctx, key, int64(n), -1).Err(), "redis ltrim %s", key)
}
