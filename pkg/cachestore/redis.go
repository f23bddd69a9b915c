package cachestore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisScanBatch = 256

// RedisStore is a Store backed by a Redis server, for deployments
// where several server processes share one cache. Entry expiry maps
// directly onto Redis key TTLs.
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisStore connects to the Redis server at addr ("host:port").
func NewRedisStore(addr string) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		now:    time.Now,
	}
}

// Close releases the client's connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping verifies the server is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *RedisStore) Put(ctx context.Context, key string, expires time.Time, value []byte) error {
	ttl := expires.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *RedisStore) Purge(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

func (s *RedisStore) PurgePrefix(ctx context.Context, prefix string) error {
	iter := s.client.Scan(ctx, 0, prefix+"*", redisScanBatch).Iterator()
	batch := make([]string, 0, redisScanBatch)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == redisScanBatch {
			if err := s.client.Del(ctx, batch...).Err(); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		return s.client.Del(ctx, batch...).Err()
	}
	return nil
}
