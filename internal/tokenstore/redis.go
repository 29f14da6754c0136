package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const DefaultRedisKey = "cutroom-admin||token"

// RedisStore keeps the token under one redis key, so several admin shells
// on different hosts can share a session.
type RedisStore struct {
	redisClient *redis.Client
	key         string
	ttl         time.Duration // 0 - no expiry
}

func NewRedisStore(redisClient *redis.Client, key string, ttl time.Duration) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{
		redisClient: redisClient,
		key:         key,
		ttl:         ttl,
	}
}

func (s *RedisStore) Load(ctx context.Context) (string, error) {
	token, err := s.redisClient.Get(ctx, s.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("redis get token: %w", err)
	}
	return token, nil
}

func (s *RedisStore) Save(ctx context.Context, token string) error {
	if token == "" {
		return errors.New("refusing to save empty token")
	}
	if err := s.redisClient.Set(ctx, s.key, token, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set token: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.redisClient.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("redis del token: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.redisClient.Close()
}
