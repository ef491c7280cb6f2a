package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the session map in a redis hash, for deployments where the
// client state must survive the local filesystem (kiosk/multi-device setups).
// Selected when REDIS_ADDR is configured.
type RedisStore struct {
	rdb *redis.Client
	key string
}

// NewRedisStore connects to addr and scopes all keys under hashKey.
func NewRedisStore(addr, hashKey string) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	if hashKey == "" {
		hashKey = "quizbox:session"
	}
	return &RedisStore{rdb: rdb, key: hashKey}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string, out any) error {
	raw, err := s.rdb.HGet(ctx, s.key, key).Result()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("decode value for %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode value for %s: %w", key, err)
	}
	if err := s.rdb.HSet(ctx, s.key, key, raw).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.rdb.HDel(ctx, s.key, key).Err(); err != nil {
		return fmt.Errorf("redis delete %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.rdb.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("redis clear: %w", err)
	}
	return nil
}

// Close releases the redis connection.
func (s *RedisStore) Close() error { return s.rdb.Close() }
