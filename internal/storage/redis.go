package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type redisStore struct {
	redisClient *redis.Client
	keyPrefix   string
}

func NewRedisStore(redisClient *redis.Client, keyPrefix string) Store {
	return &redisStore{
		redisClient: redisClient,
		keyPrefix:   keyPrefix,
	}
}

func (s *redisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.redisClient.Get(ctx, s.keyPrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get cache slot %s: %w", key, err)
	}

	return val, true, nil
}

func (s *redisStore) Set(ctx context.Context, key, value string) error {
	// No expiration, freshness is checked when the slot is read
	err := s.redisClient.Set(ctx, s.keyPrefix+key, value, 0).Err()
	if err != nil {
		return fmt.Errorf("failed to set cache slot %s: %w", key, err)
	}
	return nil
}
