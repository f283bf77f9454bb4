package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps last-activity timestamps in Redis so they survive process
// restarts on the same device.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates an ActivityStore backed by the given Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func activityKey(principalID string) string {
	return "session:last-activity:" + principalID
}

func (s *RedisStore) LastActivity(ctx context.Context, principalID string) (time.Time, bool, error) {
	val, err := s.client.Get(ctx, activityKey(principalID)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("reading last activity: %w", err)
	}

	at, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parsing last activity: %w", err)
	}
	return at, true, nil
}

func (s *RedisStore) SetLastActivity(ctx context.Context, principalID string, at time.Time) error {
	val := at.UTC().Format(time.RFC3339Nano)
	if err := s.client.Set(ctx, activityKey(principalID), val, 0).Err(); err != nil {
		return fmt.Errorf("writing last activity: %w", err)
	}
	return nil
}

func (s *RedisStore) ClearLastActivity(ctx context.Context, principalID string) error {
	if err := s.client.Del(ctx, activityKey(principalID)).Err(); err != nil {
		return fmt.Errorf("clearing last activity: %w", err)
	}
	return nil
}
