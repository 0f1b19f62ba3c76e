package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// OpenState is the dedup record for an Open alert, keyed by
// (station, sensor, alert type).
type OpenState struct {
	AlertID  string    `json:"alert_id"`
	OpenedAt time.Time `json:"opened_at"`
}

// StateStore tracks which dedup keys currently have an Open alert.
// SetIfAbsent must be atomic: exactly one of any set of concurrent claims
// for the same key succeeds.
type StateStore interface {
	Get(ctx context.Context, dedupKey string) (*OpenState, error)
	SetIfAbsent(ctx context.Context, dedupKey string, state *OpenState) (bool, error)
	Delete(ctx context.Context, dedupKey string) error
}

// RedisStateStore keeps open-alert state in Redis so dedup survives engine
// restarts. Entries expire after ttl as a guard against leaked keys.
type RedisStateStore struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewRedisStateStore creates a Redis-backed state store.
func NewRedisStateStore(redisClient *redis.Client, ttl time.Duration) *RedisStateStore {
	return &RedisStateStore{redis: redisClient, ttl: ttl}
}

func (s *RedisStateStore) key(dedupKey string) string {
	return fmt.Sprintf("spc:alert_open:%s", dedupKey)
}

// Get returns the open-alert state for a dedup key, or nil when none exists.
func (s *RedisStateStore) Get(ctx context.Context, dedupKey string) (*OpenState, error) {
	data, err := s.redis.Get(ctx, s.key(dedupKey)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert state from Redis: %w", err)
	}

	var state OpenState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal alert state: %w", err)
	}
	return &state, nil
}

// SetIfAbsent records an Open alert for a dedup key unless one is already
// recorded. Redis SETNX makes the claim atomic across engine instances.
func (s *RedisStateStore) SetIfAbsent(ctx context.Context, dedupKey string, state *OpenState) (bool, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return false, fmt.Errorf("failed to marshal alert state: %w", err)
	}
	claimed, err := s.redis.SetNX(ctx, s.key(dedupKey), data, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to set alert state in Redis: %w", err)
	}
	return claimed, nil
}

// Delete clears the open-alert state for a dedup key.
func (s *RedisStateStore) Delete(ctx context.Context, dedupKey string) error {
	return s.redis.Del(ctx, s.key(dedupKey)).Err()
}
