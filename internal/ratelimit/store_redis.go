package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"chatpilot.io/pilot/internal/domain"
)

const (
	fieldCount       = "count"
	fieldWindowStart = "window_start_ms"
)

// RedisStore keeps each window in a hash with a TTL of two window lengths so
// idle keys expire on their own.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

// NewRedisStore creates a RedisStore. An empty prefix defaults to "chatpilot:ratelimit".
func NewRedisStore(client redis.UniversalClient, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "chatpilot:ratelimit"
	}
	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       2 * domain.RateLimitWindowLength,
	}
}

func (s *RedisStore) key(botID, ip string) string {
	return fmt.Sprintf("%s:%s:%s", s.keyPrefix, botID, ip)
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, botID, ip string) (*domain.RateLimitWindow, error) {
	vals, err := s.client.HGetAll(ctx, s.key(botID, ip)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	// A partial hash means the key expired between Get and Increment.
	if len(vals) == 0 || vals[fieldWindowStart] == "" {
		return nil, nil
	}

	count, err := strconv.Atoi(vals[fieldCount])
	if err != nil {
		return nil, fmt.Errorf("parse window count: %w", err)
	}
	startMs, err := strconv.ParseInt(vals[fieldWindowStart], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse window start: %w", err)
	}
	return &domain.RateLimitWindow{
		BotID:       botID,
		IP:          ip,
		Count:       count,
		WindowStart: time.UnixMilli(startMs).UTC(),
	}, nil
}

// Reset implements Store.
func (s *RedisStore) Reset(ctx context.Context, botID, ip string, start time.Time) error {
	key := s.key(botID, ip)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fieldCount, 1, fieldWindowStart, start.UnixMilli())
		pipe.PExpire(ctx, key, s.ttl)
		return nil
	})
	return err
}

// Increment implements Store.
func (s *RedisStore) Increment(ctx context.Context, botID, ip string) error {
	return s.client.HIncrBy(ctx, s.key(botID, ip), fieldCount, 1).Err()
}
