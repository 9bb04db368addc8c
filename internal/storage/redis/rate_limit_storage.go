// Package redis stores the rate-limit ledger in Redis so several instances
// share one view of provider throttling.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ternarybob/arbor"

	"github.com/MatusBehul/veloryn/internal/common"
	"github.com/MatusBehul/veloryn/internal/models"
)

// RateLimitStorage keeps one sorted set per event kind, scored by unix milliseconds.
type RateLimitStorage struct {
	client *redis.Client
	prefix string
	logger arbor.ILogger
}

// NewRateLimitStorage connects to Redis and verifies the connection.
func NewRateLimitStorage(ctx context.Context, cfg common.LedgerConfig, logger arbor.ILogger) (*RateLimitStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logger.Info().Str("addr", cfg.RedisAddr).Msg("Redis rate limit ledger connected")

	return NewRateLimitStorageWithClient(client, cfg.RedisKey, logger), nil
}

// NewRateLimitStorageWithClient wraps an existing client.
func NewRateLimitStorageWithClient(client *redis.Client, prefix string, logger arbor.ILogger) *RateLimitStorage {
	if prefix == "" {
		prefix = "veloryn:ledger"
	}
	return &RateLimitStorage{
		client: client,
		prefix: prefix,
		logger: logger,
	}
}

func (s *RateLimitStorage) key(kind string) string {
	return s.prefix + ":" + kind
}

func (s *RateLimitStorage) AppendRateLimitEvent(ctx context.Context, event *models.RateLimitEvent) error {
	if event.ID == "" {
		return fmt.Errorf("rate limit event ID is required")
	}

	member, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal rate limit event: %w", err)
	}

	// NX keeps existing members untouched
	if err := s.client.ZAddNX(ctx, s.key(event.Kind), redis.Z{
		Score:  float64(event.Timestamp.UnixMilli()),
		Member: string(member),
	}).Err(); err != nil {
		return fmt.Errorf("failed to append rate limit event: %w", err)
	}
	return nil
}

func (s *RateLimitStorage) ListRateLimitEvents(ctx context.Context, kind string, since time.Time, limit int) ([]*models.RateLimitEvent, error) {
	opt := &redis.ZRangeBy{
		Min: strconv.FormatInt(since.UnixMilli(), 10),
		Max: "+inf",
	}
	if limit > 0 {
		opt.Count = int64(limit)
	}

	members, err := s.client.ZRevRangeByScore(ctx, s.key(kind), opt).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query rate limit events: %w", err)
	}

	events := make([]*models.RateLimitEvent, 0, len(members))
	for _, member := range members {
		var event models.RateLimitEvent
		if err := json.Unmarshal([]byte(member), &event); err != nil {
			s.logger.Warn().Err(err).Str("kind", kind).Msg("Skipping undecodable ledger entry")
			continue
		}
		events = append(events, &event)
	}
	return events, nil
}

// Close closes the Redis client
func (s *RateLimitStorage) Close() error {
	return s.client.Close()
}
