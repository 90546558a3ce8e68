// This file implements a Redis-backed transcript store: one JSON document per entry in a list.

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/ultimatebot/ultimatebot/internal/models"
)

// DefaultRedisKey is the list that holds the transcript.
const DefaultRedisKey = "ultimatebot:transcript"

// RedisStore appends transcript entries to a Redis list.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, opts ...Option) (*RedisStore, error) {
	cfg := Opts{RedisKey: DefaultRedisKey}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("redis URL not set")
	}

	redisOpts, err := redis.ParseURL(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	client := redis.NewClient(redisOpts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	slog.Debug("NewRedisStore: connected", "addr", redisOpts.Addr, "key", cfg.RedisKey)
	return &RedisStore{client: client, key: cfg.RedisKey}, nil
}

// SaveEntries pushes entries to the tail of the list in one round trip.
// Unlike the SQL stores it does not skip IDs that were pushed before.
func (s *RedisStore) SaveEntries(ctx context.Context, entries []models.TranscriptEntry) error {
	if len(entries) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(entries))
	for _, e := range entries {
		b, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal entry %s: %w", e.ID, err)
		}
		values = append(values, b)
	}
	if err := s.client.RPush(ctx, s.key, values...).Err(); err != nil {
		slog.Error("RedisStore SaveEntries failed", "error", err, "key", s.key)
		return fmt.Errorf("failed to push transcript entries: %w", err)
	}
	slog.Debug("RedisStore SaveEntries succeeded", "count", len(entries))
	return nil
}

func (s *RedisStore) ListEntries(ctx context.Context, limit int) ([]models.TranscriptEntry, error) {
	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}
	raw, err := s.client.LRange(ctx, s.key, start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read transcript entries: %w", err)
	}
	entries := make([]models.TranscriptEntry, 0, len(raw))
	for _, r := range raw {
		var e models.TranscriptEntry
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			return nil, fmt.Errorf("failed to decode transcript entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
