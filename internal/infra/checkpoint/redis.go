// Package checkpoint persists poll cursors in Redis so a restarted watch
// resumes where the previous session left off instead of rescanning.
package checkpoint

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`

	// TTL bounds how long a stale cursor survives. Zero means no expiry.
	TTL time.Duration `yaml:"ttl"`
}

// RedisStore is a best-effort cursor store. Callers treat failures as a
// cold start, never as a monitor failure.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg Config) (*RedisStore, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{rdb: rdb, ttl: cfg.TTL}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func cursorKey(key string) string {
	return fmt.Sprintf("paywatch:%s", key)
}

// Load returns the stored cursor, or empty when none exists.
func (s *RedisStore) Load(ctx context.Context, key string) (string, error) {
	val, err := s.rdb.Get(ctx, cursorKey(key)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get failed: %w", err)
	}
	return val, nil
}

// Save stores the cursor, refreshing its TTL.
func (s *RedisStore) Save(ctx context.Context, key, cursor string) error {
	if err := s.rdb.Set(ctx, cursorKey(key), cursor, s.ttl).Err(); err != nil {
		return fmt.Errorf("set failed: %w", err)
	}
	return nil
}

// Delete removes a stored cursor so the next session cold-starts.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, cursorKey(key)).Err(); err != nil {
		return fmt.Errorf("del failed: %w", err)
	}
	return nil
}
