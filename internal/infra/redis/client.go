package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps Redis operations for the data snapshot cache: the latest
// payload per channel key, so a restarted dashboard warm-starts instead
// of showing an empty screen until the first update arrives.
type Client struct {
	rdb *redis.Client
	ttl time.Duration
}

// Config holds Redis connection configuration.
type Config struct {
	URL         string        `yaml:"url"`
	Password    string        `yaml:"password"`
	SnapshotTTL time.Duration `yaml:"snapshot_ttl"`
}

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	ttl := cfg.SnapshotTTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	return &Client{rdb: rdb, ttl: ttl}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

func snapshotKey(channel string) string {
	return fmt.Sprintf("snapshot:%s", channel)
}

// Save stores the latest payload for a channel.
func (c *Client) Save(ctx context.Context, channel string, payload []byte) error {
	if err := c.rdb.Set(ctx, snapshotKey(channel), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// Load returns the latest payload for a channel, or nil when none exists.
func (c *Client) Load(ctx context.Context, channel string) ([]byte, error) {
	payload, err := c.rdb.Get(ctx, snapshotKey(channel)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return payload, nil
}
