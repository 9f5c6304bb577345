package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/washpoint/carwash/config"
	"github.com/washpoint/carwash/pkg/logger"
	"go.uber.org/zap"
)

// Client wraps the redis connection with JSON get/set helpers. The auth
// service uses it as a read-through cache in front of the users table.
type Client struct {
	rdb *redis.Client
}

func NewClient(cfg *config.Config) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddress(),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.Database,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
		PoolTimeout:  cfg.Redis.PoolTimeout,
	})

	client := &Client{rdb: rdb}

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx); err != nil {
		logger.GetLogger().Error("Failed to connect to Redis",
			zap.String("address", cfg.RedisAddress()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.GetLogger().Info("Successfully connected to Redis",
		zap.String("address", cfg.RedisAddress()),
		zap.Int("database", cfg.Redis.Database),
	)

	return client, nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// SetJSON marshals the value and stores it under key with the given TTL
func (c *Client) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}

	if err := c.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		logger.GetLogger().Error("Failed to set cache",
			zap.String("key", key),
			zap.Duration("ttl", ttl),
			zap.Error(err),
		)
		return fmt.Errorf("failed to set cache: %w", err)
	}

	return nil
}

// GetJSON loads key into dest. A cache miss returns (false, nil).
func (c *Client) GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return false, nil // Cache miss
		}
		logger.GetLogger().Error("Failed to get cache",
			zap.String("key", key),
			zap.Error(err),
		)
		return false, fmt.Errorf("failed to get cache: %w", err)
	}

	if err := json.Unmarshal([]byte(data), dest); err != nil {
		logger.GetLogger().Error("Failed to unmarshal cache value",
			zap.String("key", key),
			zap.Error(err),
		)
		// Poisoned entries count as a miss; the caller falls back to
		// the database.
		c.rdb.Del(ctx, key)
		return false, nil
	}

	return true, nil
}

// Delete removes keys, ignoring ones that do not exist
func (c *Client) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		logger.GetLogger().Error("Failed to delete cache keys",
			zap.Strings("keys", keys),
			zap.Error(err),
		)
		return fmt.Errorf("failed to delete cache keys: %w", err)
	}
	return nil
}
