package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Logger interface for logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// Options for connecting to Redis
type Options struct {
	Addr     string
	Password string
	DB       int
}

// Client wraps redis.Client with connection checks and instrumentation
type Client struct {
	redis  *redis.Client
	logger Logger
}

// NewClient creates a new Redis client wrapper
func NewClient(redisClient *redis.Client, logger Logger) *Client {
	return &Client{
		redis:  redisClient,
		logger: logger,
	}
}

// Connect dials Redis and verifies the connection
func Connect(ctx context.Context, opts Options, logger Logger) (*Client, error) {
	raw := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	c := NewClient(raw, logger)
	if err := c.Ping(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}

	logger.Info("redis connected", "addr", opts.Addr, "db", opts.DB)
	return c, nil
}

// GetUnderlying returns the underlying redis.Client for advanced operations
func (c *Client) GetUnderlying() *redis.Client {
	return c.redis
}

// Ping checks connectivity with a bounded timeout
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := c.redis.Ping(ctx).Err(); err != nil {
		c.logger.Error("redis PING failed", "error", err)
		return fmt.Errorf("failed to ping redis: %w", err)
	}
	c.logger.Debug("redis PING")
	return nil
}

// Close closes the connection pool
func (c *Client) Close() error {
	c.logger.Info("closing redis client")
	return c.redis.Close()
}
