// Package redis backs the simulation result cache and the per-scenario run
// lock with Redis.
package redis

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/terminal-planner/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/terminal-planner/pkg/errors"
)

var ErrConnectionFailed = errors.New(errors.ErrCodeCacheError, "redis connection failed")

// RedisConfig holds connection settings. Addr takes one address, or a comma
// separated list for a cluster. With MasterName set the addresses are
// sentinels.
type RedisConfig struct {
	Addr         string
	MasterName   string
	Password     string
	DB           int
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func (c *RedisConfig) options() *redis.UniversalOptions {
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	var addrs []string
	for _, a := range strings.Split(c.Addr, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	return &redis.UniversalOptions{
		Addrs:        addrs,
		MasterName:   c.MasterName,
		Password:     c.Password,
		DB:           c.DB,
		PoolSize:     c.PoolSize,
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
	}
}

// Client is a go-redis client shared by the cache and the lock factory.
// Commands issued after Close fail with redis.ErrClosed.
type Client struct {
	redis.UniversalClient
	logger    logging.Logger
	closeOnce sync.Once
	closeErr  error
}

// NewClient connects and pings the server. go-redis picks a standalone,
// cluster or sentinel client from the options.
func NewClient(cfg *RedisConfig, log logging.Logger) (*Client, error) {
	opts := cfg.options()
	if len(opts.Addrs) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "redis address is required")
	}
	c := &Client{UniversalClient: redis.NewUniversalClient(opts), logger: log}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := c.HealthCheck(ctx); err != nil {
		_ = c.UniversalClient.Close()
		return nil, ErrConnectionFailed.WithCause(err)
	}
	log.Info("redis connected", logging.Any("addrs", opts.Addrs))
	return c, nil
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

// Close closes the pool. Later calls return the first result.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.UniversalClient.Close()
		if c.closeErr != nil {
			c.logger.Error("redis close failed", logging.Err(c.closeErr))
		}
	})
	return c.closeErr
}
