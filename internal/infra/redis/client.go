package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	red "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/arklim/auth-service/internal/infra/config"
)

const pingTimeout = 5 * time.Second

// Client owns the Redis connection pool backing the token denylist and the rate limiter.
type Client struct {
	rdb    *red.Client
	logger *zap.Logger
}

// Options translates settings into go-redis options.
func Options(cfg config.RedisSettings) *red.Options {
	opts := &red.Options{
		Addr:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Password: cfg.Password,
		DB:       cfg.DB,

		PoolSize:        10,
		MinIdleConns:    2,
		MaxRetries:      3,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     3 * time.Second,
		WriteTimeout:    3 * time.Second,
		PoolTimeout:     4 * time.Second,
		ConnMaxIdleTime: 5 * time.Minute,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts
}

// NewClient dials Redis and fails fast when the server is unreachable.
func NewClient(ctx context.Context, cfg config.RedisSettings, logger *zap.Logger) (*Client, error) {
	rdb := red.NewClient(Options(cfg))

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	logger.Info("redis connection established",
		zap.String("addr", rdb.Options().Addr),
		zap.Int("db", cfg.DB),
		zap.Bool("tls_enabled", cfg.TLSEnabled),
	)

	return &Client{rdb: rdb, logger: logger}, nil
}

// Redis exposes the pool for repositories.
func (c *Client) Redis() *red.Client {
	return c.rdb
}

// Ping reports whether Redis answers within the context deadline.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// Close releases the pool.
func (c *Client) Close() error {
	c.logger.Info("closing redis connection pool")
	if err := c.rdb.Close(); err != nil {
		return fmt.Errorf("close redis client: %w", err)
	}
	return nil
}
