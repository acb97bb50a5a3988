// Package redis backs per-user rate limiting and Idempotency-Key replays.
package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultKeyPrefix namespaces every key this service writes.
const DefaultKeyPrefix = "applytrack"

type Config struct {
	Host      string
	Port      int
	Password  string
	DB        int
	KeyPrefix string
}

// Client wraps the go-redis client and owns the key namespace.
type Client struct {
	rdb    *redis.Client
	prefix string
	logger *zap.Logger
}

func options(addr, password string, db int) *redis.Options {
	return &redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     10,
		MinIdleConns: 2,
		PoolTimeout:  4 * time.Second,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// New connects and pings. The server treats an error as "run without Redis".
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	rdb := redis.NewClient(options(addr, cfg.Password, cfg.DB))

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}

	logger.Info("redis connection established",
		zap.String("addr", addr),
		zap.Int("db", cfg.DB),
		zap.String("key_prefix", prefix),
	)

	return &Client{rdb: rdb, prefix: prefix, logger: logger}, nil
}

// NewFromAddr builds a client without pinging. Used by tests against
// miniredis.
func NewFromAddr(addr string, logger *zap.Logger) *Client {
	return &Client{
		rdb:    redis.NewClient(options(addr, "", 0)),
		prefix: DefaultKeyPrefix,
		logger: logger,
	}
}

// key joins parts under the client's prefix: "applytrack:ratelimit:user:7".
func (c *Client) key(parts ...string) string {
	return c.prefix + ":" + strings.Join(parts, ":")
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
