// Package redis 封装 go-redis 客户端的创建和健康检查。
package redis

import (
	"context"

	"github.com/cockroachdb/errors"
	goredis "github.com/redis/go-redis/v9"
)

// Client Redis 客户端
type Client struct {
	rdb *goredis.Client
	cfg *Config
}

// New 创建 Redis 客户端并验证连接
func New(cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid redis config")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "ping redis")
	}

	return &Client{rdb: rdb, cfg: cfg}, nil
}

// RDB 底层客户端
func (c *Client) RDB() *goredis.Client { return c.rdb }

// Ping 检查连接
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close 关闭客户端
func (c *Client) Close() error {
	return c.rdb.Close()
}
