// Package sentry 封装 sentry-go：配置驱动的初始化、错误捕获与 panic 恢复。
// 未启用时所有调用都是空操作。
package sentry

import (
	"time"

	"github.com/getsentry/sentry-go"
)

// Client Sentry 客户端
type Client struct {
	cfg *Config
	hub *sentry.Hub
}

// New 创建 Sentry 客户端。cfg.Enabled 为 false 时返回空操作客户端。
func New(cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		return &Client{cfg: cfg}, nil
	}

	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		ServerName:       cfg.ServerName,
		SampleRate:       cfg.SampleRate,
		AttachStacktrace: cfg.AttachStacktrace,
	})
	if err != nil {
		return nil, err
	}

	hub := sentry.NewHub(client, sentry.NewScope())
	return &Client{cfg: cfg, hub: hub}, nil
}

// Enabled 是否启用上报
func (c *Client) Enabled() bool { return c.hub != nil }

// CaptureException 上报错误
func (c *Client) CaptureException(err error) {
	if c.hub == nil || err == nil {
		return
	}
	c.hub.CaptureException(err)
}

// CaptureMessage 上报消息
func (c *Client) CaptureMessage(msg string) {
	if c.hub == nil {
		return
	}
	c.hub.CaptureMessage(msg)
}

// Recover 在 defer 中调用，上报 panic 后重新抛出
func (c *Client) Recover() {
	r := recover()
	if r == nil {
		return
	}
	if c.hub != nil {
		c.hub.RecoverWithContext(nil, r)
		c.hub.Flush(c.cfg.FlushTimeout)
	}
	panic(r)
}

// Close 等待未发送的事件上报完成
func (c *Client) Close() {
	if c.hub == nil {
		return
	}
	c.hub.Flush(c.cfg.FlushTimeout)
}

// Flush 刷新事件队列
func (c *Client) Flush(timeout time.Duration) bool {
	if c.hub == nil {
		return true
	}
	return c.hub.Flush(timeout)
}
