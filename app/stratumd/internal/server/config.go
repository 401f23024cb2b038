package server

import "errors"

// Config TCP 服务配置
type Config struct {
	// Addr 监听地址
	Addr string `mapstructure:"addr" json:"addr" yaml:"addr"`

	// MaxConns 最大并发连接数，超出的连接直接拒绝
	MaxConns int `mapstructure:"max_conns" json:"max_conns" yaml:"max_conns"`

	// MaxFrameBytes 单帧最大字节数
	MaxFrameBytes int `mapstructure:"max_frame_bytes" json:"max_frame_bytes" yaml:"max_frame_bytes"`

	// RateLimit 单连接每秒消息数上限
	RateLimit float64 `mapstructure:"rate_limit" json:"rate_limit" yaml:"rate_limit"`

	// RateBurst 单连接突发消息数
	RateBurst int `mapstructure:"rate_burst" json:"rate_burst" yaml:"rate_burst"`
}

// DefaultConfig 默认服务配置
func DefaultConfig() *Config {
	return &Config{
		Addr:          ":3333",
		MaxConns:      10000,
		MaxFrameBytes: 64 * 1024,
		RateLimit:     50,
		RateBurst:     100,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.New("addr is required")
	}
	if c.MaxConns <= 0 {
		return errors.New("max_conns must be greater than 0")
	}
	if c.MaxFrameBytes <= 0 {
		return errors.New("max_frame_bytes must be greater than 0")
	}
	if c.RateLimit <= 0 || c.RateBurst <= 0 {
		return errors.New("rate_limit and rate_burst must be greater than 0")
	}
	return nil
}
