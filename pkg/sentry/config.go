package sentry

import (
	"time"

	"github.com/cockroachdb/errors"
)

// Config Sentry 配置
type Config struct {
	// Enabled 是否启用错误上报
	Enabled bool `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	// DSN Sentry DSN
	DSN string `mapstructure:"dsn" json:"dsn" yaml:"dsn"`
	// Environment 环境标识 (dev/test/prod)
	Environment string `mapstructure:"environment" json:"environment" yaml:"environment"`
	// Release 版本号
	Release string `mapstructure:"release" json:"release" yaml:"release"`
	// ServerName 上报时附带的节点名
	ServerName string `mapstructure:"server_name" json:"server_name" yaml:"server_name"`
	// SampleRate 错误采样率 (0.0-1.0)
	SampleRate float64 `mapstructure:"sample_rate" json:"sample_rate" yaml:"sample_rate"`
	// AttachStacktrace 是否附加堆栈
	AttachStacktrace bool `mapstructure:"attach_stacktrace" json:"attach_stacktrace" yaml:"attach_stacktrace"`
	// FlushTimeout 关闭时等待上报完成的时长
	FlushTimeout time.Duration `mapstructure:"flush_timeout" json:"flush_timeout" yaml:"flush_timeout"`
}

// DefaultConfig 默认配置（未启用）
func DefaultConfig() *Config {
	return &Config{
		Enabled:          false,
		Environment:      "production",
		SampleRate:       1.0,
		AttachStacktrace: true,
		FlushTimeout:     2 * time.Second,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.DSN == "" {
		return errors.New("dsn is required when sentry is enabled")
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return errors.New("sample_rate must be in range 0.0-1.0")
	}
	return nil
}
