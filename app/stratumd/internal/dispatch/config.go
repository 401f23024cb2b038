package dispatch

import (
	"errors"
	"time"
)

// Config 调度器配置
type Config struct {
	// PoolSize 广播协程池大小
	PoolSize int `mapstructure:"pool_size" json:"pool_size" yaml:"pool_size"`

	// RebroadcastInterval 当前任务补发间隔，补发只命中漏发的会话
	RebroadcastInterval time.Duration `mapstructure:"rebroadcast_interval" json:"rebroadcast_interval" yaml:"rebroadcast_interval"`

	// DefaultDifficulty 会话激活时下发的初始难度
	DefaultDifficulty float64 `mapstructure:"default_difficulty" json:"default_difficulty" yaml:"default_difficulty"`
}

// DefaultConfig 默认调度配置
func DefaultConfig() *Config {
	return &Config{
		PoolSize:            64,
		RebroadcastInterval: 30 * time.Second,
		DefaultDifficulty:   1,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.PoolSize <= 0 {
		return errors.New("pool_size must be greater than 0")
	}
	if c.RebroadcastInterval <= 0 {
		return errors.New("rebroadcast_interval must be greater than 0")
	}
	if c.DefaultDifficulty <= 0 {
		return errors.New("default_difficulty must be greater than 0")
	}
	return nil
}
