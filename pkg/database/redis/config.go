package redis

import (
	"time"

	"github.com/cockroachdb/errors"
)

// Config Redis 配置
type Config struct {
	Addr     string `mapstructure:"addr" json:"addr" yaml:"addr"`
	Password string `mapstructure:"password" json:"password" yaml:"password"`
	DB       int    `mapstructure:"db" json:"db" yaml:"db"`

	PoolSize     int `mapstructure:"pool_size" json:"pool_size" yaml:"pool_size"`
	MinIdleConns int `mapstructure:"min_idle_conns" json:"min_idle_conns" yaml:"min_idle_conns"`

	DialTimeout  time.Duration `mapstructure:"dial_timeout" json:"dial_timeout" yaml:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" json:"write_timeout" yaml:"write_timeout"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Addr:         "localhost:6379",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.New("addr is empty")
	}
	if c.DB < 0 {
		return errors.New("db must be non-negative")
	}
	if c.PoolSize <= 0 {
		return errors.New("pool_size must be positive")
	}
	return nil
}
