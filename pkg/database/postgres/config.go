package postgres

import (
	"time"

	"github.com/cockroachdb/errors"
)

// Config PostgreSQL 配置
type Config struct {
	Host     string `mapstructure:"host" json:"host" yaml:"host"`
	Port     int    `mapstructure:"port" json:"port" yaml:"port"`
	User     string `mapstructure:"user" json:"user" yaml:"user"`
	Password string `mapstructure:"password" json:"password" yaml:"password"`
	DBName   string `mapstructure:"db_name" json:"db_name" yaml:"db_name"`
	SSLMode  string `mapstructure:"ssl_mode" json:"ssl_mode" yaml:"ssl_mode"` // disable, require, verify-ca, verify-full

	// 连接池配置
	MaxConns          int32         `mapstructure:"max_conns" json:"max_conns" yaml:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns" json:"min_conns" yaml:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime" json:"max_conn_lifetime" yaml:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time" json:"max_conn_idle_time" yaml:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period" json:"health_check_period" yaml:"health_check_period"`

	// ConnectTimeout 建连超时
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" json:"connect_timeout" yaml:"connect_timeout"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Host:              "localhost",
		Port:              5432,
		User:              "postgres",
		DBName:            "stratumd",
		SSLMode:           "disable",
		MaxConns:          25,
		MinConns:          5,
		MaxConnLifetime:   time.Hour,
		MaxConnIdleTime:   30 * time.Minute,
		HealthCheckPeriod: time.Minute,
		ConnectTimeout:    10 * time.Second,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Host == "" {
		return errors.New("host is empty")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return errors.Newf("invalid port %d", c.Port)
	}
	if c.User == "" {
		return errors.New("user is empty")
	}
	if c.DBName == "" {
		return errors.New("db_name is empty")
	}
	if c.MaxConns <= 0 {
		return errors.New("max_conns must be positive")
	}
	if c.MinConns < 0 || c.MinConns > c.MaxConns {
		return errors.New("min_conns must be in range [0, max_conns]")
	}
	return nil
}
