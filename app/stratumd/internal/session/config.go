package session

import (
	"errors"
	"time"
)

// Config 会话配置
type Config struct {
	// SendQueueSize 发送队列大小
	SendQueueSize int `mapstructure:"send_queue_size" json:"send_queue_size" yaml:"send_queue_size"`

	// WriteTimeout 单帧写超时，超时的会话按慢消费者丢弃
	WriteTimeout time.Duration `mapstructure:"write_timeout" json:"write_timeout" yaml:"write_timeout"`

	// IdleTimeout 空闲超时，超过该时长无任何消息的会话被关闭
	IdleTimeout time.Duration `mapstructure:"idle_timeout" json:"idle_timeout" yaml:"idle_timeout"`

	// Extranonce2Size 分配给矿工的 extranonce2 字节数
	Extranonce2Size int `mapstructure:"extranonce2_size" json:"extranonce2_size" yaml:"extranonce2_size"`
}

// DefaultConfig 默认会话配置
func DefaultConfig() *Config {
	return &Config{
		SendQueueSize:   64,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     5 * time.Minute,
		Extranonce2Size: 4,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.SendQueueSize <= 0 {
		return errors.New("send_queue_size must be greater than 0")
	}
	if c.WriteTimeout <= 0 {
		return errors.New("write_timeout must be greater than 0")
	}
	if c.IdleTimeout <= 0 {
		return errors.New("idle_timeout must be greater than 0")
	}
	if c.Extranonce2Size <= 0 || c.Extranonce2Size > 8 {
		return errors.New("extranonce2_size must be in range 1-8")
	}
	return nil
}
