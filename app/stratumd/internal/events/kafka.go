package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/segmentio/kafka-go"

	"github.com/lk2023060901/stratumd/pkg/logger"
)

// KafkaConfig Kafka 事件配置
type KafkaConfig struct {
	// Enabled 是否启用事件发布
	Enabled bool `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	// Brokers broker 地址列表
	Brokers []string `mapstructure:"brokers" json:"brokers" yaml:"brokers"`
	// Topic 事件主题
	Topic string `mapstructure:"topic" json:"topic" yaml:"topic"`
	// BatchTimeout 批量发送间隔
	BatchTimeout time.Duration `mapstructure:"batch_timeout" json:"batch_timeout" yaml:"batch_timeout"`
	// WriteTimeout 单次写超时
	WriteTimeout time.Duration `mapstructure:"write_timeout" json:"write_timeout" yaml:"write_timeout"`
}

// DefaultKafkaConfig 默认配置（未启用）
func DefaultKafkaConfig() *KafkaConfig {
	return &KafkaConfig{
		Enabled:      false,
		Brokers:      []string{"localhost:9092"},
		Topic:        "stratumd.events",
		BatchTimeout: 100 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
	}
}

// KafkaPublisher 基于 kafka-go 的事件发布器
// 异步批量写，key 为矿工名，同一矿工的事件落在同一分区保持有序
type KafkaPublisher struct {
	writer *kafka.Writer
	log    logger.Logger
}

// NewKafka 创建 Kafka 发布器
func NewKafka(cfg *KafkaConfig, log logger.Logger) (*KafkaPublisher, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, errors.New("kafka events not enabled")
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if log == nil {
		log = logger.NewNop()
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           cfg.BatchTimeout,
		WriteTimeout:           cfg.WriteTimeout,
		RequiredAcks:           kafka.RequireOne,
		Async:                  true,
		AllowAutoTopicCreation: true,
	}

	return &KafkaPublisher{writer: writer, log: log}, nil
}

// Publish 发布事件，编码失败或写失败只记日志
func (p *KafkaPublisher) Publish(ctx context.Context, e *Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	value, err := json.Marshal(e)
	if err != nil {
		p.log.Error("encode event failed", "type", e.Type, "error", err)
		return
	}

	msg := kafka.Message{
		Key:   []byte(e.Worker),
		Value: value,
	}
	// Async 模式下 WriteMessages 只入队
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.Warn("publish event failed", "type", e.Type, "error", err)
	}
}

// Close 关闭发布器
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
