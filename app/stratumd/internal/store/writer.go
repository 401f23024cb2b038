package store

import (
	"context"
	"time"

	"go.uber.org/atomic"

	"github.com/lk2023060901/stratumd/pkg/logger"
)

// ShareSaver 份额批量落库接口
type ShareSaver interface {
	SaveShares(ctx context.Context, records []ShareRecord) error
}

// WriterConfig 异步写入器配置
type WriterConfig struct {
	// QueueSize 待写队列大小，队列满时丢弃并计数
	QueueSize int `mapstructure:"queue_size" json:"queue_size" yaml:"queue_size"`
	// BatchSize 单批最大写入条数
	BatchSize int `mapstructure:"batch_size" json:"batch_size" yaml:"batch_size"`
	// FlushInterval 批量写入间隔
	FlushInterval time.Duration `mapstructure:"flush_interval" json:"flush_interval" yaml:"flush_interval"`
}

// DefaultWriterConfig 默认写入器配置
func DefaultWriterConfig() *WriterConfig {
	return &WriterConfig{
		QueueSize:     4096,
		BatchSize:     256,
		FlushInterval: time.Second,
	}
}

// Writer 异步份额写入器
// 提交路径只入队不落库，数据库抖动不会反压协议层
type Writer struct {
	cfg   *WriterConfig
	saver ShareSaver
	log   logger.Logger

	queue   chan ShareRecord
	dropped atomic.Int64
}

// NewWriter 创建写入器
func NewWriter(cfg *WriterConfig, saver ShareSaver, log logger.Logger) *Writer {
	if cfg == nil {
		cfg = DefaultWriterConfig()
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Writer{
		cfg:   cfg,
		saver: saver,
		log:   log,
		queue: make(chan ShareRecord, cfg.QueueSize),
	}
}

// Enqueue 非阻塞入队，队列满时丢弃
func (w *Writer) Enqueue(r ShareRecord) {
	select {
	case w.queue <- r:
	default:
		if w.dropped.Inc()%1000 == 1 {
			w.log.Warn("share write queue full, dropping records", "dropped_total", w.dropped.Load())
		}
	}
}

// Dropped 累计丢弃条数
func (w *Writer) Dropped() int64 { return w.dropped.Load() }

// Run 批量落库循环，ctx 取消时写完存量再退出
func (w *Writer) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]ShareRecord, 0, w.cfg.BatchSize)
	for {
		select {
		case r := <-w.queue:
			batch = append(batch, r)
			if len(batch) >= w.cfg.BatchSize {
				batch = w.flush(ctx, batch)
			}
		case <-ticker.C:
			batch = w.flush(ctx, batch)
		case <-ctx.Done():
			w.drain(batch)
			return
		}
	}
}

func (w *Writer) flush(ctx context.Context, batch []ShareRecord) []ShareRecord {
	if len(batch) == 0 {
		return batch
	}
	if err := w.saver.SaveShares(ctx, batch); err != nil {
		w.log.Error("save shares failed", "count", len(batch), "error", err)
	}
	return batch[:0]
}

// drain 停机前落盘队列中的存量记录
func (w *Writer) drain(batch []ShareRecord) {
	for {
		select {
		case r := <-w.queue:
			batch = append(batch, r)
		default:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			w.flush(ctx, batch)
			return
		}
	}
}
