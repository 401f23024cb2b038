// Package metrics 汇总 stratumd 的运行指标：
// 连接与会话、份额接收与拒绝、任务广播，以及进程系统指标。
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"

	"github.com/lk2023060901/stratumd/pkg/metrics/sliding"
	"github.com/lk2023060901/stratumd/pkg/metrics/system"
)

// Config 指标配置
type Config struct {
	// Namespace 指标命名空间
	Namespace string `mapstructure:"namespace" json:"namespace" yaml:"namespace"`
	// SystemCollectInterval 系统指标采集间隔
	SystemCollectInterval time.Duration `mapstructure:"system_collect_interval" json:"system_collect_interval" yaml:"system_collect_interval"`
	// ShareWindow 份额滑动窗口配置
	ShareWindow sliding.WindowConfig `mapstructure:"share_window" json:"share_window" yaml:"share_window"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Namespace:             "stratumd",
		SystemCollectInterval: 5 * time.Second,
		ShareWindow:           *sliding.DefaultWindowConfig(),
	}
}

// StratumMetrics stratumd 服务指标
type StratumMetrics struct {
	config *Config

	// 连接与会话
	ConnectionsTotal prometheus.Counter     // 历史连接总数
	ActiveSessions   prometheus.Gauge       // 当前会话数
	SessionsClosed   *prometheus.CounterVec // 会话关闭总数（按原因）

	// 协议层
	FramesTotal       *prometheus.CounterVec // 收到的帧总数（按方法）
	DecodeErrorsTotal prometheus.Counter     // 解析失败总数

	// 份额
	SharesTotal *prometheus.CounterVec // 份额总数（按结果）

	// 任务
	JobsTotal           prometheus.Counter // 创建的任务总数
	BroadcastsTotal     prometheus.Counter // 广播的 notify 总数
	BroadcastDropsTotal prometheus.Counter // 广播时被丢弃的慢消费者总数

	// 内部统计（用于 web 状态接口）
	totalShares    atomic.Int64
	acceptedShares atomic.Int64
	rejectedShares atomic.Int64

	systemCollector *system.Collector
	shareWindow     *sliding.Window
}

// New 创建指标
func New(cfg *Config) (*StratumMetrics, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	sysCollector, err := system.New()
	if err != nil {
		return nil, err
	}

	m := &StratumMetrics{
		config: cfg,

		ConnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "connections_total",
			Help:      "接受的 TCP 连接总数",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Name:      "active_sessions",
			Help:      "当前会话数",
		}),
		SessionsClosed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "sessions_closed_total",
				Help:      "会话关闭总数",
			},
			[]string{"reason"}, // reason: eof/idle/slow_consumer/protocol_error/shutdown
		),

		FramesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "frames_total",
				Help:      "收到的协议帧总数",
			},
			[]string{"method"},
		),
		DecodeErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "decode_errors_total",
			Help:      "无法解析的帧总数",
		}),

		SharesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "shares_total",
				Help:      "份额提交总数",
			},
			[]string{"result"}, // result: accepted 或拒绝错误码
		),

		JobsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "jobs_total",
			Help:      "创建的任务总数",
		}),
		BroadcastsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "broadcasts_total",
			Help:      "广播的任务通知总数",
		}),
		BroadcastDropsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "broadcast_drops_total",
			Help:      "广播时因发送队列满被丢弃的会话总数",
		}),

		systemCollector: sysCollector,
		shareWindow:     sliding.NewWindow(&cfg.ShareWindow),
	}

	sysCollector.Start(cfg.SystemCollectInterval)
	return m, nil
}

// Register 注册指标到 Prometheus Registry
func (m *StratumMetrics) Register(registerer prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.ConnectionsTotal,
		m.ActiveSessions,
		m.SessionsClosed,
		m.FramesTotal,
		m.DecodeErrorsTotal,
		m.SharesTotal,
		m.JobsTotal,
		m.BroadcastsTotal,
		m.BroadcastDropsTotal,
	}

	for _, c := range collectors {
		if err := registerer.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// RecordConnection 记录新连接
func (m *StratumMetrics) RecordConnection() {
	m.ConnectionsTotal.Inc()
	m.ActiveSessions.Inc()
}

// RecordSessionClosed 记录会话关闭
func (m *StratumMetrics) RecordSessionClosed(reason string) {
	m.ActiveSessions.Dec()
	m.SessionsClosed.WithLabelValues(reason).Inc()
}

// RecordFrame 记录收到的帧
func (m *StratumMetrics) RecordFrame(method string) {
	m.FramesTotal.WithLabelValues(method).Inc()
}

// RecordDecodeError 记录解析失败
func (m *StratumMetrics) RecordDecodeError() {
	m.DecodeErrorsTotal.Inc()
}

// RecordShare 记录一次份额提交
// rejectCode 为 0 表示接受，否则为协议拒绝错误码
func (m *StratumMetrics) RecordShare(rejectCode int, duration float64) {
	m.totalShares.Add(1)
	if rejectCode == 0 {
		m.acceptedShares.Add(1)
		m.SharesTotal.WithLabelValues("accepted").Inc()
	} else {
		m.rejectedShares.Add(1)
		m.SharesTotal.WithLabelValues(strconv.Itoa(rejectCode)).Inc()
	}
	m.shareWindow.Record(duration, rejectCode == 0)
}

// RecordJob 记录任务创建
func (m *StratumMetrics) RecordJob() {
	m.JobsTotal.Inc()
}

// RecordBroadcast 记录一轮广播
// delivered: 成功投递数, dropped: 因队列满被丢弃的会话数
func (m *StratumMetrics) RecordBroadcast(delivered, dropped int) {
	m.BroadcastsTotal.Add(float64(delivered))
	m.BroadcastDropsTotal.Add(float64(dropped))
}

// Stats 统计数据结构（web 状态接口）
type Stats struct {
	// 份额统计
	TotalShares    int64   `json:"total_shares"`
	AcceptedShares int64   `json:"accepted_shares"`
	RejectedShares int64   `json:"rejected_shares"`
	SharesPerSec   float64 `json:"shares_per_sec"`
	AcceptRate     float64 `json:"accept_rate"`
	// 系统指标
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	MemoryBytes   uint64  `json:"memory_bytes"`
	Goroutines    int     `json:"goroutines"`
}

// GetStats 获取统计数据
func (m *StratumMetrics) GetStats() Stats {
	windowStats := m.shareWindow.GetStats()
	sysStats := m.systemCollector.GetStats()

	return Stats{
		TotalShares:    m.totalShares.Load(),
		AcceptedShares: m.acceptedShares.Load(),
		RejectedShares: m.rejectedShares.Load(),
		SharesPerSec:   windowStats.QPS,
		AcceptRate:     windowStats.SuccessRate,
		CPUPercent:     sysStats.CPUPercent,
		MemoryPercent:  sysStats.MemoryPercent,
		MemoryBytes:    sysStats.MemoryBytes,
		Goroutines:     sysStats.Goroutines,
	}
}

// Stop 停止后台采集
func (m *StratumMetrics) Stop() {
	m.systemCollector.Stop()
	m.shareWindow.Stop()
}
