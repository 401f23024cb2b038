// Package dispatch 将任务广播给所有活跃会话。
// 每帧只编码一次；投递走非阻塞队列，慢消费者直接断开，不拖慢整体广播。
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/atomic"

	"github.com/lk2023060901/stratumd/app/stratumd/internal/job"
	"github.com/lk2023060901/stratumd/app/stratumd/internal/metrics"
	"github.com/lk2023060901/stratumd/app/stratumd/internal/session"
	"github.com/lk2023060901/stratumd/pkg/logger"
	"github.com/lk2023060901/stratumd/pkg/stratum"
)

// Dispatcher 任务调度器
type Dispatcher struct {
	cfg      *Config
	log      logger.Logger
	sessions *session.Manager
	jobs     *job.Manager
	metrics  *metrics.StratumMetrics
	pool     *ants.Pool
}

// New 创建调度器
func New(cfg *Config, log logger.Logger, sessions *session.Manager, jobs *job.Manager, m *metrics.StratumMetrics) (*Dispatcher, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewNop()
	}

	pool, err := ants.NewPool(cfg.PoolSize)
	if err != nil {
		return nil, errors.Wrap(err, "create broadcast pool")
	}

	return &Dispatcher{
		cfg:      cfg,
		log:      log,
		sessions: sessions,
		jobs:     jobs,
		metrics:  m,
		pool:     pool,
	}, nil
}

// Broadcast 将任务广播给所有活跃会话，返回投递数和丢弃数
// 只会投递给尚未收到该任务（序号更大）的会话，保证任务序号单调
func (d *Dispatcher) Broadcast(j *job.Job) (int, int) {
	frame, err := stratum.EncodeNotification(stratum.NewNotification(stratum.MethodNotify, j.NotifyParams()))
	if err != nil {
		d.log.Error("encode notify failed", "job_id", j.ID, "error", err)
		return 0, 0
	}

	var (
		wg        sync.WaitGroup
		delivered atomic.Int64
		dropped   atomic.Int64
	)

	for _, s := range d.sessions.Snapshot() {
		if s.State() != session.StateActive {
			continue
		}

		s := s
		wg.Add(1)
		deliver := func() {
			defer wg.Done()
			if !s.MarkJobDelivered(j.Seq) {
				return
			}
			switch err := s.TrySend(frame); {
			case err == nil:
				delivered.Inc()
			case errors.Is(err, session.ErrSendQueueFull):
				dropped.Inc()
				d.dropSlowConsumer(s, j)
			}
		}
		if err := d.pool.Submit(deliver); err != nil {
			// 协程池不可用时降级为同步投递
			deliver()
		}
	}
	wg.Wait()

	nDelivered, nDropped := int(delivered.Load()), int(dropped.Load())
	if d.metrics != nil {
		d.metrics.RecordBroadcast(nDelivered, nDropped)
	}
	d.log.Debug("job broadcast",
		"job_id", j.ID,
		"seq", j.Seq,
		"clean", j.Clean,
		"delivered", nDelivered,
		"dropped", nDropped)
	return nDelivered, nDropped
}

func (d *Dispatcher) dropSlowConsumer(s *session.Session, j *job.Job) {
	d.log.Warn("dropping slow consumer",
		"session_id", s.ID(),
		"worker", s.Worker(),
		"remote_addr", s.RemoteAddr(),
		"job_id", j.ID)
	d.sessions.Remove(s.ID())
	if d.metrics != nil {
		d.metrics.RecordSessionClosed("slow_consumer")
	}
}

// Activate 会话激活：下发初始难度和当前任务
func (d *Dispatcher) Activate(ctx context.Context, s *session.Session) {
	if err := d.sendDifficulty(ctx, s, d.cfg.DefaultDifficulty); err != nil {
		d.log.Debug("send difficulty failed", "session_id", s.ID(), "error", err)
		return
	}

	j := d.jobs.Current()
	if j == nil {
		return
	}
	if !s.MarkJobDelivered(j.Seq) {
		return
	}

	frame, err := stratum.EncodeNotification(stratum.NewNotification(stratum.MethodNotify, j.NotifyParams()))
	if err != nil {
		d.log.Error("encode notify failed", "job_id", j.ID, "error", err)
		return
	}
	if err := s.Send(ctx, frame); err != nil {
		d.log.Debug("send initial job failed", "session_id", s.ID(), "error", err)
	}
}

func (d *Dispatcher) sendDifficulty(ctx context.Context, s *session.Session, difficulty float64) error {
	frame, err := stratum.EncodeNotification(stratum.NewNotification(stratum.MethodSetDifficulty, stratum.SetDifficultyParams(difficulty)))
	if err != nil {
		return err
	}
	if err := s.Send(ctx, frame); err != nil {
		return err
	}
	s.SetDifficulty(difficulty)
	return nil
}

// Run 补发循环：周期性把当前任务补投给漏发的会话，直到 ctx 取消
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.RebroadcastInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if j := d.jobs.Current(); j != nil && !j.Expired() {
				d.Broadcast(j)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Release 释放协程池
func (d *Dispatcher) Release() {
	d.pool.Release()
}
