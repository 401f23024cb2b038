// stratumd 是 Stratum V1 矿池接入服务：
// 接收矿机 TCP 连接，分发挖矿任务，校验并记录提交的份额。
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/lk2023060901/stratumd/app/stratumd/internal/config"
	"github.com/lk2023060901/stratumd/app/stratumd/internal/dispatch"
	"github.com/lk2023060901/stratumd/app/stratumd/internal/events"
	"github.com/lk2023060901/stratumd/app/stratumd/internal/handler"
	"github.com/lk2023060901/stratumd/app/stratumd/internal/job"
	"github.com/lk2023060901/stratumd/app/stratumd/internal/metrics"
	"github.com/lk2023060901/stratumd/app/stratumd/internal/server"
	"github.com/lk2023060901/stratumd/app/stratumd/internal/session"
	"github.com/lk2023060901/stratumd/app/stratumd/internal/share"
	"github.com/lk2023060901/stratumd/app/stratumd/internal/store"
	"github.com/lk2023060901/stratumd/app/stratumd/internal/upstream"
	"github.com/lk2023060901/stratumd/app/stratumd/internal/web"
	"github.com/lk2023060901/stratumd/component/auth"
	"github.com/lk2023060901/stratumd/pkg/database/postgres"
	"github.com/lk2023060901/stratumd/pkg/database/redis"
	"github.com/lk2023060901/stratumd/pkg/idgen"
	"github.com/lk2023060901/stratumd/pkg/logger"
	"github.com/lk2023060901/stratumd/pkg/sentry"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to config file")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(&cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Error("stratumd exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("stratumd stopped")
}

func run(cfg *config.Config, log logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sentryClient, err := sentry.New(&cfg.Sentry)
	if err != nil {
		return err
	}
	defer sentryClient.Close()

	// 指标
	m, err := metrics.New(&cfg.Metrics)
	if err != nil {
		return err
	}
	defer m.Stop()

	registry := prometheus.NewRegistry()
	if err := m.Register(registry); err != nil {
		return err
	}

	// 任务与份额校验
	gen, err := idgen.NewSonyflake(0)
	if err != nil {
		return err
	}
	jobs := job.NewManager(gen, cfg.Upstream.JobTTL)
	validator := share.NewValidator(jobs)
	sessions := session.NewManager()

	// 持久化（可选）
	var (
		st      *store.Store
		writer  *store.Writer
		janitor *store.Janitor
		pg      *postgres.Client
	)
	if cfg.Store.Enabled {
		pg, err = postgres.New(&cfg.Store.Postgres)
		if err != nil {
			return err
		}
		defer pg.Close()

		st = store.New(pg.Pool())
		if err := st.EnsureSchema(ctx); err != nil {
			return err
		}
		writer = store.NewWriter(&cfg.Store.Writer, st, log)
		janitor = store.NewJanitor(&cfg.Store.Janitor, st, log, func() {
			pruned := validator.Prune()
			log.Debug("pruned share dedup buckets", "count", pruned)
		})
		log.Info("persistence enabled", "host", cfg.Store.Postgres.Host, "db", cfg.Store.Postgres.DBName)
	}

	// 实时计数（可选）
	var hot *store.HotCounters
	if cfg.Redis.Enabled {
		rc, err := redis.New(&cfg.Redis.Redis)
		if err != nil {
			return err
		}
		defer func() { _ = rc.Close() }()
		hot = store.NewHotCounters(rc.RDB(), cfg.Redis.CounterTTL)
		log.Info("hot counters enabled", "addr", cfg.Redis.Redis.Addr)
	}

	// 认证
	authMgr := auth.NewManager(cfg.Auth.Mode)
	switch cfg.Auth.Mode {
	case auth.ModeAnonymous:
		authMgr.Register(auth.NewAnonymousAuthenticator())
	case auth.ModeStatic:
		authMgr.Register(auth.NewStaticAuthenticator(cfg.Auth.StaticWorkerMap()))
	case auth.ModePostgres:
		authMgr.Register(auth.NewPostgresAuthenticator(pg.Pool()))
	}
	log.Info("worker auth configured", "mode", cfg.Auth.Mode)

	// 事件发布（可选）
	var pub events.Publisher = events.NewNop()
	if cfg.Events.Enabled {
		kp, err := events.NewKafka(&cfg.Events, log)
		if err != nil {
			return err
		}
		pub = kp
		log.Info("event publishing enabled", "topic", cfg.Events.Topic)
	}
	defer func() { _ = pub.Close() }()

	// 任务调度
	dispatcher, err := dispatch.New(&cfg.Dispatch, log, sessions, jobs, m)
	if err != nil {
		return err
	}
	defer dispatcher.Release()

	// 协议处理
	hooks := handler.Hooks{
		OnActivate: func(s *session.Session) {
			dispatcher.Activate(s.Context(), s)
			pub.Publish(ctx, &events.Event{
				Type:      events.TypeSessionOpened,
				Timestamp: time.Now(),
				SessionID: s.ID(),
				Worker:    s.Worker(),
			})
		},
		OnShareAccepted: func(s *session.Session, j *job.Job, sub *share.Submission) {
			now := time.Now()
			if writer != nil {
				writer.Enqueue(store.ShareRecord{
					Worker:      sub.Worker,
					JobID:       sub.JobID,
					Extranonce2: sub.Extranonce2,
					NTime:       sub.NTime,
					Nonce:       sub.Nonce,
					Difficulty:  s.Difficulty(),
					Accepted:    true,
					SubmittedAt: now,
				})
			}
			if hot != nil {
				_ = hot.RecordShare(ctx, sub.Worker, true)
			}
			pub.Publish(ctx, &events.Event{
				Type:      events.TypeShareAccepted,
				Timestamp: now,
				SessionID: s.ID(),
				Worker:    sub.Worker,
				JobID:     sub.JobID,
			})
		},
		OnShareRejected: func(s *session.Session, sub *share.Submission, code int) {
			now := time.Now()
			if writer != nil {
				writer.Enqueue(store.ShareRecord{
					Worker:      sub.Worker,
					JobID:       sub.JobID,
					Extranonce2: sub.Extranonce2,
					NTime:       sub.NTime,
					Nonce:       sub.Nonce,
					Difficulty:  s.Difficulty(),
					Accepted:    false,
					RejectCode:  code,
					SubmittedAt: now,
				})
			}
			if hot != nil {
				_ = hot.RecordShare(ctx, sub.Worker, false)
			}
			pub.Publish(ctx, &events.Event{
				Type:      events.TypeShareRejected,
				Timestamp: now,
				SessionID: s.ID(),
				Worker:    sub.Worker,
				JobID:     sub.JobID,
				Fields:    map[string]interface{}{"code": code},
			})
		},
	}
	h := handler.New(log, sessions, validator, authMgr, m, hooks)

	srv, err := server.New(&cfg.Server, &cfg.Session, log, sessions, h, m)
	if err != nil {
		return err
	}

	// 模板源
	var src upstream.Source
	switch cfg.Upstream.Mode {
	case "bitcoinrpc":
		src = upstream.NewBitcoinRPC(&cfg.Upstream.BitcoinRPC)
	default:
		src = upstream.NewSynthetic(cfg.Upstream.Synthetic.Difficulty, cfg.Upstream.Synthetic.StartHeight)
	}
	refresher := upstream.NewRefresher(src, cfg.Upstream.RefreshInterval, log)
	log.Info("upstream configured", "mode", cfg.Upstream.Mode, "refresh_interval", cfg.Upstream.RefreshInterval)

	onTemplate := func(t *job.Template) {
		j, created, err := jobs.Create(t)
		if err != nil {
			log.Error("create job failed", "error", err)
			sentryClient.CaptureException(err)
			return
		}
		if !created {
			return
		}
		m.RecordJob()
		delivered, dropped := dispatcher.Broadcast(j)
		log.Info("job broadcast",
			"job_id", j.ID,
			"seq", j.Seq,
			"height", t.Height,
			"clean", j.Clean,
			"delivered", delivered,
			"dropped", dropped,
		)
		pub.Publish(ctx, &events.Event{
			Type:      events.TypeJobCreated,
			Timestamp: time.Now(),
			JobID:     j.ID,
			Fields:    map[string]interface{}{"height": t.Height, "clean": j.Clean},
		})
	}

	if janitor != nil {
		if err := janitor.Start(); err != nil {
			return err
		}
		defer janitor.Stop()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer sentryClient.Recover()
		return srv.Serve(gctx)
	})
	// 空闲兜底：读超时是主要的空闲回收手段，清理循环只负责读循环
	// 卡住时仍能释放会话
	sessions.StartSweeper(gctx, cfg.Session.IdleTimeout/2, cfg.Session.IdleTimeout, func(s *session.Session) {
		log.Warn("idle session swept", "session_id", s.ID(), "worker", s.Worker(), "remote_addr", s.RemoteAddr())
	})
	g.Go(func() error {
		defer sentryClient.Recover()
		dispatcher.Run(gctx)
		return nil
	})
	g.Go(func() error {
		defer sentryClient.Recover()
		refresher.Run(gctx, onTemplate)
		return nil
	})
	if writer != nil {
		g.Go(func() error {
			writer.Run(gctx)
			return nil
		})
	}
	if cfg.Web.Enabled {
		api, err := web.New(&cfg.Web, log, sessions, jobs, m, st, hot, registry)
		if err != nil {
			return err
		}
		g.Go(func() error {
			defer sentryClient.Recover()
			return api.Run(gctx)
		})
		log.Info("management api listening", "addr", cfg.Web.Server.Addr)
	}

	log.Info("stratumd started", "addr", cfg.Server.Addr)
	return g.Wait()
}
