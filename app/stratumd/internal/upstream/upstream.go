// Package upstream 提供区块模板源：
// 从 bitcoind 拉取 getblocktemplate，或在联调环境使用本地合成模板。
package upstream

import (
	"context"
	"time"

	"github.com/lk2023060901/stratumd/app/stratumd/internal/job"
	"github.com/lk2023060901/stratumd/pkg/logger"
)

// Source 模板源
type Source interface {
	// Fetch 拉取最新模板
	Fetch(ctx context.Context) (*job.Template, error)
}

// Refresher 模板刷新循环：周期性拉取模板并交给回调
type Refresher struct {
	src      Source
	interval time.Duration
	log      logger.Logger
}

// NewRefresher 创建刷新循环
func NewRefresher(src Source, interval time.Duration, log logger.Logger) *Refresher {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Refresher{src: src, interval: interval, log: log}
}

// Run 运行刷新循环直到 ctx 取消
// 启动即拉取一次，拉取失败只记日志，下个周期重试
func (r *Refresher) Run(ctx context.Context, onTemplate func(*job.Template)) {
	r.refresh(ctx, onTemplate)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.refresh(ctx, onTemplate)
		case <-ctx.Done():
			return
		}
	}
}

func (r *Refresher) refresh(ctx context.Context, onTemplate func(*job.Template)) {
	t, err := r.src.Fetch(ctx)
	if err != nil {
		r.log.Warn("fetch template failed", "error", err)
		return
	}
	onTemplate(t)
}
