package store

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lk2023060901/stratumd/pkg/logger"
)

// JanitorConfig 清理任务配置
type JanitorConfig struct {
	// PruneSpec 份额清理的 cron 表达式
	PruneSpec string `mapstructure:"prune_spec" json:"prune_spec" yaml:"prune_spec"`
	// ShareRetention 份额保留时长
	ShareRetention time.Duration `mapstructure:"share_retention" json:"share_retention" yaml:"share_retention"`
}

// DefaultJanitorConfig 默认清理配置：每小时清一次，保留 7 天
func DefaultJanitorConfig() *JanitorConfig {
	return &JanitorConfig{
		PruneSpec:      "0 * * * *",
		ShareRetention: 7 * 24 * time.Hour,
	}
}

// Janitor 后台清理任务：历史份额落库清理 + 内存去重桶回收
type Janitor struct {
	cfg   *JanitorConfig
	store *Store
	log   logger.Logger
	cron  *cron.Cron

	// extraJobs 随份额清理一起执行的内存回收
	extraJobs []func()
}

// NewJanitor 创建清理任务
func NewJanitor(cfg *JanitorConfig, store *Store, log logger.Logger, extraJobs ...func()) *Janitor {
	if cfg == nil {
		cfg = DefaultJanitorConfig()
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Janitor{
		cfg:       cfg,
		store:     store,
		log:       log,
		cron:      cron.New(),
		extraJobs: extraJobs,
	}
}

// Start 启动定时清理
func (j *Janitor) Start() error {
	_, err := j.cron.AddFunc(j.cfg.PruneSpec, j.runOnce)
	if err != nil {
		return err
	}
	j.cron.Start()
	return nil
}

// Stop 停止定时清理，等待在途任务结束
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

func (j *Janitor) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if j.store != nil {
		removed, err := j.store.PruneShares(ctx, j.cfg.ShareRetention)
		if err != nil {
			j.log.Error("prune shares failed", "error", err)
		} else if removed > 0 {
			j.log.Info("pruned shares", "removed", removed, "retention", j.cfg.ShareRetention)
		}
	}

	for _, fn := range j.extraJobs {
		fn()
	}
}
