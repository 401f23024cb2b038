// Package config 聚合 stratumd 全部配置：
// 从配置文件与环境变量加载，统一做默认值填充和校验。
package config

import (
	"time"

	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/stratumd/app/stratumd/internal/dispatch"
	"github.com/lk2023060901/stratumd/app/stratumd/internal/events"
	"github.com/lk2023060901/stratumd/app/stratumd/internal/metrics"
	"github.com/lk2023060901/stratumd/app/stratumd/internal/server"
	"github.com/lk2023060901/stratumd/app/stratumd/internal/session"
	"github.com/lk2023060901/stratumd/app/stratumd/internal/store"
	"github.com/lk2023060901/stratumd/app/stratumd/internal/upstream"
	"github.com/lk2023060901/stratumd/app/stratumd/internal/web"
	"github.com/lk2023060901/stratumd/component/auth"
	pkgconfig "github.com/lk2023060901/stratumd/pkg/config"
	"github.com/lk2023060901/stratumd/pkg/database/postgres"
	"github.com/lk2023060901/stratumd/pkg/database/redis"
	"github.com/lk2023060901/stratumd/pkg/logger"
	"github.com/lk2023060901/stratumd/pkg/sentry"
)

// UpstreamConfig 模板源配置
type UpstreamConfig struct {
	// Mode 模板源类型：synthetic（本地合成）或 bitcoinrpc
	Mode string `mapstructure:"mode" json:"mode" yaml:"mode" validate:"oneof=synthetic bitcoinrpc"`
	// RefreshInterval 模板拉取间隔
	RefreshInterval time.Duration `mapstructure:"refresh_interval" json:"refresh_interval" yaml:"refresh_interval"`
	// JobTTL 任务从失效到不再接受份额的窗口
	JobTTL time.Duration `mapstructure:"job_ttl" json:"job_ttl" yaml:"job_ttl"`
	// BitcoinRPC bitcoind 模板源配置（mode 为 bitcoinrpc 时生效）
	BitcoinRPC upstream.BitcoinRPCConfig `mapstructure:"bitcoinrpc" json:"bitcoinrpc" yaml:"bitcoinrpc"`
	// Synthetic 本地合成模板源配置
	Synthetic SyntheticConfig `mapstructure:"synthetic" json:"synthetic" yaml:"synthetic"`
}

// SyntheticConfig 合成模板源配置
type SyntheticConfig struct {
	// Difficulty 下发的份额难度
	Difficulty float64 `mapstructure:"difficulty" json:"difficulty" yaml:"difficulty"`
	// StartHeight 起始高度
	StartHeight int64 `mapstructure:"start_height" json:"start_height" yaml:"start_height"`
}

// AuthConfig 矿工认证配置
type AuthConfig struct {
	// Mode 认证模式：anonymous、static 或 postgres
	Mode auth.Mode `mapstructure:"mode" json:"mode" yaml:"mode" validate:"oneof=anonymous static postgres"`
	// StaticWorkers 静态矿工名单
	// 列表而非 map：矿工名惯例含点号（账户.设备），viper 会把 map 键里的点当作层级分隔符
	StaticWorkers []StaticWorkerConfig `mapstructure:"static_workers" json:"static_workers" yaml:"static_workers" validate:"dive"`
}

// StaticWorkerConfig 静态名单里的一个矿工
type StaticWorkerConfig struct {
	// Name 矿工名（通常为 账户.设备 格式）
	Name string `mapstructure:"name" json:"name" yaml:"name" validate:"required"`
	// PasswordHash 密码的 bcrypt 哈希，空串表示只校验矿工名
	PasswordHash string `mapstructure:"password_hash" json:"password_hash" yaml:"password_hash"`
}

// StaticWorkerMap 名单转为认证器需要的 worker -> 哈希映射
func (a *AuthConfig) StaticWorkerMap() map[string]string {
	m := make(map[string]string, len(a.StaticWorkers))
	for _, w := range a.StaticWorkers {
		m[w.Name] = w.PasswordHash
	}
	return m
}

// StoreConfig 持久化配置
type StoreConfig struct {
	// Enabled 是否启用 PostgreSQL 持久化
	Enabled bool `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	// Postgres 数据库连接配置
	Postgres postgres.Config `mapstructure:"postgres" json:"postgres" yaml:"postgres"`
	// Writer 异步落库配置
	Writer store.WriterConfig `mapstructure:"writer" json:"writer" yaml:"writer"`
	// Janitor 历史数据清理配置
	Janitor store.JanitorConfig `mapstructure:"janitor" json:"janitor" yaml:"janitor"`
}

// RedisConfig 热点计数配置
type RedisConfig struct {
	// Enabled 是否启用 Redis 实时计数
	Enabled bool `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	// Redis 连接配置
	Redis redis.Config `mapstructure:"redis" json:"redis" yaml:"redis"`
	// CounterTTL 计数键过期时长
	CounterTTL time.Duration `mapstructure:"counter_ttl" json:"counter_ttl" yaml:"counter_ttl"`
}

// Config stratumd 顶层配置
type Config struct {
	Logger   logger.Config      `mapstructure:"logger" json:"logger" yaml:"logger"`
	Server   server.Config      `mapstructure:"server" json:"server" yaml:"server"`
	Session  session.Config     `mapstructure:"session" json:"session" yaml:"session"`
	Dispatch dispatch.Config    `mapstructure:"dispatch" json:"dispatch" yaml:"dispatch"`
	Metrics  metrics.Config     `mapstructure:"metrics" json:"metrics" yaml:"metrics"`
	Upstream UpstreamConfig     `mapstructure:"upstream" json:"upstream" yaml:"upstream"`
	Auth     AuthConfig         `mapstructure:"auth" json:"auth" yaml:"auth"`
	Store    StoreConfig        `mapstructure:"store" json:"store" yaml:"store"`
	Redis    RedisConfig        `mapstructure:"redis" json:"redis" yaml:"redis"`
	Events   events.KafkaConfig `mapstructure:"events" json:"events" yaml:"events"`
	Web      web.Config         `mapstructure:"web" json:"web" yaml:"web"`
	Sentry   sentry.Config      `mapstructure:"sentry" json:"sentry" yaml:"sentry"`
}

// Default 默认配置：匿名认证 + 合成模板源，不依赖任何外部服务
func Default() *Config {
	return &Config{
		Logger:   *logger.DefaultConfig(),
		Server:   *server.DefaultConfig(),
		Session:  *session.DefaultConfig(),
		Dispatch: *dispatch.DefaultConfig(),
		Metrics:  *metrics.DefaultConfig(),
		Upstream: UpstreamConfig{
			Mode:            "synthetic",
			RefreshInterval: 10 * time.Second,
			JobTTL:          5 * time.Minute,
			BitcoinRPC:      *upstream.DefaultBitcoinRPCConfig(),
			Synthetic:       SyntheticConfig{Difficulty: 1, StartHeight: 1},
		},
		Auth: AuthConfig{
			Mode: auth.ModeAnonymous,
		},
		Store: StoreConfig{
			Enabled:  false,
			Postgres: *postgres.DefaultConfig(),
			Writer:   *store.DefaultWriterConfig(),
			Janitor:  *store.DefaultJanitorConfig(),
		},
		Redis: RedisConfig{
			Enabled:    false,
			Redis:      *redis.DefaultConfig(),
			CounterTTL: 24 * time.Hour,
		},
		Events: *events.DefaultKafkaConfig(),
		Web:    *web.DefaultConfig(),
		Sentry: *sentry.DefaultConfig(),
	}
}

// Load 加载配置：默认值 <- 配置文件 <- STRATUMD_ 环境变量
// path 为空时只用默认值和环境变量
func Load(path string) (*Config, error) {
	cfg := Default()

	m := pkgconfig.NewManager()
	m.BindEnv("STRATUMD")
	if path != "" {
		if err := m.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := m.Unmarshal(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置：先跑结构体标签校验，再做跨字段检查
func (c *Config) Validate() error {
	if err := pkgconfig.ValidateStruct(c); err != nil {
		return err
	}
	if err := c.Server.Validate(); err != nil {
		return errors.Wrap(err, "server")
	}
	if err := c.Session.Validate(); err != nil {
		return errors.Wrap(err, "session")
	}

	switch c.Upstream.Mode {
	case "synthetic":
	case "bitcoinrpc":
		if c.Upstream.BitcoinRPC.URL == "" {
			return errors.New("upstream: bitcoinrpc.url is required")
		}
		if c.Upstream.BitcoinRPC.PayoutScript == "" {
			return errors.New("upstream: bitcoinrpc.payout_script is required")
		}
	default:
		return errors.Newf("upstream: unknown mode %q", c.Upstream.Mode)
	}

	switch c.Auth.Mode {
	case auth.ModeAnonymous:
	case auth.ModeStatic:
		if len(c.Auth.StaticWorkers) == 0 {
			return errors.New("auth: static_workers is empty in static mode")
		}
	case auth.ModePostgres:
		if !c.Store.Enabled {
			return errors.New("auth: postgres mode requires store.enabled")
		}
	default:
		return errors.Newf("auth: unknown mode %q", c.Auth.Mode)
	}

	if c.Store.Enabled {
		if err := c.Store.Postgres.Validate(); err != nil {
			return errors.Wrap(err, "store.postgres")
		}
	}
	if c.Redis.Enabled {
		if err := c.Redis.Redis.Validate(); err != nil {
			return errors.Wrap(err, "redis")
		}
	}
	if err := c.Sentry.Validate(); err != nil {
		return errors.Wrap(err, "sentry")
	}
	return nil
}
