package web

import (
	"time"

	"github.com/lk2023060901/stratumd/pkg/security"
	"github.com/lk2023060901/stratumd/pkg/web"
)

// Config 管理面 HTTP 服务配置
type Config struct {
	// Enabled 是否启用管理面
	Enabled bool `mapstructure:"enabled" json:"enabled" yaml:"enabled"`

	// Server HTTP 服务配置
	Server web.Config `mapstructure:"server" json:"server" yaml:"server"`

	// JWT API 令牌配置，SecretKey 为空时接口不鉴权
	JWT security.JWTConfig `mapstructure:"jwt" json:"jwt" yaml:"jwt"`

	// AdminUser 签发令牌的管理账号
	AdminUser string `mapstructure:"admin_user" json:"admin_user" yaml:"admin_user"`
	// AdminPasswordHash 管理账号密码的 bcrypt 哈希
	AdminPasswordHash string `mapstructure:"admin_password_hash" json:"admin_password_hash" yaml:"admin_password_hash"`

	// StatsPushInterval WebSocket 统计推送间隔
	StatsPushInterval time.Duration `mapstructure:"stats_push_interval" json:"stats_push_interval" yaml:"stats_push_interval"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Enabled:           true,
		Server:            *web.DefaultConfig(),
		JWT:               *security.DefaultJWTConfig(),
		AdminUser:         "admin",
		StatsPushInterval: 2 * time.Second,
	}
}
