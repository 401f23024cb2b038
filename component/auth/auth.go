// Package auth 提供矿工授权：按配置选择认证方式，
// 静态名单、数据库名单或匿名放行。
package auth

import (
	"context"
	"errors"
)

// Mode 认证方式
type Mode string

const (
	// ModeAnonymous 任何矿工名直接放行
	ModeAnonymous Mode = "anonymous"
	// ModeStatic 配置文件内的静态名单
	ModeStatic Mode = "static"
	// ModePostgres 数据库 workers 表
	ModePostgres Mode = "postgres"
)

var (
	// ErrUnauthorized 矿工名不存在或密码不匹配
	ErrUnauthorized = errors.New("auth: unauthorized worker")

	// ErrAuthenticatorNotFound 配置的认证方式没有对应实现
	ErrAuthenticatorNotFound = errors.New("auth: authenticator not found")
)

// Identity 认证后的矿工身份
type Identity struct {
	Worker string            // 矿工名（通常为 账户.设备 格式）
	Extra  map[string]string // 认证器特定扩展数据
}

// Authenticator 认证器接口，每种方式实现一套
type Authenticator interface {
	// Mode 获取认证器类型
	Mode() Mode

	// Authenticate 执行认证，失败返回 ErrUnauthorized
	Authenticate(ctx context.Context, worker, password string) (*Identity, error)
}
