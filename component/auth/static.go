package auth

import (
	"context"

	"golang.org/x/crypto/bcrypt"
)

// StaticAuthenticator 静态名单认证：矿工名 -> bcrypt 密码哈希
// 名单来自配置文件，空哈希表示只校验矿工名
type StaticAuthenticator struct {
	workers map[string]string
}

func NewStaticAuthenticator(workers map[string]string) *StaticAuthenticator {
	if workers == nil {
		workers = make(map[string]string)
	}
	return &StaticAuthenticator{workers: workers}
}

func (a *StaticAuthenticator) Mode() Mode { return ModeStatic }

func (a *StaticAuthenticator) Authenticate(_ context.Context, worker, password string) (*Identity, error) {
	hash, ok := a.workers[worker]
	if !ok {
		return nil, ErrUnauthorized
	}
	if hash != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
			return nil, ErrUnauthorized
		}
	}
	return &Identity{Worker: worker}, nil
}
