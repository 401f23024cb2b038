package auth

import "context"

// AnonymousAuthenticator 匿名认证：记录矿工名即放行
// 适用于私有网络部署和本地联调
type AnonymousAuthenticator struct{}

func NewAnonymousAuthenticator() *AnonymousAuthenticator {
	return &AnonymousAuthenticator{}
}

func (a *AnonymousAuthenticator) Mode() Mode { return ModeAnonymous }

func (a *AnonymousAuthenticator) Authenticate(_ context.Context, worker, _ string) (*Identity, error) {
	return &Identity{Worker: worker}, nil
}
