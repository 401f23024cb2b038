package auth

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
)

// Manager 认证管理器
type Manager struct {
	mu             sync.RWMutex
	mode           Mode
	authenticators map[Mode]Authenticator
}

func NewManager(mode Mode) *Manager {
	return &Manager{
		mode:           mode,
		authenticators: make(map[Mode]Authenticator),
	}
}

// Register 注册认证器
func (m *Manager) Register(a Authenticator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.authenticators[a.Mode()] = a
}

// Verify 按配置的认证方式执行认证分发
func (m *Manager) Verify(ctx context.Context, worker, password string) (*Identity, error) {
	m.mu.RLock()
	a, ok := m.authenticators[m.mode]
	m.mu.RUnlock()

	if !ok {
		return nil, errors.Wrapf(ErrAuthenticatorNotFound, "mode: %s", m.mode)
	}

	return a.Authenticate(ctx, worker, password)
}
