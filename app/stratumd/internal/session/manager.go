package session

import (
	"context"
	"sync"
	"time"
)

// Manager 会话管理器，持有会话表和矿工名索引
// 广播遍历和连接增删都经过同一把读写锁，不允许竞态
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session            // sessionID -> Session
	workers  map[string]map[string]*Session // worker -> (sessionID -> Session)
}

// NewManager 创建会话管理器
func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		workers:  make(map[string]map[string]*Session),
	}
}

// Add 注册会话
func (m *Manager) Add(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID()] = s
}

// Remove 注销并关闭会话
func (m *Manager) Remove(sessionID string) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
		if worker := s.Worker(); worker != "" {
			if ws, exists := m.workers[worker]; exists {
				delete(ws, sessionID)
				if len(ws) == 0 {
					delete(m.workers, worker)
				}
			}
		}
	}
	m.mu.Unlock()

	if ok {
		_ = s.Close()
	}
}

// Get 获取会话
func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	return s, ok
}

// IndexWorker 授权成功后建立矿工名索引
func (m *Manager) IndexWorker(s *Session) {
	worker := s.Worker()
	if worker == "" {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.workers[worker]; !exists {
		m.workers[worker] = make(map[string]*Session)
	}
	m.workers[worker][s.ID()] = s
}

// GetByWorker 按矿工名查找所有会话
func (m *Manager) GetByWorker(worker string) []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ws, ok := m.workers[worker]
	if !ok {
		return nil
	}
	out := make([]*Session, 0, len(ws))
	for _, s := range ws {
		out = append(out, s)
	}
	return out
}

// Count 当前会话总数
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CountByState 按状态统计会话数
func (m *Manager) CountByState() map[State]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[State]int, 4)
	for _, s := range m.sessions {
		out[s.State()]++
	}
	return out
}

// Snapshot 活跃会话快照，供广播迭代，不持锁投递
func (m *Manager) Snapshot() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// CloseIdle 关闭并移除空闲超时的会话，返回被关闭的会话
func (m *Manager) CloseIdle(timeout time.Duration) []*Session {
	var idle []*Session
	m.mu.RLock()
	for _, s := range m.sessions {
		if s.IdleSince() > timeout {
			idle = append(idle, s)
		}
	}
	m.mu.RUnlock()

	for _, s := range idle {
		m.Remove(s.ID())
	}
	return idle
}

// StartSweeper 启动空闲会话清理循环
// onClose: 每个被关闭的会话回调一次，可为 nil
func (m *Manager) StartSweeper(ctx context.Context, interval, timeout time.Duration, onClose func(*Session)) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				for _, s := range m.CloseIdle(timeout) {
					if onClose != nil {
						onClose(s)
					}
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// CloseAll 关闭所有会话（服务停机）
func (m *Manager) CloseAll() {
	for _, s := range m.Snapshot() {
		m.Remove(s.ID())
	}
}
