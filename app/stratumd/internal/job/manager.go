package job

import (
	"sync"
	"time"

	"github.com/lk2023060901/stratumd/pkg/idgen"
)

// Manager 任务管理器，持有当前任务和尚未过期的历史任务
type Manager struct {
	gen idgen.Generator
	ttl time.Duration

	mu           sync.RWMutex
	jobs         map[string]*Job
	current      *Job
	seq          uint64
	lastChecksum uint64
}

// NewManager 创建任务管理器
// ttl: 任务保留时长，过期任务的提交按 stale 处理
func NewManager(gen idgen.Generator, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Manager{
		gen:  gen,
		ttl:  ttl,
		jobs: make(map[string]*Job),
	}
}

// Create 由模板创建新任务
// 与上一模板内容相同且非清场时返回 (nil, false, nil)，避免重复广播
func (m *Manager) Create(t *Template) (*Job, bool, error) {
	checksum := t.Checksum()

	m.mu.Lock()
	defer m.mu.Unlock()

	if !t.Clean && m.current != nil && checksum == m.lastChecksum {
		return nil, false, nil
	}

	id, err := idgen.HexID(m.gen)
	if err != nil {
		return nil, false, err
	}

	m.seq++
	now := time.Now()
	j := &Job{
		ID:        id,
		Seq:       m.seq,
		Template:  t,
		Clean:     t.Clean,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}

	if t.Clean {
		// 清场：所有旧任务立刻作废
		m.jobs = make(map[string]*Job)
	} else {
		m.pruneExpiredLocked(now)
	}

	m.jobs[id] = j
	m.current = j
	m.lastChecksum = checksum
	return j, true, nil
}

// Current 当前任务，可能为 nil（尚未收到模板）
func (m *Manager) Current() *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Lookup 按 ID 查找任务，过期或被清场的任务视为不存在
func (m *Manager) Lookup(id string) (*Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[id]
	if !ok || j.Expired() {
		return nil, false
	}
	return j, true
}

// ActiveCount 尚未过期的任务数量
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, j := range m.jobs {
		if !j.Expired() {
			n++
		}
	}
	return n
}

func (m *Manager) pruneExpiredLocked(now time.Time) {
	for id, j := range m.jobs {
		if now.After(j.ExpiresAt) && j != m.current {
			delete(m.jobs, id)
		}
	}
}
