package session

import (
	"context"
	"net"
	"testing"
	"time"
)

func addTestSession(t *testing.T, m *Manager, cfg *Config) *Session {
	t.Helper()
	server, client := net.Pipe()
	s := New(server, cfg)
	t.Cleanup(func() {
		_ = s.Close()
		_ = client.Close()
	})

	// 对端持续排空，避免写循环阻塞
	go func() {
		buf := make([]byte, 4096)
		for {
			if _, err := client.Read(buf); err != nil {
				return
			}
		}
	}()

	m.Add(s)
	return s
}

func TestManagerAddRemove(t *testing.T) {
	m := NewManager()
	s := addTestSession(t, m, nil)

	if m.Count() != 1 {
		t.Fatalf("expected 1 session, got %d", m.Count())
	}
	if _, ok := m.Get(s.ID()); !ok {
		t.Error("expected session to be retrievable")
	}

	m.Remove(s.ID())
	if m.Count() != 0 {
		t.Errorf("expected 0 sessions after remove, got %d", m.Count())
	}
	if s.State() != StateClosed {
		t.Error("remove must close the session")
	}

	// 移除不存在的会话不应 panic
	m.Remove("missing")
}

func TestWorkerIndex(t *testing.T) {
	m := NewManager()
	s1 := addTestSession(t, m, nil)
	s2 := addTestSession(t, m, nil)

	for _, s := range []*Session{s1, s2} {
		_ = s.Subscribe("ex", "ua")
		_ = s.Authorize("rig.01")
		m.IndexWorker(s)
	}

	got := m.GetByWorker("rig.01")
	if len(got) != 2 {
		t.Fatalf("expected 2 sessions for worker, got %d", len(got))
	}

	m.Remove(s1.ID())
	if len(m.GetByWorker("rig.01")) != 1 {
		t.Error("expected worker index updated on remove")
	}

	m.Remove(s2.ID())
	if m.GetByWorker("rig.01") != nil {
		t.Error("expected empty worker index after all sessions removed")
	}
}

func TestCountByState(t *testing.T) {
	m := NewManager()
	s1 := addTestSession(t, m, nil)
	_ = addTestSession(t, m, nil)

	_ = s1.Subscribe("ex", "ua")
	_ = s1.Authorize("w")

	counts := m.CountByState()
	if counts[StateActive] != 1 || counts[StateConnected] != 1 {
		t.Errorf("unexpected state counts: %v", counts)
	}
}

func TestCloseIdle(t *testing.T) {
	m := NewManager()
	stale := addTestSession(t, m, nil)
	fresh := addTestSession(t, m, nil)

	time.Sleep(30 * time.Millisecond)
	fresh.Touch()

	closed := m.CloseIdle(20 * time.Millisecond)
	if len(closed) != 1 || closed[0].ID() != stale.ID() {
		t.Fatalf("expected only the stale session closed, got %d", len(closed))
	}
	if m.Count() != 1 {
		t.Errorf("expected 1 remaining session, got %d", m.Count())
	}
}

func TestSweeper(t *testing.T) {
	m := NewManager()
	_ = addTestSession(t, m, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var swept []*Session
	done := make(chan struct{})
	m.StartSweeper(ctx, 10*time.Millisecond, 20*time.Millisecond, func(s *Session) {
		swept = append(swept, s)
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not close idle session in time")
	}
	if len(swept) != 1 {
		t.Errorf("expected 1 swept session, got %d", len(swept))
	}
}

func TestCloseAll(t *testing.T) {
	m := NewManager()
	addTestSession(t, m, nil)
	addTestSession(t, m, nil)

	m.CloseAll()
	if m.Count() != 0 {
		t.Errorf("expected no sessions after CloseAll, got %d", m.Count())
	}
}
