package session

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"
)

// newPipeSession 基于 net.Pipe 创建会话，返回对端连接
func newPipeSession(t *testing.T, cfg *Config) (*Session, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	s := New(server, cfg)
	t.Cleanup(func() {
		_ = s.Close()
		_ = client.Close()
	})
	return s, client
}

func TestStateMachineHappyPath(t *testing.T) {
	s, _ := newPipeSession(t, nil)

	if s.State() != StateConnected {
		t.Fatalf("expected initial state connected, got %s", s.State())
	}

	if err := s.Subscribe("a1b2c3d4", "test/1.0"); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	if s.State() != StateSubscribed {
		t.Errorf("expected subscribed, got %s", s.State())
	}

	e1, e2size := s.Extranonce()
	if e1 != "a1b2c3d4" || e2size != 4 {
		t.Errorf("unexpected extranonce assignment: %s/%d", e1, e2size)
	}

	if err := s.Authorize("test.worker"); err != nil {
		t.Fatalf("authorize failed: %v", err)
	}
	if s.State() != StateActive {
		t.Errorf("expected active, got %s", s.State())
	}
	if s.Worker() != "test.worker" {
		t.Errorf("expected worker recorded, got %q", s.Worker())
	}
}

func TestAuthorizeBeforeSubscribe(t *testing.T) {
	s, _ := newPipeSession(t, nil)

	if err := s.Authorize("test.worker"); err != ErrNotSubscribed {
		t.Errorf("expected ErrNotSubscribed, got %v", err)
	}
	if s.State() != StateConnected {
		t.Errorf("failed authorize must not change state, got %s", s.State())
	}
}

func TestResubscribeFails(t *testing.T) {
	s, _ := newPipeSession(t, nil)

	if err := s.Subscribe("aa", "ua"); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	if err := s.Subscribe("bb", "ua"); err != ErrAlreadySubscribed {
		t.Errorf("expected ErrAlreadySubscribed, got %v", err)
	}

	// extranonce 不能被重复订阅覆盖
	e1, _ := s.Extranonce()
	if e1 != "aa" {
		t.Errorf("re-subscribe must not overwrite extranonce, got %s", e1)
	}
}

func TestReauthorizeIdempotent(t *testing.T) {
	s, _ := newPipeSession(t, nil)
	_ = s.Subscribe("aa", "ua")
	_ = s.Authorize("w1")

	if err := s.Authorize("w1"); err != nil {
		t.Errorf("re-authorize on active session should be idempotent, got %v", err)
	}
}

func TestSendDeliversFrame(t *testing.T) {
	s, client := newPipeSession(t, nil)

	frame := []byte("{\"id\":1,\"result\":true,\"error\":null}\n")
	if err := s.Send(context.Background(), frame); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	_ = client.SetReadDeadline(time.Now().Add(time.Second))
	line, err := bufio.NewReader(client).ReadString('\n')
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if line != string(frame) {
		t.Errorf("unexpected frame: %q", line)
	}
}

func TestTrySendQueueFull(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SendQueueSize = 1
	s, _ := newPipeSession(t, cfg)
	// 对端不读，写循环阻塞在第一帧上

	_ = s.TrySend([]byte("frame1\n"))
	// 等写循环取走第一帧
	time.Sleep(50 * time.Millisecond)
	_ = s.TrySend([]byte("frame2\n"))

	if err := s.TrySend([]byte("frame3\n")); err != ErrSendQueueFull {
		t.Errorf("expected ErrSendQueueFull, got %v", err)
	}
}

func TestCloseCancelsPendingSend(t *testing.T) {
	s, _ := newPipeSession(t, nil)
	_ = s.Close()

	if err := s.Send(context.Background(), []byte("x\n")); err != ErrSessionClosed {
		t.Errorf("expected ErrSessionClosed, got %v", err)
	}
	if s.State() != StateClosed {
		t.Errorf("expected closed state, got %s", s.State())
	}

	// 重复关闭幂等
	if err := s.Close(); err != nil {
		t.Errorf("double close should be nil, got %v", err)
	}
}

func TestMarkJobDeliveredMonotonic(t *testing.T) {
	s, _ := newPipeSession(t, nil)

	if !s.MarkJobDelivered(3) {
		t.Error("expected first delivery to succeed")
	}
	if s.MarkJobDelivered(2) {
		t.Error("older job must not be delivered after newer one")
	}
	if s.MarkJobDelivered(3) {
		t.Error("same job must not be delivered twice")
	}
	if !s.MarkJobDelivered(4) {
		t.Error("newer job must be deliverable")
	}
	if s.LastJobSeq() != 4 {
		t.Errorf("expected last seq 4, got %d", s.LastJobSeq())
	}
}

func TestIdleTracking(t *testing.T) {
	s, _ := newPipeSession(t, nil)

	time.Sleep(20 * time.Millisecond)
	if s.IdleSince() < 10*time.Millisecond {
		t.Error("expected idle time to accumulate")
	}

	s.Touch()
	if s.IdleSince() > 10*time.Millisecond {
		t.Error("expected Touch to reset idle time")
	}
}
