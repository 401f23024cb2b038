// Package session 管理矿工会话：每个连接一个会话，
// 状态机 Connected → Subscribed → Active，断开或空闲超时进入 Closed。
package session

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"
)

// State 会话状态
type State int32

const (
	// StateConnected 已建立连接，尚未订阅
	StateConnected State = iota
	// StateSubscribed 已订阅，尚未授权
	StateSubscribed
	// StateActive 已授权，可接收任务广播
	StateActive
	// StateClosed 已关闭
	StateClosed
)

// String 状态名称，用于日志和指标
func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateSubscribed:
		return "subscribed"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session 矿工会话
// 所有出站帧经由发送队列串行写出，保证响应按协议顺序到达
type Session struct {
	id         string
	remoteAddr string
	conn       net.Conn
	cfg        *Config

	state        atomic.Int32
	lastActivity atomic.Int64  // unix nano
	lastJobSeq   atomic.Uint64 // 已投递的最大任务序号

	mu              sync.RWMutex
	worker          string
	userAgent       string
	extranonce1     string
	extranonce2Size int
	difficulty      float64

	sendCh    chan []byte
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// New 创建会话并启动写循环
func New(conn net.Conn, cfg *Config) *Session {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:         uuid.New().String(),
		remoteAddr: conn.RemoteAddr().String(),
		conn:       conn,
		cfg:        cfg,
		sendCh:     make(chan []byte, cfg.SendQueueSize),
		ctx:        ctx,
		cancel:     cancel,
	}
	s.lastActivity.Store(time.Now().UnixNano())
	go s.writeLoop()
	return s
}

// ID 会话唯一标识
func (s *Session) ID() string { return s.id }

// RemoteAddr 对端地址
func (s *Session) RemoteAddr() string { return s.remoteAddr }

// State 当前状态
func (s *Session) State() State { return State(s.state.Load()) }

// Context 会话生命周期上下文，关闭时取消
func (s *Session) Context() context.Context { return s.ctx }

// Touch 刷新最后活动时间
func (s *Session) Touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

// IdleSince 距最后活动经过的时长
func (s *Session) IdleSince() time.Duration {
	return time.Since(time.Unix(0, s.lastActivity.Load()))
}

// Subscribe 处理订阅：仅允许从 Connected 转入 Subscribed
func (s *Session) Subscribe(extranonce1 string, userAgent string) error {
	if !s.state.CAS(int32(StateConnected), int32(StateSubscribed)) {
		if s.State() == StateClosed {
			return ErrSessionClosed
		}
		return ErrAlreadySubscribed
	}

	s.mu.Lock()
	s.extranonce1 = extranonce1
	s.extranonce2Size = s.cfg.Extranonce2Size
	s.userAgent = userAgent
	s.mu.Unlock()
	return nil
}

// Authorize 处理授权：仅允许从 Subscribed 转入 Active
// 已 Active 的会话重复授权视为幂等成功
func (s *Session) Authorize(worker string) error {
	switch s.State() {
	case StateConnected:
		return ErrNotSubscribed
	case StateClosed:
		return ErrSessionClosed
	case StateActive:
		return nil
	}

	if !s.state.CAS(int32(StateSubscribed), int32(StateActive)) {
		return ErrNotSubscribed
	}

	s.mu.Lock()
	s.worker = worker
	s.mu.Unlock()
	return nil
}

// Worker 授权的矿工名，未授权返回空串
func (s *Session) Worker() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.worker
}

// UserAgent 订阅时上报的客户端标识
func (s *Session) UserAgent() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userAgent
}

// Extranonce 会话的 extranonce1 和 extranonce2 长度
func (s *Session) Extranonce() (string, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.extranonce1, s.extranonce2Size
}

// SetDifficulty 记录当前下发的份额难度
func (s *Session) SetDifficulty(d float64) {
	s.mu.Lock()
	s.difficulty = d
	s.mu.Unlock()
}

// Difficulty 当前份额难度
func (s *Session) Difficulty() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.difficulty
}

// MarkJobDelivered 记录已投递的任务序号
// 仅当 seq 更新才返回 true，保证任务投递单调不回退
func (s *Session) MarkJobDelivered(seq uint64) bool {
	for {
		cur := s.lastJobSeq.Load()
		if seq <= cur {
			return false
		}
		if s.lastJobSeq.CAS(cur, seq) {
			return true
		}
	}
}

// LastJobSeq 已投递的最大任务序号
func (s *Session) LastJobSeq() uint64 { return s.lastJobSeq.Load() }

// Send 投递一帧到发送队列，ctx 取消或会话关闭时返回错误
func (s *Session) Send(ctx context.Context, frame []byte) error {
	if s.State() == StateClosed {
		return ErrSessionClosed
	}
	select {
	case s.sendCh <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return ErrSessionClosed
	}
}

// TrySend 非阻塞投递，队列满返回 ErrSendQueueFull
// 广播路径使用此方法，慢消费者不得阻塞整体投递
func (s *Session) TrySend(frame []byte) error {
	if s.State() == StateClosed {
		return ErrSessionClosed
	}
	select {
	case s.sendCh <- frame:
		return nil
	case <-s.ctx.Done():
		return ErrSessionClosed
	default:
		return ErrSendQueueFull
	}
}

// writeLoop 串行写出发送队列，单帧写超时即关闭会话
func (s *Session) writeLoop() {
	for {
		select {
		case frame := <-s.sendCh:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if _, err := s.conn.Write(frame); err != nil {
				_ = s.Close()
				return
			}
		case <-s.ctx.Done():
			return
		}
	}
}

// Close 关闭会话，幂等；取消生命周期上下文并关闭底层连接，
// 写循环中排队的帧随之废弃
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosed))
		s.cancel()
		err = s.conn.Close()
	})
	return err
}
