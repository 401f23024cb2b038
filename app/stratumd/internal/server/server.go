// Package server 实现 Stratum TCP 服务：
// 每连接一个读协程，帧交给处理器路由，空闲和慢速连接由读超时与限速器约束。
package server

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/time/rate"

	"github.com/lk2023060901/stratumd/app/stratumd/internal/handler"
	"github.com/lk2023060901/stratumd/app/stratumd/internal/metrics"
	"github.com/lk2023060901/stratumd/app/stratumd/internal/session"
	"github.com/lk2023060901/stratumd/pkg/logger"
	"github.com/lk2023060901/stratumd/pkg/stratum"
)

// Server Stratum TCP 服务
type Server struct {
	cfg        *Config
	sessionCfg *session.Config
	log        logger.Logger
	sessions   *session.Manager
	handler    *handler.Handler
	metrics    *metrics.StratumMetrics

	mu       sync.Mutex
	listener net.Listener
	closed   bool

	wg sync.WaitGroup
}

// New 创建服务
func New(cfg *Config, sessionCfg *session.Config, log logger.Logger, sessions *session.Manager, h *handler.Handler, m *metrics.StratumMetrics) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sessionCfg == nil {
		sessionCfg = session.DefaultConfig()
	}
	if log == nil {
		log = logger.NewNop()
	}

	return &Server{
		cfg:        cfg,
		sessionCfg: sessionCfg,
		log:        log,
		sessions:   sessions,
		handler:    h,
		metrics:    m,
	}, nil
}

// Addr 实际监听地址，Serve 之前为空
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Serve 监听并处理连接，直到 ctx 取消或 Shutdown 被调用
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return errors.Wrapf(err, "listen %s", s.cfg.Addr)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = ln.Close()
		return nil
	}
	s.listener = ln
	s.mu.Unlock()

	s.log.Info("stratum server listening", "addr", ln.Addr().String())

	go func() {
		<-ctx.Done()
		s.Shutdown()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return nil
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return errors.Wrap(err, "accept")
		}

		if s.sessions.Count() >= s.cfg.MaxConns {
			s.log.Warn("connection limit reached, rejecting", "remote_addr", conn.RemoteAddr().String())
			_ = conn.Close()
			continue
		}

		s.wg.Add(1)
		go s.handleConn(ctx, conn)
	}
}

// Shutdown 停止接受新连接并关闭所有会话，等待处理协程退出
func (s *Server) Shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	ln := s.listener
	s.mu.Unlock()

	if ln != nil {
		_ = ln.Close()
	}
	s.sessions.CloseAll()
	s.wg.Wait()
	s.log.Info("stratum server stopped")
}

// handleConn 单连接读循环
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()

	sess := session.New(conn, s.sessionCfg)
	s.sessions.Add(sess)
	if s.metrics != nil {
		s.metrics.RecordConnection()
	}
	s.log.Debug("connection accepted", "session_id", sess.ID(), "remote_addr", sess.RemoteAddr())

	reason := "eof"
	defer func() {
		s.sessions.Remove(sess.ID())
		if s.metrics != nil {
			s.metrics.RecordSessionClosed(reason)
		}
		s.log.Debug("connection closed",
			"session_id", sess.ID(),
			"remote_addr", sess.RemoteAddr(),
			"reason", reason)
	}()

	reader := stratum.NewReader(conn, s.cfg.MaxFrameBytes)
	limiter := rate.NewLimiter(rate.Limit(s.cfg.RateLimit), s.cfg.RateBurst)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(s.sessionCfg.IdleTimeout))

		frame, err := reader.ReadFrame()
		if err != nil {
			if errors.Is(err, stratum.ErrFrameTooLarge) {
				reason = "protocol_error"
				s.log.Warn("frame too large", "session_id", sess.ID(), "remote_addr", sess.RemoteAddr())
				return
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				reason = "idle"
				return
			}
			if sess.State() == session.StateClosed {
				reason = "shutdown"
			}
			return
		}

		// 限速：超过阈值的连接被放慢而不是断开
		if err := limiter.Wait(ctx); err != nil {
			reason = "shutdown"
			return
		}

		if err := s.handler.HandleFrame(ctx, sess, frame); err != nil {
			if errors.Is(err, handler.ErrCloseConnection) {
				reason = "protocol_error"
				// 给写循环一点时间把错误响应发出去
				time.Sleep(10 * time.Millisecond)
			}
			return
		}
	}
}
