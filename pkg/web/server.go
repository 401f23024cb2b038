// Package web 封装 Gin HTTP 服务的创建与优雅停机。
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lk2023060901/stratumd/pkg/logger"
	"github.com/lk2023060901/stratumd/pkg/web/middleware"
)

// Server Web 服务核心结构
type Server struct {
	engine *gin.Engine
	config *Config
	log    logger.Logger
	server *http.Server
}

// NewServer 创建 Web 服务，挂载日志与恢复中间件
func NewServer(cfg *Config, l logger.Logger) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if l == nil {
		l = logger.NewNop()
	}

	gin.SetMode(cfg.Mode)

	engine := gin.New()
	engine.Use(middleware.Logger(l))
	engine.Use(middleware.Recovery(l))

	return &Server{
		engine: engine,
		config: cfg,
		log:    l.Named("web.server"),
	}
}

// Router 返回 Gin 引擎，用于注册路由
func (s *Server) Router() *gin.Engine {
	return s.engine
}

// Run 启动服务并阻塞到 ctx 取消，退出前优雅关机
func (s *Server) Run(ctx context.Context) error {
	s.server = &http.Server{
		Addr:           s.config.Addr,
		Handler:        s.engine,
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting http server", "addr", s.config.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}
