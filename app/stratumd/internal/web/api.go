// Package web 提供管理面 HTTP 接口：
// 运行状态、连接列表、矿工统计、Prometheus 指标和 WebSocket 实时推送。
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/crypto/bcrypt"

	"github.com/lk2023060901/stratumd/app/stratumd/internal/job"
	"github.com/lk2023060901/stratumd/app/stratumd/internal/metrics"
	"github.com/lk2023060901/stratumd/app/stratumd/internal/session"
	"github.com/lk2023060901/stratumd/app/stratumd/internal/store"
	"github.com/lk2023060901/stratumd/pkg/logger"
	"github.com/lk2023060901/stratumd/pkg/security"
	"github.com/lk2023060901/stratumd/pkg/web"
	"github.com/lk2023060901/stratumd/pkg/web/middleware"
)

// API 管理面服务
type API struct {
	cfg      *Config
	log      logger.Logger
	sessions *session.Manager
	jobs     *job.Manager
	metrics  *metrics.StratumMetrics
	store    *store.Store       // 可为 nil（未启用持久化）
	hot      *store.HotCounters // 可为 nil（未启用 Redis 计数）
	registry *prometheus.Registry
	jwt      *security.JWTManager // 可为 nil（未配置密钥）

	server   *web.Server
	upgrader websocket.Upgrader
}

// New 创建管理面服务
func New(cfg *Config, log logger.Logger, sessions *session.Manager, jobs *job.Manager, m *metrics.StratumMetrics, st *store.Store, hot *store.HotCounters, registry *prometheus.Registry) (*API, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if log == nil {
		log = logger.NewNop()
	}

	var jwtMgr *security.JWTManager
	if cfg.JWT.SecretKey != "" {
		var err error
		jwtMgr, err = security.NewJWTManager(&cfg.JWT)
		if err != nil {
			return nil, err
		}
	}

	a := &API{
		cfg:      cfg,
		log:      log.Named("web"),
		sessions: sessions,
		jobs:     jobs,
		metrics:  m,
		store:    st,
		hot:      hot,
		registry: registry,
		jwt:      jwtMgr,
		server:   web.NewServer(&cfg.Server, log),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	a.registerRoutes()
	return a, nil
}

// Run 运行服务直到 ctx 取消
func (a *API) Run(ctx context.Context) error {
	return a.server.Run(ctx)
}

func (a *API) registerRoutes() {
	r := a.server.Router()
	r.Use(middleware.CORS())

	r.GET("/health", a.handleHealth)
	if a.registry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})))
	}
	r.POST("/api/v1/auth/token", a.handleToken)

	api := r.Group("/api/v1")
	if a.jwt != nil {
		api.Use(middleware.Auth(a.jwt))
	}
	api.GET("/stats", a.handleStats)
	api.GET("/connections", a.handleConnections)
	api.GET("/workers", a.handleWorkers)
	api.GET("/workers/:name", a.handleWorkerStats)

	r.GET("/ws/stats", a.handleStatsWS)
}

func (a *API) handleHealth(c *gin.Context) {
	web.Success(c, gin.H{"status": "ok"})
}

type tokenRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// handleToken 校验管理账号并签发 API 令牌
func (a *API) handleToken(c *gin.Context) {
	if a.jwt == nil {
		web.Error(c, http.StatusNotFound, http.StatusNotFound, "authentication disabled")
		return
	}

	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		web.Error(c, http.StatusBadRequest, http.StatusBadRequest, "username and password are required")
		return
	}

	if req.Username != a.cfg.AdminUser ||
		bcrypt.CompareHashAndPassword([]byte(a.cfg.AdminPasswordHash), []byte(req.Password)) != nil {
		a.log.Warn("token request rejected", "username", req.Username, "ip", c.ClientIP())
		web.Error(c, http.StatusUnauthorized, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := a.jwt.GenerateToken(req.Username)
	if err != nil {
		web.Error(c, http.StatusInternalServerError, http.StatusInternalServerError, "token generation failed")
		return
	}
	web.Success(c, gin.H{"token": token})
}

// statsPayload 运行状态快照
type statsPayload struct {
	Timestamp  time.Time      `json:"timestamp"`
	Sessions   map[string]int `json:"sessions"`
	ActiveJobs int            `json:"active_jobs"`
	CurrentJob string         `json:"current_job,omitempty"`
	Shares     metrics.Stats  `json:"shares"`
}

func (a *API) buildStats() *statsPayload {
	p := &statsPayload{
		Timestamp: time.Now(),
		Sessions:  make(map[string]int, 4),
	}
	for state, n := range a.sessions.CountByState() {
		p.Sessions[state.String()] = n
	}
	p.ActiveJobs = a.jobs.ActiveCount()
	if j := a.jobs.Current(); j != nil {
		p.CurrentJob = j.ID
	}
	if a.metrics != nil {
		p.Shares = a.metrics.GetStats()
	}
	return p
}

func (a *API) handleStats(c *gin.Context) {
	web.Success(c, a.buildStats())
}

// connectionInfo 单连接概要
type connectionInfo struct {
	SessionID  string  `json:"session_id"`
	RemoteAddr string  `json:"remote_addr"`
	State      string  `json:"state"`
	Worker     string  `json:"worker,omitempty"`
	UserAgent  string  `json:"user_agent,omitempty"`
	Difficulty float64 `json:"difficulty"`
	LastJobSeq uint64  `json:"last_job_seq"`
	IdleMs     int64   `json:"idle_ms"`
}

func (a *API) handleConnections(c *gin.Context) {
	snapshot := a.sessions.Snapshot()
	out := make([]connectionInfo, 0, len(snapshot))
	for _, s := range snapshot {
		out = append(out, connectionInfo{
			SessionID:  s.ID(),
			RemoteAddr: s.RemoteAddr(),
			State:      s.State().String(),
			Worker:     s.Worker(),
			UserAgent:  s.UserAgent(),
			Difficulty: s.Difficulty(),
			LastJobSeq: s.LastJobSeq(),
			IdleMs:     s.IdleSince().Milliseconds(),
		})
	}
	web.Success(c, out)
}

func (a *API) handleWorkers(c *gin.Context) {
	if a.store == nil {
		web.Error(c, http.StatusServiceUnavailable, http.StatusServiceUnavailable, "persistence disabled")
		return
	}

	names, err := a.store.ListWorkers(c.Request.Context(), 200)
	if err != nil {
		a.log.Error("list workers failed", "error", err)
		web.Error(c, http.StatusInternalServerError, http.StatusInternalServerError, "query failed")
		return
	}
	web.Success(c, names)
}

func (a *API) handleWorkerStats(c *gin.Context) {
	if a.store == nil {
		web.Error(c, http.StatusServiceUnavailable, http.StatusServiceUnavailable, "persistence disabled")
		return
	}

	name := c.Param("name")
	stats, err := a.store.GetWorkerStats(c.Request.Context(), name)
	if err != nil {
		a.log.Error("query worker stats failed", "worker", name, "error", err)
		web.Error(c, http.StatusInternalServerError, http.StatusInternalServerError, "query failed")
		return
	}

	resp := gin.H{
		"stats":           stats,
		"online_sessions": len(a.sessions.GetByWorker(name)),
	}

	// 叠加 Redis 实时计数（落库有批量延迟，这里反映的是最新值）
	if a.hot != nil {
		accepted, rejected, lastSeen, err := a.hot.WorkerCounts(c.Request.Context(), name)
		if err != nil {
			a.log.Warn("query hot counters failed", "worker", name, "error", err)
		} else {
			live := gin.H{"accepted": accepted, "rejected": rejected}
			if !lastSeen.IsZero() {
				live["last_seen"] = lastSeen
			}
			resp["live"] = live
		}
	}
	web.Success(c, resp)
}

// handleStatsWS 升级为 WebSocket 并周期推送运行状态
func (a *API) handleStatsWS(c *gin.Context) {
	conn, err := a.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		a.log.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// 消费客户端控制帧，感知对端关闭
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				_ = conn.Close()
				return
			}
		}
	}()

	ticker := time.NewTicker(a.cfg.StatsPushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(a.buildStats()); err != nil {
				return
			}
		case <-c.Request.Context().Done():
			return
		}
	}
}
