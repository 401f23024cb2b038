// Package handler 路由已解码的 Stratum 请求：
// 订阅、授权、提交三类方法按会话状态分发，其余一律按未知方法拒绝。
package handler

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/stratumd/app/stratumd/internal/job"
	"github.com/lk2023060901/stratumd/app/stratumd/internal/metrics"
	"github.com/lk2023060901/stratumd/app/stratumd/internal/session"
	"github.com/lk2023060901/stratumd/app/stratumd/internal/share"
	"github.com/lk2023060901/stratumd/component/auth"
	"github.com/lk2023060901/stratumd/pkg/logger"
	"github.com/lk2023060901/stratumd/pkg/stratum"
)

// Hooks 业务回调，由调度器和存储管线挂接
type Hooks struct {
	// OnActivate 会话授权成功后调用，用于下发难度和当前任务
	OnActivate func(s *session.Session)

	// OnShareAccepted 份额通过校验后调用
	OnShareAccepted func(s *session.Session, j *job.Job, sub *share.Submission)

	// OnShareRejected 份额被拒后调用，code 为对应的协议错误码
	OnShareRejected func(s *session.Session, sub *share.Submission, code int)
}

// Handler Stratum 方法处理器
type Handler struct {
	log        logger.Logger
	sessions   *session.Manager
	validator  *share.Validator
	auth       *auth.Manager
	metrics    *metrics.StratumMetrics
	extranonce *ExtranonceAllocator
	hooks      Hooks
}

// New 创建处理器，m 可为 nil
func New(log logger.Logger, sessions *session.Manager, validator *share.Validator, authMgr *auth.Manager, m *metrics.StratumMetrics, hooks Hooks) *Handler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Handler{
		log:        log,
		sessions:   sessions,
		validator:  validator,
		auth:       authMgr,
		metrics:    m,
		extranonce: NewExtranonceAllocator(),
		hooks:      hooks,
	}
}

// HandleFrame 处理一帧
// 返回 ErrCloseConnection 时调用方应关闭连接（错误响应已写出）
func (h *Handler) HandleFrame(ctx context.Context, sess *session.Session, frame []byte) error {
	req, err := stratum.Decode(frame)
	if err != nil {
		h.log.Warn("malformed frame", "session_id", sess.ID(), "remote_addr", sess.RemoteAddr(), "error", err)
		if h.metrics != nil {
			h.metrics.RecordDecodeError()
		}
		h.respondError(ctx, sess, nil, stratum.CodeParseError, "parse error")
		return ErrCloseConnection
	}

	if h.metrics != nil {
		h.metrics.RecordFrame(req.Method)
	}
	sess.Touch()

	switch req.Method {
	case stratum.MethodSubscribe:
		return h.handleSubscribe(ctx, sess, req)
	case stratum.MethodAuthorize:
		return h.handleAuthorize(ctx, sess, req)
	case stratum.MethodSubmit:
		return h.handleSubmit(ctx, sess, req)
	default:
		h.log.Debug("unknown method", "session_id", sess.ID(), "method", req.Method)
		h.respondError(ctx, sess, req, stratum.CodeUnknown, "unknown method")
		return nil
	}
}

func (h *Handler) handleSubscribe(ctx context.Context, sess *session.Session, req *stratum.Request) error {
	params, err := stratum.ParseSubscribeParams(req.Params)
	if err != nil {
		h.respondError(ctx, sess, req, stratum.CodeUnknown, "invalid params")
		return nil
	}

	extranonce1 := h.extranonce.Next()
	if err := sess.Subscribe(extranonce1, params.UserAgent); err != nil {
		if errors.Is(err, session.ErrAlreadySubscribed) {
			h.respondError(ctx, sess, req, stratum.CodeUnknown, "already subscribed")
			return nil
		}
		return err
	}

	_, extranonce2Size := sess.Extranonce()
	h.log.Info("session subscribed",
		"session_id", sess.ID(),
		"remote_addr", sess.RemoteAddr(),
		"user_agent", params.UserAgent,
		"extranonce1", extranonce1)

	h.respond(ctx, sess, req, stratum.SubscribeResult(extranonce1, extranonce1, extranonce2Size))
	return nil
}

func (h *Handler) handleAuthorize(ctx context.Context, sess *session.Session, req *stratum.Request) error {
	params, err := stratum.ParseAuthorizeParams(req.Params)
	if err != nil {
		h.respondError(ctx, sess, req, stratum.CodeUnknown, "invalid params")
		return nil
	}

	if sess.State() == session.StateConnected {
		h.respondError(ctx, sess, req, stratum.CodeUnauthorized, "subscribe required before authorize")
		return nil
	}

	identity, err := h.auth.Verify(ctx, params.Worker, params.Password)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			h.log.Warn("authorization rejected", "session_id", sess.ID(), "worker", params.Worker)
			h.respondError(ctx, sess, req, stratum.CodeUnauthorized, "unauthorized worker")
			return nil
		}
		return err
	}

	if err := sess.Authorize(identity.Worker); err != nil {
		if errors.Is(err, session.ErrNotSubscribed) {
			h.respondError(ctx, sess, req, stratum.CodeUnauthorized, "subscribe required before authorize")
			return nil
		}
		return err
	}
	h.sessions.IndexWorker(sess)

	h.log.Info("session authorized",
		"session_id", sess.ID(),
		"worker", identity.Worker,
		"remote_addr", sess.RemoteAddr())

	h.respond(ctx, sess, req, true)

	if h.hooks.OnActivate != nil {
		h.hooks.OnActivate(sess)
	}
	return nil
}

func (h *Handler) handleSubmit(ctx context.Context, sess *session.Session, req *stratum.Request) error {
	start := time.Now()

	switch sess.State() {
	case session.StateConnected:
		h.respondError(ctx, sess, req, stratum.CodeNotSubscribed, "not subscribed")
		return nil
	case session.StateSubscribed:
		h.respondError(ctx, sess, req, stratum.CodeUnauthorized, "unauthorized worker")
		return nil
	}

	params, err := stratum.ParseSubmitParams(req.Params)
	if err != nil {
		h.respondError(ctx, sess, req, stratum.CodeUnknown, "invalid params")
		return nil
	}

	sub := &share.Submission{
		SessionID:   sess.ID(),
		Worker:      sess.Worker(),
		JobID:       params.JobID,
		Extranonce2: params.Extranonce2,
		NTime:       params.NTime,
		Nonce:       params.Nonce,
	}

	_, extranonce2Size := sess.Extranonce()
	j, err := h.validator.Validate(sub, extranonce2Size)
	if err != nil {
		code, msg := rejectCode(err)
		h.log.Debug("share rejected",
			"session_id", sess.ID(),
			"worker", sub.Worker,
			"job_id", sub.JobID,
			"reason", msg)
		h.respondError(ctx, sess, req, code, msg)
		if h.metrics != nil {
			h.metrics.RecordShare(code, time.Since(start).Seconds())
		}
		if h.hooks.OnShareRejected != nil {
			h.hooks.OnShareRejected(sess, sub, code)
		}
		return nil
	}

	h.log.Debug("share accepted",
		"session_id", sess.ID(),
		"worker", sub.Worker,
		"job_id", sub.JobID)

	h.respond(ctx, sess, req, true)
	if h.metrics != nil {
		h.metrics.RecordShare(0, time.Since(start).Seconds())
	}
	if h.hooks.OnShareAccepted != nil {
		h.hooks.OnShareAccepted(sess, j, sub)
	}
	return nil
}

// rejectCode 份额校验错误到协议错误码的映射
func rejectCode(err error) (int, string) {
	switch {
	case errors.Is(err, share.ErrStaleJob):
		return stratum.CodeStaleJob, "stale job"
	case errors.Is(err, share.ErrDuplicate):
		return stratum.CodeDuplicateShare, "duplicate share"
	case errors.Is(err, share.ErrBadExtranonce2):
		return stratum.CodeUnknown, "bad extranonce2 size"
	case errors.Is(err, share.ErrBadNTime), errors.Is(err, share.ErrTimeTooOld), errors.Is(err, share.ErrTimeInFuture):
		return stratum.CodeUnknown, "ntime out of range"
	default:
		return stratum.CodeUnknown, "rejected"
	}
}

// respond 写出成功响应，id 为 null 的请求不回包
func (h *Handler) respond(ctx context.Context, sess *session.Session, req *stratum.Request, result interface{}) {
	if req.IsNotification() {
		return
	}
	h.send(ctx, sess, stratum.NewResponse(req.ID, result))
}

// respondError 写出错误响应；req 为 nil 时（解析失败）id 置 null
func (h *Handler) respondError(ctx context.Context, sess *session.Session, req *stratum.Request, code int, message string) {
	var id *json.RawMessage
	if req != nil {
		if req.IsNotification() {
			return
		}
		id = req.ID
	}
	h.send(ctx, sess, stratum.NewErrorResponse(id, code, message))
}

func (h *Handler) send(ctx context.Context, sess *session.Session, resp *stratum.Response) {
	frame, err := stratum.EncodeResponse(resp)
	if err != nil {
		h.log.Error("encode response failed", "session_id", sess.ID(), "error", err)
		return
	}
	if err := sess.Send(ctx, frame); err != nil {
		h.log.Debug("send response failed", "session_id", sess.ID(), "error", err)
	}
}
