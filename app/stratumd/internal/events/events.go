// Package events 把矿池运行事件发布到 Kafka：
// 会话开关、份额接受与拒绝、新任务。未启用时降级为空实现。
package events

import (
	"context"
	"time"
)

// 事件类型
const (
	TypeSessionOpened = "session_opened"
	TypeSessionClosed = "session_closed"
	TypeShareAccepted = "share_accepted"
	TypeShareRejected = "share_rejected"
	TypeJobCreated    = "job_created"
)

// Event 一条运行事件
type Event struct {
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	SessionID string                 `json:"session_id,omitempty"`
	Worker    string                 `json:"worker,omitempty"`
	JobID     string                 `json:"job_id,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Publisher 事件发布接口
type Publisher interface {
	// Publish 发布事件，实现不得阻塞调用方的热路径
	Publish(ctx context.Context, e *Event)
	// Close 关闭发布器，写完在途消息
	Close() error
}

// NopPublisher 空实现，事件功能未启用时使用
type NopPublisher struct{}

func NewNop() *NopPublisher { return &NopPublisher{} }

func (*NopPublisher) Publish(context.Context, *Event) {}

func (*NopPublisher) Close() error { return nil }
