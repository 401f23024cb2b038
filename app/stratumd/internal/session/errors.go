package session

import "errors"

var (
	// ErrSessionNotFound 会话不存在
	ErrSessionNotFound = errors.New("session not found")

	// ErrAlreadySubscribed 重复订阅
	ErrAlreadySubscribed = errors.New("already subscribed")

	// ErrNotSubscribed 未订阅前发送了需要订阅的请求
	ErrNotSubscribed = errors.New("not subscribed")

	// ErrNotAuthorized 未授权前发送了需要授权的请求
	ErrNotAuthorized = errors.New("not authorized")

	// ErrSessionClosed 会话已关闭
	ErrSessionClosed = errors.New("session closed")

	// ErrSendQueueFull 发送队列已满（慢消费者）
	ErrSendQueueFull = errors.New("send queue full")
)
