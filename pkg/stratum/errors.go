package stratum

import "errors"

var (
	// ErrMalformedMessage 无法解析的帧（非法 JSON 或缺少必要字段）
	ErrMalformedMessage = errors.New("stratum: malformed message")

	// ErrFrameTooLarge 单帧超过最大长度限制
	ErrFrameTooLarge = errors.New("stratum: frame too large")

	// ErrInvalidParams 参数数量或类型不符合方法要求
	ErrInvalidParams = errors.New("stratum: invalid params")
)
