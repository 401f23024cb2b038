package config

import "errors"

var (
	// ErrValidationFailed 配置校验失败
	ErrValidationFailed = errors.New("config: validation failed")
)
