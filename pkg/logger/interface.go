package logger

// Logger 日志接口
// 其他 pkg 模块引用此接口，避免直接依赖 zap
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})

	// Named 派生带名称的子 logger
	Named(name string) Logger
	// WithFields 派生携带固定字段的子 logger
	WithFields(keysAndValues ...interface{}) Logger

	// Sync 刷新缓冲
	Sync() error
}
