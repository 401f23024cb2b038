package logger

// NopLogger 空实现，用于测试和默认值
type NopLogger struct{}

var _ Logger = (*NopLogger)(nil)

func NewNop() *NopLogger { return &NopLogger{} }

func (l *NopLogger) Debug(msg string, keysAndValues ...interface{}) {}
func (l *NopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (l *NopLogger) Warn(msg string, keysAndValues ...interface{})  {}
func (l *NopLogger) Error(msg string, keysAndValues ...interface{}) {}
func (l *NopLogger) Named(name string) Logger                       { return l }
func (l *NopLogger) WithFields(keysAndValues ...interface{}) Logger { return l }
func (l *NopLogger) Sync() error                                    { return nil }
