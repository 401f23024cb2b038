package logger

// Level 日志等级
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
	FatalLevel Level = "fatal"
)

// Format 日志格式
type Format string

const (
	JSONFormat    Format = "json"
	ConsoleFormat Format = "console"
)

// Config 日志配置
type Config struct {
	// Level 日志等级
	Level Level `mapstructure:"level" json:"level" yaml:"level"`
	// Format 输出格式 (json/console)
	Format Format `mapstructure:"format" json:"format" yaml:"format"`

	// EnableConsole 启用控制台输出
	EnableConsole bool `mapstructure:"enable_console" json:"enable_console" yaml:"enable_console"`
	// EnableFile 启用文件输出
	EnableFile bool `mapstructure:"enable_file" json:"enable_file" yaml:"enable_file"`
	// OutputPath 日志文件路径
	OutputPath string `mapstructure:"output_path" json:"output_path" yaml:"output_path"`

	// TimeFormat 时间格式
	TimeFormat string `mapstructure:"time_format" json:"time_format" yaml:"time_format"`

	// Rotation 轮换配置
	Rotation RotationConfig `mapstructure:"rotation" json:"rotation" yaml:"rotation"`

	// EnableStacktrace 启用堆栈跟踪
	EnableStacktrace bool `mapstructure:"enable_stacktrace" json:"enable_stacktrace" yaml:"enable_stacktrace"`
	// StacktraceLevel 堆栈跟踪等级
	StacktraceLevel Level `mapstructure:"stacktrace_level" json:"stacktrace_level" yaml:"stacktrace_level"`

	// Development 开发模式 (彩色输出)
	Development bool `mapstructure:"development" json:"development" yaml:"development"`
}

// RotationConfig 按大小轮换配置 (lumberjack)
type RotationConfig struct {
	// MaxSize 单文件最大大小 (MB)
	MaxSize int `mapstructure:"max_size" json:"max_size" yaml:"max_size"`
	// MaxBackups 保留的旧文件数量
	MaxBackups int `mapstructure:"max_backups" json:"max_backups" yaml:"max_backups"`
	// MaxAge 保留天数
	MaxAge int `mapstructure:"max_age" json:"max_age" yaml:"max_age"`
	// Compress 是否压缩旧文件
	Compress bool `mapstructure:"compress" json:"compress" yaml:"compress"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Level:         InfoLevel,
		Format:        ConsoleFormat,
		EnableConsole: true,
		EnableFile:    false,
		TimeFormat:    "2006-01-02 15:04:05",
		Rotation: RotationConfig{
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     7,
			Compress:   true,
		},
		EnableStacktrace: true,
		StacktraceLevel:  ErrorLevel,
		Development:      false,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.EnableFile && c.OutputPath == "" {
		return ErrInvalidOutputPath
	}
	if !c.EnableConsole && !c.EnableFile {
		return ErrNoOutputEnabled
	}
	return nil
}
