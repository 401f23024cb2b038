package logger

import (
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
	if cfg.Level != InfoLevel {
		t.Errorf("expected default level info, got %s", cfg.Level)
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnableFile = true
	cfg.OutputPath = ""
	if err := cfg.Validate(); err != ErrInvalidOutputPath {
		t.Errorf("expected ErrInvalidOutputPath, got %v", err)
	}

	cfg = DefaultConfig()
	cfg.EnableConsole = false
	cfg.EnableFile = false
	if err := cfg.Validate(); err != ErrNoOutputEnabled {
		t.Errorf("expected ErrNoOutputEnabled, got %v", err)
	}
}

func TestNewWithFileOutput(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnableFile = true
	cfg.Format = JSONFormat
	cfg.OutputPath = filepath.Join(t.TempDir(), "test.log")

	l, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	l.Info("test message", "key", "value")
	l.Named("sub").Debug("named message")
	l.WithFields("conn_id", "abc").Warn("fields message")
	_ = l.Sync()
}

func TestParseLevel(t *testing.T) {
	cases := map[Level]string{
		DebugLevel: "debug",
		InfoLevel:  "info",
		WarnLevel:  "warn",
		ErrorLevel: "error",
	}
	for level := range cases {
		// 未知等级回退到 info，不应 panic
		_ = parseLevel(level)
	}
	_ = parseLevel(Level("unknown"))
}
