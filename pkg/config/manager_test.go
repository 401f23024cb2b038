package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// managerTestConfig 测试配置结构
type managerTestConfig struct {
	Server struct {
		Addr        string        `mapstructure:"addr" validate:"required"`
		IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	} `mapstructure:"server"`
	Job struct {
		RebroadcastInterval time.Duration `mapstructure:"rebroadcast_interval"`
	} `mapstructure:"job"`
}

// createTestConfigFile 创建测试配置文件
func createTestConfigFile(t *testing.T, content string) string {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}

	return configPath
}

// TestManagerLoadFile 测试加载配置文件
func TestManagerLoadFile(t *testing.T) {
	configContent := `
server:
  addr: "0.0.0.0:3333"
  idle_timeout: 5m
job:
  rebroadcast_interval: 30s
`
	configPath := createTestConfigFile(t, configContent)

	mgr := NewManager()
	if err := mgr.LoadFile(configPath); err != nil {
		t.Fatalf("Failed to load config file: %v", err)
	}

	var cfg managerTestConfig
	if err := mgr.Unmarshal(&cfg); err != nil {
		t.Fatalf("Failed to unmarshal config: %v", err)
	}

	if cfg.Server.Addr != "0.0.0.0:3333" {
		t.Errorf("Expected addr 0.0.0.0:3333, got %s", cfg.Server.Addr)
	}
	if cfg.Server.IdleTimeout != 5*time.Minute {
		t.Errorf("Expected idle_timeout 5m, got %v", cfg.Server.IdleTimeout)
	}
	if cfg.Job.RebroadcastInterval != 30*time.Second {
		t.Errorf("Expected rebroadcast_interval 30s, got %v", cfg.Job.RebroadcastInterval)
	}
}

// TestManagerLoadFileNotFound 测试加载不存在的配置文件
func TestManagerLoadFileNotFound(t *testing.T) {
	mgr := NewManager()
	if err := mgr.LoadFile("/nonexistent/config.yaml"); err == nil {
		t.Error("Expected error for nonexistent file")
	}
}

// TestManagerUnmarshalKey 测试解析指定 key
func TestManagerUnmarshalKey(t *testing.T) {
	configContent := `
server:
  addr: "127.0.0.1:3333"
`
	configPath := createTestConfigFile(t, configContent)

	mgr := NewManager()
	if err := mgr.LoadFile(configPath); err != nil {
		t.Fatalf("Failed to load config file: %v", err)
	}

	var addr string
	if err := mgr.UnmarshalKey("server.addr", &addr); err != nil {
		t.Fatalf("Failed to unmarshal key: %v", err)
	}
	if addr != "127.0.0.1:3333" {
		t.Errorf("Expected 127.0.0.1:3333, got %s", addr)
	}

	if !mgr.IsSet("server.addr") {
		t.Error("Expected server.addr to be set")
	}
	if mgr.IsSet("server.missing") {
		t.Error("Expected server.missing to not be set")
	}
}

// TestValidateStruct 测试结构体校验
func TestValidateStruct(t *testing.T) {
	type sample struct {
		Addr string `validate:"required"`
		Port int    `validate:"min=1,max=65535"`
	}

	if err := ValidateStruct(&sample{Addr: "x", Port: 3333}); err != nil {
		t.Errorf("Expected valid struct, got %v", err)
	}
	if err := ValidateStruct(&sample{Port: 0}); err == nil {
		t.Error("Expected validation error for empty addr")
	}
}
