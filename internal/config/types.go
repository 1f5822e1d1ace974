package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述服务运行参数，所有 worker 共享同一份配置。
type GlobalConfig struct {
	ListenPort      int      `mapstructure:"ListenPort"`
	LogLevel        string   `mapstructure:"LogLevel"`
	LogFilePath     string   `mapstructure:"LogFilePath"`
	LogMaxSize      int      `mapstructure:"LogMaxSize"`
	LogMaxBackups   int      `mapstructure:"LogMaxBackups"`
	LogCompress     bool     `mapstructure:"LogCompress"`
	DocumentRoot    string   `mapstructure:"DocumentRoot"`
	TempDir         string   `mapstructure:"TempDir"`
	ShutdownTimeout Duration `mapstructure:"ShutdownTimeout"`
}

// CacheConfig 控制 worker 分片与缓存条目的生命周期。
type CacheConfig struct {
	Workers       int      `mapstructure:"Workers"`
	WorkerSelect  string   `mapstructure:"WorkerSelect"`
	ChunkSize     int      `mapstructure:"ChunkSize"`
	IdleTimeout   Duration `mapstructure:"IdleTimeout"`
	TickInterval  Duration `mapstructure:"TickInterval"`
	MaxURILength  int      `mapstructure:"MaxURILength"`
	EnableUploads bool     `mapstructure:"EnableUploads"`
	MaxUploadSize int64    `mapstructure:"MaxUploadSize"`
	WatchRoot     bool     `mapstructure:"WatchRoot"`
}

// Config 是 TOML 文件映射的整体结构，所有键均位于顶层。
type Config struct {
	Global GlobalConfig `mapstructure:",squash"`
	Cache  CacheConfig  `mapstructure:",squash"`
}

// UploadMode 输出 `uploads` 或 `read-only`，供日志字段使用。
func (c CacheConfig) UploadMode() string {
	if c.EnableUploads {
		return "uploads"
	}
	return "read-only"
}
