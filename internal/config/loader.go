package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	if err := rejectHubSections(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	applyCacheDefaults(&cfg.Cache)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absRoot, err := filepath.Abs(cfg.Global.DocumentRoot)
	if err != nil {
		return nil, fmt.Errorf("无法解析文档根目录: %w", err)
	}
	cfg.Global.DocumentRoot = absRoot

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 5000)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("DocumentRoot", "./public")
	v.SetDefault("TempDir", "")
	v.SetDefault("ShutdownTimeout", "10s")
	v.SetDefault("Workers", 0)
	v.SetDefault("WorkerSelect", "hash")
	v.SetDefault("ChunkSize", 64*1024)
	v.SetDefault("IdleTimeout", "5s")
	v.SetDefault("TickInterval", "1s")
	v.SetDefault("MaxURILength", 512)
	v.SetDefault("EnableUploads", true)
	v.SetDefault("MaxUploadSize", 32*1024*1024)
	v.SetDefault("WatchRoot", false)
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 5000
	}
	if g.ShutdownTimeout.DurationValue() == 0 {
		g.ShutdownTimeout = Duration(10 * time.Second)
	}
}

func applyCacheDefaults(c *CacheConfig) {
	c.WorkerSelect = strings.ToLower(strings.TrimSpace(c.WorkerSelect))
	if c.WorkerSelect == "" {
		c.WorkerSelect = "hash"
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = 64 * 1024
	}
	if c.IdleTimeout.DurationValue() == 0 {
		c.IdleTimeout = Duration(5 * time.Second)
	}
	if c.TickInterval.DurationValue() == 0 {
		c.TickInterval = Duration(time.Second)
	}
	if c.MaxURILength == 0 {
		c.MaxURILength = 512
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}

// rejectHubSections 拒绝旧版代理配置中的 [[Hub]] 段，避免被静默忽略。
func rejectHubSections(v *viper.Viper) error {
	if v.IsSet("Hub") {
		return newFieldError("Hub", "不再支持上游代理配置，请改用 DocumentRoot")
	}
	return nil
}
