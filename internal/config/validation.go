package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

var supportedSelectStrategies = map[string]struct{}{
	"hash":        {},
	"round-robin": {},
}

const (
	minChunkSize = 4 * 1024
	maxChunkSize = 16 * 1024 * 1024
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError(globalField("ListenPort"), "必须在 1-65535")
	}
	if g.LogLevel != "" {
		if _, err := logrus.ParseLevel(g.LogLevel); err != nil {
			return newFieldError(globalField("LogLevel"), fmt.Sprintf("无法识别: %s", g.LogLevel))
		}
	}
	if g.LogMaxSize < 0 || g.LogMaxBackups < 0 {
		return newFieldError(globalField("LogMaxSize/LogMaxBackups"), "不能为负数")
	}
	if strings.TrimSpace(g.DocumentRoot) == "" {
		return newFieldError(globalField("DocumentRoot"), "不能为空")
	}
	if g.TempDir != "" {
		if err := validateDir(g.TempDir); err != nil {
			return fmt.Errorf("%s: %w", globalField("TempDir"), err)
		}
	}
	if g.ShutdownTimeout.DurationValue() <= 0 {
		return newFieldError(globalField("ShutdownTimeout"), "必须大于 0")
	}

	cc := c.Cache
	if cc.Workers < 0 {
		return newFieldError(cacheField("Workers"), "不能为负数")
	}
	if _, ok := supportedSelectStrategies[cc.WorkerSelect]; !ok {
		return newFieldError(cacheField("WorkerSelect"), "仅支持 hash|round-robin")
	}
	if cc.ChunkSize < minChunkSize || cc.ChunkSize > maxChunkSize {
		return newFieldError(cacheField("ChunkSize"), fmt.Sprintf("必须在 %d-%d", minChunkSize, maxChunkSize))
	}
	if cc.IdleTimeout.DurationValue() < time.Millisecond {
		return newFieldError(cacheField("IdleTimeout"), "不能小于 1ms")
	}
	if cc.TickInterval.DurationValue() <= 0 {
		return newFieldError(cacheField("TickInterval"), "必须大于 0")
	}
	if cc.MaxURILength <= 0 {
		return newFieldError(cacheField("MaxURILength"), "必须大于 0")
	}
	if cc.EnableUploads && cc.MaxUploadSize <= 0 {
		return newFieldError(cacheField("MaxUploadSize"), "启用上传时必须大于 0")
	}

	return nil
}

func validateDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s 不是目录", dir)
	}
	return nil
}
