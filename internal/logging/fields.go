package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// CacheFields 提供 worker/uri/缓存状态字段，供请求日志复用。
func CacheFields(worker int, uri, cacheState string) logrus.Fields {
	return logrus.Fields{
		"worker": worker,
		"uri":    uri,
		"cache":  cacheState,
	}
}
