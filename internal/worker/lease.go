package worker

import (
	"context"
	"errors"
	"io"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/any-cache/internal/cache"
	"github.com/any-hub/any-cache/internal/chunk"
)

// Lease 持有对某个条目的一次引用，跨 goroutine 读取条目的正文与响应头。
// 映射内容在引用归还前保持有效；Close 把归还操作提交回所属 worker，重复调用安全。
type Lease struct {
	worker *Worker
	ref    *cache.Ref
	entry  *cache.Entry
	size   int64
	etag   string
	hit    bool
	closed atomic.Bool
}

// Worker 返回持有该条目的 worker 序号。
func (l *Lease) Worker() int { return l.worker.id }

// Hit 报告本次是否命中已有条目。
func (l *Lease) Hit() bool { return l.hit }

// Size 返回正文长度。
func (l *Lease) Size() int64 { return l.size }

// ETag 返回条目的强 ETag（含引号）。
func (l *Lease) ETag() string { return l.etag }

// Header 返回预渲染响应头的读取器。
func (l *Lease) Header() *chunk.Reader {
	return l.entry.NewHeaderReader()
}

// Body 返回正文流，其 Close 会归还 Lease。
func (l *Lease) Body() io.ReadCloser {
	return &leaseBody{Reader: l.entry.NewBodyReader(), lease: l}
}

// Close 归还引用。worker 已退出时条目作为泄漏保留映射直到进程退出，返回 nil。
func (l *Lease) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := l.worker.Do(context.Background(), func(*cache.Manager) error {
		l.ref.Release()
		return nil
	})
	if errors.Is(err, ErrStopped) {
		l.worker.logger.WithFields(logrus.Fields{
			"action": "lease_close",
			"uri":    l.entry.URI(),
		}).Debug("lease_released_after_stop")
		return nil
	}
	return err
}

type leaseBody struct {
	*chunk.Reader
	lease *Lease
}

func (b *leaseBody) Close() error {
	return b.lease.Close()
}
