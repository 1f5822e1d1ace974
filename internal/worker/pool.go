package worker

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/any-hub/any-cache/internal/cache"
	"github.com/any-hub/any-cache/internal/logging"
)

// DefaultTickInterval 是每个 worker 调用 Sweep 的周期。
const DefaultTickInterval = time.Second

// Options 描述 Pool 的构造参数。
type Options struct {
	Workers      int
	Strategy     Strategy
	TickInterval time.Duration
	Logger       logrus.FieldLogger
	Cache        []cache.Option
}

// Pool 管理一组互不共享状态的 worker。
type Pool struct {
	workers  []*Worker
	selector Selector
	logger   logrus.FieldLogger

	mu     sync.Mutex
	cancel context.CancelFunc
	group  *errgroup.Group
}

// New 按 opts 创建 worker，Workers<=0 时使用 CPU 核数。
func New(opts Options) *Pool {
	n := opts.Workers
	if n <= 0 {
		n = runtime.NumCPU()
	}
	tick := opts.TickInterval
	if tick <= 0 {
		tick = DefaultTickInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	p := &Pool{
		workers:  make([]*Worker, n),
		selector: newSelector(opts.Strategy),
		logger:   logger,
	}
	for i := range p.workers {
		p.workers[i] = newWorker(i, tick, logger, opts.Cache)
	}
	return p
}

// Start 启动所有 worker goroutine；ctx 取消等同于 Stop。
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.group != nil {
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	for _, w := range p.workers {
		g.Go(func() error { return w.run(gctx) })
	}
	p.group = g
	p.logger.WithFields(logrus.Fields{
		"action":  "pool_start",
		"workers": len(p.workers),
	}).Info("worker_pool_started")
}

// Stop 通知 worker 退出并等待；每个 worker 退出前会关闭自己的 Manager。
func (p *Pool) Stop() error {
	p.mu.Lock()
	cancel, g := p.cancel, p.group
	p.mu.Unlock()
	if g == nil {
		return nil
	}
	cancel()
	return g.Wait()
}

// Len 返回 worker 数量。
func (p *Pool) Len() int {
	return len(p.workers)
}

// Worker 返回第 i 个 worker。
func (p *Pool) Worker(i int) *Worker {
	return p.workers[i]
}

// Pick 为 uri 选择 worker。
func (p *Pool) Pick(uri string) *Worker {
	return p.workers[p.selector.Select(uri, len(p.workers))]
}

// Broadcast 依次在每个 worker 上执行 fn，汇总所有错误。fn 串行执行，可以安全地累加外部变量。
func (p *Pool) Broadcast(ctx context.Context, fn Func) error {
	var errs []error
	for _, w := range p.workers {
		if err := w.Do(ctx, fn); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Invalidate 在所有 worker 上失效 uri，返回实际移除的条目数。
func (p *Pool) Invalidate(ctx context.Context, uri string) (int, error) {
	removed := 0
	err := p.Broadcast(ctx, func(m *cache.Manager) error {
		if m.Invalidate(uri) {
			removed++
		}
		return nil
	})
	return removed, err
}

// Sweep 立即在所有 worker 上执行一次空闲淘汰，返回淘汰数。
func (p *Pool) Sweep(ctx context.Context) (int, error) {
	evicted := 0
	err := p.Broadcast(ctx, func(m *cache.Manager) error {
		evicted += m.Sweep(time.Now())
		return nil
	})
	return evicted, err
}

// WorkerStats 是单个 worker 的统计快照。
type WorkerStats struct {
	Worker int `json:"worker"`
	cache.Stats
}

// Stats 收集每个 worker 的统计并返回汇总。
func (p *Pool) Stats(ctx context.Context) ([]WorkerStats, cache.Stats, error) {
	out := make([]WorkerStats, len(p.workers))
	var total cache.Stats
	for i, w := range p.workers {
		err := w.Do(ctx, func(m *cache.Manager) error {
			out[i] = WorkerStats{Worker: w.id, Stats: m.Stats()}
			return nil
		})
		if err != nil {
			return nil, cache.Stats{}, err
		}
		total = total.Add(out[i].Stats)
	}
	return out, total, nil
}

// WorkerEntries 是单个 worker 的条目快照。
type WorkerEntries struct {
	Worker  int               `json:"worker"`
	Entries []cache.EntryInfo `json:"entries"`
}

// Entries 收集每个 worker 的条目快照。
func (p *Pool) Entries(ctx context.Context) ([]WorkerEntries, error) {
	out := make([]WorkerEntries, len(p.workers))
	for i, w := range p.workers {
		err := w.Do(ctx, func(m *cache.Manager) error {
			out[i] = WorkerEntries{Worker: w.id, Entries: m.Entries()}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
