package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/any-cache/internal/cache"
)

// ErrStopped 表示 worker 已退出，不再接受任务。
var ErrStopped = errors.New("worker: stopped")

// Func 是提交给 worker 在其 goroutine 上执行的闭包。
type Func func(m *cache.Manager) error

type job struct {
	ctx  context.Context
	fn   Func
	done chan result
}

type result struct {
	err    error
	panicV any
}

// Worker 独占一个 cache.Manager；Manager 只会在 run goroutine 中被访问。
type Worker struct {
	id      int
	manager *cache.Manager
	jobs    chan job
	done    chan struct{}
	tick    time.Duration
	logger  logrus.FieldLogger
}

func newWorker(id int, tick time.Duration, logger logrus.FieldLogger, opts []cache.Option) *Worker {
	logger = logger.WithField("worker", id)
	opts = append(append([]cache.Option(nil), opts...), cache.WithLogger(logger))
	return &Worker{
		id:      id,
		manager: cache.NewManager(opts...),
		jobs:    make(chan job),
		done:    make(chan struct{}),
		tick:    tick,
		logger:  logger,
	}
}

// ID 返回 worker 序号。
func (w *Worker) ID() int {
	return w.id
}

// Do 在 worker goroutine 上执行 fn 并等待结果。任务一旦被接收就会执行完毕，
// ctx 只影响排队阶段；fn 中的 panic 会在调用方 goroutine 上重新抛出。
func (w *Worker) Do(ctx context.Context, fn Func) error {
	j := job{ctx: ctx, fn: fn, done: make(chan result, 1)}
	select {
	case w.jobs <- j:
	case <-ctx.Done():
		return ctx.Err()
	case <-w.done:
		return ErrStopped
	}

	res := <-j.done
	if res.panicV != nil {
		panic(res.panicV)
	}
	return res.err
}

// Open 在 worker 上执行 resolve 并为结果登记引用，返回持有该引用的 Lease。
// resolve 的 bool 返回值表示是否命中已有条目。
func (w *Worker) Open(ctx context.Context, resolve func(m *cache.Manager) (*cache.Entry, bool, error)) (*Lease, error) {
	var lease *Lease
	err := w.Do(ctx, func(m *cache.Manager) error {
		entry, hit, err := resolve(m)
		if err != nil {
			return err
		}
		lease = &Lease{
			worker: w,
			ref:    m.Acquire(entry),
			entry:  entry,
			size:   entry.Size(),
			etag:   entry.ETag(),
			hit:    hit,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lease, nil
}

func (w *Worker) run(ctx context.Context) error {
	defer close(w.done)
	defer w.manager.Close()

	ticker := time.NewTicker(w.tick)
	defer ticker.Stop()

	w.logger.WithField("action", "worker_start").Debug("worker_started")
	for {
		select {
		case <-ctx.Done():
			w.logger.WithFields(logrus.Fields{
				"action": "worker_stop",
				"live":   w.manager.Len(),
			}).Debug("worker_stopped")
			return nil
		case j := <-w.jobs:
			j.done <- w.exec(j)
		case now := <-ticker.C:
			if n := w.manager.Sweep(now); n > 0 {
				w.logger.WithFields(logrus.Fields{
					"action":  "cache_sweep",
					"evicted": n,
				}).Debug("cache_sweep_completed")
			}
		}
	}
}

func (w *Worker) exec(j job) (res result) {
	if err := j.ctx.Err(); err != nil {
		return result{err: err}
	}
	defer func() {
		if r := recover(); r != nil {
			w.logger.WithFields(logrus.Fields{
				"action": "worker_panic",
				"panic":  fmt.Sprint(r),
			}).Error("worker_job_panicked")
			res = result{panicV: r}
		}
	}()
	return result{err: j.fn(w.manager)}
}
