// Package watch 监听文档根目录的文件变更，并让所有 worker 失效对应的缓存条目。
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/any-cache/internal/logging"
	"github.com/any-hub/any-cache/internal/server"
)

// Invalidator 在所有 worker 上失效 uri。
type Invalidator interface {
	Invalidate(ctx context.Context, uri string) (int, error)
}

// Watcher 递归监听文档根目录。
type Watcher struct {
	root   *server.Root
	target Invalidator
	fs     *fsnotify.Watcher
	logger logrus.FieldLogger
}

// New 创建 Watcher 并注册根目录下的全部子目录。
func New(root *server.Root, target Invalidator, logger logrus.FieldLogger) (*Watcher, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("创建文件监听失败: %w", err)
	}
	w := &Watcher{root: root, target: target, fs: fw, logger: logger}
	if err := w.addTree(root.Dir()); err != nil {
		_ = fw.Close()
		return nil, err
	}
	return w, nil
}

// Run 处理文件事件直到 ctx 取消，返回前关闭底层监听。
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fs.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).WithField("action", "watch").Warn("watch_error")
		}
	}
}

func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) {
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addTree(ev.Name); err != nil {
				w.logger.WithError(err).WithField("path", ev.Name).Warn("watch_add_failed")
			}
			return
		}
	}

	uri, ok := w.root.URI(ev.Name)
	if !ok {
		return
	}
	removed, err := w.target.Invalidate(ctx, uri)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			w.logger.WithError(err).WithField("uri", uri).Warn("watch_invalidate_failed")
		}
		return
	}
	if removed > 0 {
		w.logger.WithFields(logrus.Fields{
			"action":  "watch_invalidate",
			"uri":     uri,
			"op":      ev.Op.String(),
			"removed": removed,
		}).Debug("cache_entry_invalidated")
	}
}

// addTree 注册 dir 及其全部子目录。
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fs.Add(p); err != nil {
			return fmt.Errorf("监听目录失败 %s: %w", p, err)
		}
		return nil
	})
}
