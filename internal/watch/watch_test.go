package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/any-hub/any-cache/internal/server"
)

type recorder struct {
	mu   sync.Mutex
	uris map[string]int
}

func (r *recorder) Invalidate(_ context.Context, uri string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.uris == nil {
		r.uris = map[string]int{}
	}
	r.uris[uri]++
	return 1, nil
}

func (r *recorder) seen(uri string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.uris[uri] > 0
}

func startWatcher(t *testing.T) (string, *recorder) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))

	root, err := server.NewRoot(dir)
	require.NoError(t, err)
	rec := &recorder{}
	w, err := New(root, rec, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return root.Dir(), rec
}

// touchUntil 反复写文件直到监听器报告对应 uri。
func touchUntil(t *testing.T, rec *recorder, path, uri string) {
	t.Helper()
	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte(time.Now().String()), 0o600)
		return rec.seen(uri)
	}, 3*time.Second, 20*time.Millisecond)
}

func TestWatcherInvalidatesChangedFiles(t *testing.T) {
	dir, rec := startWatcher(t)

	touchUntil(t, rec, filepath.Join(dir, "a.txt"), "/a.txt")
	touchUntil(t, rec, filepath.Join(dir, "nested", "b.txt"), "/nested/b.txt")
}

func TestWatcherFollowsNewDirectories(t *testing.T) {
	dir, rec := startWatcher(t)

	created := filepath.Join(dir, "later")
	require.NoError(t, os.Mkdir(created, 0o755))
	touchUntil(t, rec, filepath.Join(created, "c.txt"), "/later/c.txt")
	assert.False(t, rec.seen("/later"), "directory creation should not invalidate")
}

func TestWatcherReportsRemovals(t *testing.T) {
	dir, rec := startWatcher(t)

	path := filepath.Join(dir, "gone.txt")
	touchUntil(t, rec, path, "/gone.txt")

	rec.mu.Lock()
	rec.uris = nil
	rec.mu.Unlock()

	require.NoError(t, os.Remove(path))
	require.Eventually(t, func() bool { return rec.seen("/gone.txt") }, 3*time.Second, 20*time.Millisecond)
}
