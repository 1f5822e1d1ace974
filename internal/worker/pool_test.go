//go:build unix

package worker

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/any-hub/any-cache/internal/cache"
)

func startPool(t *testing.T, opts Options) *Pool {
	t.Helper()
	p := New(opts)
	p.Start(context.Background())
	t.Cleanup(func() { _ = p.Stop() })
	return p
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func resolveFile(path, uri string) func(m *cache.Manager) (*cache.Entry, bool, error) {
	return func(m *cache.Manager) (*cache.Entry, bool, error) {
		if e, ok := m.Lookup(uri); ok {
			return e, true, nil
		}
		e, err := m.ResolveFromFile(path, uri)
		return e, false, err
	}
}

func pendingOf(t *testing.T, w *Worker, uri string) (int, bool) {
	t.Helper()
	var pending int
	var found bool
	require.NoError(t, w.Do(context.Background(), func(m *cache.Manager) error {
		for _, info := range m.Entries() {
			if info.URI == uri {
				pending, found = info.Pending, true
			}
		}
		return nil
	}))
	return pending, found
}

func TestParseStrategy(t *testing.T) {
	t.Parallel()

	cases := map[string]Strategy{
		"":             StrategyHash,
		"hash":         StrategyHash,
		" Round-Robin": StrategyRoundRobin,
	}
	for in, want := range cases {
		got, err := ParseStrategy(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseStrategy("random")
	assert.Error(t, err)
}

func TestHashSelectorIsStable(t *testing.T) {
	t.Parallel()

	p := New(Options{Workers: 4, Strategy: StrategyHash})
	first := p.Pick("/static/app.js")
	for i := 0; i < 10; i++ {
		assert.Same(t, first, p.Pick("/static/app.js"))
	}
}

func TestRoundRobinSelectorCycles(t *testing.T) {
	t.Parallel()

	p := New(Options{Workers: 3, Strategy: StrategyRoundRobin})
	var ids []int
	for i := 0; i < 6; i++ {
		ids = append(ids, p.Pick("/same").ID())
	}
	assert.Equal(t, []int{0, 1, 2, 0, 1, 2}, ids)
}

func TestNewDefaultsToCPUCount(t *testing.T) {
	t.Parallel()

	p := New(Options{})
	assert.Positive(t, p.Len())
}

func TestOpenStreamsBodyAndReleases(t *testing.T) {
	t.Parallel()

	p := startPool(t, Options{Workers: 2})
	path := writeFile(t, "hello lease")
	w := p.Pick("/hello")

	lease, err := w.Open(context.Background(), resolveFile(path, "/hello"))
	require.NoError(t, err)
	assert.False(t, lease.Hit())
	assert.Equal(t, int64(11), lease.Size())
	assert.Equal(t, w.ID(), lease.Worker())
	assert.NotEmpty(t, lease.ETag())

	pending, _ := pendingOf(t, w, "/hello")
	assert.Equal(t, 1, pending)

	body := lease.Body()
	got, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "hello lease", string(got))
	require.NoError(t, body.Close())
	require.NoError(t, lease.Close())

	pending, found := pendingOf(t, w, "/hello")
	assert.True(t, found)
	assert.Zero(t, pending)

	again, err := w.Open(context.Background(), resolveFile(path, "/hello"))
	require.NoError(t, err)
	assert.True(t, again.Hit())
	require.NoError(t, again.Close())
}

func TestLeaseKeepsInvalidatedEntryReadable(t *testing.T) {
	t.Parallel()

	p := startPool(t, Options{Workers: 1})
	path := writeFile(t, "zombie body")
	w := p.Pick("/z")

	lease, err := w.Open(context.Background(), resolveFile(path, "/z"))
	require.NoError(t, err)

	removed, err := p.Invalidate(context.Background(), "/z")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	pending, found := pendingOf(t, w, "/z")
	require.True(t, found, "zombie must still be tracked")
	assert.Equal(t, 1, pending)

	got, err := io.ReadAll(lease.Body())
	require.NoError(t, err)
	assert.Equal(t, "zombie body", string(got))

	require.NoError(t, lease.Close())
	_, found = pendingOf(t, w, "/z")
	assert.False(t, found)

	_, total, err := p.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), total.Destroyed)
}

func TestHeaderReaderCarriesRenderedHeaders(t *testing.T) {
	t.Parallel()

	p := startPool(t, Options{Workers: 1})
	lease, err := p.Pick("/a.txt").Open(context.Background(), resolveFile(writeFile(t, "abc"), "/a.txt"))
	require.NoError(t, err)
	defer lease.Close()

	raw, err := io.ReadAll(lease.Header())
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Content-Length: 3\r\n")
}

func TestOpenPropagatesResolveErrors(t *testing.T) {
	t.Parallel()

	p := startPool(t, Options{Workers: 1})
	_, err := p.Pick("/missing").Open(context.Background(), resolveFile("/nonexistent/file", "/missing"))
	assert.ErrorIs(t, err, cache.ErrNotFound)
}

func TestDoHonoursCancelledContext(t *testing.T) {
	t.Parallel()

	p := startPool(t, Options{Workers: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := false
	err := p.Worker(0).Do(ctx, func(*cache.Manager) error {
		ran = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ran)
}

func TestDoRethrowsPanicsOnCaller(t *testing.T) {
	t.Parallel()

	p := startPool(t, Options{Workers: 1})
	assert.PanicsWithValue(t, "boom", func() {
		_ = p.Worker(0).Do(context.Background(), func(*cache.Manager) error {
			panic("boom")
		})
	})

	require.NoError(t, p.Worker(0).Do(context.Background(), func(*cache.Manager) error { return nil }))
}

func TestStopClosesManagersAndRejectsWork(t *testing.T) {
	t.Parallel()

	p := New(Options{Workers: 2})
	p.Start(context.Background())

	path := writeFile(t, "held across shutdown")
	lease, err := p.Pick("/held").Open(context.Background(), resolveFile(path, "/held"))
	require.NoError(t, err)

	require.NoError(t, p.Stop())
	require.NoError(t, p.Stop())

	err = p.Worker(0).Do(context.Background(), func(*cache.Manager) error { return nil })
	assert.ErrorIs(t, err, ErrStopped)
	assert.NoError(t, lease.Close())
}

func TestTickerSweepsIdleEntries(t *testing.T) {
	t.Parallel()

	p := startPool(t, Options{
		Workers:      1,
		TickInterval: 10 * time.Millisecond,
		Cache:        []cache.Option{cache.WithIdleTimeout(20 * time.Millisecond)},
	})
	w := p.Worker(0)
	lease, err := w.Open(context.Background(), resolveFile(writeFile(t, "idle"), "/idle"))
	require.NoError(t, err)
	require.NoError(t, lease.Close())

	require.Eventually(t, func() bool {
		var live int
		_ = w.Do(context.Background(), func(m *cache.Manager) error {
			live = m.Len()
			return nil
		})
		return live == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSweepAndEntriesAcrossWorkers(t *testing.T) {
	t.Parallel()

	p := startPool(t, Options{
		Workers:      2,
		Strategy:     StrategyRoundRobin,
		TickInterval: time.Hour,
		Cache:        []cache.Option{cache.WithIdleTimeout(time.Millisecond)},
	})
	path := writeFile(t, "replicated")
	for i := 0; i < 2; i++ {
		lease, err := p.Pick("/r").Open(context.Background(), resolveFile(path, "/r"))
		require.NoError(t, err)
		require.NoError(t, lease.Close())
	}

	entries, err := p.Entries(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, we := range entries {
		assert.Len(t, we.Entries, 1, "worker %d", we.Worker)
	}

	time.Sleep(5 * time.Millisecond)
	evicted, err := p.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, evicted)

	perWorker, total, err := p.Stats(context.Background())
	require.NoError(t, err)
	require.Len(t, perWorker, 2)
	assert.Equal(t, uint64(2), total.Created)
	assert.Equal(t, uint64(2), total.Evicted)
	assert.Zero(t, total.Live)
}
