package cache

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/any-hub/any-cache/internal/chunk"
)

type failingWriter struct{ err error }

func (w failingWriter) Write([]byte) (int, error) { return 0, w.err }

func TestRenderHeadersWritesStatusLine(t *testing.T) {
	t.Parallel()

	dst := chunk.NewList(64)
	t.Cleanup(dst.Free)

	n, err := renderHeaders(dst, "text/plain", `"abc"`, 10, time.Unix(0, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(n), dst.Size())

	var b strings.Builder
	_, err = dst.NewReader().WriteTo(&b)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(b.String(), "HTTP/1.1 200 OK\r\n"))
	assert.True(t, strings.HasSuffix(b.String(), "\r\n\r\n"))
}

func TestRenderHeadersReturnsWriterError(t *testing.T) {
	t.Parallel()

	boom := errors.New("disk gone")
	_, err := renderHeaders(failingWriter{err: boom}, "text/plain", `"abc"`, 10, time.Time{})
	assert.ErrorIs(t, err, boom)
}
