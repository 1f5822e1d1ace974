package cache

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/opencontainers/go-digest"
	"github.com/valyala/fasthttp"
)

// contentETag 使用内容 sha256 作为强 ETag。
func contentETag(content []byte) string {
	return `"` + digest.FromBytes(content).Encoded() + `"`
}

// inferContentType 先按常见后缀推断，其次查询 mime 表，最后嗅探内容。
func inferContentType(uri string, content []byte) string {
	clean := strings.ToLower(path.Clean("/" + uri))
	switch {
	case strings.HasSuffix(clean, ".tar.gz"), strings.HasSuffix(clean, ".tgz"):
		return "application/gzip"
	case strings.HasSuffix(clean, ".whl"):
		return "application/octet-stream"
	case strings.HasSuffix(clean, ".mod"):
		return "text/plain; charset=utf-8"
	}
	if ct := mime.TypeByExtension(path.Ext(clean)); ct != "" {
		return ct
	}
	sniff := content
	if len(sniff) > 512 {
		sniff = sniff[:512]
	}
	return http.DetectContentType(sniff)
}

// renderHeaders 生成 200 响应头并写入 dst，返回写入的字节数。
func renderHeaders(dst io.Writer, contentType, etag string, size int64, modTime time.Time) (int, error) {
	var h fasthttp.ResponseHeader
	h.SetStatusCode(fasthttp.StatusOK)
	h.SetContentType(contentType)
	h.SetContentLength(int(size))
	h.Set(fasthttp.HeaderETag, etag)
	if !modTime.IsZero() {
		h.Set(fasthttp.HeaderLastModified, modTime.UTC().Format(http.TimeFormat))
	}
	n, err := dst.Write(h.Header())
	if err != nil {
		return n, fmt.Errorf("write headers: %w", err)
	}
	return n, nil
}
