package handler

import (
	"bufio"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/valyala/fasthttp"

	"github.com/any-hub/any-cache/internal/cache"
	"github.com/any-hub/any-cache/internal/server"
	"github.com/any-hub/any-cache/internal/worker"
)

// serve 读取或建立条目并输出。缓存无法容纳时直接读取文件（bypass）。
func (h *Handler) serve(c fiber.Ctx) error {
	started := time.Now()
	requestID := server.RequestID(c)
	uri := requestURI(c)

	filePath, err := h.root.Resolve(uri)
	if err != nil {
		h.logResult("serve", uri, -1, cacheMiss, requestID, fiber.StatusBadRequest, started, err)
		return h.writeError(c, fiber.StatusBadRequest, "invalid_path")
	}

	w := h.pool.Pick(uri)
	lease, err := w.Open(requestContext(c), resolveEntry(filePath, uri))
	switch {
	case err == nil:
		return h.serveLease(c, lease, uri, requestID, started)
	case errors.Is(err, cache.ErrNotFound):
		h.logResult("serve", uri, w.ID(), cacheMiss, requestID, fiber.StatusNotFound, started, nil)
		return h.writeError(c, fiber.StatusNotFound, "not_found")
	case errors.Is(err, cache.ErrResourceExhausted), errors.Is(err, cache.ErrURITooLong):
		h.logger.WithError(err).WithField("uri", uri).Warn("cache_bypass")
		return h.serveBypass(c, filePath, uri, w.ID(), requestID, started)
	default:
		h.logResult("serve", uri, w.ID(), cacheMiss, requestID, fiber.StatusServiceUnavailable, started, err)
		return h.writeError(c, fiber.StatusServiceUnavailable, "cache_unavailable")
	}
}

// serveLease 复制预渲染响应头，随后把正文流交给 fasthttp；流关闭时归还引用。
func (h *Handler) serveLease(c fiber.Ctx, lease *worker.Lease, uri, requestID string, started time.Time) error {
	state := cacheMiss
	if lease.Hit() {
		state = cacheHit
	}

	if err := copyRenderedHeaders(c, lease); err != nil {
		_ = lease.Close()
		h.logResult("serve", uri, lease.Worker(), state, requestID, fiber.StatusInternalServerError, started, err)
		return fiber.NewError(fiber.StatusInternalServerError, "header_render_failed")
	}
	c.Set(headerCache, state)

	if etagMatches(c.Get(fiber.HeaderIfNoneMatch), lease.ETag()) {
		_ = lease.Close()
		c.Status(fiber.StatusNotModified)
		h.logResult("serve", uri, lease.Worker(), state, requestID, fiber.StatusNotModified, started, nil)
		return nil
	}

	c.Status(fiber.StatusOK)
	if c.Method() == http.MethodHead {
		_ = lease.Close()
		h.logResult("serve", uri, lease.Worker(), state, requestID, fiber.StatusOK, started, nil)
		return nil
	}

	c.Response().SetBodyStream(lease.Body(), int(lease.Size()))
	h.logResult("serve", uri, lease.Worker(), state, requestID, fiber.StatusOK, started, nil)
	return nil
}

// copyRenderedHeaders 解析条目预渲染的响应头并写入当前响应，连接级字段除外。
func copyRenderedHeaders(c fiber.Ctx, lease *worker.Lease) error {
	var rendered fasthttp.ResponseHeader
	if err := rendered.Read(bufio.NewReader(lease.Header())); err != nil {
		return fmt.Errorf("parse rendered headers: %w", err)
	}
	out := &c.Response().Header
	rendered.VisitAll(func(key, value []byte) {
		switch string(key) {
		case fasthttp.HeaderDate, fasthttp.HeaderServer, fasthttp.HeaderConnection:
			return
		}
		out.SetBytesKV(key, value)
	})
	return nil
}

// etagMatches 实现 If-None-Match 的弱比较。
func etagMatches(header, etag string) bool {
	if header == "" || etag == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" {
			return true
		}
		if strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}

// serveBypass 不经过缓存直接流式输出源文件。
func (h *Handler) serveBypass(c fiber.Ctx, filePath, uri string, workerID int, requestID string, started time.Time) error {
	f, err := os.Open(filePath)
	if err != nil {
		h.logResult("serve", uri, workerID, cacheBypass, requestID, fiber.StatusNotFound, started, nil)
		return h.writeError(c, fiber.StatusNotFound, "not_found")
	}
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		_ = f.Close()
		h.logResult("serve", uri, workerID, cacheBypass, requestID, fiber.StatusNotFound, started, nil)
		return h.writeError(c, fiber.StatusNotFound, "not_found")
	}

	contentType := mime.TypeByExtension(path.Ext(uri))
	if contentType == "" {
		contentType = fiber.MIMEOctetStream
	}
	c.Set(fiber.HeaderContentType, contentType)
	c.Set(fiber.HeaderLastModified, info.ModTime().UTC().Format(http.TimeFormat))
	c.Set(headerCache, cacheBypass)
	c.Status(fiber.StatusOK)

	if c.Method() == http.MethodHead {
		_ = f.Close()
		c.Response().Header.SetContentLength(int(info.Size()))
	} else {
		c.Response().SetBodyStream(f, int(info.Size()))
	}
	h.logResult("serve", uri, workerID, cacheBypass, requestID, fiber.StatusOK, started, nil)
	return nil
}
