package handler

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/any-hub/any-cache/internal/cache"
	"github.com/any-hub/any-cache/internal/server"
)

// spool 把请求体暂存为不可淘汰条目；先在所有 worker 上失效旧条目，避免残留旧的磁盘映射。
func (h *Handler) spool(c fiber.Ctx) error {
	started := time.Now()
	requestID := server.RequestID(c)
	uri := requestURI(c)
	ctx := requestContext(c)
	body := c.Body()

	if _, err := h.pool.Invalidate(ctx, uri); err != nil {
		h.logResult("spool", uri, -1, cacheSpooled, requestID, fiber.StatusServiceUnavailable, started, err)
		return h.writeError(c, fiber.StatusServiceUnavailable, "cache_unavailable")
	}

	w := h.pool.Pick(uri)
	var (
		etag string
		size int64
	)
	err := w.Do(ctx, func(m *cache.Manager) error {
		e, err := m.CreateFromBuffer(uri, body)
		if err != nil {
			return err
		}
		etag, size = e.ETag(), e.Size()
		return nil
	})
	if err != nil {
		status, code := fiber.StatusInsufficientStorage, "spool_failed"
		if errors.Is(err, cache.ErrURITooLong) {
			status, code = fiber.StatusRequestURITooLong, "uri_too_long"
		}
		h.logResult("spool", uri, w.ID(), cacheSpooled, requestID, status, started, err)
		return h.writeError(c, status, code)
	}

	c.Set(fiber.HeaderETag, etag)
	c.Set(headerCache, cacheSpooled)
	h.logResult("spool", uri, w.ID(), cacheSpooled, requestID, fiber.StatusCreated, started, nil)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"uri":    uri,
		"size":   size,
		"etag":   etag,
		"worker": w.ID(),
	})
}

// invalidate 在所有 worker 上移除 uri 对应的条目；仍被引用的条目会在最后一次归还后销毁。
func (h *Handler) invalidate(c fiber.Ctx) error {
	started := time.Now()
	requestID := server.RequestID(c)
	uri := requestURI(c)

	removed, err := h.pool.Invalidate(requestContext(c), uri)
	if err != nil {
		h.logResult("invalidate", uri, -1, "", requestID, fiber.StatusServiceUnavailable, started, err)
		return h.writeError(c, fiber.StatusServiceUnavailable, "cache_unavailable")
	}
	c.Set(headerRemoved, strconv.Itoa(removed))
	h.logResult("invalidate", uri, -1, "", requestID, fiber.StatusNoContent, started, nil)
	return c.SendStatus(fiber.StatusNoContent)
}
