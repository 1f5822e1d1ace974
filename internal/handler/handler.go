package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/any-cache/internal/cache"
	"github.com/any-hub/any-cache/internal/logging"
	"github.com/any-hub/any-cache/internal/server"
	"github.com/any-hub/any-cache/internal/worker"
)

const (
	headerCache   = "X-Any-Cache"
	headerRemoved = "X-Any-Cache-Removed"

	cacheHit     = "hit"
	cacheMiss    = "miss"
	cacheBypass  = "bypass"
	cacheSpooled = "spooled"
)

// Options 描述 Handler 的依赖。
type Options struct {
	Logger        *logrus.Logger
	Pool          *worker.Pool
	Root          *server.Root
	EnableUploads bool
}

// Handler 负责把请求分派到 worker，并以零拷贝方式输出映射内容。
type Handler struct {
	logger  *logrus.Logger
	pool    *worker.Pool
	root    *server.Root
	uploads bool
}

// New constructs a cache handler bound to a worker pool and document root.
func New(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Handler{
		logger:  logger,
		pool:    opts.Pool,
		root:    opts.Root,
		uploads: opts.EnableUploads,
	}
}

// Handle 按请求方法分派到读取、暂存或失效流程。
func (h *Handler) Handle(c fiber.Ctx) error {
	switch c.Method() {
	case http.MethodGet, http.MethodHead:
		return h.serve(c)
	case http.MethodPut:
		if h.uploads {
			return h.spool(c)
		}
	case http.MethodDelete:
		if h.uploads {
			return h.invalidate(c)
		}
	}
	c.Set(fiber.HeaderAllow, h.allowedMethods())
	return h.writeError(c, fiber.StatusMethodNotAllowed, "method_not_allowed")
}

func (h *Handler) allowedMethods() string {
	if h.uploads {
		return "GET, HEAD, PUT, DELETE"
	}
	return "GET, HEAD"
}

func (h *Handler) writeError(c fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{"error": code})
}

func requestURI(c fiber.Ctx) string {
	return server.Clean(string(c.Request().URI().Path()))
}

func requestContext(c fiber.Ctx) context.Context {
	if ctx := c.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// resolveEntry 先查表，未命中时映射文件；并发插入冲突时重新查表。
func resolveEntry(filePath, uri string) func(m *cache.Manager) (*cache.Entry, bool, error) {
	return func(m *cache.Manager) (*cache.Entry, bool, error) {
		if e, ok := m.Lookup(uri); ok {
			return e, true, nil
		}
		e, err := m.ResolveFromFile(filePath, uri)
		if errors.Is(err, cache.ErrAlreadyExists) {
			if existing, ok := m.Lookup(uri); ok {
				return existing, true, nil
			}
		}
		return e, false, err
	}
}

func (h *Handler) logResult(
	action string,
	uri string,
	workerID int,
	cacheState string,
	requestID string,
	status int,
	started time.Time,
	err error,
) {
	fields := logging.CacheFields(workerID, uri, cacheState)
	fields["action"] = action
	fields["status"] = status
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if requestID != "" {
		fields["request_id"] = requestID
	}
	if err != nil {
		fields["error"] = err.Error()
		h.logger.WithFields(fields).Error(action + "_failed")
		return
	}
	h.logger.WithFields(fields).Info(action + "_complete")
}
