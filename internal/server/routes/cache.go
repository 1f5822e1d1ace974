package routes

import (
	"context"
	"sort"

	"github.com/gofiber/fiber/v3"

	"github.com/any-hub/any-cache/internal/cache"
	"github.com/any-hub/any-cache/internal/worker"
)

// RegisterCacheRoutes 暴露 /-/cache 诊断接口，供 SRE 查询各 worker 的条目与计数器。
func RegisterCacheRoutes(app *fiber.App, pool *worker.Pool) {
	if app == nil || pool == nil {
		return
	}

	app.Get("/-/cache", func(c fiber.Ctx) error {
		perWorker, total, err := pool.Stats(requestContext(c))
		if err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "workers_unavailable"})
		}
		return c.JSON(fiber.Map{
			"workers": perWorker,
			"total":   total,
		})
	})

	app.Get("/-/cache/entries", func(c fiber.Ctx) error {
		entries, err := pool.Entries(requestContext(c))
		if err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "workers_unavailable"})
		}
		return c.JSON(fiber.Map{"workers": encodeEntries(entries)})
	})

	app.Post("/-/cache/sweep", func(c fiber.Ctx) error {
		evicted, err := pool.Sweep(requestContext(c))
		if err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "workers_unavailable"})
		}
		return c.JSON(fiber.Map{"evicted": evicted})
	})
}

type workerEntriesPayload struct {
	Worker  int               `json:"worker"`
	Live    int               `json:"live"`
	Zombies int               `json:"zombies"`
	Entries []cache.EntryInfo `json:"entries"`
}

// encodeEntries 按 URI 排序，并把 zombie 排在 live 条目之后。
func encodeEntries(in []worker.WorkerEntries) []workerEntriesPayload {
	if len(in) == 0 {
		return nil
	}
	out := make([]workerEntriesPayload, 0, len(in))
	for _, we := range in {
		entries := append([]cache.EntryInfo(nil), we.Entries...)
		sort.Slice(entries, func(i, j int) bool {
			if entries[i].Zombie != entries[j].Zombie {
				return !entries[i].Zombie
			}
			return entries[i].URI < entries[j].URI
		})
		payload := workerEntriesPayload{Worker: we.Worker, Entries: entries}
		for _, e := range entries {
			if e.Zombie {
				payload.Zombies++
			} else {
				payload.Live++
			}
		}
		out = append(out, payload)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Worker < out[j].Worker
	})
	return out
}

func requestContext(c fiber.Ctx) context.Context {
	if ctx := c.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
