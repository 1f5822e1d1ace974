package server

import (
	"bytes"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
)

func TestRouterForwardsRequestsToHandler(t *testing.T) {
	app, recorder := newTestApp(t)

	req := httptest.NewRequest("GET", "http://cache.local/static/app.js", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 204 status, got %d (body=%s)", resp.StatusCode, string(body))
	}
	if recorder.path != "/static/app.js" {
		t.Fatalf("expected handler to see /static/app.js, got %s", recorder.path)
	}
	if reqID := resp.Header.Get("X-Request-ID"); reqID == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}
	if recorder.requestID != resp.Header.Get("X-Request-ID") {
		t.Fatalf("handler should observe the same request id")
	}
}

func TestRouterLeavesDiagnosticsPaths(t *testing.T) {
	app, recorder := newTestApp(t)
	app.Get("/-/ping", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"ok": true})
	})

	resp, err := app.Test(httptest.NewRequest("GET", "http://cache.local/-/ping", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 status, got %d", resp.StatusCode)
	}
	if recorder.path != "" {
		t.Fatalf("diagnostics path should not reach cache handler")
	}
}

func TestRouterRecoversPanics(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	app, err := NewApp(AppOptions{
		Logger:     logger,
		ListenPort: 5000,
		Handler: HandlerFunc(func(fiber.Ctx) error {
			panic("invariant violated")
		}),
	})
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}

	resp, err := app.Test(httptest.NewRequest("GET", "http://cache.local/boom", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusInternalServerError {
		t.Fatalf("expected 500 status, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Contains(body, []byte(`"error"`)) {
		t.Fatalf("expected JSON error body, got %s", string(body))
	}
}

func TestNewAppValidatesOptions(t *testing.T) {
	logger := logrus.New()
	handler := HandlerFunc(func(c fiber.Ctx) error { return nil })

	cases := []AppOptions{
		{Handler: handler, ListenPort: 5000},
		{Logger: logger, ListenPort: 5000},
		{Logger: logger, Handler: handler},
	}
	for i, opts := range cases {
		if _, err := NewApp(opts); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

func newTestApp(t *testing.T) (*fiber.App, *handlerRecorder) {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	recorder := &handlerRecorder{}
	app, err := NewApp(AppOptions{
		Logger:     logger,
		Handler:    recorder,
		ListenPort: 5000,
	})
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}
	return app, recorder
}

type handlerRecorder struct {
	path      string
	requestID string
}

func (h *handlerRecorder) Handle(c fiber.Ctx) error {
	h.path = string(c.Request().URI().Path())
	h.requestID = RequestID(c)
	return c.SendStatus(fiber.StatusNoContent)
}
