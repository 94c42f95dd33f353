package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/FinalPatel1678/twilio-voice-sdk/internal/app"
	sessionsvc "github.com/FinalPatel1678/twilio-voice-sdk/internal/service/session"
)

// HandlerSet bundles all HTTP handlers.
type HandlerSet struct {
	container *app.Container
	sessions  *sessionsvc.Manager
}

// NewHandlerSet creates a new handler bundle.
func NewHandlerSet(container *app.Container) *HandlerSet {
	return &HandlerSet{
		container: container,
		sessions:  container.Sessions(),
	}
}

// Register wires all routes onto the fiber app.
func (h *HandlerSet) Register(app *fiber.App) {
	app.Get("/healthz", h.health)

	api := app.Group("/api")
	v1 := api.Group("/v1")

	v1.Get("/token", h.mintToken)

	calls := v1.Group("/calls")
	calls.Post("/lookup", h.lookupCall)
	calls.Get("/in-call", h.inCall)

	worklists := v1.Group("/worklists")
	worklists.Post("/", h.createWorklist)
	worklists.Get("/:id", h.getWorklist)

	sessions := v1.Group("/sessions")
	sessions.Post("/", h.createSession)
	sessions.Get("/:id", h.getSession)
	sessions.Delete("/:id", h.closeSession)
	sessions.Post("/:id/start", h.startAutoDial)
	sessions.Post("/:id/pause", h.pauseAutoDial)
	sessions.Post("/:id/resume", h.resumeAutoDial)
	sessions.Post("/:id/stop", h.stopAutoDial)
	sessions.Post("/:id/summary-ack", h.acknowledgeSummary)
	sessions.Post("/:id/dial", h.dial)
	sessions.Post("/:id/hangup", h.hangUp)
	sessions.Post("/:id/mute", h.setMute)
	sessions.Delete("/:id/entries/:index", h.removeEntry)
	sessions.Get("/:id/attempts", h.listAttempts)
	sessions.Get("/:id/stats", h.runStats)
}

// ErrorHandler provides centralized error responses.
func (h *HandlerSet) ErrorHandler(ctx *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := err.Error()

	if fiberErr, ok := err.(*fiber.Error); ok {
		code = fiberErr.Code
		message = fiberErr.Message
	}

	if code == fiber.StatusInternalServerError {
		h.container.Logger.Error("request failed", zap.Error(err))
	}

	return ctx.Status(code).JSON(fiber.Map{
		"error":    message,
		"trace_id": ctx.GetRespHeader("Trace-Id"),
	})
}

func (h *HandlerSet) health(ctx *fiber.Ctx) error {
	healthCtx, cancel := context.WithTimeout(ctx.Context(), 2*time.Second)
	defer cancel()

	errs := make(map[string]string)

	if err := h.container.Postgres.DB().PingContext(healthCtx); err != nil {
		errs["postgres"] = err.Error()
	}

	if err := h.container.Redis.Inner().Ping(healthCtx).Err(); err != nil {
		errs["redis"] = err.Error()
	}

	if err := h.container.Scylla.Session().Query("SELECT now() FROM system.local").WithContext(healthCtx).Exec(); err != nil {
		errs["scylla"] = err.Error()
	}

	status := fiber.StatusOK
	if len(errs) > 0 {
		status = fiber.StatusServiceUnavailable
	}

	return ctx.Status(status).JSON(fiber.Map{"status": "ok", "errors": errs})
}
