package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-messenger/internal/dto"
	"github.com/noah-isme/gema-messenger/internal/middleware"
	"github.com/noah-isme/gema-messenger/internal/service"
	"github.com/noah-isme/gema-messenger/internal/utils"
)

// Dispatcher runs a single scheduled message sweep.
type Dispatcher interface {
	RunOnce(ctx context.Context) (service.DispatchReport, error)
}

// ScheduledHandler serves the caller's scheduled messages and the operator sweep trigger.
type ScheduledHandler struct {
	service    service.ScheduledService
	dispatcher Dispatcher
	logger     zerolog.Logger
}

// NewScheduledHandler constructs the handler. dispatcher may be nil when the
// operator route is not mounted.
func NewScheduledHandler(service service.ScheduledService, dispatcher Dispatcher, logger zerolog.Logger) *ScheduledHandler {
	return &ScheduledHandler{
		service:    service,
		dispatcher: dispatcher,
		logger:     logger.With().Str("component", "scheduled_handler").Logger(),
	}
}

// Register wires the caller-facing scheduled routes.
func (h *ScheduledHandler) Register(router fiber.Router) {
	router.Get("", h.list)
	router.Post("", h.schedule)
	router.Delete("/:id", h.cancel)
}

// RegisterOps wires the manual dispatch trigger behind the given guards.
func (h *ScheduledHandler) RegisterOps(router fiber.Router, guards ...fiber.Handler) {
	router.Post("/scheduled/dispatch", append(guards, h.dispatch)...)
}

func (h *ScheduledHandler) list(c *fiber.Ctx) error {
	pendingOnly := c.QueryBool("pending", false)

	items, err := h.service.List(middleware.RequestContext(c), middleware.UserID(c), pendingOnly)
	if err != nil {
		return respondError(h.logger, c, err, "failed to list scheduled messages")
	}
	return utils.SendSuccess(c, "scheduled messages retrieved", items)
}

func (h *ScheduledHandler) schedule(c *fiber.Ctx) error {
	var payload dto.ScheduleMessageRequest
	if err := c.BodyParser(&payload); err != nil {
		return invalidPayload(c)
	}

	item, err := h.service.Schedule(middleware.RequestContext(c), middleware.UserID(c), payload)
	if err != nil {
		return respondError(h.logger, c, err, "failed to schedule message")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "message scheduled", item)
}

func (h *ScheduledHandler) cancel(c *fiber.Ctx) error {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return invalidID(c, "scheduled message id")
	}

	item, err := h.service.Cancel(middleware.RequestContext(c), middleware.UserID(c), id)
	if err != nil {
		return respondError(h.logger, c, err, "failed to cancel scheduled message")
	}
	return utils.SendSuccess(c, "scheduled message cancelled", item)
}

func (h *ScheduledHandler) dispatch(c *fiber.Ctx) error {
	if h.dispatcher == nil {
		return utils.SendError(c, fiber.StatusServiceUnavailable, "dispatcher not running")
	}

	report, err := h.dispatcher.RunOnce(middleware.RequestContext(c))
	if err != nil {
		return respondError(h.logger, c, err, "manual dispatch failed")
	}
	requestLogger(h.logger, c).Info().Int("sent", report.Sent).Int("failed", report.Failed).Bool("skipped", report.Skipped).Msg("manual dispatch completed")
	return utils.SendSuccess(c, "dispatch completed", fiber.Map{
		"sent":    report.Sent,
		"failed":  report.Failed,
		"skipped": report.Skipped,
	})
}
