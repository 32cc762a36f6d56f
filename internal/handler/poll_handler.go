package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-messenger/internal/dto"
	"github.com/noah-isme/gema-messenger/internal/middleware"
	"github.com/noah-isme/gema-messenger/internal/service"
	"github.com/noah-isme/gema-messenger/internal/utils"
)

// PollHandler serves poll reads, votes and closing.
type PollHandler struct {
	service service.PollService
	logger  zerolog.Logger
}

// NewPollHandler constructs the handler.
func NewPollHandler(service service.PollService, logger zerolog.Logger) *PollHandler {
	return &PollHandler{
		service: service,
		logger:  logger.With().Str("component", "poll_handler").Logger(),
	}
}

// Register wires poll routes.
func (h *PollHandler) Register(router fiber.Router) {
	router.Get("/:id", h.get)
	router.Post("/:id/votes", h.vote)
	router.Post("/:id/close", h.close)
}

func (h *PollHandler) get(c *fiber.Ctx) error {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return invalidID(c, "poll id")
	}

	poll, err := h.service.GetPoll(middleware.RequestContext(c), middleware.UserID(c), id)
	if err != nil {
		return respondError(h.logger, c, err, "failed to load poll")
	}
	return utils.SendSuccess(c, "poll retrieved", poll)
}

func (h *PollHandler) vote(c *fiber.Ctx) error {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return invalidID(c, "poll id")
	}
	var payload dto.VoteRequest
	if err := c.BodyParser(&payload); err != nil {
		return invalidPayload(c)
	}

	poll, err := h.service.Vote(middleware.RequestContext(c), middleware.UserID(c), id, payload)
	if err != nil {
		return respondError(h.logger, c, err, "failed to record vote")
	}
	return utils.SendSuccess(c, "vote recorded", poll)
}

func (h *PollHandler) close(c *fiber.Ctx) error {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return invalidID(c, "poll id")
	}

	poll, err := h.service.ClosePoll(middleware.RequestContext(c), middleware.UserID(c), id)
	if err != nil {
		return respondError(h.logger, c, err, "failed to close poll")
	}
	return utils.SendSuccess(c, "poll closed", poll)
}
