package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-messenger/internal/dto"
	"github.com/noah-isme/gema-messenger/internal/middleware"
	"github.com/noah-isme/gema-messenger/internal/service"
	"github.com/noah-isme/gema-messenger/internal/utils"
)

// MessageHandler serves mutations and personal overlays on single messages.
type MessageHandler struct {
	messaging    service.MessagingService
	interactions service.InteractionService
	logger       zerolog.Logger
}

// NewMessageHandler constructs the handler.
func NewMessageHandler(messaging service.MessagingService, interactions service.InteractionService, logger zerolog.Logger) *MessageHandler {
	return &MessageHandler{
		messaging:    messaging,
		interactions: interactions,
		logger:       logger.With().Str("component", "message_handler").Logger(),
	}
}

// Register wires message routes.
func (h *MessageHandler) Register(router fiber.Router) {
	router.Get("/starred", h.starred)
	router.Patch("/:id", h.edit)
	router.Delete("/:id", h.delete)
	router.Post("/:id/reactions", h.react)
	router.Post("/:id/star", h.star)
	router.Post("/:id/pin", h.pin)
	router.Delete("/:id/pin", h.unpin)
	router.Post("/:id/forward", h.forward)
}

func (h *MessageHandler) edit(c *fiber.Ctx) error {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return invalidID(c, "message id")
	}
	var payload dto.EditMessageRequest
	if err := c.BodyParser(&payload); err != nil {
		return invalidPayload(c)
	}

	message, err := h.messaging.EditMessage(middleware.RequestContext(c), middleware.UserID(c), id, payload)
	if err != nil {
		return respondError(h.logger, c, err, "failed to edit message")
	}
	return utils.SendSuccess(c, "message edited", message)
}

func (h *MessageHandler) delete(c *fiber.Ctx) error {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return invalidID(c, "message id")
	}

	message, err := h.messaging.DeleteMessage(middleware.RequestContext(c), middleware.UserID(c), id)
	if err != nil {
		return respondError(h.logger, c, err, "failed to delete message")
	}
	return utils.SendSuccess(c, "message deleted", message)
}

func (h *MessageHandler) react(c *fiber.Ctx) error {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return invalidID(c, "message id")
	}
	var payload dto.ReactionRequest
	if err := c.BodyParser(&payload); err != nil {
		return invalidPayload(c)
	}

	result, err := h.interactions.ToggleReaction(middleware.RequestContext(c), middleware.UserID(c), id, payload.Emoji)
	if err != nil {
		return respondError(h.logger, c, err, "failed to toggle reaction")
	}
	return utils.SendSuccess(c, "reaction toggled", result)
}

func (h *MessageHandler) star(c *fiber.Ctx) error {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return invalidID(c, "message id")
	}

	result, err := h.interactions.ToggleStar(middleware.RequestContext(c), middleware.UserID(c), id)
	if err != nil {
		return respondError(h.logger, c, err, "failed to toggle star")
	}
	return utils.SendSuccess(c, "star toggled", result)
}

func (h *MessageHandler) pin(c *fiber.Ctx) error {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return invalidID(c, "message id")
	}

	result, err := h.interactions.TogglePin(middleware.RequestContext(c), middleware.UserID(c), id)
	if err != nil {
		return respondError(h.logger, c, err, "failed to toggle pin")
	}
	return utils.SendSuccess(c, "pin toggled", result)
}

func (h *MessageHandler) unpin(c *fiber.Ctx) error {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return invalidID(c, "message id")
	}

	if err := h.interactions.Unpin(middleware.RequestContext(c), middleware.UserID(c), id); err != nil {
		return respondError(h.logger, c, err, "failed to unpin message")
	}
	return utils.SendSuccess(c, "message unpinned", nil)
}

func (h *MessageHandler) forward(c *fiber.Ctx) error {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return invalidID(c, "message id")
	}
	var payload dto.ForwardMessageRequest
	if err := c.BodyParser(&payload); err != nil {
		return invalidPayload(c)
	}

	message, err := h.messaging.ForwardMessage(middleware.RequestContext(c), middleware.UserID(c), id, payload)
	if err != nil {
		return respondError(h.logger, c, err, "failed to forward message")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "message forwarded", message)
}

func (h *MessageHandler) starred(c *fiber.Ctx) error {
	items, err := h.interactions.ListStarred(middleware.RequestContext(c), middleware.UserID(c))
	if err != nil {
		return respondError(h.logger, c, err, "failed to list starred messages")
	}
	return utils.SendSuccess(c, "starred messages retrieved", items)
}
