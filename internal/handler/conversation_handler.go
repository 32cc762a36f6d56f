package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-messenger/internal/dto"
	"github.com/noah-isme/gema-messenger/internal/middleware"
	"github.com/noah-isme/gema-messenger/internal/service"
	"github.com/noah-isme/gema-messenger/internal/utils"
)

const defaultHistoryLimit = 50

// ConversationHandler serves conversation, membership and history endpoints.
type ConversationHandler struct {
	messaging    service.MessagingService
	interactions service.InteractionService
	polls        service.PollService
	logger       zerolog.Logger
}

// NewConversationHandler constructs the handler.
func NewConversationHandler(messaging service.MessagingService, interactions service.InteractionService, polls service.PollService, logger zerolog.Logger) *ConversationHandler {
	return &ConversationHandler{
		messaging:    messaging,
		interactions: interactions,
		polls:        polls,
		logger:       logger.With().Str("component", "conversation_handler").Logger(),
	}
}

// Register wires conversation routes. sendGuard runs before message sends.
func (h *ConversationHandler) Register(router fiber.Router, sendGuard ...fiber.Handler) {
	router.Get("", h.list)
	router.Post("/direct", h.openDirect)
	router.Post("/groups", h.createGroup)
	router.Get("/:id", h.get)
	router.Get("/:id/members", h.listMembers)
	router.Post("/:id/members", h.addMember)
	router.Delete("/:id/members/:userId", h.removeMember)
	router.Get("/:id/messages", h.history)
	router.Post("/:id/messages", append(sendGuard, h.send)...)
	router.Post("/:id/read", h.markRead)
	router.Post("/:id/mute", h.toggleFlag(service.FlagMute))
	router.Post("/:id/archive", h.toggleFlag(service.FlagArchive))
	router.Post("/:id/pin", h.toggleFlag(service.FlagPin))
	router.Get("/:id/pins", h.pins)
	router.Post("/:id/polls", h.createPoll)
}

func (h *ConversationHandler) list(c *fiber.Ctx) error {
	var query dto.ConversationListQuery
	if err := c.QueryParser(&query); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid query parameters")
	}

	summaries, err := h.messaging.ListConversations(middleware.RequestContext(c), middleware.UserID(c), query)
	if err != nil {
		return respondError(h.logger, c, err, "failed to list conversations")
	}
	return utils.SendSuccess(c, "conversations retrieved", summaries)
}

func (h *ConversationHandler) openDirect(c *fiber.Ctx) error {
	var payload dto.CreateDirectRequest
	if err := c.BodyParser(&payload); err != nil {
		return invalidPayload(c)
	}

	conversation, err := h.messaging.OpenDirect(middleware.RequestContext(c), middleware.UserID(c), payload)
	if err != nil {
		return respondError(h.logger, c, err, "failed to open direct conversation")
	}
	return utils.SendSuccess(c, "direct conversation ready", conversation)
}

func (h *ConversationHandler) createGroup(c *fiber.Ctx) error {
	var payload dto.CreateGroupRequest
	if err := c.BodyParser(&payload); err != nil {
		return invalidPayload(c)
	}

	conversation, err := h.messaging.CreateGroup(middleware.RequestContext(c), middleware.UserID(c), payload)
	if err != nil {
		return respondError(h.logger, c, err, "failed to create group")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "group created", conversation)
}

func (h *ConversationHandler) get(c *fiber.Ctx) error {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return invalidID(c, "conversation id")
	}

	conversation, err := h.messaging.GetConversation(middleware.RequestContext(c), middleware.UserID(c), id)
	if err != nil {
		return respondError(h.logger, c, err, "failed to load conversation")
	}
	return utils.SendSuccess(c, "conversation retrieved", conversation)
}

func (h *ConversationHandler) listMembers(c *fiber.Ctx) error {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return invalidID(c, "conversation id")
	}

	members, err := h.messaging.ListMembers(middleware.RequestContext(c), middleware.UserID(c), id)
	if err != nil {
		return respondError(h.logger, c, err, "failed to list members")
	}
	return utils.SendSuccess(c, "members retrieved", members)
}

func (h *ConversationHandler) addMember(c *fiber.Ctx) error {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return invalidID(c, "conversation id")
	}
	var payload dto.AddMemberRequest
	if err := c.BodyParser(&payload); err != nil {
		return invalidPayload(c)
	}

	member, err := h.messaging.AddMember(middleware.RequestContext(c), middleware.UserID(c), id, payload)
	if err != nil {
		return respondError(h.logger, c, err, "failed to add member")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "member added", member)
}

func (h *ConversationHandler) removeMember(c *fiber.Ctx) error {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return invalidID(c, "conversation id")
	}
	userID := c.Params("userId")

	if err := h.messaging.RemoveMember(middleware.RequestContext(c), middleware.UserID(c), id, userID); err != nil {
		return respondError(h.logger, c, err, "failed to remove member")
	}
	return utils.SendSuccess(c, "member removed", nil)
}

func (h *ConversationHandler) history(c *fiber.Ctx) error {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return invalidID(c, "conversation id")
	}
	before, err := parseQueryInt(c, "before")
	if err != nil || before < 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid before cursor")
	}
	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}

	query := dto.MessageHistoryQuery{ConversationID: id, Before: uint(before), Limit: limit}
	messages, err := h.messaging.ListMessages(middleware.RequestContext(c), middleware.UserID(c), query)
	if err != nil {
		return respondError(h.logger, c, err, "failed to list messages")
	}

	effective := limit
	if effective <= 0 {
		effective = defaultHistoryLimit
	}
	var meta interface{}
	if len(messages) > 0 && len(messages) >= effective {
		meta = fiber.Map{"next_before": messages[0].ID}
	}
	return utils.OK(c, messages, "messages retrieved", meta)
}

func (h *ConversationHandler) send(c *fiber.Ctx) error {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return invalidID(c, "conversation id")
	}
	var payload dto.SendMessageRequest
	if err := c.BodyParser(&payload); err != nil {
		return invalidPayload(c)
	}

	message, err := h.messaging.SendMessage(middleware.RequestContext(c), middleware.UserID(c), id, payload)
	if err != nil {
		return respondError(h.logger, c, err, "failed to send message")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "message sent", message)
}

func (h *ConversationHandler) markRead(c *fiber.Ctx) error {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return invalidID(c, "conversation id")
	}

	if err := h.messaging.MarkRead(middleware.RequestContext(c), middleware.UserID(c), id); err != nil {
		return respondError(h.logger, c, err, "failed to mark conversation read")
	}
	return utils.SendSuccess(c, "conversation marked read", nil)
}

func (h *ConversationHandler) toggleFlag(flag service.ConversationFlag) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := parseIDParam(c, "id")
		if !ok {
			return invalidID(c, "conversation id")
		}

		result, err := h.interactions.ToggleConversationFlag(middleware.RequestContext(c), middleware.UserID(c), id, flag)
		if err != nil {
			return respondError(h.logger, c, err, "failed to toggle conversation "+string(flag))
		}
		return utils.SendSuccess(c, "conversation "+string(flag)+" toggled", result)
	}
}

func (h *ConversationHandler) pins(c *fiber.Ctx) error {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return invalidID(c, "conversation id")
	}

	pins, err := h.interactions.ListPinned(middleware.RequestContext(c), middleware.UserID(c), id)
	if err != nil {
		return respondError(h.logger, c, err, "failed to list pins")
	}
	return utils.SendSuccess(c, "pinned messages retrieved", pins)
}

func (h *ConversationHandler) createPoll(c *fiber.Ctx) error {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return invalidID(c, "conversation id")
	}
	var payload dto.CreatePollRequest
	if err := c.BodyParser(&payload); err != nil {
		return invalidPayload(c)
	}

	poll, err := h.polls.CreatePoll(middleware.RequestContext(c), middleware.UserID(c), id, payload)
	if err != nil {
		return respondError(h.logger, c, err, "failed to create poll")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "poll created", poll)
}
