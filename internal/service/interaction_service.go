package service

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-messenger/internal/apperror"
	"github.com/noah-isme/gema-messenger/internal/clock"
	"github.com/noah-isme/gema-messenger/internal/dto"
	"github.com/noah-isme/gema-messenger/internal/models"
	"github.com/noah-isme/gema-messenger/internal/observability"
	"github.com/noah-isme/gema-messenger/internal/policy"
	"github.com/noah-isme/gema-messenger/internal/repository"
)

// ConversationFlag names a personal toggle on the caller's membership.
type ConversationFlag string

const (
	FlagMute    ConversationFlag = "mute"
	FlagArchive ConversationFlag = "archive"
	FlagPin     ConversationFlag = "pin"
)

var flagKinds = map[ConversationFlag]repository.ToggleKind{
	FlagMute:    repository.ToggleMute,
	FlagArchive: repository.ToggleArchive,
	FlagPin:     repository.ToggleConversationPin,
}

// InteractionService exposes reactions, pins, stars and conversation flags.
type InteractionService interface {
	ToggleReaction(ctx context.Context, actorID string, messageID uint, emoji string) (dto.ToggleResponse, error)
	TogglePin(ctx context.Context, actorID string, messageID uint) (dto.ToggleResponse, error)
	Unpin(ctx context.Context, actorID string, messageID uint) error
	ListPinned(ctx context.Context, actorID string, conversationID uint) ([]dto.PinnedMessageResponse, error)
	ToggleStar(ctx context.Context, actorID string, messageID uint) (dto.ToggleResponse, error)
	ListStarred(ctx context.Context, actorID string) ([]dto.StarredMessageResponse, error)
	ToggleConversationFlag(ctx context.Context, actorID string, conversationID uint, flag ConversationFlag) (dto.ToggleResponse, error)
}

type interactionService struct {
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	interactions  repository.InteractionRepository
	engine        repository.ToggleEngine
	publisher     EventPublisher
	authorizer    policy.Authorizer
	clock         clock.Clock
	logger        zerolog.Logger
	tracer        trace.Tracer
}

// NewInteractionService constructs the interaction service.
func NewInteractionService(conversations repository.ConversationRepository, messages repository.MessageRepository, interactions repository.InteractionRepository, engine repository.ToggleEngine, publisher EventPublisher, authorizer policy.Authorizer, clk clock.Clock, logger zerolog.Logger) InteractionService {
	return &interactionService{
		conversations: conversations,
		messages:      messages,
		interactions:  interactions,
		engine:        engine,
		publisher:     publisher,
		authorizer:    authorizer,
		clock:         clk,
		logger:        logger.With().Str("component", "interaction_service").Logger(),
		tracer:        otel.Tracer("github.com/noah-isme/gema-messenger/internal/service/interaction"),
	}
}

func (s *interactionService) ToggleReaction(ctx context.Context, actorID string, messageID uint, emoji string) (dto.ToggleResponse, error) {
	if err := policy.ValidateEmoji(emoji); err != nil {
		return dto.ToggleResponse{}, err
	}
	message, err := s.loadMessage(ctx, actorID, messageID, policy.ActionReact)
	if err != nil {
		return dto.ToggleResponse{}, err
	}

	outcome, err := s.toggle(ctx, repository.ToggleReaction, repository.ToggleKey{MessageID: messageID, Emoji: emoji}, actorID)
	if err != nil {
		return dto.ToggleResponse{}, err
	}

	reactions, err := s.interactions.ReactionsByEmoji(ctx, messageID)
	if err != nil {
		s.logger.Warn().Err(err).Uint("message_id", messageID).Msg("failed to load reactions for broadcast")
		return toggleResponse(outcome), nil
	}
	s.publisher.Publish(ctx, dto.NewConversationEvent(dto.EventReactionUpdated, message.ConversationID, actorID,
		dto.ReactionUpdatedPayload{MessageID: messageID, ReactionsByEmoji: reactions}, s.clock.Now()))
	return toggleResponse(outcome), nil
}

func (s *interactionService) TogglePin(ctx context.Context, actorID string, messageID uint) (dto.ToggleResponse, error) {
	message, err := s.loadMessage(ctx, actorID, messageID, policy.ActionPin)
	if err != nil {
		return dto.ToggleResponse{}, err
	}

	outcome, err := s.toggle(ctx, repository.TogglePin, repository.ToggleKey{MessageID: messageID, ConversationID: message.ConversationID}, actorID)
	if err != nil {
		return dto.ToggleResponse{}, err
	}

	if outcome.Removed {
		s.publishUnpinned(ctx, actorID, message)
		return toggleResponse(outcome), nil
	}

	pin, err := s.interactions.FindPin(ctx, messageID)
	if err != nil || pin == nil {
		s.logger.Warn().Err(err).Uint("message_id", messageID).Msg("failed to load pin for broadcast")
		return toggleResponse(outcome), nil
	}
	pin.Message = &message
	s.publisher.Publish(ctx, dto.NewConversationEvent(dto.EventMessagePinned, message.ConversationID, actorID,
		dto.MessagePinnedPayload{PinnedMessage: dto.NewPinnedMessageResponse(*pin)}, s.clock.Now()))
	return toggleResponse(outcome), nil
}

// Unpin removes a pin explicitly. Unpinning a message that is not pinned is a no-op.
func (s *interactionService) Unpin(ctx context.Context, actorID string, messageID uint) error {
	message, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		return err
	}
	if _, err := requireMember(ctx, s.conversations, message.ConversationID, actorID); err != nil {
		return err
	}

	removed, err := s.interactions.DeletePin(ctx, messageID)
	if err != nil {
		return err
	}
	if removed {
		observability.Toggles().WithLabelValues(string(repository.TogglePin), "removed").Inc()
		s.publishUnpinned(ctx, actorID, message)
	}
	return nil
}

func (s *interactionService) ListPinned(ctx context.Context, actorID string, conversationID uint) ([]dto.PinnedMessageResponse, error) {
	if _, err := requireMember(ctx, s.conversations, conversationID, actorID); err != nil {
		return nil, err
	}
	pins, err := s.interactions.ListPinned(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	response := make([]dto.PinnedMessageResponse, 0, len(pins))
	for _, pin := range pins {
		response = append(response, dto.NewPinnedMessageResponse(pin))
	}
	return response, nil
}

// ToggleStar bookmarks a message for the actor only; nothing is broadcast.
func (s *interactionService) ToggleStar(ctx context.Context, actorID string, messageID uint) (dto.ToggleResponse, error) {
	if _, err := s.loadMessage(ctx, actorID, messageID, policy.ActionReact); err != nil {
		return dto.ToggleResponse{}, err
	}
	outcome, err := s.toggle(ctx, repository.ToggleStar, repository.ToggleKey{MessageID: messageID}, actorID)
	if err != nil {
		return dto.ToggleResponse{}, err
	}
	return toggleResponse(outcome), nil
}

func (s *interactionService) ListStarred(ctx context.Context, actorID string) ([]dto.StarredMessageResponse, error) {
	stars, err := s.interactions.ListStarred(ctx, actorID)
	if err != nil {
		return nil, err
	}
	response := make([]dto.StarredMessageResponse, 0, len(stars))
	for _, star := range stars {
		response = append(response, dto.NewStarredMessageResponse(star))
	}
	return response, nil
}

// ToggleConversationFlag flips mute, archive or pin on the actor's membership. Nothing is broadcast.
func (s *interactionService) ToggleConversationFlag(ctx context.Context, actorID string, conversationID uint, flag ConversationFlag) (dto.ToggleResponse, error) {
	kind, ok := flagKinds[flag]
	if !ok {
		return dto.ToggleResponse{}, apperror.Validationf("unknown conversation flag %q", flag)
	}
	if _, err := requireMember(ctx, s.conversations, conversationID, actorID); err != nil {
		return dto.ToggleResponse{}, err
	}
	outcome, err := s.toggle(ctx, kind, repository.ToggleKey{ConversationID: conversationID}, actorID)
	if err != nil {
		return dto.ToggleResponse{}, err
	}
	return toggleResponse(outcome), nil
}

func (s *interactionService) toggle(ctx context.Context, kind repository.ToggleKind, key repository.ToggleKey, actorID string) (repository.Outcome, error) {
	spanCtx, span := s.tracer.Start(ctx, "interaction.toggle", trace.WithAttributes(
		attribute.String("toggle.kind", string(kind)),
		attribute.String("toggle.actor_id", actorID),
	))
	defer span.End()

	outcome, err := s.engine.Toggle(spanCtx, kind, key, actorID)
	if err != nil {
		span.RecordError(err)
		return repository.Outcome{}, err
	}
	observability.Toggles().WithLabelValues(string(kind), outcomeLabel(outcome)).Inc()
	return outcome, nil
}

func (s *interactionService) loadMessage(ctx context.Context, actorID string, messageID uint, action policy.Action) (models.Message, error) {
	message, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		return models.Message{}, err
	}
	if _, err := requireMember(ctx, s.conversations, message.ConversationID, actorID); err != nil {
		return models.Message{}, err
	}
	if err := s.authorizer.CanModify(message, actorID, action, s.clock.Now()); err != nil {
		return models.Message{}, err
	}
	return message, nil
}

func (s *interactionService) publishUnpinned(ctx context.Context, actorID string, message models.Message) {
	s.publisher.Publish(ctx, dto.NewConversationEvent(dto.EventMessageUnpinned, message.ConversationID, actorID,
		dto.MessageUnpinnedPayload{MessageID: message.ID}, s.clock.Now()))
}
