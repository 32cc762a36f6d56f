package service

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
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
	"github.com/noah-isme/gema-messenger/internal/sanitize"
)

// DefaultGeneralName is the display name of the system-wide group.
const DefaultGeneralName = "General"

// MessagingService exposes conversation and message use-cases.
type MessagingService interface {
	EnsureGeneral(ctx context.Context) (dto.ConversationResponse, error)
	JoinGeneral(ctx context.Context, userID string) error
	OpenDirect(ctx context.Context, actorID string, payload dto.CreateDirectRequest) (dto.ConversationResponse, error)
	CreateGroup(ctx context.Context, actorID string, payload dto.CreateGroupRequest) (dto.ConversationResponse, error)
	GetConversation(ctx context.Context, actorID string, conversationID uint) (dto.ConversationResponse, error)
	ListConversations(ctx context.Context, actorID string, query dto.ConversationListQuery) ([]dto.ConversationSummary, error)
	ListMembers(ctx context.Context, actorID string, conversationID uint) ([]dto.MemberResponse, error)
	AddMember(ctx context.Context, actorID string, conversationID uint, payload dto.AddMemberRequest) (dto.MemberResponse, error)
	RemoveMember(ctx context.Context, actorID string, conversationID uint, userID string) error
	SendMessage(ctx context.Context, actorID string, conversationID uint, payload dto.SendMessageRequest) (dto.MessageResponse, error)
	DeliverScheduled(ctx context.Context, item models.ScheduledMessage) (dto.MessageResponse, error)
	EditMessage(ctx context.Context, actorID string, messageID uint, payload dto.EditMessageRequest) (dto.MessageResponse, error)
	DeleteMessage(ctx context.Context, actorID string, messageID uint) (dto.MessageResponse, error)
	ForwardMessage(ctx context.Context, actorID string, messageID uint, payload dto.ForwardMessageRequest) (dto.MessageResponse, error)
	ListMessages(ctx context.Context, actorID string, query dto.MessageHistoryQuery) ([]dto.MessageResponse, error)
	MarkRead(ctx context.Context, actorID string, conversationID uint) error
}

// MessagingOption customises a messaging service.
type MessagingOption func(*messagingService)

// WithLinkPreviewer enables asynchronous link previews after a message commits.
func WithLinkPreviewer(previewer LinkPreviewer) MessagingOption {
	return func(s *messagingService) {
		s.previewer = previewer
	}
}

// WithGeneralName overrides the display name used when the General group is created.
func WithGeneralName(name string) MessagingOption {
	return func(s *messagingService) {
		if strings.TrimSpace(name) != "" {
			s.generalName = name
		}
	}
}

type messagingService struct {
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	publisher     EventPublisher
	authorizer    policy.Authorizer
	sanitizer     *sanitize.Sanitizer
	attachments   *sanitize.AttachmentValidator
	previewer     LinkPreviewer
	validator     *validator.Validate
	clock         clock.Clock
	logger        zerolog.Logger
	tracer        trace.Tracer
	generalName   string
}

// NewMessagingService constructs the messaging service.
func NewMessagingService(conversations repository.ConversationRepository, messages repository.MessageRepository, publisher EventPublisher, authorizer policy.Authorizer, attachments *sanitize.AttachmentValidator, validate *validator.Validate, clk clock.Clock, logger zerolog.Logger, opts ...MessagingOption) MessagingService {
	if attachments == nil {
		attachments = sanitize.NewAttachmentValidator(sanitize.DefaultMaxAttachmentMB)
	}
	service := &messagingService{
		conversations: conversations,
		messages:      messages,
		publisher:     publisher,
		authorizer:    authorizer,
		sanitizer:     sanitize.NewSanitizer(),
		attachments:   attachments,
		validator:     validate,
		clock:         clk,
		logger:        logger.With().Str("component", "messaging_service").Logger(),
		tracer:        otel.Tracer("github.com/noah-isme/gema-messenger/internal/service/messaging"),
		generalName:   DefaultGeneralName,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

func (s *messagingService) EnsureGeneral(ctx context.Context) (dto.ConversationResponse, error) {
	conversation, err := s.conversations.EnsureGeneral(ctx, s.generalName, s.clock.Now())
	if err != nil {
		return dto.ConversationResponse{}, err
	}
	return dto.NewConversationResponse(conversation), nil
}

// JoinGeneral adds the user to the General group, publishing memberAdded only on first join.
func (s *messagingService) JoinGeneral(ctx context.Context, userID string) error {
	general, err := s.conversations.EnsureGeneral(ctx, s.generalName, s.clock.Now())
	if err != nil {
		return err
	}
	_, err = s.addMember(ctx, userID, general.ID, userID)
	return err
}

func (s *messagingService) OpenDirect(ctx context.Context, actorID string, payload dto.CreateDirectRequest) (dto.ConversationResponse, error) {
	payload.UserID = strings.TrimSpace(payload.UserID)
	if err := validateStruct(s.validator, payload); err != nil {
		return dto.ConversationResponse{}, err
	}
	if payload.UserID == actorID {
		return dto.ConversationResponse{}, apperror.Validation("cannot open a direct conversation with yourself")
	}

	conversation, created, err := s.conversations.GetOrCreateDirect(ctx, actorID, payload.UserID, s.clock.Now())
	if err != nil {
		return dto.ConversationResponse{}, err
	}
	if created {
		s.logger.Info().Uint("conversation_id", conversation.ID).Str("user_id", actorID).Msg("direct conversation created")
	}
	return dto.NewConversationResponse(conversation), nil
}

func (s *messagingService) CreateGroup(ctx context.Context, actorID string, payload dto.CreateGroupRequest) (dto.ConversationResponse, error) {
	if err := validateStruct(s.validator, payload); err != nil {
		return dto.ConversationResponse{}, err
	}
	name, err := policy.ValidateGroupName(s.sanitizer.Text(payload.Name))
	if err != nil {
		return dto.ConversationResponse{}, err
	}

	now := s.clock.Now()
	conversation := models.Conversation{
		Kind:        models.ConversationGroup,
		DisplayName: name,
		CreatedBy:   actorID,
		CreatedAt:   now,
		UpdatedAt:   now,
		Members: []models.ConversationMember{
			{UserID: actorID, Role: models.RoleOwner, CreatedAt: now, UpdatedAt: now},
		},
	}
	seen := map[string]struct{}{actorID: {}}
	for _, raw := range payload.MemberIDs {
		userID := strings.TrimSpace(raw)
		if userID == "" {
			continue
		}
		if _, dup := seen[userID]; dup {
			continue
		}
		seen[userID] = struct{}{}
		conversation.Members = append(conversation.Members, models.ConversationMember{UserID: userID, Role: models.RoleMember, CreatedAt: now, UpdatedAt: now})
	}

	if err := s.conversations.CreateGroup(ctx, &conversation); err != nil {
		return dto.ConversationResponse{}, err
	}
	s.logger.Info().Uint("conversation_id", conversation.ID).Int("members", len(conversation.Members)).Msg("group created")
	return dto.NewConversationResponse(conversation), nil
}

func (s *messagingService) GetConversation(ctx context.Context, actorID string, conversationID uint) (dto.ConversationResponse, error) {
	if _, err := requireMember(ctx, s.conversations, conversationID, actorID); err != nil {
		return dto.ConversationResponse{}, err
	}
	conversation, err := s.conversations.FindWithMembers(ctx, conversationID)
	if err != nil {
		return dto.ConversationResponse{}, err
	}
	return dto.NewConversationResponse(conversation), nil
}

func (s *messagingService) ListConversations(ctx context.Context, actorID string, query dto.ConversationListQuery) ([]dto.ConversationSummary, error) {
	views, err := s.conversations.ListForUser(ctx, actorID, query.IncludeArchived)
	if err != nil {
		return nil, err
	}

	summaries := make([]dto.ConversationSummary, 0, len(views))
	for _, view := range views {
		summary := dto.ConversationSummary{
			ID:             view.Conversation.ID,
			Kind:           string(view.Conversation.Kind),
			DisplayName:    view.Conversation.DisplayName,
			IsGeneral:      view.Conversation.IsGeneral,
			UnreadCount:    view.UnreadCount,
			LastActivityAt: view.LastActivityAt(),
			PinnedAt:       view.Membership.PinnedAt,
			ArchivedAt:     view.Membership.ArchivedAt,
			MutedAt:        view.Membership.MutedAt,
		}
		if !view.Conversation.IsGeneral {
			for _, member := range view.Conversation.Members {
				summary.MemberIDs = append(summary.MemberIDs, member.UserID)
			}
		}
		if view.LastMessage != nil {
			last := dto.NewMessageResponse(*view.LastMessage)
			summary.LastMessage = &last
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func (s *messagingService) ListMembers(ctx context.Context, actorID string, conversationID uint) ([]dto.MemberResponse, error) {
	if _, err := requireMember(ctx, s.conversations, conversationID, actorID); err != nil {
		return nil, err
	}
	members, err := s.conversations.ListMembers(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	response := make([]dto.MemberResponse, 0, len(members))
	for _, member := range members {
		response = append(response, dto.NewMemberResponse(member))
	}
	return response, nil
}

func (s *messagingService) AddMember(ctx context.Context, actorID string, conversationID uint, payload dto.AddMemberRequest) (dto.MemberResponse, error) {
	payload.UserID = strings.TrimSpace(payload.UserID)
	if err := validateStruct(s.validator, payload); err != nil {
		return dto.MemberResponse{}, err
	}
	if _, err := requireMember(ctx, s.conversations, conversationID, actorID); err != nil {
		return dto.MemberResponse{}, err
	}
	return s.addMember(ctx, actorID, conversationID, payload.UserID)
}

func (s *messagingService) addMember(ctx context.Context, actorID string, conversationID uint, userID string) (dto.MemberResponse, error) {
	conversation, err := s.conversations.FindByID(ctx, conversationID)
	if err != nil {
		return dto.MemberResponse{}, err
	}
	if !conversation.IsGroup() {
		return dto.MemberResponse{}, apperror.ErrNotAGroup
	}

	now := s.clock.Now()
	member := models.ConversationMember{ConversationID: conversationID, UserID: userID, Role: models.RoleMember, CreatedAt: now, UpdatedAt: now}
	added, err := s.conversations.AddMember(ctx, &member)
	if err != nil {
		return dto.MemberResponse{}, err
	}
	if !added {
		existing, err := s.conversations.GetMember(ctx, conversationID, userID)
		if err != nil {
			return dto.MemberResponse{}, err
		}
		return dto.NewMemberResponse(existing), nil
	}

	response := dto.NewMemberResponse(member)
	s.publisher.Publish(ctx, dto.NewConversationEvent(dto.EventMemberAdded, conversationID, actorID, dto.MemberAddedPayload{Member: response}, now))
	return response, nil
}

// RemoveMember removes userID from a group. Members may remove themselves; removing
// someone else requires the owner or admin role.
func (s *messagingService) RemoveMember(ctx context.Context, actorID string, conversationID uint, userID string) error {
	conversation, err := s.conversations.FindByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if !conversation.IsGroup() {
		return apperror.ErrNotAGroup
	}
	if conversation.IsGeneral {
		return apperror.ErrCannotLeaveGeneral
	}

	actor, err := requireMember(ctx, s.conversations, conversationID, actorID)
	if err != nil {
		return err
	}
	if userID != actorID && !actor.CanManageMembers() {
		return apperror.ErrInsufficientRole
	}

	removed, err := s.conversations.RemoveMember(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if !removed {
		if userID != actorID {
			return apperror.ErrMemberNotFound
		}
		return nil
	}

	s.publisher.Publish(ctx, dto.NewConversationEvent(dto.EventMemberLeft, conversationID, actorID, dto.MemberLeftPayload{UserID: userID}, s.clock.Now()))
	return nil
}

func (s *messagingService) SendMessage(ctx context.Context, actorID string, conversationID uint, payload dto.SendMessageRequest) (dto.MessageResponse, error) {
	if err := validateStruct(s.validator, payload); err != nil {
		return dto.MessageResponse{}, err
	}
	if _, err := requireMember(ctx, s.conversations, conversationID, actorID); err != nil {
		return dto.MessageResponse{}, err
	}

	attachments, err := s.attachments.ValidateAll(payload.Attachments)
	if err != nil {
		return dto.MessageResponse{}, err
	}
	if payload.ReplyToID != nil {
		parent, err := s.messages.FindByID(ctx, *payload.ReplyToID)
		if err != nil {
			return dto.MessageResponse{}, err
		}
		if parent.ConversationID != conversationID {
			return dto.MessageResponse{}, apperror.Validation("reply must reference a message in the same conversation")
		}
	}

	message, err := policy.NewMessage(policy.MessageDraft{
		ConversationID: conversationID,
		SenderID:       actorID,
		Content:        s.sanitizer.Text(payload.Content),
		ReplyToID:      payload.ReplyToID,
		Attachments:    attachments,
	}, s.clock.Now())
	if err != nil {
		return dto.MessageResponse{}, err
	}

	return s.persist(ctx, &message, "user", func(ctx context.Context) error {
		return s.messages.Create(ctx, &message)
	})
}

// DeliverScheduled materializes a due scheduled message through the normal send path.
func (s *messagingService) DeliverScheduled(ctx context.Context, item models.ScheduledMessage) (dto.MessageResponse, error) {
	if _, err := requireMember(ctx, s.conversations, item.ConversationID, item.SenderID); err != nil {
		return dto.MessageResponse{}, err
	}

	message, err := policy.NewMessage(policy.MessageDraft{
		ConversationID: item.ConversationID,
		SenderID:       item.SenderID,
		Content:        item.Content,
	}, s.clock.Now())
	if err != nil {
		return dto.MessageResponse{}, err
	}

	return s.persist(ctx, &message, "scheduled", func(ctx context.Context) error {
		return s.messages.CreateFromScheduled(ctx, &message, item.ID)
	})
}

// persist runs store inside a span and publishes newMessage once it commits.
func (s *messagingService) persist(ctx context.Context, message *models.Message, origin string, store func(context.Context) error) (dto.MessageResponse, error) {
	spanCtx, span := s.tracer.Start(ctx, "messaging.send", trace.WithAttributes(
		attribute.Int64("messaging.conversation_id", int64(message.ConversationID)),
		attribute.String("messaging.sender_id", message.SenderID),
		attribute.String("messaging.origin", origin),
	))
	defer span.End()

	if err := store(spanCtx); err != nil {
		span.RecordError(err)
		return dto.MessageResponse{}, err
	}

	response := dto.NewMessageResponse(*message)
	s.publisher.Publish(spanCtx, dto.NewConversationEvent(dto.EventNewMessage, message.ConversationID, message.SenderID,
		dto.NewMessagePayload{Message: response}, s.clock.Now()))
	observability.MessagesSent().WithLabelValues(string(message.Kind), origin).Inc()

	s.requestPreviews(*message)
	return response, nil
}

func (s *messagingService) EditMessage(ctx context.Context, actorID string, messageID uint, payload dto.EditMessageRequest) (dto.MessageResponse, error) {
	if err := validateStruct(s.validator, payload); err != nil {
		return dto.MessageResponse{}, err
	}

	message, err := s.loadForMutation(ctx, actorID, messageID, policy.ActionEdit)
	if err != nil {
		return dto.MessageResponse{}, err
	}

	content := s.sanitizer.Text(payload.Content)
	if err := policy.ValidateContent(content); err != nil {
		return dto.MessageResponse{}, err
	}

	spanCtx, span := s.tracer.Start(ctx, "messaging.edit", trace.WithAttributes(attribute.Int64("messaging.message_id", int64(messageID))))
	defer span.End()

	now := s.clock.Now()
	updated, err := s.messages.UpdateContent(spanCtx, messageID, content, now)
	if err != nil {
		span.RecordError(err)
		return dto.MessageResponse{}, err
	}

	s.publisher.Publish(spanCtx, dto.NewConversationEvent(dto.EventMessageEdited, message.ConversationID, actorID,
		dto.MessageEditedPayload{ID: updated.ID, Content: updated.Content, EditedAt: now}, now))
	s.requestPreviews(updated)
	return dto.NewMessageResponse(updated), nil
}

func (s *messagingService) DeleteMessage(ctx context.Context, actorID string, messageID uint) (dto.MessageResponse, error) {
	message, err := s.loadForMutation(ctx, actorID, messageID, policy.ActionDelete)
	if err != nil {
		return dto.MessageResponse{}, err
	}

	spanCtx, span := s.tracer.Start(ctx, "messaging.delete", trace.WithAttributes(attribute.Int64("messaging.message_id", int64(messageID))))
	defer span.End()

	now := s.clock.Now()
	deleted, err := s.messages.SoftDelete(spanCtx, messageID, now)
	if err != nil {
		span.RecordError(err)
		return dto.MessageResponse{}, err
	}

	s.publisher.Publish(spanCtx, dto.NewConversationEvent(dto.EventMessageDeleted, message.ConversationID, actorID,
		dto.MessageDeletedPayload{ID: deleted.ID}, now))
	return dto.NewMessageResponse(deleted), nil
}

func (s *messagingService) ForwardMessage(ctx context.Context, actorID string, messageID uint, payload dto.ForwardMessageRequest) (dto.MessageResponse, error) {
	if err := validateStruct(s.validator, payload); err != nil {
		return dto.MessageResponse{}, err
	}

	source, err := s.loadForMutation(ctx, actorID, messageID, policy.ActionForward)
	if err != nil {
		return dto.MessageResponse{}, err
	}
	if _, err := requireMember(ctx, s.conversations, payload.TargetConversationID, actorID); err != nil {
		return dto.MessageResponse{}, err
	}

	now := s.clock.Now()
	sourceSender := source.SenderID
	sourceID := source.ID
	forwarded := models.Message{
		ConversationID:         payload.TargetConversationID,
		SenderID:               actorID,
		Kind:                   models.MessageText,
		Content:                source.Content,
		ForwardedFromMessageID: &sourceID,
		ForwardedFromUserID:    &sourceSender,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	for _, attachment := range source.Attachments {
		forwarded.Attachments = append(forwarded.Attachments, models.MessageAttachment{
			FileName:    attachment.FileName,
			ContentType: attachment.ContentType,
			SizeBytes:   attachment.SizeBytes,
			URL:         attachment.URL,
			CreatedAt:   now,
		})
	}

	return s.persist(ctx, &forwarded, "forward", func(ctx context.Context) error {
		return s.messages.Create(ctx, &forwarded)
	})
}

func (s *messagingService) ListMessages(ctx context.Context, actorID string, query dto.MessageHistoryQuery) ([]dto.MessageResponse, error) {
	if err := validateStruct(s.validator, query); err != nil {
		return nil, err
	}
	if _, err := requireMember(ctx, s.conversations, query.ConversationID, actorID); err != nil {
		return nil, err
	}
	messages, err := s.messages.ListByConversation(ctx, query.ConversationID, query.Before, query.Limit)
	if err != nil {
		return nil, err
	}
	return dto.NewMessageResponseSlice(messages), nil
}

func (s *messagingService) MarkRead(ctx context.Context, actorID string, conversationID uint) error {
	if _, err := requireMember(ctx, s.conversations, conversationID, actorID); err != nil {
		return err
	}
	return s.conversations.MarkRead(ctx, conversationID, actorID, s.clock.Now())
}

// loadForMutation resolves the message, checks membership and applies the authorizer rules.
func (s *messagingService) loadForMutation(ctx context.Context, actorID string, messageID uint, action policy.Action) (models.Message, error) {
	message, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		return models.Message{}, err
	}
	if _, err := requireMember(ctx, s.conversations, message.ConversationID, actorID); err != nil {
		if errors.Is(err, apperror.ErrConversationNotFound) {
			return models.Message{}, apperror.ErrMessageNotFound
		}
		return models.Message{}, err
	}
	if err := s.authorizer.CanModify(message, actorID, action, s.clock.Now()); err != nil {
		return models.Message{}, err
	}
	return message, nil
}
