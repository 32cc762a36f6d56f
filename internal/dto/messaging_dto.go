package dto

import (
	"encoding/json"
	"time"

	"github.com/noah-isme/gema-messenger/internal/models"
	"github.com/noah-isme/gema-messenger/internal/sanitize"
)

// CreateDirectRequest opens (or reuses) a direct conversation with another user.
type CreateDirectRequest struct {
	UserID string `json:"user_id" validate:"required,max=64"`
}

// CreateGroupRequest creates a group conversation.
type CreateGroupRequest struct {
	Name      string   `json:"name" validate:"required,max=100"`
	MemberIDs []string `json:"member_ids" validate:"max=256,dive,required,max=64"`
}

// AddMemberRequest adds a user to a group.
type AddMemberRequest struct {
	UserID string `json:"user_id" validate:"required,max=64"`
}

// ConversationListQuery filters the caller's conversation list.
type ConversationListQuery struct {
	IncludeArchived bool `query:"include_archived"`
}

// SendMessageRequest carries raw client text; it is sanitized before validation.
type SendMessageRequest struct {
	Content     string                     `json:"content" validate:"max=20000"`
	ReplyToID   *uint                      `json:"reply_to_id"`
	Attachments []sanitize.AttachmentInput `json:"attachments" validate:"max=10,dive"`
}

// EditMessageRequest replaces the content of an owned message.
type EditMessageRequest struct {
	Content string `json:"content" validate:"required,max=20000"`
}

// ForwardMessageRequest copies a message into another conversation.
type ForwardMessageRequest struct {
	TargetConversationID uint `json:"target_conversation_id" validate:"required"`
}

// ReactionRequest toggles an emoji on a message.
type ReactionRequest struct {
	Emoji string `json:"emoji" validate:"required,max=32"`
}

// MessageHistoryQuery pages backwards through a conversation. Before is a
// message id cursor; zero starts from the newest message.
type MessageHistoryQuery struct {
	ConversationID uint `validate:"required"`
	Before         uint `query:"before"`
	Limit          int  `query:"limit" validate:"omitempty,min=1,max=100"`
}

// ToggleResponse reports what a toggle actually changed.
type ToggleResponse struct {
	Added   bool `json:"added"`
	Removed bool `json:"removed"`
}

// MemberResponse describes a conversation member.
type MemberResponse struct {
	ConversationID uint      `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	Role           string    `json:"role"`
	JoinedAt       time.Time `json:"joined_at"`
}

// NewMemberResponse converts a membership row into a DTO.
func NewMemberResponse(member models.ConversationMember) MemberResponse {
	return MemberResponse{
		ConversationID: member.ConversationID,
		UserID:         member.UserID,
		Role:           string(member.Role),
		JoinedAt:       member.CreatedAt,
	}
}

// AttachmentResponse describes a stored attachment.
type AttachmentResponse struct {
	ID          uint   `json:"id"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
	URL         string `json:"url,omitempty"`
}

// MessageResponse is the serialized representation of a message.
type MessageResponse struct {
	ID                     uint                 `json:"id"`
	ConversationID         uint                 `json:"conversation_id"`
	SenderID               string               `json:"sender_id"`
	Kind                   string               `json:"kind"`
	Content                string               `json:"content"`
	ReplyToID              *uint                `json:"reply_to_id,omitempty"`
	ForwardedFromMessageID *uint                `json:"forwarded_from_message_id,omitempty"`
	ForwardedFromUserID    *string              `json:"forwarded_from_user_id,omitempty"`
	Deleted                bool                 `json:"deleted"`
	EditedAt               *time.Time           `json:"edited_at,omitempty"`
	DeletedAt              *time.Time           `json:"deleted_at,omitempty"`
	CreatedAt              time.Time            `json:"created_at"`
	Attachments            []AttachmentResponse `json:"attachments,omitempty"`
	LinkPreviews           []LinkPreview        `json:"link_previews,omitempty"`
}

// NewMessageResponse converts a message model into a DTO.
func NewMessageResponse(message models.Message) MessageResponse {
	response := MessageResponse{
		ID:                     message.ID,
		ConversationID:         message.ConversationID,
		SenderID:               message.SenderID,
		Kind:                   string(message.Kind),
		Content:                message.Content,
		ReplyToID:              message.ReplyToID,
		ForwardedFromMessageID: message.ForwardedFromMessageID,
		ForwardedFromUserID:    message.ForwardedFromUserID,
		Deleted:                message.IsDeleted(),
		EditedAt:               message.EditedAt,
		DeletedAt:              message.DeletedAt,
		CreatedAt:              message.CreatedAt,
	}
	if len(message.Attachments) > 0 && !message.IsDeleted() {
		response.Attachments = make([]AttachmentResponse, 0, len(message.Attachments))
		for _, attachment := range message.Attachments {
			response.Attachments = append(response.Attachments, AttachmentResponse{
				ID:          attachment.ID,
				FileName:    attachment.FileName,
				ContentType: attachment.ContentType,
				SizeBytes:   attachment.SizeBytes,
				URL:         attachment.URL,
			})
		}
	}
	if len(message.LinkPreviews) > 0 && !message.IsDeleted() {
		var previews []LinkPreview
		if err := json.Unmarshal(message.LinkPreviews, &previews); err == nil {
			response.LinkPreviews = previews
		}
	}
	return response
}

// NewMessageResponseSlice converts a slice of messages into DTOs.
func NewMessageResponseSlice(messages []models.Message) []MessageResponse {
	out := make([]MessageResponse, 0, len(messages))
	for _, message := range messages {
		out = append(out, NewMessageResponse(message))
	}
	return out
}

// ConversationSummary is one row of a user's conversation list.
type ConversationSummary struct {
	ID             uint             `json:"id"`
	Kind           string           `json:"kind"`
	DisplayName    string           `json:"display_name,omitempty"`
	IsGeneral      bool             `json:"is_general"`
	MemberIDs      []string         `json:"member_ids,omitempty"`
	LastMessage    *MessageResponse `json:"last_message,omitempty"`
	UnreadCount    int64            `json:"unread_count"`
	LastActivityAt time.Time        `json:"last_activity_at"`
	PinnedAt       *time.Time       `json:"pinned_at,omitempty"`
	ArchivedAt     *time.Time       `json:"archived_at,omitempty"`
	MutedAt        *time.Time       `json:"muted_at,omitempty"`
}

// ConversationResponse describes a conversation and its members.
type ConversationResponse struct {
	ID          uint             `json:"id"`
	Kind        string           `json:"kind"`
	DisplayName string           `json:"display_name,omitempty"`
	IsGeneral   bool             `json:"is_general"`
	CreatedAt   time.Time        `json:"created_at"`
	Members     []MemberResponse `json:"members,omitempty"`
}

// NewConversationResponse converts a conversation model into a DTO.
func NewConversationResponse(conversation models.Conversation) ConversationResponse {
	response := ConversationResponse{
		ID:          conversation.ID,
		Kind:        string(conversation.Kind),
		DisplayName: conversation.DisplayName,
		IsGeneral:   conversation.IsGeneral,
		CreatedAt:   conversation.CreatedAt,
	}
	for _, member := range conversation.Members {
		response.Members = append(response.Members, NewMemberResponse(member))
	}
	return response
}

// PinnedMessageResponse describes a pin with its message.
type PinnedMessageResponse struct {
	ID             uint             `json:"id"`
	MessageID      uint             `json:"message_id"`
	ConversationID uint             `json:"conversation_id"`
	PinnedBy       string           `json:"pinned_by"`
	PinnedAt       time.Time        `json:"pinned_at"`
	Message        *MessageResponse `json:"message,omitempty"`
}

// NewPinnedMessageResponse converts a pin into a DTO.
func NewPinnedMessageResponse(pin models.PinnedMessage) PinnedMessageResponse {
	response := PinnedMessageResponse{
		ID:             pin.ID,
		MessageID:      pin.MessageID,
		ConversationID: pin.ConversationID,
		PinnedBy:       pin.PinnedBy,
		PinnedAt:       pin.CreatedAt,
	}
	if pin.Message != nil {
		message := NewMessageResponse(*pin.Message)
		response.Message = &message
	}
	return response
}

// StarredMessageResponse describes a personal bookmark.
type StarredMessageResponse struct {
	MessageID uint             `json:"message_id"`
	StarredAt time.Time        `json:"starred_at"`
	Message   *MessageResponse `json:"message,omitempty"`
}

// NewStarredMessageResponse converts a star into a DTO.
func NewStarredMessageResponse(star models.StarredMessage) StarredMessageResponse {
	response := StarredMessageResponse{MessageID: star.MessageID, StarredAt: star.CreatedAt}
	if star.Message != nil {
		message := NewMessageResponse(*star.Message)
		response.Message = &message
	}
	return response
}

// ScheduleMessageRequest queues content for later delivery.
type ScheduleMessageRequest struct {
	ConversationID uint      `json:"conversation_id" validate:"required"`
	Content        string    `json:"content" validate:"required,max=20000"`
	ScheduledFor   time.Time `json:"scheduled_for" validate:"required"`
}

// ScheduledMessageResponse describes a scheduled message.
type ScheduledMessageResponse struct {
	ID             uint       `json:"id"`
	ConversationID uint       `json:"conversation_id"`
	Content        string     `json:"content"`
	ScheduledFor   time.Time  `json:"scheduled_for"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
	CancelledAt    *time.Time `json:"cancelled_at,omitempty"`
	MessageID      *uint      `json:"message_id,omitempty"`
	Status         string     `json:"status"`
}

// NewScheduledMessageResponse converts a scheduled message into a DTO.
func NewScheduledMessageResponse(item models.ScheduledMessage) ScheduledMessageResponse {
	status := "pending"
	switch {
	case item.SentAt != nil:
		status = "sent"
	case item.CancelledAt != nil:
		status = "cancelled"
	}
	return ScheduledMessageResponse{
		ID:             item.ID,
		ConversationID: item.ConversationID,
		Content:        item.Content,
		ScheduledFor:   item.ScheduledFor,
		SentAt:         item.SentAt,
		CancelledAt:    item.CancelledAt,
		MessageID:      item.MessageID,
		Status:         status,
	}
}

// NewScheduledMessageResponseSlice converts scheduled messages into DTOs.
func NewScheduledMessageResponseSlice(items []models.ScheduledMessage) []ScheduledMessageResponse {
	out := make([]ScheduledMessageResponse, 0, len(items))
	for _, item := range items {
		out = append(out, NewScheduledMessageResponse(item))
	}
	return out
}
