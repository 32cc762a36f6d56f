package dto

import (
	"fmt"
	"time"
)

// EventType names a state change delivered on the broadcast bus.
type EventType string

const (
	EventNewMessage          EventType = "newMessage"
	EventMessageEdited       EventType = "messageEdited"
	EventMessageDeleted      EventType = "messageDeleted"
	EventReactionUpdated     EventType = "reactionUpdated"
	EventPollCreated         EventType = "pollCreated"
	EventPollUpdated         EventType = "pollUpdated"
	EventMemberAdded         EventType = "memberAdded"
	EventMemberLeft          EventType = "memberLeft"
	EventUserTyping          EventType = "userTyping"
	EventUserStoppedTyping   EventType = "userStoppedTyping"
	EventMessagePinned       EventType = "messagePinned"
	EventMessageUnpinned     EventType = "messageUnpinned"
	EventLinkPreviewsFetched EventType = "linkPreviewsFetched"
	EventPresenceDiff        EventType = "presenceDiff"
)

// PresenceTopic is the shared topic carrying presence diffs.
const PresenceTopic = "presence:online"

// ConversationTopic returns the bus topic for a conversation.
func ConversationTopic(conversationID uint) string {
	return fmt.Sprintf("conversation:%d", conversationID)
}

// Event is the envelope delivered to every subscriber of a topic.
type Event struct {
	Type           EventType   `json:"type"`
	Topic          string      `json:"topic"`
	ConversationID uint        `json:"conversation_id,omitempty"`
	ActorID        string      `json:"actor_id,omitempty"`
	Payload        interface{} `json:"payload"`
	SentAt         time.Time   `json:"sent_at"`
}

// NewConversationEvent builds an event addressed to a conversation topic.
func NewConversationEvent(eventType EventType, conversationID uint, actorID string, payload interface{}, sentAt time.Time) Event {
	return Event{
		Type:           eventType,
		Topic:          ConversationTopic(conversationID),
		ConversationID: conversationID,
		ActorID:        actorID,
		Payload:        payload,
		SentAt:         sentAt,
	}
}

// NewMessagePayload carries a freshly committed message.
type NewMessagePayload struct {
	Message MessageResponse `json:"message"`
}

// MessageEditedPayload carries the new content of an edited message.
type MessageEditedPayload struct {
	ID       uint      `json:"id"`
	Content  string    `json:"content"`
	EditedAt time.Time `json:"edited_at"`
}

// MessageDeletedPayload identifies a soft deleted message.
type MessageDeletedPayload struct {
	ID uint `json:"id"`
}

// ReactionUpdatedPayload carries the full reaction state of a message.
type ReactionUpdatedPayload struct {
	MessageID        uint                `json:"message_id"`
	ReactionsByEmoji map[string][]string `json:"reactions_by_emoji"`
}

// PollPayload carries a poll with its tallies.
type PollPayload struct {
	Poll PollResponse `json:"poll"`
}

// UserTypingPayload announces a member started typing.
type UserTypingPayload struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// UserStoppedTypingPayload announces a member stopped typing.
type UserStoppedTypingPayload struct {
	UserID string `json:"user_id"`
}

// MemberAddedPayload carries a new membership.
type MemberAddedPayload struct {
	Member MemberResponse `json:"member"`
}

// MemberLeftPayload identifies a departed member.
type MemberLeftPayload struct {
	UserID string `json:"user_id"`
}

// MessagePinnedPayload carries a new pin.
type MessagePinnedPayload struct {
	PinnedMessage PinnedMessageResponse `json:"pinned_message"`
}

// MessageUnpinnedPayload identifies an unpinned message.
type MessageUnpinnedPayload struct {
	MessageID uint `json:"message_id"`
}

// LinkPreview is a resolved preview of a URL found in a message.
type LinkPreview struct {
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

// LinkPreviewsFetchedPayload carries previews resolved after a message committed.
type LinkPreviewsFetchedPayload struct {
	MessageID uint          `json:"message_id"`
	Previews  []LinkPreview `json:"previews"`
}

// PresenceMeta is the metadata tracked for an online user.
type PresenceMeta struct {
	Username string    `json:"username,omitempty"`
	JoinedAt time.Time `json:"joined_at"`
	Sessions int       `json:"sessions"`
}

// PresenceDiff reports users that came online or went offline.
type PresenceDiff struct {
	Joins  map[string]PresenceMeta `json:"joins"`
	Leaves map[string]PresenceMeta `json:"leaves"`
}
