package models

import (
	"time"

	"gorm.io/datatypes"
)

// MessageKind classifies how a message body should be rendered.
type MessageKind string

const (
	MessageText MessageKind = "text"
	MessagePoll MessageKind = "poll"
)

// Message is a single entry in a conversation. Deletion is soft: the row stays
// so replies, forwards and pins keep resolving, but the content is cleared.
type Message struct {
	ID                     uint                `gorm:"primaryKey" json:"id"`
	ConversationID         uint                `gorm:"not null;index:idx_messages_conversation_created,priority:1" json:"conversation_id"`
	SenderID               string              `gorm:"size:64;not null;index" json:"sender_id"`
	Kind                   MessageKind         `gorm:"size:16;not null;default:text" json:"kind"`
	Content                string              `gorm:"type:text" json:"content"`
	ReplyToID              *uint               `gorm:"index" json:"reply_to_id,omitempty"`
	ForwardedFromMessageID *uint               `json:"forwarded_from_message_id,omitempty"`
	ForwardedFromUserID    *string             `gorm:"size:64" json:"forwarded_from_user_id,omitempty"`
	EditedAt               *time.Time          `json:"edited_at,omitempty"`
	DeletedAt              *time.Time          `json:"deleted_at,omitempty"`
	LinkPreviews           datatypes.JSON      `json:"link_previews,omitempty"`
	CreatedAt              time.Time           `gorm:"index:idx_messages_conversation_created,priority:2" json:"created_at"`
	UpdatedAt              time.Time           `json:"updated_at"`
	Attachments            []MessageAttachment `gorm:"foreignKey:MessageID" json:"attachments,omitempty"`
}

// IsDeleted reports whether the message has been soft deleted.
func (m Message) IsDeleted() bool {
	return m.DeletedAt != nil
}

// MessageAttachment describes a file already stored by the attachment collaborator.
type MessageAttachment struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	MessageID   uint      `gorm:"not null;index" json:"message_id"`
	FileName    string    `gorm:"size:255;not null" json:"file_name"`
	ContentType string    `gorm:"size:128;not null" json:"content_type"`
	SizeBytes   int64     `gorm:"not null" json:"size_bytes"`
	URL         string    `gorm:"type:text" json:"url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
