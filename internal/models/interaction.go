package models

import "time"

// Reaction is one user's emoji on a message.
type Reaction struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	MessageID uint      `gorm:"not null;uniqueIndex:idx_reaction_unique" json:"message_id"`
	UserID    string    `gorm:"size:64;not null;uniqueIndex:idx_reaction_unique" json:"user_id"`
	Emoji     string    `gorm:"size:32;not null;uniqueIndex:idx_reaction_unique" json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}

// PinnedMessage marks a message as pinned in its conversation. A message can be pinned once.
type PinnedMessage struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	MessageID      uint      `gorm:"not null;uniqueIndex" json:"message_id"`
	ConversationID uint      `gorm:"not null;index" json:"conversation_id"`
	PinnedBy       string    `gorm:"size:64;not null" json:"pinned_by"`
	CreatedAt      time.Time `json:"pinned_at"`
	Message        *Message  `gorm:"foreignKey:MessageID" json:"message,omitempty"`
}

// StarredMessage is a personal bookmark, visible only to its owner.
type StarredMessage struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	MessageID uint      `gorm:"not null;uniqueIndex:idx_starred_unique" json:"message_id"`
	UserID    string    `gorm:"size:64;not null;uniqueIndex:idx_starred_unique;index" json:"user_id"`
	CreatedAt time.Time `json:"starred_at"`
	Message   *Message  `gorm:"foreignKey:MessageID" json:"message,omitempty"`
}
