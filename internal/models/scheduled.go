package models

import "time"

// ScheduledMessage is content waiting to be materialized as a Message.
// It is terminal once SentAt or CancelledAt is set.
type ScheduledMessage struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	ConversationID uint       `gorm:"not null;index" json:"conversation_id"`
	SenderID       string     `gorm:"size:64;not null;index" json:"sender_id"`
	Content        string     `gorm:"type:text;not null" json:"content"`
	ScheduledFor   time.Time  `gorm:"not null;index" json:"scheduled_for"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
	CancelledAt    *time.Time `json:"cancelled_at,omitempty"`
	MessageID      *uint      `json:"message_id,omitempty"`
	Attempts       int        `gorm:"not null;default:0" json:"attempts"`
	LastError      string     `gorm:"type:text" json:"last_error,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// IsTerminal reports whether the row will never be dispatched again.
func (s ScheduledMessage) IsTerminal() bool {
	return s.SentAt != nil || s.CancelledAt != nil
}

// AllModels lists every entity managed by the messaging store, in migration order.
func AllModels() []interface{} {
	return []interface{}{
		&Conversation{},
		&ConversationMember{},
		&Message{},
		&MessageAttachment{},
		&Reaction{},
		&PinnedMessage{},
		&StarredMessage{},
		&Poll{},
		&PollOption{},
		&PollVote{},
		&ScheduledMessage{},
	}
}
