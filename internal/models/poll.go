package models

import "time"

// Poll is attached to a poll message inside a conversation.
type Poll struct {
	ID             uint         `gorm:"primaryKey" json:"id"`
	ConversationID uint         `gorm:"not null;index" json:"conversation_id"`
	MessageID      uint         `gorm:"not null;uniqueIndex" json:"message_id"`
	CreatorID      string       `gorm:"size:64;not null" json:"creator_id"`
	Question       string       `gorm:"size:500;not null" json:"question"`
	AllowMultiple  bool         `gorm:"not null;default:false" json:"allow_multiple"`
	Anonymous      bool         `gorm:"not null;default:false" json:"anonymous"`
	ClosedAt       *time.Time   `json:"closed_at,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
	Options        []PollOption `gorm:"foreignKey:PollID" json:"options,omitempty"`
	Votes          []PollVote   `gorm:"foreignKey:PollID" json:"-"`
}

// IsClosed reports whether the poll still accepts votes.
func (p Poll) IsClosed() bool {
	return p.ClosedAt != nil
}

// PollOption is a single answer choice.
type PollOption struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	PollID   uint   `gorm:"not null;index" json:"poll_id"`
	Text     string `gorm:"size:200;not null" json:"text"`
	Position int    `gorm:"not null" json:"position"`
}

// PollVote records one user choosing one option.
type PollVote struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PollID    uint      `gorm:"not null;uniqueIndex:idx_poll_vote_unique" json:"poll_id"`
	UserID    string    `gorm:"size:64;not null;uniqueIndex:idx_poll_vote_unique;index" json:"user_id"`
	OptionID  uint      `gorm:"not null;uniqueIndex:idx_poll_vote_unique" json:"option_id"`
	CreatedAt time.Time `json:"created_at"`
}
