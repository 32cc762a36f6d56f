package models

import "time"

// ConversationKind distinguishes direct threads from group threads.
type ConversationKind string

const (
	ConversationDirect ConversationKind = "direct"
	ConversationGroup  ConversationKind = "group"
)

// MemberRole is the role a user holds inside a conversation.
type MemberRole string

const (
	RoleOwner  MemberRole = "owner"
	RoleAdmin  MemberRole = "admin"
	RoleMember MemberRole = "member"
)

// GeneralKey is the value stored in Conversation.GeneralKey for the system-wide default group.
const GeneralKey = "general"

// Conversation is a direct (two party) or group message thread.
type Conversation struct {
	ID          uint             `gorm:"primaryKey" json:"id"`
	Kind        ConversationKind `gorm:"size:16;not null;index" json:"kind"`
	DisplayName string           `gorm:"size:255" json:"display_name,omitempty"`
	IsGeneral   bool             `gorm:"not null;default:false" json:"is_general"`
	// GeneralKey is only set on the general group; the unique index keeps it singular.
	GeneralKey *string `gorm:"size:16;uniqueIndex" json:"-"`
	// DirectKey is the ordered user pair of a direct conversation.
	DirectKey     *string              `gorm:"size:160;uniqueIndex" json:"-"`
	CreatedBy     string               `gorm:"size:64" json:"created_by"`
	LastMessageAt *time.Time           `gorm:"index" json:"last_message_at,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
	Members       []ConversationMember `gorm:"foreignKey:ConversationID" json:"members,omitempty"`
}

// IsGroup reports whether membership of the conversation can change.
func (c Conversation) IsGroup() bool {
	return c.Kind == ConversationGroup
}

// ConversationMember is a user's per-conversation state.
type ConversationMember struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	ConversationID uint       `gorm:"not null;uniqueIndex:idx_conversation_member" json:"conversation_id"`
	UserID         string     `gorm:"size:64;not null;uniqueIndex:idx_conversation_member;index" json:"user_id"`
	Role           MemberRole `gorm:"size:16;not null;default:member" json:"role"`
	LastReadAt     *time.Time `json:"last_read_at,omitempty"`
	PinnedAt       *time.Time `json:"pinned_at,omitempty"`
	ArchivedAt     *time.Time `json:"archived_at,omitempty"`
	MutedAt        *time.Time `json:"muted_at,omitempty"`
	CreatedAt      time.Time  `json:"joined_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// CanManageMembers reports whether the member may remove other members.
func (m ConversationMember) CanManageMembers() bool {
	return m.Role == RoleOwner || m.Role == RoleAdmin
}
