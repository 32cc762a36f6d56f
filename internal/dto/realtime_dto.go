package dto

// Client actions accepted on the realtime websocket.
const (
	ActionJoin       = "join"
	ActionLeave      = "leave"
	ActionSend       = "send"
	ActionEdit       = "edit"
	ActionDelete     = "delete"
	ActionReact      = "react"
	ActionVote       = "vote"
	ActionPin        = "pin"
	ActionStar       = "star"
	ActionTyping     = "typing"
	ActionStopTyping = "stop_typing"
	ActionMarkRead   = "mark_read"
)

// ClientCommand is a frame sent by a connected client.
type ClientCommand struct {
	Action         string `json:"action" validate:"required,oneof=join leave send edit delete react vote pin star typing stop_typing mark_read"`
	RequestID      string `json:"request_id" validate:"max=64"`
	ConversationID uint   `json:"conversation_id"`
	MessageID      uint   `json:"message_id"`
	PollID         uint   `json:"poll_id"`
	OptionID       uint   `json:"option_id"`
	ReplyToID      *uint  `json:"reply_to_id"`
	Content        string `json:"content" validate:"max=20000"`
	Emoji          string `json:"emoji" validate:"max=32"`
}

// CommandResult acknowledges a ClientCommand.
type CommandResult struct {
	Type      string      `json:"type"`
	RequestID string      `json:"request_id,omitempty"`
	OK        bool        `json:"ok"`
	Code      string      `json:"code,omitempty"`
	Error     string      `json:"error,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// ResultFrameType tags command results so clients can tell them apart from events.
const ResultFrameType = "result"

// JoinResult is returned when a session subscribes to a conversation.
type JoinResult struct {
	ConversationID uint     `json:"conversation_id"`
	Typing         []string `json:"typing"`
}

// PresenceResponse lists online users.
type PresenceResponse struct {
	UserIDs []string                `json:"user_ids"`
	Users   map[string]PresenceMeta `json:"users"`
}
