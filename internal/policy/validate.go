package policy

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/noah-isme/gema-messenger/internal/apperror"
	"github.com/noah-isme/gema-messenger/internal/models"
)

const (
	MaxContentLength   = 5000
	MinPollOptions     = 2
	MaxPollOptions     = 10
	MaxPollOptionText  = 200
	MaxPollQuestion    = 500
	MaxGroupNameLength = 100
)

// AllowedEmoji is the fixed reaction set.
var AllowedEmoji = []string{"👍", "❤️", "😂", "😮", "😢", "🙏", "🎉", "🔥"}

var allowedEmojiSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(AllowedEmoji))
	for _, emoji := range AllowedEmoji {
		set[emoji] = struct{}{}
	}
	return set
}()

// ValidateContent checks already-sanitized message text against the length bounds.
func ValidateContent(content string) error {
	length := utf8.RuneCountInString(content)
	if length == 0 {
		return apperror.Validation("content must not be blank")
	}
	if length > MaxContentLength {
		return apperror.Validationf("content must be at most %d characters", MaxContentLength)
	}
	return nil
}

// ValidateEmoji rejects reactions outside the fixed set.
func ValidateEmoji(emoji string) error {
	if _, ok := allowedEmojiSet[emoji]; !ok {
		return apperror.Validationf("emoji %q is not supported", emoji)
	}
	return nil
}

// MessageDraft is the input for a new message after sanitization.
type MessageDraft struct {
	ConversationID uint
	SenderID       string
	Content        string
	ReplyToID      *uint
	Attachments    []models.MessageAttachment
}

// NewMessage validates a draft and returns the entity to persist. Content may
// be empty only when the message carries attachments.
func NewMessage(draft MessageDraft, now time.Time) (models.Message, error) {
	if draft.ConversationID == 0 {
		return models.Message{}, apperror.Validation("conversation id is required")
	}
	if strings.TrimSpace(draft.SenderID) == "" {
		return models.Message{}, apperror.Validation("sender id is required")
	}
	if draft.Content != "" || len(draft.Attachments) == 0 {
		if err := ValidateContent(draft.Content); err != nil {
			return models.Message{}, err
		}
	}

	return models.Message{
		ConversationID: draft.ConversationID,
		SenderID:       draft.SenderID,
		Kind:           models.MessageText,
		Content:        draft.Content,
		ReplyToID:      draft.ReplyToID,
		CreatedAt:      now,
		UpdatedAt:      now,
		Attachments:    draft.Attachments,
	}, nil
}

// PollDraft is the input for a new poll.
type PollDraft struct {
	ConversationID uint
	CreatorID      string
	Question       string
	Options        []string
	AllowMultiple  bool
	Anonymous      bool
}

// NewPoll validates a poll draft. Options are trimmed; blanks and duplicates are rejected.
func NewPoll(draft PollDraft, now time.Time) (models.Poll, error) {
	question := strings.TrimSpace(draft.Question)
	if question == "" {
		return models.Poll{}, apperror.Validation("poll question must not be blank")
	}
	if utf8.RuneCountInString(question) > MaxPollQuestion {
		return models.Poll{}, apperror.Validationf("poll question must be at most %d characters", MaxPollQuestion)
	}
	if len(draft.Options) < MinPollOptions || len(draft.Options) > MaxPollOptions {
		return models.Poll{}, apperror.Validationf("poll must have between %d and %d options", MinPollOptions, MaxPollOptions)
	}

	seen := make(map[string]struct{}, len(draft.Options))
	options := make([]models.PollOption, 0, len(draft.Options))
	for i, raw := range draft.Options {
		text := strings.TrimSpace(raw)
		if text == "" {
			return models.Poll{}, apperror.Validation("poll options must not be blank")
		}
		if utf8.RuneCountInString(text) > MaxPollOptionText {
			return models.Poll{}, apperror.Validationf("poll options must be at most %d characters", MaxPollOptionText)
		}
		key := strings.ToLower(text)
		if _, dup := seen[key]; dup {
			return models.Poll{}, apperror.Validationf("duplicate poll option %q", text)
		}
		seen[key] = struct{}{}
		options = append(options, models.PollOption{Text: text, Position: i})
	}

	return models.Poll{
		ConversationID: draft.ConversationID,
		CreatorID:      draft.CreatorID,
		Question:       question,
		AllowMultiple:  draft.AllowMultiple,
		Anonymous:      draft.Anonymous,
		CreatedAt:      now,
		UpdatedAt:      now,
		Options:        options,
	}, nil
}

// NewScheduledMessage validates a scheduled draft; scheduledFor must be strictly after now.
func NewScheduledMessage(conversationID uint, senderID, content string, scheduledFor, now time.Time) (models.ScheduledMessage, error) {
	if err := ValidateContent(content); err != nil {
		return models.ScheduledMessage{}, err
	}
	if !scheduledFor.After(now) {
		return models.ScheduledMessage{}, apperror.Validation("scheduled time must be in the future")
	}
	return models.ScheduledMessage{
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		ScheduledFor:   scheduledFor.UTC(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// ValidateGroupName checks a group display name.
func ValidateGroupName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", apperror.Validation("group name must not be blank")
	}
	if utf8.RuneCountInString(trimmed) > MaxGroupNameLength {
		return "", apperror.Validationf("group name must be at most %d characters", MaxGroupNameLength)
	}
	return trimmed, nil
}
