package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-messenger/internal/models"
)

// InteractionRepository reads reactions, pins and stars. Writes go through the ToggleEngine.
type InteractionRepository interface {
	ReactionsByEmoji(ctx context.Context, messageID uint) (map[string][]string, error)
	ListPinned(ctx context.Context, conversationID uint) ([]models.PinnedMessage, error)
	FindPin(ctx context.Context, messageID uint) (*models.PinnedMessage, error)
	DeletePin(ctx context.Context, messageID uint) (bool, error)
	ListStarred(ctx context.Context, userID string) ([]models.StarredMessage, error)
}

type interactionRepository struct {
	db *gorm.DB
}

// NewInteractionRepository constructs an interaction repository backed by GORM.
func NewInteractionRepository(db *gorm.DB) InteractionRepository {
	return &interactionRepository{db: db}
}

// ReactionsByEmoji groups reacting user ids by emoji in reaction order.
func (r *interactionRepository) ReactionsByEmoji(ctx context.Context, messageID uint) (map[string][]string, error) {
	var reactions []models.Reaction
	if err := r.db.WithContext(ctx).Where("message_id = ?", messageID).Order("id ASC").Find(&reactions).Error; err != nil {
		return nil, err
	}

	grouped := make(map[string][]string)
	for _, reaction := range reactions {
		grouped[reaction.Emoji] = append(grouped[reaction.Emoji], reaction.UserID)
	}
	return grouped, nil
}

// ListPinned returns the conversation's pins, most recent first.
func (r *interactionRepository) ListPinned(ctx context.Context, conversationID uint) ([]models.PinnedMessage, error) {
	var pins []models.PinnedMessage
	err := r.db.WithContext(ctx).
		Preload("Message").
		Preload("Message.Attachments").
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC, id DESC").
		Find(&pins).Error
	return pins, err
}

// FindPin returns nil when the message is not pinned.
func (r *interactionRepository) FindPin(ctx context.Context, messageID uint) (*models.PinnedMessage, error) {
	var pin models.PinnedMessage
	if err := r.db.WithContext(ctx).Where("message_id = ?", messageID).First(&pin).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &pin, nil
}

// DeletePin removes the pin if present and reports whether one existed.
func (r *interactionRepository) DeletePin(ctx context.Context, messageID uint) (bool, error) {
	return deleteIdempotent(r.db.WithContext(ctx), &models.PinnedMessage{}, map[string]interface{}{"message_id": messageID})
}

// ListStarred returns the user's bookmarks, most recent first.
func (r *interactionRepository) ListStarred(ctx context.Context, userID string) ([]models.StarredMessage, error) {
	var stars []models.StarredMessage
	err := r.db.WithContext(ctx).
		Preload("Message").
		Preload("Message.Attachments").
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&stars).Error
	return stars, err
}
