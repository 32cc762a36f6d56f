package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-messenger/internal/apperror"
	"github.com/noah-isme/gema-messenger/internal/models"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 100
)

// MessageRepository persists messages for history and compliance needs.
type MessageRepository interface {
	Create(ctx context.Context, message *models.Message) error
	CreateFromScheduled(ctx context.Context, message *models.Message, scheduledID uint) error
	FindByID(ctx context.Context, id uint) (models.Message, error)
	ListByConversation(ctx context.Context, conversationID uint, beforeID uint, limit int) ([]models.Message, error)
	UpdateContent(ctx context.Context, id uint, content string, editedAt time.Time) (models.Message, error)
	SoftDelete(ctx context.Context, id uint, deletedAt time.Time) (models.Message, error)
	SetLinkPreviews(ctx context.Context, id uint, previews datatypes.JSON) error
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository constructs a message repository backed by GORM.
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

// Create stores the message with its attachments and bumps the conversation's activity time.
func (r *messageRepository) Create(ctx context.Context, message *models.Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return createMessage(tx, message)
	})
}

// CreateFromScheduled stores the message and marks the scheduled row sent in
// one transaction. A row cancelled or sent meanwhile rolls the message back
// with ErrScheduledTerminal.
func (r *messageRepository) CreateFromScheduled(ctx context.Context, message *models.Message, scheduledID uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := createMessage(tx, message); err != nil {
			return err
		}
		result := tx.Model(&models.ScheduledMessage{}).
			Where("id = ? AND sent_at IS NULL AND cancelled_at IS NULL", scheduledID).
			Updates(map[string]interface{}{
				"sent_at":    message.CreatedAt,
				"message_id": message.ID,
				"last_error": "",
				"updated_at": message.CreatedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return apperror.ErrScheduledTerminal
		}
		return nil
	})
}

func createMessage(tx *gorm.DB, message *models.Message) error {
	if err := tx.Create(message).Error; err != nil {
		return err
	}
	return tx.Model(&models.Conversation{}).
		Where("id = ?", message.ConversationID).
		Updates(map[string]interface{}{"last_message_at": message.CreatedAt, "updated_at": message.CreatedAt}).Error
}

func (r *messageRepository) FindByID(ctx context.Context, id uint) (models.Message, error) {
	return findMessage(r.db.WithContext(ctx), id)
}

func findMessage(db *gorm.DB, id uint) (models.Message, error) {
	var message models.Message
	if err := db.Preload("Attachments").First(&message, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Message{}, apperror.ErrMessageNotFound
		}
		return models.Message{}, err
	}
	return message, nil
}

// ListByConversation returns up to limit messages older than beforeID in chronological order.
func (r *messageRepository) ListByConversation(ctx context.Context, conversationID uint, beforeID uint, limit int) ([]models.Message, error) {
	if limit <= 0 || limit > maxHistoryLimit {
		limit = defaultHistoryLimit
	}

	query := r.db.WithContext(ctx).Preload("Attachments").Where("conversation_id = ?", conversationID)
	if beforeID > 0 {
		query = query.Where("id < ?", beforeID)
	}

	var messages []models.Message
	if err := query.Order("id DESC").Limit(limit).Find(&messages).Error; err != nil {
		return nil, err
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

// UpdateContent rewrites a live message. A concurrent delete surfaces as ErrAlreadyDeleted.
func (r *messageRepository) UpdateContent(ctx context.Context, id uint, content string, editedAt time.Time) (models.Message, error) {
	db := r.db.WithContext(ctx)
	result := db.Model(&models.Message{}).
		Where("id = ? AND deleted_at IS NULL", id).
		Updates(map[string]interface{}{"content": content, "edited_at": editedAt, "updated_at": editedAt})
	if result.Error != nil {
		return models.Message{}, result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := findMessage(db, id); err != nil {
			return models.Message{}, err
		}
		return models.Message{}, apperror.ErrAlreadyDeleted
	}
	return findMessage(db, id)
}

// SoftDelete clears the content and removes the message's pins and stars in one transaction.
func (r *messageRepository) SoftDelete(ctx context.Context, id uint, deletedAt time.Time) (models.Message, error) {
	var message models.Message
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Message{}).
			Where("id = ? AND deleted_at IS NULL", id).
			Updates(map[string]interface{}{"content": "", "deleted_at": deletedAt, "updated_at": deletedAt})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			if _, err := findMessage(tx, id); err != nil {
				return err
			}
			return apperror.ErrAlreadyDeleted
		}
		if err := tx.Where("message_id = ?", id).Delete(&models.PinnedMessage{}).Error; err != nil {
			return err
		}
		if err := tx.Where("message_id = ?", id).Delete(&models.StarredMessage{}).Error; err != nil {
			return err
		}
		loaded, err := findMessage(tx, id)
		if err != nil {
			return err
		}
		message = loaded
		return nil
	})
	return message, err
}

func (r *messageRepository) SetLinkPreviews(ctx context.Context, id uint, previews datatypes.JSON) error {
	return r.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ? AND deleted_at IS NULL", id).
		Update("link_previews", previews).Error
}
