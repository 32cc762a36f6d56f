package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-messenger/internal/apperror"
	"github.com/noah-isme/gema-messenger/internal/models"
)

// PollRepository persists polls alongside the message that carries them.
type PollRepository interface {
	Create(ctx context.Context, message *models.Message, poll *models.Poll) error
	FindByID(ctx context.Context, id uint) (models.Poll, error)
	Votes(ctx context.Context, pollID uint) ([]models.PollVote, error)
	Close(ctx context.Context, pollID uint, at time.Time) (models.Poll, error)
}

type pollRepository struct {
	db *gorm.DB
}

// NewPollRepository constructs a poll repository backed by GORM.
func NewPollRepository(db *gorm.DB) PollRepository {
	return &pollRepository{db: db}
}

// Create stores the poll message first so the poll can reference it.
func (r *pollRepository) Create(ctx context.Context, message *models.Message, poll *models.Poll) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := createMessage(tx, message); err != nil {
			return err
		}
		poll.MessageID = message.ID
		poll.ConversationID = message.ConversationID
		return tx.Create(poll).Error
	})
}

func (r *pollRepository) FindByID(ctx context.Context, id uint) (models.Poll, error) {
	return findPoll(r.db.WithContext(ctx), id)
}

func findPoll(db *gorm.DB, id uint) (models.Poll, error) {
	var poll models.Poll
	err := db.Preload("Options", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).First(&poll, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Poll{}, apperror.ErrPollNotFound
		}
		return models.Poll{}, err
	}
	return poll, nil
}

func (r *pollRepository) Votes(ctx context.Context, pollID uint) ([]models.PollVote, error) {
	var votes []models.PollVote
	err := r.db.WithContext(ctx).Where("poll_id = ?", pollID).Order("id ASC").Find(&votes).Error
	return votes, err
}

// Close stamps closed_at once; closing twice reports ErrPollClosed.
func (r *pollRepository) Close(ctx context.Context, pollID uint, at time.Time) (models.Poll, error) {
	db := r.db.WithContext(ctx)
	result := db.Model(&models.Poll{}).
		Where("id = ? AND closed_at IS NULL", pollID).
		Updates(map[string]interface{}{"closed_at": at, "updated_at": at})
	if result.Error != nil {
		return models.Poll{}, result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := findPoll(db, pollID); err != nil {
			return models.Poll{}, err
		}
		return models.Poll{}, apperror.ErrPollClosed
	}
	return findPoll(db, pollID)
}
