package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-messenger/internal/apperror"
	"github.com/noah-isme/gema-messenger/internal/models"
)

// DueCursor marks the last row returned by ListDue. The zero value starts
// from the oldest due row.
type DueCursor struct {
	ScheduledFor time.Time
	ID           uint
}

// Next returns the cursor positioned after row.
func (DueCursor) Next(row models.ScheduledMessage) DueCursor {
	return DueCursor{ScheduledFor: row.ScheduledFor, ID: row.ID}
}

// ScheduledMessageRepository persists messages waiting for their send time.
type ScheduledMessageRepository interface {
	Create(ctx context.Context, scheduled *models.ScheduledMessage) error
	FindByID(ctx context.Context, id uint) (models.ScheduledMessage, error)
	ListBySender(ctx context.Context, senderID string, pendingOnly bool) ([]models.ScheduledMessage, error)
	ListDue(ctx context.Context, now time.Time, after DueCursor, limit int) ([]models.ScheduledMessage, error)
	RecordFailure(ctx context.Context, id uint, reason string) error
	Cancel(ctx context.Context, id uint, at time.Time) (models.ScheduledMessage, error)
}

type scheduledMessageRepository struct {
	db *gorm.DB
}

// NewScheduledMessageRepository constructs a scheduled message repository backed by GORM.
func NewScheduledMessageRepository(db *gorm.DB) ScheduledMessageRepository {
	return &scheduledMessageRepository{db: db}
}

func (r *scheduledMessageRepository) Create(ctx context.Context, scheduled *models.ScheduledMessage) error {
	return r.db.WithContext(ctx).Create(scheduled).Error
}

func (r *scheduledMessageRepository) FindByID(ctx context.Context, id uint) (models.ScheduledMessage, error) {
	var scheduled models.ScheduledMessage
	if err := r.db.WithContext(ctx).First(&scheduled, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.ScheduledMessage{}, apperror.ErrScheduledNotFound
		}
		return models.ScheduledMessage{}, err
	}
	return scheduled, nil
}

func (r *scheduledMessageRepository) ListBySender(ctx context.Context, senderID string, pendingOnly bool) ([]models.ScheduledMessage, error) {
	query := r.db.WithContext(ctx).Where("sender_id = ?", senderID)
	if pendingOnly {
		query = query.Where("sent_at IS NULL AND cancelled_at IS NULL")
	}

	var rows []models.ScheduledMessage
	err := query.Order("scheduled_for ASC, id ASC").Find(&rows).Error
	return rows, err
}

// ListDue returns pending rows whose send time has passed, oldest first,
// starting strictly after the cursor.
func (r *scheduledMessageRepository) ListDue(ctx context.Context, now time.Time, after DueCursor, limit int) ([]models.ScheduledMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	query := r.db.WithContext(ctx).
		Where("sent_at IS NULL AND cancelled_at IS NULL AND scheduled_for <= ?", now)
	if after.ID != 0 {
		query = query.Where("scheduled_for > ? OR (scheduled_for = ? AND id > ?)", after.ScheduledFor, after.ScheduledFor, after.ID)
	}

	var rows []models.ScheduledMessage
	err := query.
		Order("scheduled_for ASC, id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *scheduledMessageRepository) RecordFailure(ctx context.Context, id uint, reason string) error {
	return r.db.WithContext(ctx).Model(&models.ScheduledMessage{}).
		Where("id = ? AND sent_at IS NULL AND cancelled_at IS NULL", id).
		Updates(map[string]interface{}{"attempts": gorm.Expr("attempts + 1"), "last_error": reason}).Error
}

func (r *scheduledMessageRepository) Cancel(ctx context.Context, id uint, at time.Time) (models.ScheduledMessage, error) {
	db := r.db.WithContext(ctx)
	result := db.Model(&models.ScheduledMessage{}).
		Where("id = ? AND sent_at IS NULL AND cancelled_at IS NULL", id).
		Updates(map[string]interface{}{"cancelled_at": at, "updated_at": at})
	if result.Error != nil {
		return models.ScheduledMessage{}, result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := r.FindByID(ctx, id); err != nil {
			return models.ScheduledMessage{}, err
		}
		return models.ScheduledMessage{}, apperror.ErrScheduledTerminal
	}
	return r.FindByID(ctx, id)
}
