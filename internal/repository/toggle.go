package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-messenger/internal/apperror"
	"github.com/noah-isme/gema-messenger/internal/models"
)

// DefaultPinLimit caps simultaneous pins in one conversation.
const DefaultPinLimit = 5

// ToggleKind names an idempotent association.
type ToggleKind string

const (
	ToggleReaction        ToggleKind = "reaction"
	ToggleVote            ToggleKind = "vote"
	TogglePin             ToggleKind = "pin"
	ToggleStar            ToggleKind = "star"
	ToggleMute            ToggleKind = "mute"
	ToggleArchive         ToggleKind = "archive"
	ToggleConversationPin ToggleKind = "conversation_pin"
)

// ToggleKey carries every column needed to express the unique constraint of a kind.
type ToggleKey struct {
	ConversationID uint
	MessageID      uint
	PollID         uint
	OptionID       uint
	Emoji          string
}

// Outcome reports what a toggle changed. Exactly one field is true on success.
type Outcome struct {
	Added   bool
	Removed bool
}

// ToggleEngine adds or removes an association without checking for it first.
// A delete that affects no rows falls through to an insert; an insert that
// hits the unique constraint is reported as added because the association now
// exists. Concurrent double toggles therefore never surface as errors.
type ToggleEngine interface {
	Toggle(ctx context.Context, kind ToggleKind, key ToggleKey, actorID string) (Outcome, error)
}

type toggleEngine struct {
	db       *gorm.DB
	pinLimit int
	now      func() time.Time
}

// NewToggleEngine constructs the engine. now stamps inserted rows and flags.
func NewToggleEngine(db *gorm.DB, pinLimit int, now func() time.Time) ToggleEngine {
	if pinLimit <= 0 {
		pinLimit = DefaultPinLimit
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &toggleEngine{db: db, pinLimit: pinLimit, now: now}
}

func (e *toggleEngine) Toggle(ctx context.Context, kind ToggleKind, key ToggleKey, actorID string) (Outcome, error) {
	switch kind {
	case ToggleReaction:
		return e.toggleReaction(ctx, key, actorID)
	case ToggleStar:
		return e.toggleStar(ctx, key, actorID)
	case ToggleVote:
		return e.toggleVote(ctx, key, actorID)
	case TogglePin:
		return e.togglePin(ctx, key, actorID)
	case ToggleMute:
		return e.toggleMemberFlag(ctx, key, actorID, "muted_at")
	case ToggleArchive:
		return e.toggleMemberFlag(ctx, key, actorID, "archived_at")
	case ToggleConversationPin:
		return e.toggleMemberFlag(ctx, key, actorID, "pinned_at")
	default:
		return Outcome{}, fmt.Errorf("unknown toggle kind %q", kind)
	}
}

func (e *toggleEngine) toggleReaction(ctx context.Context, key ToggleKey, actorID string) (Outcome, error) {
	row := &models.Reaction{MessageID: key.MessageID, UserID: actorID, Emoji: key.Emoji, CreatedAt: e.now()}
	where := map[string]interface{}{"message_id": key.MessageID, "user_id": actorID, "emoji": key.Emoji}
	return toggleRow(e.db.WithContext(ctx), row, where)
}

func (e *toggleEngine) toggleStar(ctx context.Context, key ToggleKey, actorID string) (Outcome, error) {
	row := &models.StarredMessage{MessageID: key.MessageID, UserID: actorID, CreatedAt: e.now()}
	where := map[string]interface{}{"message_id": key.MessageID, "user_id": actorID}
	return toggleRow(e.db.WithContext(ctx), row, where)
}

// toggleVote clears the actor's other votes first when the poll is single choice.
// The poll row stays locked until commit so concurrent votes by one user serialize.
func (e *toggleEngine) toggleVote(ctx context.Context, key ToggleKey, actorID string) (Outcome, error) {
	var outcome Outcome
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var poll models.Poll
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&poll, key.PollID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperror.ErrPollNotFound
			}
			return err
		}
		if poll.IsClosed() {
			return apperror.ErrPollClosed
		}

		var optionCount int64
		if err := tx.Model(&models.PollOption{}).Where("id = ? AND poll_id = ?", key.OptionID, poll.ID).Count(&optionCount).Error; err != nil {
			return err
		}
		if optionCount == 0 {
			return apperror.Validation("option does not belong to this poll")
		}

		where := map[string]interface{}{"poll_id": poll.ID, "user_id": actorID, "option_id": key.OptionID}
		removed, err := deleteIdempotent(tx, &models.PollVote{}, where)
		if err != nil {
			return err
		}
		if removed {
			outcome = Outcome{Removed: true}
			return nil
		}

		if !poll.AllowMultiple {
			if err := tx.Where("poll_id = ? AND user_id = ? AND option_id <> ?", poll.ID, actorID, key.OptionID).
				Delete(&models.PollVote{}).Error; err != nil {
				return err
			}
		}

		vote := &models.PollVote{PollID: poll.ID, UserID: actorID, OptionID: key.OptionID, CreatedAt: e.now()}
		if _, err := insertIdempotent(tx, vote); err != nil {
			return err
		}
		outcome = Outcome{Added: true}
		return nil
	})
	return outcome, err
}

// togglePin unpins when a pin exists, otherwise pins subject to the deleted
// check and the per-conversation cap.
func (e *toggleEngine) togglePin(ctx context.Context, key ToggleKey, actorID string) (Outcome, error) {
	var outcome Outcome
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var message models.Message
		if err := tx.First(&message, key.MessageID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperror.ErrMessageNotFound
			}
			return err
		}
		// Pins in one conversation are counted under the conversation row lock.
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").First(&models.Conversation{}, message.ConversationID).Error; err != nil {
			return err
		}

		removed, err := deleteIdempotent(tx, &models.PinnedMessage{}, map[string]interface{}{"message_id": key.MessageID})
		if err != nil {
			return err
		}
		if removed {
			outcome = Outcome{Removed: true}
			return nil
		}
		if message.IsDeleted() {
			return apperror.ErrAlreadyDeleted
		}

		var active int64
		if err := tx.Model(&models.PinnedMessage{}).Where("conversation_id = ?", message.ConversationID).Count(&active).Error; err != nil {
			return err
		}
		if active >= int64(e.pinLimit) {
			return apperror.ErrPinLimitReached
		}

		pin := &models.PinnedMessage{
			MessageID:      message.ID,
			ConversationID: message.ConversationID,
			PinnedBy:       actorID,
			CreatedAt:      e.now(),
		}
		if _, err := insertIdempotent(tx, pin); err != nil {
			return err
		}
		outcome = Outcome{Added: true}
		return nil
	})
	return outcome, err
}

// toggleMemberFlag flips a nullable timestamp on the actor's membership row.
func (e *toggleEngine) toggleMemberFlag(ctx context.Context, key ToggleKey, actorID, column string) (Outcome, error) {
	db := e.db.WithContext(ctx)
	scope := func() *gorm.DB {
		return db.Model(&models.ConversationMember{}).
			Where("conversation_id = ? AND user_id = ?", key.ConversationID, actorID)
	}

	cleared := scope().Where(column+" IS NOT NULL").Update(column, gorm.Expr("NULL"))
	if cleared.Error != nil {
		return Outcome{}, cleared.Error
	}
	if cleared.RowsAffected > 0 {
		return Outcome{Removed: true}, nil
	}

	set := scope().Where(column+" IS NULL").Update(column, e.now())
	if set.Error != nil {
		return Outcome{}, set.Error
	}
	if set.RowsAffected > 0 {
		return Outcome{Added: true}, nil
	}

	var count int64
	if err := scope().Count(&count).Error; err != nil {
		return Outcome{}, err
	}
	if count == 0 {
		return Outcome{}, apperror.ErrNotMember
	}
	// a concurrent toggle set the flag between the two updates
	return Outcome{Added: true}, nil
}

func toggleRow(tx *gorm.DB, row interface{}, where map[string]interface{}) (Outcome, error) {
	removed, err := deleteIdempotent(tx, row, where)
	if err != nil {
		return Outcome{}, err
	}
	if removed {
		return Outcome{Removed: true}, nil
	}
	if _, err := insertIdempotent(tx, row); err != nil {
		return Outcome{}, err
	}
	return Outcome{Added: true}, nil
}

// insertIdempotent inserts row, treating a unique conflict as already present.
func insertIdempotent(tx *gorm.DB, row interface{}) (bool, error) {
	result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(row)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// deleteIdempotent deletes rows matching where, treating zero affected rows as already absent.
func deleteIdempotent(tx *gorm.DB, model interface{}, where map[string]interface{}) (bool, error) {
	result := tx.Where(where).Delete(model)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
