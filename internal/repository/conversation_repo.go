package repository

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-messenger/internal/apperror"
	"github.com/noah-isme/gema-messenger/internal/models"
)

// ConversationView is a conversation as seen by one member.
type ConversationView struct {
	Conversation models.Conversation
	Membership   models.ConversationMember
	LastMessage  *models.Message
	UnreadCount  int64
}

// LastActivityAt is the latest message time, falling back to creation time.
func (v ConversationView) LastActivityAt() time.Time {
	if v.Conversation.LastMessageAt != nil {
		return *v.Conversation.LastMessageAt
	}
	return v.Conversation.CreatedAt
}

// ConversationRepository persists conversations and their memberships.
type ConversationRepository interface {
	GetOrCreateDirect(ctx context.Context, a, b string, now time.Time) (models.Conversation, bool, error)
	CreateGroup(ctx context.Context, conversation *models.Conversation) error
	EnsureGeneral(ctx context.Context, displayName string, now time.Time) (models.Conversation, error)
	FindByID(ctx context.Context, id uint) (models.Conversation, error)
	FindWithMembers(ctx context.Context, id uint) (models.Conversation, error)
	GetMember(ctx context.Context, conversationID uint, userID string) (models.ConversationMember, error)
	IsMember(ctx context.Context, conversationID uint, userID string) (bool, error)
	ListMembers(ctx context.Context, conversationID uint) ([]models.ConversationMember, error)
	AddMember(ctx context.Context, member *models.ConversationMember) (bool, error)
	RemoveMember(ctx context.Context, conversationID uint, userID string) (bool, error)
	ListForUser(ctx context.Context, userID string, includeArchived bool) ([]ConversationView, error)
	MarkRead(ctx context.Context, conversationID uint, userID string, at time.Time) error
}

type conversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository constructs a conversation repository backed by GORM.
func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

// DirectKey orders the pair so (a,b) and (b,a) resolve to the same conversation.
// The first id is length-prefixed so ids containing the separator cannot collide.
func DirectKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return strconv.Itoa(len(a)) + ":" + a + ":" + b
}

func (r *conversationRepository) GetOrCreateDirect(ctx context.Context, a, b string, now time.Time) (models.Conversation, bool, error) {
	key := DirectKey(a, b)
	created := false

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		conversation := models.Conversation{
			Kind:      models.ConversationDirect,
			DirectKey: &key,
			CreatedBy: a,
			CreatedAt: now,
			UpdatedAt: now,
		}
		inserted, err := insertIdempotent(tx, &conversation)
		if err != nil {
			return err
		}
		if !inserted {
			return nil
		}
		created = true

		members := []models.ConversationMember{
			{ConversationID: conversation.ID, UserID: a, Role: models.RoleMember, CreatedAt: now, UpdatedAt: now},
		}
		if b != a {
			members = append(members, models.ConversationMember{ConversationID: conversation.ID, UserID: b, Role: models.RoleMember, CreatedAt: now, UpdatedAt: now})
		}
		return tx.Create(&members).Error
	})
	if err != nil {
		return models.Conversation{}, false, err
	}

	var conversation models.Conversation
	if err := r.db.WithContext(ctx).Preload("Members").Where("direct_key = ?", key).First(&conversation).Error; err != nil {
		return models.Conversation{}, false, err
	}
	return conversation, created, nil
}

func (r *conversationRepository) CreateGroup(ctx context.Context, conversation *models.Conversation) error {
	return r.db.WithContext(ctx).Create(conversation).Error
}

func (r *conversationRepository) EnsureGeneral(ctx context.Context, displayName string, now time.Time) (models.Conversation, error) {
	key := models.GeneralKey
	candidate := models.Conversation{
		Kind:        models.ConversationGroup,
		DisplayName: displayName,
		IsGeneral:   true,
		GeneralKey:  &key,
		CreatedBy:   "system",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := insertIdempotent(r.db.WithContext(ctx), &candidate); err != nil {
		return models.Conversation{}, err
	}

	var conversation models.Conversation
	if err := r.db.WithContext(ctx).Where("general_key = ?", key).First(&conversation).Error; err != nil {
		return models.Conversation{}, err
	}
	return conversation, nil
}

func (r *conversationRepository) FindByID(ctx context.Context, id uint) (models.Conversation, error) {
	var conversation models.Conversation
	if err := r.db.WithContext(ctx).First(&conversation, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Conversation{}, apperror.ErrConversationNotFound
		}
		return models.Conversation{}, err
	}
	return conversation, nil
}

func (r *conversationRepository) FindWithMembers(ctx context.Context, id uint) (models.Conversation, error) {
	var conversation models.Conversation
	err := r.db.WithContext(ctx).
		Preload("Members", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		First(&conversation, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Conversation{}, apperror.ErrConversationNotFound
		}
		return models.Conversation{}, err
	}
	return conversation, nil
}

func (r *conversationRepository) GetMember(ctx context.Context, conversationID uint, userID string) (models.ConversationMember, error) {
	var member models.ConversationMember
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		First(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.ConversationMember{}, apperror.ErrNotMember
		}
		return models.ConversationMember{}, err
	}
	return member, nil
}

func (r *conversationRepository) IsMember(ctx context.Context, conversationID uint, userID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ConversationMember{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Count(&count).Error
	return count > 0, err
}

func (r *conversationRepository) ListMembers(ctx context.Context, conversationID uint) ([]models.ConversationMember, error) {
	var members []models.ConversationMember
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC, id ASC").
		Find(&members).Error
	return members, err
}

func (r *conversationRepository) AddMember(ctx context.Context, member *models.ConversationMember) (bool, error) {
	return insertIdempotent(r.db.WithContext(ctx), member)
}

func (r *conversationRepository) RemoveMember(ctx context.Context, conversationID uint, userID string) (bool, error) {
	return deleteIdempotent(r.db.WithContext(ctx), &models.ConversationMember{}, map[string]interface{}{
		"conversation_id": conversationID,
		"user_id":         userID,
	})
}

type unreadRow struct {
	ConversationID uint
	Unread         int64
}

// ListForUser returns every conversation the user belongs to with its last
// message and unread count. Pinned conversations come first, newest pin
// first; the rest are ordered by last activity.
func (r *conversationRepository) ListForUser(ctx context.Context, userID string, includeArchived bool) ([]ConversationView, error) {
	db := r.db.WithContext(ctx)

	memberQuery := db.Where("user_id = ?", userID)
	if !includeArchived {
		memberQuery = memberQuery.Where("archived_at IS NULL")
	}
	var memberships []models.ConversationMember
	if err := memberQuery.Find(&memberships).Error; err != nil {
		return nil, err
	}
	if len(memberships) == 0 {
		return []ConversationView{}, nil
	}

	ids := make([]uint, 0, len(memberships))
	for _, membership := range memberships {
		ids = append(ids, membership.ConversationID)
	}

	var conversations []models.Conversation
	if err := db.Preload("Members").Where("id IN ?", ids).Find(&conversations).Error; err != nil {
		return nil, err
	}
	byID := make(map[uint]models.Conversation, len(conversations))
	for _, conversation := range conversations {
		byID[conversation.ID] = conversation
	}

	latest, err := r.latestMessages(db, ids)
	if err != nil {
		return nil, err
	}

	var unread []unreadRow
	err = db.Table("messages AS m").
		Select("m.conversation_id AS conversation_id, COUNT(m.id) AS unread").
		Joins("JOIN conversation_members cm ON cm.conversation_id = m.conversation_id AND cm.user_id = ?", userID).
		Where("m.conversation_id IN ?", ids).
		Where("m.sender_id <> ?", userID).
		Where("m.deleted_at IS NULL").
		Where("(cm.last_read_at IS NULL OR m.created_at > cm.last_read_at)").
		Group("m.conversation_id").
		Scan(&unread).Error
	if err != nil {
		return nil, err
	}
	unreadByID := make(map[uint]int64, len(unread))
	for _, row := range unread {
		unreadByID[row.ConversationID] = row.Unread
	}

	views := make([]ConversationView, 0, len(memberships))
	for _, membership := range memberships {
		conversation, ok := byID[membership.ConversationID]
		if !ok {
			continue
		}
		view := ConversationView{
			Conversation: conversation,
			Membership:   membership,
			UnreadCount:  unreadByID[conversation.ID],
		}
		if message, ok := latest[conversation.ID]; ok {
			msg := message
			view.LastMessage = &msg
		}
		views = append(views, view)
	}

	sort.SliceStable(views, func(i, j int) bool {
		pi, pj := views[i].Membership.PinnedAt, views[j].Membership.PinnedAt
		switch {
		case pi != nil && pj == nil:
			return true
		case pi == nil && pj != nil:
			return false
		case pi != nil && pj != nil && !pi.Equal(*pj):
			return pi.After(*pj)
		}
		ai, aj := views[i].LastActivityAt(), views[j].LastActivityAt()
		if !ai.Equal(aj) {
			return ai.After(aj)
		}
		return views[i].Conversation.ID > views[j].Conversation.ID
	})

	return views, nil
}

func (r *conversationRepository) latestMessages(db *gorm.DB, conversationIDs []uint) (map[uint]models.Message, error) {
	latestIDs := db.Model(&models.Message{}).
		Select("MAX(id)").
		Where("conversation_id IN ?", conversationIDs).
		Group("conversation_id")

	var messages []models.Message
	if err := db.Preload("Attachments").Where("id IN (?)", latestIDs).Find(&messages).Error; err != nil {
		return nil, err
	}

	result := make(map[uint]models.Message, len(messages))
	for _, message := range messages {
		result[message.ConversationID] = message
	}
	return result, nil
}

// MarkRead moves the read marker forward; an older timestamp never rewinds it.
func (r *conversationRepository) MarkRead(ctx context.Context, conversationID uint, userID string, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&models.ConversationMember{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Where("(last_read_at IS NULL OR last_read_at < ?)", at).
		Update("last_read_at", at)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}
	if ok, err := r.IsMember(ctx, conversationID, userID); err != nil {
		return err
	} else if !ok {
		return apperror.ErrNotMember
	}
	return nil
}
