package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-messenger/internal/apperror"
	"github.com/noah-isme/gema-messenger/internal/models"
)

func TestListByConversationPagesChronologically(t *testing.T) {
	db := setupMessagingTestDB(t)
	repo := NewMessageRepository(db)
	ctx := context.Background()
	group := createTestGroup(t, db, "team", "alice")

	var ids []uint
	for i := 0; i < 5; i++ {
		ids = append(ids, createTestMessage(t, db, group.ID, "alice", "m", baseTime.Add(time.Duration(i)*time.Minute)).ID)
	}

	page, err := repo.ListByConversation(ctx, group.ID, 0, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, ids[3], page[0].ID)
	require.Equal(t, ids[4], page[1].ID)

	older, err := repo.ListByConversation(ctx, group.ID, page[0].ID, 10)
	require.NoError(t, err)
	require.Len(t, older, 3)
	require.Equal(t, ids[0], older[0].ID)

	conversation, err := NewConversationRepository(db).FindByID(ctx, group.ID)
	require.NoError(t, err)
	require.NotNil(t, conversation.LastMessageAt)
	require.True(t, conversation.LastMessageAt.Equal(baseTime.Add(4*time.Minute)))
}

func TestSoftDeleteCascadesPinsAndStars(t *testing.T) {
	db := setupMessagingTestDB(t)
	repo := NewMessageRepository(db)
	engine := newTestEngine(db)
	interactions := NewInteractionRepository(db)
	ctx := context.Background()

	group := createTestGroup(t, db, "team", "alice", "bob")
	message := createTestMessage(t, db, group.ID, "alice", "secret", baseTime)

	_, err := engine.Toggle(ctx, TogglePin, ToggleKey{MessageID: message.ID}, "alice")
	require.NoError(t, err)
	_, err = engine.Toggle(ctx, ToggleStar, ToggleKey{MessageID: message.ID}, "bob")
	require.NoError(t, err)

	deleted, err := repo.SoftDelete(ctx, message.ID, baseTime.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, deleted.IsDeleted())
	require.Empty(t, deleted.Content)

	pins, err := interactions.ListPinned(ctx, group.ID)
	require.NoError(t, err)
	require.Empty(t, pins)

	stars, err := interactions.ListStarred(ctx, "bob")
	require.NoError(t, err)
	require.Empty(t, stars)

	_, err = repo.SoftDelete(ctx, message.ID, baseTime.Add(2*time.Minute))
	require.ErrorIs(t, err, apperror.ErrAlreadyDeleted)

	_, err = repo.UpdateContent(ctx, message.ID, "again", baseTime.Add(2*time.Minute))
	require.ErrorIs(t, err, apperror.ErrAlreadyDeleted)

	_, err = engine.Toggle(ctx, TogglePin, ToggleKey{MessageID: message.ID}, "alice")
	require.ErrorIs(t, err, apperror.ErrAlreadyDeleted)
}

func TestUpdateContentStampsEditTime(t *testing.T) {
	db := setupMessagingTestDB(t)
	repo := NewMessageRepository(db)
	ctx := context.Background()
	group := createTestGroup(t, db, "team", "alice")
	message := createTestMessage(t, db, group.ID, "alice", "draft", baseTime)

	edited, err := repo.UpdateContent(ctx, message.ID, "final", baseTime.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, "final", edited.Content)
	require.NotNil(t, edited.EditedAt)

	_, err = repo.UpdateContent(ctx, 9999, "x", baseTime)
	require.ErrorIs(t, err, apperror.ErrMessageNotFound)
}

func TestScheduledMessageLifecycle(t *testing.T) {
	db := setupMessagingTestDB(t)
	repo := NewScheduledMessageRepository(db)
	ctx := context.Background()
	group := createTestGroup(t, db, "team", "alice")

	due := models.ScheduledMessage{ConversationID: group.ID, SenderID: "alice", Content: "due", ScheduledFor: baseTime}
	later := models.ScheduledMessage{ConversationID: group.ID, SenderID: "alice", Content: "later", ScheduledFor: baseTime.Add(time.Hour)}
	require.NoError(t, repo.Create(ctx, &due))
	require.NoError(t, repo.Create(ctx, &later))

	rows, err := repo.ListDue(ctx, baseTime.Add(time.Minute), DueCursor{}, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, due.ID, rows[0].ID)

	rows, err = repo.ListDue(ctx, baseTime.Add(time.Minute), DueCursor{}.Next(due), 10)
	require.NoError(t, err)
	require.Empty(t, rows)

	require.NoError(t, repo.RecordFailure(ctx, due.ID, "boom"))
	failed, err := repo.FindByID(ctx, due.ID)
	require.NoError(t, err)
	require.Equal(t, 1, failed.Attempts)
	require.Equal(t, "boom", failed.LastError)

	messages := NewMessageRepository(db)
	first := models.Message{ConversationID: group.ID, SenderID: "alice", Kind: models.MessageText, Content: due.Content, CreatedAt: baseTime.Add(time.Minute)}
	require.NoError(t, messages.CreateFromScheduled(ctx, &first, due.ID))
	sent, err := repo.FindByID(ctx, due.ID)
	require.NoError(t, err)
	require.NotNil(t, sent.SentAt)
	require.Equal(t, first.ID, *sent.MessageID)
	require.Empty(t, sent.LastError)

	duplicate := models.Message{ConversationID: group.ID, SenderID: "alice", Kind: models.MessageText, Content: due.Content, CreatedAt: baseTime.Add(2 * time.Minute)}
	require.ErrorIs(t, messages.CreateFromScheduled(ctx, &duplicate, due.ID), apperror.ErrScheduledTerminal)
	history, err := messages.ListByConversation(ctx, group.ID, 0, 10)
	require.NoError(t, err)
	require.Len(t, history, 1, "terminal row rolls the message back")

	cancelled, err := repo.Cancel(ctx, later.ID, baseTime)
	require.NoError(t, err)
	require.NotNil(t, cancelled.CancelledAt)
	_, err = repo.Cancel(ctx, later.ID, baseTime)
	require.ErrorIs(t, err, apperror.ErrScheduledTerminal)

	pending, err := repo.ListBySender(ctx, "alice", true)
	require.NoError(t, err)
	require.Empty(t, pending)

	all, err := repo.ListBySender(ctx, "alice", false)
	require.NoError(t, err)
	require.Len(t, all, 2)
}
