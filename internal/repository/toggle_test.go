package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-messenger/internal/apperror"
	"github.com/noah-isme/gema-messenger/internal/models"
)

func newTestEngine(db *gorm.DB) ToggleEngine {
	return NewToggleEngine(db, DefaultPinLimit, func() time.Time { return baseTime })
}

func TestToggleReactionTwiceRestoresState(t *testing.T) {
	db := setupMessagingTestDB(t)
	engine := newTestEngine(db)
	interactions := NewInteractionRepository(db)
	ctx := context.Background()

	group := createTestGroup(t, db, "team", "alice", "bob")
	message := createTestMessage(t, db, group.ID, "alice", "ship it", baseTime)
	key := ToggleKey{MessageID: message.ID, Emoji: "👍"}

	outcome, err := engine.Toggle(ctx, ToggleReaction, key, "bob")
	require.NoError(t, err)
	require.Equal(t, Outcome{Added: true}, outcome)

	grouped, err := interactions.ReactionsByEmoji(ctx, message.ID)
	require.NoError(t, err)
	require.Equal(t, map[string][]string{"👍": {"bob"}}, grouped)

	outcome, err = engine.Toggle(ctx, ToggleReaction, key, "bob")
	require.NoError(t, err)
	require.Equal(t, Outcome{Removed: true}, outcome)

	grouped, err = interactions.ReactionsByEmoji(ctx, message.ID)
	require.NoError(t, err)
	require.Empty(t, grouped)
}

func TestInsertIdempotentReportsConflictAsExisting(t *testing.T) {
	db := setupMessagingTestDB(t)
	group := createTestGroup(t, db, "team", "alice")
	message := createTestMessage(t, db, group.ID, "alice", "hi", baseTime)

	inserted, err := insertIdempotent(db, &models.Reaction{MessageID: message.ID, UserID: "alice", Emoji: "🔥"})
	require.NoError(t, err)
	require.True(t, inserted)

	inserted, err = insertIdempotent(db, &models.Reaction{MessageID: message.ID, UserID: "alice", Emoji: "🔥"})
	require.NoError(t, err)
	require.False(t, inserted)

	var count int64
	require.NoError(t, db.Model(&models.Reaction{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestToggleStarIsPersonal(t *testing.T) {
	db := setupMessagingTestDB(t)
	engine := newTestEngine(db)
	interactions := NewInteractionRepository(db)
	ctx := context.Background()

	group := createTestGroup(t, db, "team", "alice", "bob")
	message := createTestMessage(t, db, group.ID, "alice", "remember this", baseTime)

	outcome, err := engine.Toggle(ctx, ToggleStar, ToggleKey{MessageID: message.ID}, "bob")
	require.NoError(t, err)
	require.True(t, outcome.Added)

	stars, err := interactions.ListStarred(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, stars, 1)
	require.Equal(t, "remember this", stars[0].Message.Content)

	stars, err = interactions.ListStarred(ctx, "alice")
	require.NoError(t, err)
	require.Empty(t, stars)
}

func createTestPoll(t *testing.T, db *gorm.DB, conversationID uint, allowMultiple bool) models.Poll {
	t.Helper()
	message := models.Message{ConversationID: conversationID, SenderID: "alice", Kind: models.MessagePoll, Content: "Lunch?", CreatedAt: baseTime, UpdatedAt: baseTime}
	poll := models.Poll{
		CreatorID:     "alice",
		Question:      "Lunch?",
		AllowMultiple: allowMultiple,
		Options:       []models.PollOption{{Text: "Pizza", Position: 0}, {Text: "Sushi", Position: 1}},
	}
	require.NoError(t, NewPollRepository(db).Create(context.Background(), &message, &poll))
	return poll
}

func TestToggleVoteSingleChoiceSwitchesOption(t *testing.T) {
	db := setupMessagingTestDB(t)
	engine := newTestEngine(db)
	polls := NewPollRepository(db)
	ctx := context.Background()

	group := createTestGroup(t, db, "team", "alice", "bob")
	poll := createTestPoll(t, db, group.ID, false)
	first, second := poll.Options[0].ID, poll.Options[1].ID

	outcome, err := engine.Toggle(ctx, ToggleVote, ToggleKey{PollID: poll.ID, OptionID: first}, "bob")
	require.NoError(t, err)
	require.True(t, outcome.Added)

	outcome, err = engine.Toggle(ctx, ToggleVote, ToggleKey{PollID: poll.ID, OptionID: second}, "bob")
	require.NoError(t, err)
	require.True(t, outcome.Added)

	votes, err := polls.Votes(ctx, poll.ID)
	require.NoError(t, err)
	require.Len(t, votes, 1)
	require.Equal(t, second, votes[0].OptionID)

	outcome, err = engine.Toggle(ctx, ToggleVote, ToggleKey{PollID: poll.ID, OptionID: second}, "bob")
	require.NoError(t, err)
	require.True(t, outcome.Removed)

	votes, err = polls.Votes(ctx, poll.ID)
	require.NoError(t, err)
	require.Empty(t, votes)
}

func TestToggleVoteMultipleChoiceKeepsBoth(t *testing.T) {
	db := setupMessagingTestDB(t)
	engine := newTestEngine(db)
	polls := NewPollRepository(db)
	ctx := context.Background()

	group := createTestGroup(t, db, "team", "alice", "bob")
	poll := createTestPoll(t, db, group.ID, true)

	for _, option := range poll.Options {
		_, err := engine.Toggle(ctx, ToggleVote, ToggleKey{PollID: poll.ID, OptionID: option.ID}, "bob")
		require.NoError(t, err)
	}

	votes, err := polls.Votes(ctx, poll.ID)
	require.NoError(t, err)
	require.Len(t, votes, 2)
}

func TestToggleVoteRejectsClosedPollAndForeignOption(t *testing.T) {
	db := setupMessagingTestDB(t)
	engine := newTestEngine(db)
	polls := NewPollRepository(db)
	ctx := context.Background()

	group := createTestGroup(t, db, "team", "alice", "bob")
	poll := createTestPoll(t, db, group.ID, false)
	other := createTestPoll(t, db, group.ID, false)

	_, err := engine.Toggle(ctx, ToggleVote, ToggleKey{PollID: poll.ID, OptionID: other.Options[0].ID}, "bob")
	require.Equal(t, apperror.CodeValidation, apperror.CodeOf(err))

	_, err = polls.Close(ctx, poll.ID, baseTime)
	require.NoError(t, err)
	_, err = polls.Close(ctx, poll.ID, baseTime)
	require.ErrorIs(t, err, apperror.ErrPollClosed)

	_, err = engine.Toggle(ctx, ToggleVote, ToggleKey{PollID: poll.ID, OptionID: poll.Options[0].ID}, "bob")
	require.ErrorIs(t, err, apperror.ErrPollClosed)
}

func TestTogglePinEnforcesLimit(t *testing.T) {
	db := setupMessagingTestDB(t)
	engine := newTestEngine(db)
	ctx := context.Background()

	group := createTestGroup(t, db, "team", "alice")
	var messages []models.Message
	for i := 0; i < DefaultPinLimit+1; i++ {
		messages = append(messages, createTestMessage(t, db, group.ID, "alice", "note", baseTime.Add(time.Duration(i)*time.Second)))
	}

	for i := 0; i < DefaultPinLimit; i++ {
		outcome, err := engine.Toggle(ctx, TogglePin, ToggleKey{MessageID: messages[i].ID}, "alice")
		require.NoError(t, err)
		require.True(t, outcome.Added)
	}

	_, err := engine.Toggle(ctx, TogglePin, ToggleKey{MessageID: messages[DefaultPinLimit].ID}, "alice")
	require.ErrorIs(t, err, apperror.ErrPinLimitReached)

	outcome, err := engine.Toggle(ctx, TogglePin, ToggleKey{MessageID: messages[0].ID}, "alice")
	require.NoError(t, err)
	require.True(t, outcome.Removed)

	outcome, err = engine.Toggle(ctx, TogglePin, ToggleKey{MessageID: messages[DefaultPinLimit].ID}, "alice")
	require.NoError(t, err)
	require.True(t, outcome.Added)
}

func TestToggleMemberFlagRequiresMembership(t *testing.T) {
	db := setupMessagingTestDB(t)
	engine := newTestEngine(db)
	ctx := context.Background()
	group := createTestGroup(t, db, "team", "alice")

	outcome, err := engine.Toggle(ctx, ToggleMute, ToggleKey{ConversationID: group.ID}, "alice")
	require.NoError(t, err)
	require.True(t, outcome.Added)

	member, err := NewConversationRepository(db).GetMember(ctx, group.ID, "alice")
	require.NoError(t, err)
	require.NotNil(t, member.MutedAt)

	outcome, err = engine.Toggle(ctx, ToggleMute, ToggleKey{ConversationID: group.ID}, "alice")
	require.NoError(t, err)
	require.True(t, outcome.Removed)

	_, err = engine.Toggle(ctx, ToggleMute, ToggleKey{ConversationID: group.ID}, "mallory")
	require.ErrorIs(t, err, apperror.ErrNotMember)
}

func TestToggleVoteSingleChoiceUnderConcurrency(t *testing.T) {
	db := setupMessagingTestDB(t)
	engine := newTestEngine(db)
	polls := NewPollRepository(db)
	ctx := context.Background()

	group := createTestGroup(t, db, "team", "alice", "bob")
	poll := createTestPoll(t, db, group.ID, false)

	var wg sync.WaitGroup
	for _, option := range poll.Options {
		wg.Add(1)
		go func(optionID uint) {
			defer wg.Done()
			_, err := engine.Toggle(ctx, ToggleVote, ToggleKey{PollID: poll.ID, OptionID: optionID}, "bob")
			assert.NoError(t, err)
		}(option.ID)
	}
	wg.Wait()

	votes, err := polls.Votes(ctx, poll.ID)
	require.NoError(t, err)
	require.Len(t, votes, 1)
}

func TestTogglePinLimitUnderConcurrency(t *testing.T) {
	db := setupMessagingTestDB(t)
	engine := newTestEngine(db)
	ctx := context.Background()

	group := createTestGroup(t, db, "team", "alice")
	var messages []models.Message
	for i := 0; i < DefaultPinLimit+3; i++ {
		messages = append(messages, createTestMessage(t, db, group.ID, "alice", "note", baseTime.Add(time.Duration(i)*time.Second)))
	}
	for i := 0; i < DefaultPinLimit-1; i++ {
		_, err := engine.Toggle(ctx, TogglePin, ToggleKey{MessageID: messages[i].ID}, "alice")
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	results := make(chan error, 4)
	for _, message := range messages[DefaultPinLimit-1:] {
		wg.Add(1)
		go func(messageID uint) {
			defer wg.Done()
			_, err := engine.Toggle(ctx, TogglePin, ToggleKey{MessageID: messageID}, "alice")
			results <- err
		}(message.ID)
	}
	wg.Wait()
	close(results)

	var pinned, refused int
	for err := range results {
		if err == nil {
			pinned++
			continue
		}
		require.ErrorIs(t, err, apperror.ErrPinLimitReached)
		refused++
	}
	require.Equal(t, 1, pinned)
	require.Equal(t, 3, refused)

	var active int64
	require.NoError(t, db.Model(&models.PinnedMessage{}).Where("conversation_id = ?", group.ID).Count(&active).Error)
	require.EqualValues(t, DefaultPinLimit, active)
}
