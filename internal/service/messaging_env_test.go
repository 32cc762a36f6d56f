package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-messenger/internal/clock"
	"github.com/noah-isme/gema-messenger/internal/dto"
	"github.com/noah-isme/gema-messenger/internal/models"
	"github.com/noah-isme/gema-messenger/internal/policy"
	"github.com/noah-isme/gema-messenger/internal/realtime"
	"github.com/noah-isme/gema-messenger/internal/repository"
	"github.com/noah-isme/gema-messenger/internal/sanitize"
)

var envStart = time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

type messagingEnv struct {
	db            *gorm.DB
	clock         *clock.FakeClock
	bus           *realtime.Bus
	conversations repository.ConversationRepository
	messagesRepo  repository.MessageRepository
	scheduledRepo repository.ScheduledMessageRepository
	messaging     MessagingService
	interactions  InteractionService
	polls         PollService
	scheduled     ScheduledService
	presence      *realtime.PresenceTracker
	typing        *realtime.TypingCoordinator
	validate      *validator.Validate
}

func setupMessagingEnv(t *testing.T, opts ...MessagingOption) *messagingEnv {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.AllModels()...))

	logger := zerolog.Nop()
	validate := validator.New(validator.WithRequiredStructEnabled())
	fake := clock.Fake(envStart)
	bus := realtime.NewBus(logger)

	conversations := repository.NewConversationRepository(db)
	messages := repository.NewMessageRepository(db)
	interactions := repository.NewInteractionRepository(db)
	polls := repository.NewPollRepository(db)
	scheduled := repository.NewScheduledMessageRepository(db)
	engine := repository.NewToggleEngine(db, repository.DefaultPinLimit, fake.Now)
	authorizer := policy.NewAuthorizer(policy.DefaultEditWindow)

	return &messagingEnv{
		db:            db,
		clock:         fake,
		bus:           bus,
		conversations: conversations,
		messagesRepo:  messages,
		scheduledRepo: scheduled,
		messaging:     NewMessagingService(conversations, messages, bus, authorizer, sanitize.NewAttachmentValidator(sanitize.DefaultMaxAttachmentMB), validate, fake, logger, opts...),
		interactions:  NewInteractionService(conversations, messages, interactions, engine, bus, authorizer, fake, logger),
		polls:         NewPollService(conversations, polls, engine, bus, validate, fake, logger),
		scheduled:     NewScheduledService(conversations, scheduled, validate, fake, logger),
		presence:      realtime.NewPresenceTracker(bus, fake, nil, logger),
		typing:        realtime.NewTypingCoordinator(bus, fake, realtime.DefaultTypingTTL),
		validate:      validate,
	}
}

func (e *messagingEnv) listen(t *testing.T, conversationID uint) chan dto.Event {
	t.Helper()
	ch := make(chan dto.Event, 32)
	topic := dto.ConversationTopic(conversationID)
	e.bus.Subscribe(topic, ch)
	t.Cleanup(func() { e.bus.Unsubscribe(topic, ch) })
	return ch
}

func (e *messagingEnv) group(t *testing.T, owner string, members ...string) dto.ConversationResponse {
	t.Helper()
	conversation, err := e.messaging.CreateGroup(context.Background(), owner, dto.CreateGroupRequest{Name: "team", MemberIDs: members})
	require.NoError(t, err)
	return conversation
}

func (e *messagingEnv) send(t *testing.T, sender string, conversationID uint, content string) dto.MessageResponse {
	t.Helper()
	message, err := e.messaging.SendMessage(context.Background(), sender, conversationID, dto.SendMessageRequest{Content: content})
	require.NoError(t, err)
	return message
}

func nextEvent(t *testing.T, ch <-chan dto.Event) dto.Event {
	t.Helper()
	select {
	case event := <-ch:
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return dto.Event{}
	}
}

func assertNoEvent(t *testing.T, ch <-chan dto.Event) {
	t.Helper()
	select {
	case event := <-ch:
		t.Fatalf("unexpected event %s", event.Type)
	case <-time.After(50 * time.Millisecond):
	}
}
