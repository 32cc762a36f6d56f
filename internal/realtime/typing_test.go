package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-messenger/internal/clock"
	"github.com/noah-isme/gema-messenger/internal/dto"
)

func setupTyping(t *testing.T) (*TypingCoordinator, *clock.FakeClock, chan dto.Event) {
	t.Helper()
	fake := clock.Fake(time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC))
	bus := NewBus(testLogger())
	events := make(chan dto.Event, 16)
	bus.Subscribe(dto.ConversationTopic(1), events)
	return NewTypingCoordinator(bus, fake, DefaultTypingTTL), fake, events
}

func TestTypingExpiresExactlyOnce(t *testing.T) {
	ctx := context.Background()
	typing, fake, events := setupTyping(t)

	typing.StartTyping(ctx, 1, "bob", "Bob")
	started := receiveEvent(t, events)
	require.Equal(t, dto.EventUserTyping, started.Type)
	require.Equal(t, []string{"bob"}, typing.Typing(1))

	fake.Advance(2 * time.Second)
	typing.StartTyping(ctx, 1, "bob", "Bob")
	requireNoEvent(t, events)

	fake.Advance(2 * time.Second)
	requireNoEvent(t, events)

	fake.Advance(time.Second)
	stopped := receiveEvent(t, events)
	require.Equal(t, dto.EventUserStoppedTyping, stopped.Type)
	require.Equal(t, "bob", stopped.ActorID)

	fake.Advance(10 * time.Second)
	requireNoEvent(t, events)
	require.Empty(t, typing.Typing(1))
}

func TestStopTypingAlwaysPublishes(t *testing.T) {
	ctx := context.Background()
	typing, fake, events := setupTyping(t)

	typing.StartTyping(ctx, 1, "bob", "Bob")
	receiveEvent(t, events)

	typing.StopTyping(ctx, 1, "bob")
	require.Equal(t, dto.EventUserStoppedTyping, receiveEvent(t, events).Type)

	fake.Advance(5 * time.Second)
	requireNoEvent(t, events)

	typing.StopTyping(ctx, 1, "carol")
	require.Equal(t, dto.EventUserStoppedTyping, receiveEvent(t, events).Type)
}

func TestStopAllClearsEveryConversation(t *testing.T) {
	ctx := context.Background()
	typing, fake, events := setupTyping(t)

	typing.StartTyping(ctx, 1, "bob", "Bob")
	typing.StartTyping(ctx, 2, "bob", "Bob")
	receiveEvent(t, events)

	typing.StopAll(ctx, "bob")
	require.Equal(t, dto.EventUserStoppedTyping, receiveEvent(t, events).Type)
	require.Empty(t, typing.Typing(2))

	fake.Advance(5 * time.Second)
	requireNoEvent(t, events)
}

func TestClearOnlyPublishesWhenTyping(t *testing.T) {
	ctx := context.Background()
	typing, _, events := setupTyping(t)

	require.False(t, typing.Clear(ctx, 1, "bob"))
	requireNoEvent(t, events)

	typing.StartTyping(ctx, 1, "bob", "Bob")
	receiveEvent(t, events)
	require.True(t, typing.Clear(ctx, 1, "bob"))
	require.Equal(t, dto.EventUserStoppedTyping, receiveEvent(t, events).Type)
}
