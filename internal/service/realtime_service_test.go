package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-messenger/internal/dto"
)

type fakeConn struct {
	inbound  chan dto.ClientCommand
	outbound chan interface{}
	done     chan struct{}
	once     sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound:  make(chan dto.ClientCommand, 8),
		outbound: make(chan interface{}, 64),
		done:     make(chan struct{}),
	}
}

func (c *fakeConn) ReadJSON(v interface{}) error {
	select {
	case command := <-c.inbound:
		raw, err := json.Marshal(command)
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, v)
	case <-c.done:
		return errors.New("connection closed")
	}
}

func (c *fakeConn) WriteJSON(v interface{}) error {
	select {
	case <-c.done:
		return errors.New("connection closed")
	case c.outbound <- v:
		return nil
	}
}

func (c *fakeConn) WriteMessage(int, []byte) error { return nil }

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *fakeConn) frame(t *testing.T) interface{} {
	t.Helper()
	select {
	case frame := <-c.outbound:
		return frame
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

func (c *fakeConn) event(t *testing.T) dto.Event {
	t.Helper()
	event, ok := c.frame(t).(dto.Event)
	require.True(t, ok, "expected event frame")
	return event
}

func (c *fakeConn) result(t *testing.T) dto.CommandResult {
	t.Helper()
	result, ok := c.frame(t).(dto.CommandResult)
	require.True(t, ok, "expected result frame")
	return result
}

func (c *fakeConn) quiet(t *testing.T) {
	t.Helper()
	select {
	case frame := <-c.outbound:
		t.Fatalf("unexpected frame %#v", frame)
	case <-time.After(50 * time.Millisecond):
	}
}

func newRealtimeService(env *messagingEnv) RealtimeService {
	return NewRealtimeService(env.bus, env.presence, env.typing, env.conversations, env.messaging, env.interactions, env.polls, env.validate, zerolog.Nop())
}

func connect(t *testing.T, svc RealtimeService, userID string) *fakeConn {
	t.Helper()
	conn := newFakeConn()
	go svc.ServeConnection(conn, SessionOptions{UserID: userID, CorrelationID: "test-" + userID})
	t.Cleanup(func() { _ = conn.Close() })

	event := conn.event(t)
	require.Equal(t, dto.EventPresenceDiff, event.Type)
	return conn
}

func TestRealtimeSessionJoinSendAndTyping(t *testing.T) {
	env := setupMessagingEnv(t)
	svc := newRealtimeService(env)
	group := env.group(t, "alice", "bob")
	conn := connect(t, svc, "alice")

	conn.inbound <- dto.ClientCommand{Action: dto.ActionJoin, RequestID: "r1", ConversationID: group.ID}
	joined := conn.result(t)
	require.True(t, joined.OK)
	require.Equal(t, "r1", joined.RequestID)
	require.Equal(t, dto.JoinResult{ConversationID: group.ID, Typing: []string{}}, joined.Data)

	env.typing.StartTyping(context.Background(), group.ID, "bob", "Bob")
	typing := conn.event(t)
	require.Equal(t, dto.EventUserTyping, typing.Type)
	require.Equal(t, dto.UserTypingPayload{UserID: "bob", Username: "Bob"}, typing.Payload)

	conn.inbound <- dto.ClientCommand{Action: dto.ActionTyping, RequestID: "r2", ConversationID: group.ID}
	require.True(t, conn.result(t).OK)
	conn.quiet(t)

	conn.inbound <- dto.ClientCommand{Action: dto.ActionSend, RequestID: "r3", ConversationID: group.ID, Content: "hi"}
	var sawEvent, sawResult bool
	for i := 0; i < 2; i++ {
		switch frame := conn.frame(t).(type) {
		case dto.Event:
			require.Equal(t, dto.EventNewMessage, frame.Type)
			sawEvent = true
		case dto.CommandResult:
			require.True(t, frame.OK)
			require.Equal(t, "r3", frame.RequestID)
			sawResult = true
		}
	}
	require.True(t, sawEvent)
	require.True(t, sawResult)
	require.Equal(t, []string{"bob"}, env.typing.Typing(group.ID))
}

func TestRealtimeSessionReportsErrorCodes(t *testing.T) {
	env := setupMessagingEnv(t)
	svc := newRealtimeService(env)
	private := env.group(t, "bob")
	conn := connect(t, svc, "alice")

	conn.inbound <- dto.ClientCommand{Action: dto.ActionJoin, RequestID: "a", ConversationID: private.ID}
	result := conn.result(t)
	require.False(t, result.OK)
	require.Equal(t, "notMember", result.Code)

	events := env.listen(t, private.ID)
	conn.inbound <- dto.ClientCommand{Action: dto.ActionStopTyping, RequestID: "s", ConversationID: private.ID}
	result = conn.result(t)
	require.False(t, result.OK)
	require.Equal(t, "notMember", result.Code)
	assertNoEvent(t, events)

	conn.inbound <- dto.ClientCommand{Action: "shout", RequestID: "b"}
	result = conn.result(t)
	require.False(t, result.OK)
	require.Equal(t, "invalid", result.Code)

	conn.inbound <- dto.ClientCommand{Action: dto.ActionEdit, RequestID: "c", MessageID: 999, Content: "x"}
	result = conn.result(t)
	require.Equal(t, "messageNotFound", result.Code)
}

func TestRealtimeSessionStopsAfterRemoval(t *testing.T) {
	env := setupMessagingEnv(t)
	svc := newRealtimeService(env)
	group := env.group(t, "alice", "bob")
	conn := connect(t, svc, "bob")

	conn.inbound <- dto.ClientCommand{Action: dto.ActionJoin, ConversationID: group.ID}
	require.True(t, conn.result(t).OK)

	require.NoError(t, env.messaging.RemoveMember(context.Background(), "alice", group.ID, "bob"))
	left := conn.event(t)
	require.Equal(t, dto.EventMemberLeft, left.Type)

	require.Eventually(t, func() bool {
		return env.bus.SubscriberCount(dto.ConversationTopic(group.ID)) == 0
	}, time.Second, 10*time.Millisecond)

	env.send(t, "alice", group.ID, "bob is gone")
	conn.quiet(t)
}

func TestRealtimeDisconnectClearsPresenceAndTyping(t *testing.T) {
	env := setupMessagingEnv(t)
	svc := newRealtimeService(env)
	group := env.group(t, "alice", "bob")
	events := env.listen(t, group.ID)
	conn := connect(t, svc, "alice")

	require.True(t, env.presence.IsOnline("alice"))
	presence := svc.Presence(context.Background())
	require.Equal(t, []string{"alice"}, presence.UserIDs)

	conn.inbound <- dto.ClientCommand{Action: dto.ActionTyping, ConversationID: group.ID}
	require.True(t, conn.result(t).OK)
	require.Equal(t, dto.EventUserTyping, nextEvent(t, events).Type)

	require.NoError(t, conn.Close())

	stopped := nextEvent(t, events)
	require.Equal(t, dto.EventUserStoppedTyping, stopped.Type)
	require.Equal(t, "alice", stopped.ActorID)
	require.False(t, env.presence.IsOnline("alice"))
	require.Empty(t, env.typing.Typing(group.ID))
}

func TestRealtimeSessionJoinsGeneral(t *testing.T) {
	env := setupMessagingEnv(t)
	svc := newRealtimeService(env)
	connect(t, svc, "alice")

	require.Eventually(t, func() bool {
		summaries, err := env.messaging.ListConversations(context.Background(), "alice", dto.ConversationListQuery{})
		return err == nil && len(summaries) == 1 && summaries[0].IsGeneral
	}, time.Second, 10*time.Millisecond)
}
