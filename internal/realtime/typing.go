package realtime

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/noah-isme/gema-messenger/internal/clock"
	"github.com/noah-isme/gema-messenger/internal/dto"
)

// DefaultTypingTTL is how long a typing indicator lives without a refresh.
const DefaultTypingTTL = 3 * time.Second

type typingKey struct {
	conversationID uint
	userID         string
}

type typingEntry struct {
	timer      *clock.Timer
	generation uint64
}

// TypingCoordinator tracks who is typing where. A start publishes userTyping
// once; repeated starts only push the expiry back. Expiry and explicit stops
// publish userStoppedTyping.
type TypingCoordinator struct {
	mu      sync.Mutex
	entries map[typingKey]*typingEntry
	ttl     time.Duration
	clock   clock.Clock
	bus     *Bus
}

// NewTypingCoordinator creates a coordinator. A non-positive ttl uses DefaultTypingTTL.
func NewTypingCoordinator(bus *Bus, clk clock.Clock, ttl time.Duration) *TypingCoordinator {
	if ttl <= 0 {
		ttl = DefaultTypingTTL
	}
	return &TypingCoordinator{
		entries: make(map[typingKey]*typingEntry),
		ttl:     ttl,
		clock:   clk,
		bus:     bus,
	}
}

// StartTyping marks userID as typing in the conversation.
func (t *TypingCoordinator) StartTyping(ctx context.Context, conversationID uint, userID, username string) {
	key := typingKey{conversationID: conversationID, userID: userID}

	t.mu.Lock()
	entry, exists := t.entries[key]
	if exists {
		entry.timer.Stop()
		entry.generation++
	} else {
		entry = &typingEntry{generation: 1}
		t.entries[key] = entry
	}
	generation := entry.generation
	entry.timer = t.clock.AfterFunc(t.ttl, func() { t.expire(key, generation) })
	t.mu.Unlock()

	if exists {
		return
	}
	t.bus.Publish(ctx, dto.NewConversationEvent(dto.EventUserTyping, conversationID, userID,
		dto.UserTypingPayload{UserID: userID, Username: username}, t.clock.Now()))
}

// StopTyping clears the indicator and always publishes userStoppedTyping.
func (t *TypingCoordinator) StopTyping(ctx context.Context, conversationID uint, userID string) {
	key := typingKey{conversationID: conversationID, userID: userID}

	t.mu.Lock()
	if entry, exists := t.entries[key]; exists {
		entry.timer.Stop()
		delete(t.entries, key)
	}
	t.mu.Unlock()

	t.publishStopped(ctx, key)
}

// Clear stops the indicator only when one is active, reporting whether it did.
func (t *TypingCoordinator) Clear(ctx context.Context, conversationID uint, userID string) bool {
	key := typingKey{conversationID: conversationID, userID: userID}

	t.mu.Lock()
	entry, exists := t.entries[key]
	if exists {
		entry.timer.Stop()
		delete(t.entries, key)
	}
	t.mu.Unlock()

	if exists {
		t.publishStopped(ctx, key)
	}
	return exists
}

// StopAll clears every indicator held by userID, publishing a stop for each.
func (t *TypingCoordinator) StopAll(ctx context.Context, userID string) {
	var cleared []typingKey

	t.mu.Lock()
	for key, entry := range t.entries {
		if key.userID != userID {
			continue
		}
		entry.timer.Stop()
		delete(t.entries, key)
		cleared = append(cleared, key)
	}
	t.mu.Unlock()

	for _, key := range cleared {
		t.publishStopped(ctx, key)
	}
}

// Typing lists users currently typing in the conversation.
func (t *TypingCoordinator) Typing(conversationID uint) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	users := []string{}
	for key := range t.entries {
		if key.conversationID == conversationID {
			users = append(users, key.userID)
		}
	}
	sort.Strings(users)
	return users
}

func (t *TypingCoordinator) expire(key typingKey, generation uint64) {
	t.mu.Lock()
	entry, exists := t.entries[key]
	if !exists || entry.generation != generation {
		t.mu.Unlock()
		return
	}
	delete(t.entries, key)
	t.mu.Unlock()

	t.publishStopped(context.Background(), key)
}

func (t *TypingCoordinator) publishStopped(ctx context.Context, key typingKey) {
	t.bus.Publish(ctx, dto.NewConversationEvent(dto.EventUserStoppedTyping, key.conversationID, key.userID,
		dto.UserStoppedTypingPayload{UserID: key.userID}, t.clock.Now()))
}
