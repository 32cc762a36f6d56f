package realtime

import (
	"context"
	"hash/fnv"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-messenger/internal/clock"
	"github.com/noah-isme/gema-messenger/internal/dto"
)

// PresenceStore mirrors local presence into shared storage so every node can list who is online.
type PresenceStore interface {
	Online(ctx context.Context, userID, nodeID string, meta dto.PresenceMeta) error
	Offline(ctx context.Context, userID, nodeID string) error
	List(ctx context.Context) (map[string]dto.PresenceMeta, error)
}

const presenceLockStripes = 64

// PresenceTracker collapses concurrent sessions into one online entry per user.
// A user joins with their first session and leaves with their last; only
// those transitions are published as presence diffs. Transitions for one user
// are serialized through the mirror write and the publish, so the shared
// store and the diff stream always end in the local state.
type PresenceTracker struct {
	mu     sync.Mutex
	users  map[string]*presenceEntry
	userMu [presenceLockStripes]sync.Mutex
	bus    *Bus
	clock  clock.Clock
	store  PresenceStore
	log    zerolog.Logger
}

type presenceEntry struct {
	meta     dto.PresenceMeta
	sessions map[string]struct{}
}

// NewPresenceTracker creates a tracker. store may be nil.
func NewPresenceTracker(bus *Bus, clk clock.Clock, store PresenceStore, logger zerolog.Logger) *PresenceTracker {
	return &PresenceTracker{
		users: make(map[string]*presenceEntry),
		bus:   bus,
		clock: clk,
		store: store,
		log:   logger.With().Str("component", "presence").Logger(),
	}
}

// Track registers a session. It reports whether the user just came online.
func (p *PresenceTracker) Track(ctx context.Context, userID, sessionRef, username string) bool {
	userMu := p.lockUser(userID)
	defer userMu.Unlock()

	p.mu.Lock()
	entry, exists := p.users[userID]
	if !exists {
		entry = &presenceEntry{
			meta:     dto.PresenceMeta{Username: username, JoinedAt: p.clock.Now()},
			sessions: make(map[string]struct{}),
		}
		p.users[userID] = entry
	}
	entry.sessions[sessionRef] = struct{}{}
	entry.meta.Sessions = len(entry.sessions)
	meta := entry.meta
	p.mu.Unlock()

	p.mirrorOnline(ctx, userID, meta)
	if exists {
		return false
	}

	p.publish(ctx, dto.PresenceDiff{
		Joins:  map[string]dto.PresenceMeta{userID: meta},
		Leaves: map[string]dto.PresenceMeta{},
	})
	return true
}

// Untrack removes a session. It reports whether the user went offline.
func (p *PresenceTracker) Untrack(ctx context.Context, userID, sessionRef string) bool {
	userMu := p.lockUser(userID)
	defer userMu.Unlock()

	p.mu.Lock()
	entry, exists := p.users[userID]
	if !exists {
		p.mu.Unlock()
		return false
	}
	if _, ok := entry.sessions[sessionRef]; !ok {
		p.mu.Unlock()
		return false
	}
	delete(entry.sessions, sessionRef)
	entry.meta.Sessions = len(entry.sessions)
	meta := entry.meta
	left := len(entry.sessions) == 0
	if left {
		delete(p.users, userID)
	}
	p.mu.Unlock()

	if !left {
		p.mirrorOnline(ctx, userID, meta)
		return false
	}

	if p.store != nil {
		if err := p.store.Offline(ctx, userID, p.bus.NodeID()); err != nil {
			p.log.Warn().Err(err).Str("user_id", userID).Msg("failed to clear presence mirror")
		}
	}
	p.publish(ctx, dto.PresenceDiff{
		Joins:  map[string]dto.PresenceMeta{},
		Leaves: map[string]dto.PresenceMeta{userID: meta},
	})
	return true
}

// IsOnline reports whether the user has a session on this node.
func (p *PresenceTracker) IsOnline(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.users[userID]
	return ok
}

// List returns every online user. With a store the listing spans all nodes.
func (p *PresenceTracker) List(ctx context.Context) map[string]dto.PresenceMeta {
	if p.store != nil {
		users, err := p.store.List(ctx)
		if err == nil {
			return users
		}
		p.log.Warn().Err(err).Msg("failed to list presence mirror, using local view")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	users := make(map[string]dto.PresenceMeta, len(p.users))
	for userID, entry := range p.users {
		users[userID] = entry.meta
	}
	return users
}

// OnlineUserIDs returns List's keys in sorted order.
func (p *PresenceTracker) OnlineUserIDs(ctx context.Context) []string {
	users := p.List(ctx)
	ids := make([]string, 0, len(users))
	for userID := range users {
		ids = append(ids, userID)
	}
	sort.Strings(ids)
	return ids
}

func (p *PresenceTracker) lockUser(userID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	mu := &p.userMu[h.Sum32()%presenceLockStripes]
	mu.Lock()
	return mu
}

func (p *PresenceTracker) mirrorOnline(ctx context.Context, userID string, meta dto.PresenceMeta) {
	if p.store == nil {
		return
	}
	if err := p.store.Online(ctx, userID, p.bus.NodeID(), meta); err != nil {
		p.log.Warn().Err(err).Str("user_id", userID).Msg("failed to mirror presence")
	}
}

func (p *PresenceTracker) publish(ctx context.Context, diff dto.PresenceDiff) {
	p.bus.Publish(ctx, dto.Event{
		Type:    dto.EventPresenceDiff,
		Topic:   dto.PresenceTopic,
		Payload: diff,
		SentAt:  p.clock.Now(),
	})
}
