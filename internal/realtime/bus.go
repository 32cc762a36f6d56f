package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-messenger/internal/dto"
	"github.com/noah-isme/gema-messenger/internal/observability"
)

const (
	relayQueueSize      = 1024
	relayPublishTimeout = 2 * time.Second
	relaySeenWindow     = 4096
)

// Bus fans events out to local subscribers by topic. When relays are
// configured every event is also forwarded to peer nodes, and events
// received from peers are delivered locally. An envelope that arrives over
// more than one relay is delivered once.
type Bus struct {
	mu       sync.RWMutex
	topics   map[string]map[chan<- dto.Event]struct{}
	relays   []Relay
	outbound chan []byte
	seen     *recentIDs
	nodeID   string
	log      zerolog.Logger
}

type envelope struct {
	ID     string    `json:"id"`
	Source string    `json:"source"`
	Event  dto.Event `json:"event"`
}

// NewBus creates a bus. Relays may be nil or empty for a single node deployment.
func NewBus(logger zerolog.Logger, relays ...Relay) *Bus {
	active := make([]Relay, 0, len(relays))
	for _, relay := range relays {
		if relay != nil {
			active = append(active, relay)
		}
	}
	return &Bus{
		topics:   make(map[string]map[chan<- dto.Event]struct{}),
		relays:   active,
		outbound: make(chan []byte, relayQueueSize),
		seen:     newRecentIDs(relaySeenWindow),
		nodeID:   uuid.NewString(),
		log:      logger.With().Str("component", "realtime_bus").Logger(),
	}
}

// NodeID identifies this process in relayed envelopes.
func (b *Bus) NodeID() string {
	return b.nodeID
}

// Start begins consuming every relay and forwarding queued envelopes until
// ctx is cancelled.
func (b *Bus) Start(ctx context.Context) {
	if len(b.relays) == 0 {
		return
	}
	for _, relay := range b.relays {
		if err := relay.Consume(ctx, b.handleRemote); err != nil {
			b.log.Error().Err(err).Str("relay", relay.Name()).Msg("failed to start relay consumer")
		}
	}
	go b.forward(ctx)
}

func (b *Bus) forward(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-b.outbound:
			for _, relay := range b.relays {
				publishCtx, cancel := context.WithTimeout(ctx, relayPublishTimeout)
				if err := relay.Publish(publishCtx, payload); err != nil {
					b.log.Warn().Err(err).Str("relay", relay.Name()).Msg("failed to relay realtime event")
				}
				cancel()
			}
		}
	}
}

// Subscribe registers ch for events on topic. The channel should be buffered;
// events are dropped for subscribers whose buffer is full.
func (b *Bus) Subscribe(topic string, ch chan<- dto.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.topics[topic]; !exists {
		b.topics[topic] = make(map[chan<- dto.Event]struct{})
	}
	b.topics[topic][ch] = struct{}{}
}

// Unsubscribe removes ch from topic. Unknown pairs are ignored.
func (b *Bus) Unsubscribe(topic string, ch chan<- dto.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subscribers, ok := b.topics[topic]; ok {
		delete(subscribers, ch)
		if len(subscribers) == 0 {
			delete(b.topics, topic)
		}
	}
}

// SubscriberCount reports how many local channels listen on topic.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}

// Publish delivers event locally and queues it for peers. It never waits on
// a relay: when the queue is full the envelope is dropped and counted.
func (b *Bus) Publish(_ context.Context, event dto.Event) {
	if event.Topic == "" && event.ConversationID != 0 {
		event.Topic = dto.ConversationTopic(event.ConversationID)
	}

	observability.RealtimeEvents().WithLabelValues(string(event.Type), "local").Inc()
	b.deliver(event)

	if len(b.relays) == 0 {
		return
	}

	payload, err := json.Marshal(envelope{ID: uuid.NewString(), Source: b.nodeID, Event: event})
	if err != nil {
		b.log.Warn().Err(err).Str("type", string(event.Type)).Msg("failed to marshal realtime event")
		return
	}
	select {
	case b.outbound <- payload:
	default:
		observability.RealtimeDropped().WithLabelValues(string(event.Type)).Inc()
		b.log.Warn().Str("type", string(event.Type)).Msg("relay queue full, dropping realtime event for peers")
	}
}

func (b *Bus) handleRemote(data []byte) {
	var incoming envelope
	if err := json.Unmarshal(data, &incoming); err != nil {
		b.log.Warn().Err(err).Msg("invalid realtime envelope")
		return
	}
	if incoming.Source == b.nodeID {
		return
	}
	if incoming.ID != "" && !b.seen.Add(incoming.ID) {
		return
	}

	observability.RealtimeEvents().WithLabelValues(string(incoming.Event.Type), "remote").Inc()
	b.deliver(incoming.Event)
}

func (b *Bus) deliver(event dto.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.topics[event.Topic] {
		select {
		case ch <- event:
		default:
			observability.RealtimeDropped().WithLabelValues(string(event.Type)).Inc()
			b.log.Warn().Str("topic", event.Topic).Str("type", string(event.Type)).Msg("dropping realtime event for slow subscriber")
		}
	}
}

// recentIDs remembers the last n ids in insertion order.
type recentIDs struct {
	mu    sync.Mutex
	ids   map[string]struct{}
	order []string
	next  int
}

func newRecentIDs(n int) *recentIDs {
	return &recentIDs{ids: make(map[string]struct{}, n), order: make([]string, n)}
}

// Add records id and reports whether it was unseen.
func (r *recentIDs) Add(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.ids[id]; ok {
		return false
	}
	if evicted := r.order[r.next]; evicted != "" {
		delete(r.ids, evicted)
	}
	r.order[r.next] = id
	r.next = (r.next + 1) % len(r.order)
	r.ids[id] = struct{}{}
	return true
}
