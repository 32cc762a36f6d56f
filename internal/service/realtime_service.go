package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-messenger/internal/apperror"
	"github.com/noah-isme/gema-messenger/internal/dto"
	"github.com/noah-isme/gema-messenger/internal/observability"
	"github.com/noah-isme/gema-messenger/internal/realtime"
	"github.com/noah-isme/gema-messenger/internal/repository"
)

const (
	sessionEventBuffer  = 64
	sessionResultBuffer = 16
	sessionPingInterval = 30 * time.Second
)

// SessionConn is the part of a websocket connection a session uses.
type SessionConn interface {
	ReadJSON(v interface{}) error
	WriteJSON(v interface{}) error
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// SessionOptions wraps metadata extracted during the HTTP upgrade.
type SessionOptions struct {
	UserID        string
	Username      string
	CorrelationID string
	Context       context.Context
}

// RealtimeService runs one session per websocket connection and serves presence listings.
type RealtimeService interface {
	ServeConnection(conn SessionConn, opts SessionOptions)
	Presence(ctx context.Context) dto.PresenceResponse
}

type realtimeService struct {
	bus           *realtime.Bus
	presence      *realtime.PresenceTracker
	typing        *realtime.TypingCoordinator
	conversations repository.ConversationRepository
	messaging     MessagingService
	interactions  InteractionService
	polls         PollService
	validator     *validator.Validate
	logger        zerolog.Logger
}

// NewRealtimeService wires the session runtime to the bus and the use-case services.
func NewRealtimeService(bus *realtime.Bus, presence *realtime.PresenceTracker, typing *realtime.TypingCoordinator, conversations repository.ConversationRepository, messaging MessagingService, interactions InteractionService, polls PollService, validate *validator.Validate, logger zerolog.Logger) RealtimeService {
	return &realtimeService{
		bus:           bus,
		presence:      presence,
		typing:        typing,
		conversations: conversations,
		messaging:     messaging,
		interactions:  interactions,
		polls:         polls,
		validator:     validate,
		logger:        logger.With().Str("component", "realtime_session").Logger(),
	}
}

func (s *realtimeService) Presence(ctx context.Context) dto.PresenceResponse {
	users := s.presence.List(ctx)
	return dto.PresenceResponse{UserIDs: s.presence.OnlineUserIDs(ctx), Users: users}
}

// ServeConnection blocks until the connection closes.
func (s *realtimeService) ServeConnection(conn SessionConn, opts SessionOptions) {
	baseCtx := opts.Context
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if opts.Username == "" {
		opts.Username = opts.UserID
	}

	sess := &session{
		conn:    conn,
		ref:     uuid.NewString(),
		options: opts,
		service: s,
		events:  make(chan dto.Event, sessionEventBuffer),
		results: make(chan dto.CommandResult, sessionResultBuffer),
		topics:  make(map[string]struct{}),
		closed:  make(chan struct{}),
		baseCtx: baseCtx,
		log:     s.logger.With().Str("user_id", opts.UserID).Str("correlation_id", opts.CorrelationID).Logger(),
	}

	observability.RealtimeConnections().Inc()
	sess.subscribe(dto.PresenceTopic)
	s.presence.Track(baseCtx, opts.UserID, sess.ref, opts.Username)
	if err := s.messaging.JoinGeneral(baseCtx, opts.UserID); err != nil {
		sess.log.Warn().Err(err).Msg("failed to join general conversation")
	}
	sess.log.Debug().Str("session_ref", sess.ref).Msg("realtime session opened")

	go sess.writer()
	sess.reader()
}

type session struct {
	conn    SessionConn
	ref     string
	options SessionOptions
	service *realtimeService
	events  chan dto.Event
	results chan dto.CommandResult
	mu      sync.Mutex
	topics  map[string]struct{}
	closed  chan struct{}
	once    sync.Once
	baseCtx context.Context
	log     zerolog.Logger
}

func (c *session) subscribe(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.topics[topic]; ok {
		return
	}
	c.topics[topic] = struct{}{}
	c.service.bus.Subscribe(topic, c.events)
}

func (c *session) unsubscribe(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.topics[topic]; !ok {
		return
	}
	delete(c.topics, topic)
	c.service.bus.Unsubscribe(topic, c.events)
}

func (c *session) reader() {
	defer c.close()

	for {
		var command dto.ClientCommand
		if err := c.conn.ReadJSON(&command); err != nil {
			c.log.Debug().Err(err).Msg("realtime read loop ended")
			return
		}

		result := c.handle(c.baseCtx, command)

		select {
		case <-c.closed:
			return
		default:
		}

		select {
		case c.results <- result:
		default:
			c.log.Warn().Str("action", command.Action).Msg("result queue full, dropping command result")
		}
	}
}

func (c *session) writer() {
	defer c.close()

	for {
		select {
		case event := <-c.events:
			if c.suppress(event) {
				continue
			}
			if err := c.conn.WriteJSON(event); err != nil {
				c.log.Debug().Err(err).Msg("realtime write loop terminated")
				return
			}
			if event.Type == dto.EventMemberLeft && leftUserID(event.Payload) == c.options.UserID {
				c.unsubscribe(event.Topic)
			}
		case result := <-c.results:
			if err := c.conn.WriteJSON(result); err != nil {
				c.log.Debug().Err(err).Msg("realtime write loop terminated")
				return
			}
		case <-time.After(sessionPingInterval):
			if err := c.conn.WriteMessage(websocket.PingMessage, []byte("keepalive")); err != nil {
				c.log.Debug().Err(err).Msg("realtime ping failed")
				return
			}
		case <-c.closed:
			return
		}
	}
}

// suppress hides the user's own typing events from their sessions.
func (c *session) suppress(event dto.Event) bool {
	switch event.Type {
	case dto.EventUserTyping, dto.EventUserStoppedTyping:
		return event.ActorID == c.options.UserID
	default:
		return false
	}
}

func (c *session) close() {
	c.once.Do(func() {
		close(c.closed)

		c.mu.Lock()
		for topic := range c.topics {
			c.service.bus.Unsubscribe(topic, c.events)
		}
		c.topics = map[string]struct{}{}
		c.mu.Unlock()

		ctx := context.Background()
		c.service.presence.Untrack(ctx, c.options.UserID, c.ref)
		if !c.service.presence.IsOnline(c.options.UserID) {
			c.service.typing.StopAll(ctx, c.options.UserID)
		}
		observability.RealtimeConnections().Dec()
		_ = c.conn.Close()
		c.log.Debug().Str("session_ref", c.ref).Msg("realtime session closed")
	})
}

func (c *session) handle(ctx context.Context, command dto.ClientCommand) dto.CommandResult {
	result := dto.CommandResult{Type: dto.ResultFrameType, RequestID: command.RequestID}

	data, err := c.dispatch(ctx, command)
	if err != nil {
		result.Code = apperror.ReasonOf(err)
		if result.Code == "" {
			result.Code = strings.ToLower(string(apperror.CodeInternal))
			result.Error = "internal error"
			c.log.Error().Err(err).Str("action", command.Action).Msg("realtime command failed")
		} else {
			result.Error = err.Error()
		}
		return result
	}

	result.OK = true
	result.Data = data
	return result
}

func (c *session) dispatch(ctx context.Context, command dto.ClientCommand) (interface{}, error) {
	if err := validateStruct(c.service.validator, command); err != nil {
		return nil, err
	}
	userID := c.options.UserID
	svc := c.service

	switch command.Action {
	case dto.ActionJoin:
		if _, err := requireMember(ctx, svc.conversations, command.ConversationID, userID); err != nil {
			return nil, err
		}
		c.subscribe(dto.ConversationTopic(command.ConversationID))
		return dto.JoinResult{ConversationID: command.ConversationID, Typing: svc.typing.Typing(command.ConversationID)}, nil
	case dto.ActionLeave:
		c.unsubscribe(dto.ConversationTopic(command.ConversationID))
		svc.typing.Clear(ctx, command.ConversationID, userID)
		return nil, nil
	case dto.ActionSend:
		message, err := svc.messaging.SendMessage(ctx, userID, command.ConversationID, dto.SendMessageRequest{
			Content:   command.Content,
			ReplyToID: command.ReplyToID,
		})
		if err != nil {
			return nil, err
		}
		svc.typing.Clear(ctx, command.ConversationID, userID)
		return message, nil
	case dto.ActionEdit:
		return svc.messaging.EditMessage(ctx, userID, command.MessageID, dto.EditMessageRequest{Content: command.Content})
	case dto.ActionDelete:
		return svc.messaging.DeleteMessage(ctx, userID, command.MessageID)
	case dto.ActionReact:
		return svc.interactions.ToggleReaction(ctx, userID, command.MessageID, command.Emoji)
	case dto.ActionVote:
		return svc.polls.Vote(ctx, userID, command.PollID, dto.VoteRequest{OptionID: command.OptionID})
	case dto.ActionPin:
		return svc.interactions.TogglePin(ctx, userID, command.MessageID)
	case dto.ActionStar:
		return svc.interactions.ToggleStar(ctx, userID, command.MessageID)
	case dto.ActionTyping:
		if _, err := requireMember(ctx, svc.conversations, command.ConversationID, userID); err != nil {
			return nil, err
		}
		svc.typing.StartTyping(ctx, command.ConversationID, userID, c.options.Username)
		return nil, nil
	case dto.ActionStopTyping:
		if _, err := requireMember(ctx, svc.conversations, command.ConversationID, userID); err != nil {
			return nil, err
		}
		svc.typing.StopTyping(ctx, command.ConversationID, userID)
		return nil, nil
	case dto.ActionMarkRead:
		return nil, svc.messaging.MarkRead(ctx, userID, command.ConversationID)
	default:
		return nil, apperror.Validationf("unknown action %q", command.Action)
	}
}

// leftUserID reads the departed user from a memberLeft payload, whether it
// arrived as a struct from this node or as decoded JSON from a peer.
func leftUserID(payload interface{}) string {
	switch value := payload.(type) {
	case dto.MemberLeftPayload:
		return value.UserID
	case *dto.MemberLeftPayload:
		if value != nil {
			return value.UserID
		}
	case map[string]interface{}:
		if userID, ok := value["user_id"].(string); ok {
			return userID
		}
	}
	return ""
}
