package service

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-messenger/internal/apperror"
	"github.com/noah-isme/gema-messenger/internal/clock"
	"github.com/noah-isme/gema-messenger/internal/dto"
	"github.com/noah-isme/gema-messenger/internal/models"
	"github.com/noah-isme/gema-messenger/internal/observability"
	"github.com/noah-isme/gema-messenger/internal/policy"
	"github.com/noah-isme/gema-messenger/internal/repository"
	"github.com/noah-isme/gema-messenger/internal/sanitize"
)

// PollService exposes poll use-cases.
type PollService interface {
	CreatePoll(ctx context.Context, actorID string, conversationID uint, payload dto.CreatePollRequest) (dto.PollResponse, error)
	Vote(ctx context.Context, actorID string, pollID uint, payload dto.VoteRequest) (dto.PollResponse, error)
	ClosePoll(ctx context.Context, actorID string, pollID uint) (dto.PollResponse, error)
	GetPoll(ctx context.Context, actorID string, pollID uint) (dto.PollResponse, error)
}

type pollService struct {
	conversations repository.ConversationRepository
	polls         repository.PollRepository
	engine        repository.ToggleEngine
	publisher     EventPublisher
	sanitizer     *sanitize.Sanitizer
	validator     *validator.Validate
	clock         clock.Clock
	logger        zerolog.Logger
}

// NewPollService constructs the poll service.
func NewPollService(conversations repository.ConversationRepository, polls repository.PollRepository, engine repository.ToggleEngine, publisher EventPublisher, validate *validator.Validate, clk clock.Clock, logger zerolog.Logger) PollService {
	return &pollService{
		conversations: conversations,
		polls:         polls,
		engine:        engine,
		publisher:     publisher,
		sanitizer:     sanitize.NewSanitizer(),
		validator:     validate,
		clock:         clk,
		logger:        logger.With().Str("component", "poll_service").Logger(),
	}
}

func (s *pollService) CreatePoll(ctx context.Context, actorID string, conversationID uint, payload dto.CreatePollRequest) (dto.PollResponse, error) {
	if err := validateStruct(s.validator, payload); err != nil {
		return dto.PollResponse{}, err
	}
	if _, err := requireMember(ctx, s.conversations, conversationID, actorID); err != nil {
		return dto.PollResponse{}, err
	}

	options := make([]string, 0, len(payload.Options))
	for _, option := range payload.Options {
		options = append(options, s.sanitizer.Text(option))
	}

	now := s.clock.Now()
	poll, err := policy.NewPoll(policy.PollDraft{
		ConversationID: conversationID,
		CreatorID:      actorID,
		Question:       s.sanitizer.Text(payload.Question),
		Options:        options,
		AllowMultiple:  payload.AllowMultiple,
		Anonymous:      payload.Anonymous,
	}, now)
	if err != nil {
		return dto.PollResponse{}, err
	}

	message := models.Message{
		ConversationID: conversationID,
		SenderID:       actorID,
		Kind:           models.MessagePoll,
		Content:        poll.Question,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.polls.Create(ctx, &message, &poll); err != nil {
		return dto.PollResponse{}, err
	}
	observability.MessagesSent().WithLabelValues(string(models.MessagePoll), "user").Inc()

	response := dto.NewPollResponse(poll, nil)
	s.publisher.Publish(ctx, dto.NewConversationEvent(dto.EventPollCreated, conversationID, actorID, dto.PollPayload{Poll: response}, now))
	return response, nil
}

func (s *pollService) Vote(ctx context.Context, actorID string, pollID uint, payload dto.VoteRequest) (dto.PollResponse, error) {
	if err := validateStruct(s.validator, payload); err != nil {
		return dto.PollResponse{}, err
	}
	poll, err := s.loadPoll(ctx, actorID, pollID)
	if err != nil {
		return dto.PollResponse{}, err
	}

	outcome, err := s.engine.Toggle(ctx, repository.ToggleVote, repository.ToggleKey{PollID: poll.ID, OptionID: payload.OptionID}, actorID)
	if err != nil {
		return dto.PollResponse{}, err
	}
	observability.Toggles().WithLabelValues(string(repository.ToggleVote), outcomeLabel(outcome)).Inc()

	return s.publishUpdated(ctx, actorID, poll)
}

// ClosePoll is restricted to the poll's creator and is terminal.
func (s *pollService) ClosePoll(ctx context.Context, actorID string, pollID uint) (dto.PollResponse, error) {
	poll, err := s.loadPoll(ctx, actorID, pollID)
	if err != nil {
		return dto.PollResponse{}, err
	}
	if poll.CreatorID != actorID {
		return dto.PollResponse{}, apperror.ErrNotOwner
	}

	closed, err := s.polls.Close(ctx, pollID, s.clock.Now())
	if err != nil {
		return dto.PollResponse{}, err
	}
	return s.publishUpdated(ctx, actorID, closed)
}

func (s *pollService) GetPoll(ctx context.Context, actorID string, pollID uint) (dto.PollResponse, error) {
	poll, err := s.loadPoll(ctx, actorID, pollID)
	if err != nil {
		return dto.PollResponse{}, err
	}
	votes, err := s.polls.Votes(ctx, pollID)
	if err != nil {
		return dto.PollResponse{}, err
	}
	return dto.NewPollResponse(poll, votes), nil
}

func (s *pollService) loadPoll(ctx context.Context, actorID string, pollID uint) (models.Poll, error) {
	poll, err := s.polls.FindByID(ctx, pollID)
	if err != nil {
		return models.Poll{}, err
	}
	if _, err := requireMember(ctx, s.conversations, poll.ConversationID, actorID); err != nil {
		return models.Poll{}, err
	}
	return poll, nil
}

func (s *pollService) publishUpdated(ctx context.Context, actorID string, poll models.Poll) (dto.PollResponse, error) {
	fresh, err := s.polls.FindByID(ctx, poll.ID)
	if err != nil {
		return dto.PollResponse{}, err
	}
	votes, err := s.polls.Votes(ctx, poll.ID)
	if err != nil {
		return dto.PollResponse{}, err
	}

	response := dto.NewPollResponse(fresh, votes)
	s.publisher.Publish(ctx, dto.NewConversationEvent(dto.EventPollUpdated, fresh.ConversationID, actorID, dto.PollPayload{Poll: response}, s.clock.Now()))
	return response, nil
}
