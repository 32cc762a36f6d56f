package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-messenger/internal/apperror"
	"github.com/noah-isme/gema-messenger/internal/clock"
	"github.com/noah-isme/gema-messenger/internal/dto"
	"github.com/noah-isme/gema-messenger/internal/models"
	"github.com/noah-isme/gema-messenger/internal/observability"
	"github.com/noah-isme/gema-messenger/internal/policy"
	"github.com/noah-isme/gema-messenger/internal/repository"
	"github.com/noah-isme/gema-messenger/internal/sanitize"
)

const (
	// DefaultDispatchInterval is how often due scheduled messages are swept.
	DefaultDispatchInterval = 30 * time.Second
	dispatchBatchSize       = 100
)

// ScheduledService exposes scheduled message use-cases.
type ScheduledService interface {
	Schedule(ctx context.Context, actorID string, payload dto.ScheduleMessageRequest) (dto.ScheduledMessageResponse, error)
	Cancel(ctx context.Context, actorID string, id uint) (dto.ScheduledMessageResponse, error)
	List(ctx context.Context, actorID string, pendingOnly bool) ([]dto.ScheduledMessageResponse, error)
}

type scheduledService struct {
	conversations repository.ConversationRepository
	repo          repository.ScheduledMessageRepository
	sanitizer     *sanitize.Sanitizer
	validator     *validator.Validate
	clock         clock.Clock
	logger        zerolog.Logger
}

// NewScheduledService constructs the scheduled message service.
func NewScheduledService(conversations repository.ConversationRepository, repo repository.ScheduledMessageRepository, validate *validator.Validate, clk clock.Clock, logger zerolog.Logger) ScheduledService {
	return &scheduledService{
		conversations: conversations,
		repo:          repo,
		sanitizer:     sanitize.NewSanitizer(),
		validator:     validate,
		clock:         clk,
		logger:        logger.With().Str("component", "scheduled_service").Logger(),
	}
}

func (s *scheduledService) Schedule(ctx context.Context, actorID string, payload dto.ScheduleMessageRequest) (dto.ScheduledMessageResponse, error) {
	if err := validateStruct(s.validator, payload); err != nil {
		return dto.ScheduledMessageResponse{}, err
	}
	if _, err := requireMember(ctx, s.conversations, payload.ConversationID, actorID); err != nil {
		return dto.ScheduledMessageResponse{}, err
	}

	item, err := policy.NewScheduledMessage(payload.ConversationID, actorID, s.sanitizer.Text(payload.Content), payload.ScheduledFor, s.clock.Now())
	if err != nil {
		return dto.ScheduledMessageResponse{}, err
	}
	if err := s.repo.Create(ctx, &item); err != nil {
		return dto.ScheduledMessageResponse{}, err
	}

	s.logger.Info().Uint("scheduled_id", item.ID).Time("scheduled_for", item.ScheduledFor).Msg("message scheduled")
	return dto.NewScheduledMessageResponse(item), nil
}

// Cancel is restricted to the sender and to pending rows.
func (s *scheduledService) Cancel(ctx context.Context, actorID string, id uint) (dto.ScheduledMessageResponse, error) {
	item, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return dto.ScheduledMessageResponse{}, err
	}
	if item.SenderID != actorID {
		return dto.ScheduledMessageResponse{}, apperror.ErrNotOwner
	}

	cancelled, err := s.repo.Cancel(ctx, id, s.clock.Now())
	if err != nil {
		return dto.ScheduledMessageResponse{}, err
	}
	return dto.NewScheduledMessageResponse(cancelled), nil
}

func (s *scheduledService) List(ctx context.Context, actorID string, pendingOnly bool) ([]dto.ScheduledMessageResponse, error) {
	items, err := s.repo.ListBySender(ctx, actorID, pendingOnly)
	if err != nil {
		return nil, err
	}
	return dto.NewScheduledMessageResponseSlice(items), nil
}

// ScheduledSender materializes a scheduled row as a regular message.
type ScheduledSender interface {
	DeliverScheduled(ctx context.Context, item models.ScheduledMessage) (dto.MessageResponse, error)
}

// DispatchReport summarises one sweep.
type DispatchReport struct {
	Sent    int
	Failed  int
	Skipped bool
}

// ScheduledDispatcher periodically promotes due scheduled messages. Sweeps
// never overlap: a tick that fires while the previous sweep is running is skipped.
type ScheduledDispatcher struct {
	repo     repository.ScheduledMessageRepository
	sender   ScheduledSender
	clock    clock.Clock
	interval time.Duration
	batch    int
	mu       sync.Mutex
	logger   zerolog.Logger
	tracer   trace.Tracer
}

// NewScheduledDispatcher constructs a dispatcher. A non-positive interval uses DefaultDispatchInterval.
func NewScheduledDispatcher(repo repository.ScheduledMessageRepository, sender ScheduledSender, clk clock.Clock, interval time.Duration, logger zerolog.Logger) *ScheduledDispatcher {
	if interval <= 0 {
		interval = DefaultDispatchInterval
	}
	return &ScheduledDispatcher{
		repo:     repo,
		sender:   sender,
		clock:    clk,
		interval: interval,
		batch:    dispatchBatchSize,
		logger:   logger.With().Str("component", "scheduled_dispatcher").Logger(),
		tracer:   otel.Tracer("github.com/noah-isme/gema-messenger/internal/service/scheduled"),
	}
}

// Start sweeps on every tick until ctx is cancelled.
func (d *ScheduledDispatcher) Start(ctx context.Context) {
	ticker := d.clock.NewTicker(d.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := d.RunOnce(ctx); err != nil {
					d.logger.Error().Err(err).Msg("scheduled sweep failed")
				}
			}
		}
	}()
	d.logger.Info().Dur("interval", d.interval).Msg("scheduled dispatcher started")
}

// RunOnce performs a single sweep. Failed rows stay pending with their
// attempt count and last error recorded, and are retried on the next sweep.
func (d *ScheduledDispatcher) RunOnce(ctx context.Context) (DispatchReport, error) {
	if !d.mu.TryLock() {
		observability.ScheduledRuns().WithLabelValues("skipped").Inc()
		return DispatchReport{Skipped: true}, nil
	}
	defer d.mu.Unlock()

	spanCtx, span := d.tracer.Start(ctx, "scheduled.sweep")
	defer span.End()

	now := d.clock.Now()
	var (
		report DispatchReport
		cursor repository.DueCursor
		seen   int
	)
	// Rows that keep failing stay pending, so the sweep pages past them
	// instead of re-reading the same head of the queue.
	for {
		due, err := d.repo.ListDue(spanCtx, now, cursor, d.batch)
		if err != nil {
			span.RecordError(err)
			return report, err
		}
		seen += len(due)
		for _, item := range due {
			d.deliver(spanCtx, item, &report)
			cursor = cursor.Next(item)
		}
		if len(due) < d.batch || ctx.Err() != nil {
			break
		}
	}
	span.SetAttributes(attribute.Int("scheduled.due", seen))
	return report, nil
}

func (d *ScheduledDispatcher) deliver(ctx context.Context, item models.ScheduledMessage, report *DispatchReport) {
	message, err := d.sender.DeliverScheduled(ctx, item)
	if errors.Is(err, apperror.ErrScheduledTerminal) {
		d.logger.Debug().Uint("scheduled_id", item.ID).Msg("scheduled message cancelled before dispatch")
		return
	}
	if err != nil {
		report.Failed++
		observability.ScheduledRuns().WithLabelValues("failed").Inc()
		d.logger.Warn().Err(err).Uint("scheduled_id", item.ID).Int("attempts", item.Attempts+1).Msg("scheduled message dispatch failed")
		if recordErr := d.repo.RecordFailure(ctx, item.ID, err.Error()); recordErr != nil {
			d.logger.Error().Err(recordErr).Uint("scheduled_id", item.ID).Msg("failed to record dispatch failure")
		}
		return
	}
	report.Sent++
	observability.ScheduledRuns().WithLabelValues("sent").Inc()
	d.logger.Debug().Uint("scheduled_id", item.ID).Uint("message_id", message.ID).Msg("scheduled message sent")
}
