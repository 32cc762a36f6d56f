package service

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/gema-messenger/internal/apperror"
	"github.com/noah-isme/gema-messenger/internal/dto"
	"github.com/noah-isme/gema-messenger/internal/models"
	"github.com/noah-isme/gema-messenger/internal/repository"
)

// EventPublisher is the subset of the realtime bus the services publish to.
type EventPublisher interface {
	Publish(ctx context.Context, event dto.Event)
}

func validateStruct(validate *validator.Validate, payload interface{}) error {
	if err := validate.Struct(payload); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return &apperror.AppError{Code: apperror.CodeValidation, Reason: "invalid", Message: "invalid request payload", Cause: err}
		}
		return err
	}
	return nil
}

// requireMember loads the actor's membership, telling a missing conversation
// apart from a conversation the actor does not belong to.
func requireMember(ctx context.Context, conversations repository.ConversationRepository, conversationID uint, userID string) (models.ConversationMember, error) {
	member, err := conversations.GetMember(ctx, conversationID, userID)
	if err == nil {
		return member, nil
	}
	if !errors.Is(err, apperror.ErrNotMember) {
		return models.ConversationMember{}, err
	}
	if _, findErr := conversations.FindByID(ctx, conversationID); findErr != nil {
		return models.ConversationMember{}, findErr
	}
	return models.ConversationMember{}, apperror.ErrNotMember
}

func outcomeLabel(outcome repository.Outcome) string {
	if outcome.Added {
		return "added"
	}
	return "removed"
}

func toggleResponse(outcome repository.Outcome) dto.ToggleResponse {
	return dto.ToggleResponse{Added: outcome.Added, Removed: outcome.Removed}
}
