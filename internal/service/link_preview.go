package service

import (
	"context"
	"encoding/json"
	"regexp"
	"time"

	"gorm.io/datatypes"

	"github.com/noah-isme/gema-messenger/internal/dto"
	"github.com/noah-isme/gema-messenger/internal/models"
)

const (
	maxPreviewURLs  = 3
	previewDeadline = 10 * time.Second
)

var urlPattern = regexp.MustCompile(`https?://[^\s<>"']+`)

// LinkPreviewer resolves previews for URLs found in a committed message.
type LinkPreviewer interface {
	Preview(ctx context.Context, urls []string) ([]dto.LinkPreview, error)
}

// ExtractURLs returns up to limit distinct http(s) URLs in order of appearance.
func ExtractURLs(content string, limit int) []string {
	matches := urlPattern.FindAllString(content, -1)
	seen := make(map[string]struct{}, len(matches))
	urls := make([]string, 0, len(matches))
	for _, match := range matches {
		if _, dup := seen[match]; dup {
			continue
		}
		seen[match] = struct{}{}
		urls = append(urls, match)
		if limit > 0 && len(urls) == limit {
			break
		}
	}
	return urls
}

// requestPreviews hands the message to the previewer without blocking the sender.
func (s *messagingService) requestPreviews(message models.Message) {
	if s.previewer == nil || message.IsDeleted() {
		return
	}
	urls := ExtractURLs(message.Content, maxPreviewURLs)
	if len(urls) == 0 {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), previewDeadline)
		defer cancel()

		previews, err := s.previewer.Preview(ctx, urls)
		if err != nil {
			s.logger.Warn().Err(err).Uint("message_id", message.ID).Msg("link preview failed")
			return
		}
		if len(previews) == 0 {
			return
		}

		encoded, err := json.Marshal(previews)
		if err != nil {
			s.logger.Warn().Err(err).Uint("message_id", message.ID).Msg("failed to encode link previews")
			return
		}
		if err := s.messages.SetLinkPreviews(ctx, message.ID, datatypes.JSON(encoded)); err != nil {
			s.logger.Warn().Err(err).Uint("message_id", message.ID).Msg("failed to store link previews")
			return
		}

		s.publisher.Publish(ctx, dto.NewConversationEvent(dto.EventLinkPreviewsFetched, message.ConversationID, message.SenderID,
			dto.LinkPreviewsFetchedPayload{MessageID: message.ID, Previews: previews}, s.clock.Now()))
	}()
}
