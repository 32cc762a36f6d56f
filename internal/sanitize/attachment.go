package sanitize

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/noah-isme/gema-messenger/internal/apperror"
	"github.com/noah-isme/gema-messenger/internal/models"
)

// DefaultMaxAttachmentMB caps a single attachment.
const DefaultMaxAttachmentMB = 10

var (
	// ErrAttachmentTooLarge indicates the file exceeded the configured cap.
	ErrAttachmentTooLarge = errors.New("attachment exceeds maximum allowed size")
	// ErrAttachmentTypeNotAllowed indicates the content type is outside the allow-list.
	ErrAttachmentTypeNotAllowed = errors.New("attachment type not allowed")
	// ErrAttachmentTypeMismatch indicates the sniffed bytes disagree with the declared type.
	ErrAttachmentTypeMismatch = errors.New("attachment content does not match declared type")
)

var allowedAttachmentTypes = map[string]struct{}{
	"image/png":       {},
	"image/jpeg":      {},
	"image/gif":       {},
	"image/webp":      {},
	"application/pdf": {},
	"application/zip": {},
	"text/plain":      {},
	"video/mp4":       {},
	"audio/mpeg":      {},
}

// AttachmentInput is the metadata tuple supplied for an already stored file.
// Head optionally carries the first bytes of the file for content sniffing.
type AttachmentInput struct {
	FileName    string `json:"file_name" validate:"required,max=255"`
	ContentType string `json:"content_type" validate:"required,max=128"`
	SizeBytes   int64  `json:"size_bytes" validate:"required,min=1"`
	URL         string `json:"url" validate:"omitempty,url"`
	Head        []byte `json:"-"`
}

// AttachmentValidator enforces the allow-list and size cap.
type AttachmentValidator struct {
	maxBytes int64
}

// NewAttachmentValidator constructs a validator; non-positive sizes use the default cap.
func NewAttachmentValidator(maxSizeMB int) *AttachmentValidator {
	if maxSizeMB <= 0 {
		maxSizeMB = DefaultMaxAttachmentMB
	}
	return &AttachmentValidator{maxBytes: int64(maxSizeMB) * 1024 * 1024}
}

// Validate checks a single tuple and returns the attachment row to persist.
func (v *AttachmentValidator) Validate(input AttachmentInput) (models.MessageAttachment, error) {
	if input.SizeBytes <= 0 {
		return models.MessageAttachment{}, apperror.Validation("attachment size must be positive")
	}
	if input.SizeBytes > v.maxBytes {
		return models.MessageAttachment{}, apperror.Wrap(apperror.CodeValidation, "attachment rejected", ErrAttachmentTooLarge)
	}

	contentType := normalizeContentType(input.ContentType)
	if mimetype.Lookup(contentType) == nil {
		return models.MessageAttachment{}, apperror.Wrap(apperror.CodeValidation, "attachment rejected", ErrAttachmentTypeNotAllowed)
	}
	if _, ok := allowedAttachmentTypes[contentType]; !ok {
		return models.MessageAttachment{}, apperror.Wrap(apperror.CodeValidation, "attachment rejected", ErrAttachmentTypeNotAllowed)
	}

	if len(input.Head) > 0 {
		detected := mimetype.Detect(input.Head)
		if !detected.Is(contentType) {
			return models.MessageAttachment{}, apperror.Wrap(apperror.CodeValidation, "attachment rejected",
				fmt.Errorf("%w: declared %s, detected %s", ErrAttachmentTypeMismatch, contentType, detected.String()))
		}
	}

	return models.MessageAttachment{
		FileName:    sanitizeFileName(input.FileName),
		ContentType: contentType,
		SizeBytes:   input.SizeBytes,
		URL:         strings.TrimSpace(input.URL),
	}, nil
}

// ValidateAll validates every tuple, stopping at the first rejection.
func (v *AttachmentValidator) ValidateAll(inputs []AttachmentInput) ([]models.MessageAttachment, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	out := make([]models.MessageAttachment, 0, len(inputs))
	for _, input := range inputs {
		attachment, err := v.Validate(input)
		if err != nil {
			return nil, err
		}
		out = append(out, attachment)
	}
	return out, nil
}

func normalizeContentType(contentType string) string {
	lower := strings.ToLower(strings.TrimSpace(contentType))
	if idx := strings.Index(lower, ";"); idx >= 0 {
		lower = strings.TrimSpace(lower[:idx])
	}
	if lower == "application/x-zip-compressed" {
		return "application/zip"
	}
	return lower
}

func sanitizeFileName(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	base := strings.TrimSuffix(name, filepath.Ext(name))
	base = strings.ToLower(base)
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		if r == '-' || r == '_' {
			return r
		}
		return '-'
	}, base)
	base = strings.Trim(base, "-")
	if base == "" {
		base = "attachment"
	}
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		ext = ".bin"
	}
	return base + ext
}
