package apperror

import (
	"errors"
	"fmt"
)

// Code classifies an application error for transport mapping.
type Code string

const (
	CodeValidation Code = "VALIDATION"
	CodeForbidden  Code = "FORBIDDEN"
	CodeNotFound   Code = "NOT_FOUND"
	CodeConflict   Code = "CONFLICT"
	CodeInternal   Code = "INTERNAL"
)

// AppError carries a classification code alongside a human readable message.
type AppError struct {
	Code    Code   `json:"code"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

// New builds an AppError without a cause.
func New(code Code, reason, message string) *AppError {
	return &AppError{Code: code, Reason: reason, Message: message}
}

// Wrap attaches a classification to an underlying error.
func Wrap(code Code, message string, cause error) error {
	return &AppError{Code: code, Message: message, Cause: cause}
}

// Validation reports a schema-level problem with caller input.
func Validation(message string) error {
	return &AppError{Code: CodeValidation, Reason: "invalid", Message: message}
}

// Validationf formats a validation message.
func Validationf(format string, args ...interface{}) error {
	return Validation(fmt.Sprintf(format, args...))
}

// Authorization rejections.
var (
	ErrNotOwner           = New(CodeForbidden, "notOwner", "only the sender may modify this message")
	ErrNotMember          = New(CodeForbidden, "notMember", "user is not a member of this conversation")
	ErrTimeExpired        = New(CodeForbidden, "timeExpired", "the modification window has expired")
	ErrAlreadyDeleted     = New(CodeForbidden, "alreadyDeleted", "message has been deleted")
	ErrCannotLeaveGeneral = New(CodeForbidden, "cannotLeaveGeneral", "the general conversation cannot be left")
	ErrPinLimitReached    = New(CodeForbidden, "pinLimitReached", "conversation already has the maximum number of pins")
	ErrNotAGroup          = New(CodeForbidden, "notAGroup", "operation requires a group conversation")
	ErrPollClosed         = New(CodeForbidden, "pollClosed", "poll is closed")
	ErrInsufficientRole   = New(CodeForbidden, "insufficientRole", "member role does not allow this operation")
	ErrScheduledTerminal  = New(CodeConflict, "scheduledTerminal", "scheduled message was already sent or cancelled")
)

// Lookup failures.
var (
	ErrConversationNotFound = New(CodeNotFound, "conversationNotFound", "conversation not found")
	ErrMessageNotFound      = New(CodeNotFound, "messageNotFound", "message not found")
	ErrPollNotFound         = New(CodeNotFound, "pollNotFound", "poll not found")
	ErrScheduledNotFound    = New(CodeNotFound, "scheduledNotFound", "scheduled message not found")
	ErrMemberNotFound       = New(CodeNotFound, "memberNotFound", "member not found")
)

// CodeOf returns the classification of err, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// ReasonOf returns the machine readable reason attached to err, if any.
func ReasonOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		if appErr.Reason != "" {
			return appErr.Reason
		}
		return string(appErr.Code)
	}
	return ""
}
