// Package policy holds the pure rules that decide whether a message mutation is
// allowed and whether a draft entity is well formed. Nothing here touches storage.
package policy

import (
	"time"

	"github.com/noah-isme/gema-messenger/internal/apperror"
	"github.com/noah-isme/gema-messenger/internal/models"
)

// DefaultEditWindow bounds how long after sending a message may be edited or deleted.
const DefaultEditWindow = 15 * time.Minute

// Action is a mutation a member attempts on an existing message.
type Action string

const (
	ActionEdit    Action = "edit"
	ActionDelete  Action = "delete"
	ActionPin     Action = "pin"
	ActionForward Action = "forward"
	ActionReact   Action = "react"
)

// ownerOnly reports whether the action is restricted to the sender and the edit window.
func (a Action) ownerOnly() bool {
	return a == ActionEdit || a == ActionDelete
}

// Authorizer evaluates message mutation rules against a configurable window.
type Authorizer struct {
	window time.Duration
}

// NewAuthorizer builds an Authorizer. A non-positive window falls back to DefaultEditWindow.
func NewAuthorizer(window time.Duration) Authorizer {
	if window <= 0 {
		window = DefaultEditWindow
	}
	return Authorizer{window: window}
}

// Window returns the edit/delete window in effect.
func (a Authorizer) Window() time.Duration {
	return a.window
}

// CanModify returns nil when actorID may perform action on message at now.
// Rules are checked in order: deleted, ownership, elapsed time. Ownership and
// the window only apply to edit and delete. The window is inclusive: a
// message exactly window old can still be modified.
func (a Authorizer) CanModify(message models.Message, actorID string, action Action, now time.Time) error {
	if message.IsDeleted() {
		return apperror.ErrAlreadyDeleted
	}
	if !action.ownerOnly() {
		return nil
	}
	if message.SenderID != actorID {
		return apperror.ErrNotOwner
	}
	if now.Sub(message.CreatedAt) > a.window {
		return apperror.ErrTimeExpired
	}
	return nil
}

// CanModify applies the default window.
func CanModify(message models.Message, actorID string, action Action, now time.Time) error {
	return NewAuthorizer(DefaultEditWindow).CanModify(message, actorID, action, now)
}
