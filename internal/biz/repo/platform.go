package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/groupguard/groupguard/internal/biz/domain"
)

var (
	// ErrPermissionDenied means the bot lacks the admin rights for the call
	ErrPermissionDenied = errors.New("permission denied")
	// ErrNetwork means the platform could not be reached
	ErrNetwork = errors.New("network error")
)

// ActionError describes a failed platform call
type ActionError struct {
	Op   string
	Kind error // ErrPermissionDenied, ErrNetwork or nil when unclassified
	Err  error
}

func (e *ActionError) Error() string {
	if e.Kind != nil {
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ActionError) Unwrap() []error {
	if e.Kind != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Err}
}

// PlatformRepo is the chat platform adapter
type PlatformRepo interface {
	// RecallMessage deletes a message from the group
	RecallMessage(ctx context.Context, groupID, messageID string) error

	// MuteUser silences a member for the given duration
	MuteUser(ctx context.Context, groupID, userID string, d time.Duration) error

	// UnmuteUser lifts a member mute
	UnmuteUser(ctx context.Context, groupID, userID string) error

	// MuteGroup toggles the whole-group mute
	MuteGroup(ctx context.Context, groupID string, enabled bool) error

	// KickUser removes a member, optionally refusing future join requests
	KickUser(ctx context.Context, groupID, userID string, block bool) error

	// SendGroupMessage posts a text message to a group
	SendGroupMessage(ctx context.Context, groupID, text string) error

	// SendGroupMessageMentionAll posts a text message mentioning everyone
	SendGroupMessageMentionAll(ctx context.Context, groupID, text string) error

	// SendDirectMessage sends a private message to a user
	SendDirectMessage(ctx context.Context, userID, text string) error

	// FetchImage downloads an image attached to a message
	FetchImage(ctx context.Context, msg *domain.Message, ref domain.ImageRef) ([]byte, error)
}
