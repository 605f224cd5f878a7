package data

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/groupguard/groupguard/internal/biz/domain"
	"github.com/groupguard/groupguard/internal/biz/repo"
	"github.com/groupguard/groupguard/internal/infra/feishu"
)

// Feishu error codes that mean the bot lacks rights
var feishuPermissionCodes = map[int]bool{
	230027:   true, // lack of necessary permissions
	232017:   true, // operator is not chat owner or admin
	99991672: true, // app scope not granted
	99991679: true, // user scope not granted
}

// feishuAPI is the part of the Feishu client the platform adapter uses
type feishuAPI interface {
	RecallMessage(ctx context.Context, messageID string) error
	RemoveMembers(ctx context.Context, chatID string, openIDs []string) error
	UpdateModeration(ctx context.Context, chatID, setting string, added, removed []string) error
	GetChatMembers(ctx context.Context, chatID string) ([]*feishu.ChatMember, error)
	SendText(ctx context.Context, chatID, text string) error
	SendTextMentionAll(ctx context.Context, chatID, text string) error
	SendDirectText(ctx context.Context, openID, text string) error
	DownloadImage(ctx context.Context, messageID, imageKey string) ([]byte, error)
}

// muteLister reads the mutes recorded by earlier runs
type muteLister interface {
	ListMutes(ctx context.Context, groupID string) ([]*domain.ActiveMute, error)
}

// feishuRepo implements PlatformRepo on Feishu. Feishu has no per-member
// mute, so muted members are dropped from the chat's speaker list while the
// rest of the members stay on it; the unmute runner restores them.
type feishuRepo struct {
	client feishuAPI
	mutes  muteLister
	logger *slog.Logger

	mu         sync.Mutex
	muted      map[string]map[string]struct{} // chat -> muted open_ids
	loaded     map[string]bool                // chats seeded from the mute store
	groupMuted map[string]bool
}

// NewFeishuRepo creates the Feishu platform repository. mutes seeds the muted
// members of a chat the first time it is touched, so mutes that outlive a
// restart keep their members off the speaker list; it may be nil.
func NewFeishuRepo(client feishuAPI, mutes repo.MuteRepo, logger *slog.Logger) repo.PlatformRepo {
	r := newFeishuRepo(client, logger)
	if mutes != nil {
		r.mutes = mutes
	}
	return r
}

func newFeishuRepo(client feishuAPI, logger *slog.Logger) *feishuRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &feishuRepo{
		client:     client,
		logger:     logger.With("component", "feishu_repo"),
		muted:      make(map[string]map[string]struct{}),
		loaded:     make(map[string]bool),
		groupMuted: make(map[string]bool),
	}
}

// mutedSet returns the muted members of a chat. Callers hold r.mu.
func (r *feishuRepo) mutedSet(ctx context.Context, groupID string) (map[string]struct{}, error) {
	set := r.muted[groupID]
	if set == nil {
		set = make(map[string]struct{})
		r.muted[groupID] = set
	}
	if r.mutes == nil || r.loaded[groupID] {
		return set, nil
	}

	active, err := r.mutes.ListMutes(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("load active mutes: %w", err)
	}
	for _, m := range active {
		set[m.UserID] = struct{}{}
	}
	r.loaded[groupID] = true
	return set, nil
}

// RecallMessage deletes a message
func (r *feishuRepo) RecallMessage(ctx context.Context, groupID, messageID string) error {
	return feishuActionError("recall", r.client.RecallMessage(ctx, messageID))
}

// MuteUser takes the member off the speaker list. The duration is enforced
// by the unmute runner.
func (r *feishuRepo) MuteUser(ctx context.Context, groupID, userID string, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, err := r.mutedSet(ctx, groupID)
	if err != nil {
		return feishuActionError("mute_user", err)
	}
	if _, ok := set[userID]; ok {
		return nil
	}
	set[userID] = struct{}{}

	switch {
	case r.groupMuted[groupID]:
		// Nobody may speak; the member is excluded once the group mute is lifted
	case len(set) == 1:
		err = r.restrictTo(ctx, groupID, set)
	default:
		err = r.client.UpdateModeration(ctx, groupID, feishu.ModerationModeratorList, nil, []string{userID})
	}
	if err != nil {
		delete(set, userID)
		return feishuActionError("mute_user", err)
	}
	return nil
}

// UnmuteUser puts the member back on the speaker list
func (r *feishuRepo) UnmuteUser(ctx context.Context, groupID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, err := r.mutedSet(ctx, groupID)
	if err != nil {
		return feishuActionError("unmute_user", err)
	}
	delete(set, userID)

	switch {
	case r.groupMuted[groupID]:
	case len(set) == 0:
		delete(r.muted, groupID)
		err = r.client.UpdateModeration(ctx, groupID, feishu.ModerationAllMembers, nil, nil)
	default:
		err = r.client.UpdateModeration(ctx, groupID, feishu.ModerationModeratorList, []string{userID}, nil)
	}
	return feishuActionError("unmute_user", err)
}

// MuteGroup lets only the owner speak, or restores the previous speakers
func (r *feishuRepo) MuteGroup(ctx context.Context, groupID string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, err := r.mutedSet(ctx, groupID)
	if err != nil {
		return feishuActionError("mute_group", err)
	}

	switch {
	case enabled:
		err = r.client.UpdateModeration(ctx, groupID, feishu.ModerationOnlyOwner, nil, nil)
	case len(set) > 0:
		err = r.restrictTo(ctx, groupID, set)
	default:
		err = r.client.UpdateModeration(ctx, groupID, feishu.ModerationAllMembers, nil, nil)
	}
	if err != nil {
		return feishuActionError("mute_group", err)
	}
	r.groupMuted[groupID] = enabled
	return nil
}

// restrictTo switches the chat to a speaker list of every member except the muted ones
func (r *feishuRepo) restrictTo(ctx context.Context, groupID string, muted map[string]struct{}) error {
	members, err := r.client.GetChatMembers(ctx, groupID)
	if err != nil {
		return err
	}
	speakers := make([]string, 0, len(members))
	for _, m := range members {
		if _, ok := muted[m.MemberID]; !ok {
			speakers = append(speakers, m.MemberID)
		}
	}
	return r.client.UpdateModeration(ctx, groupID, feishu.ModerationModeratorList, speakers, nil)
}

// KickUser removes the member. Feishu has no join blocklist, so block is only logged.
func (r *feishuRepo) KickUser(ctx context.Context, groupID, userID string, block bool) error {
	if block {
		r.logger.Debug("kick with block requested, feishu cannot block rejoining", "group", groupID, "user", userID)
	}
	return feishuActionError("kick_user", r.client.RemoveMembers(ctx, groupID, []string{userID}))
}

// SendGroupMessage posts a text message to a group
func (r *feishuRepo) SendGroupMessage(ctx context.Context, groupID, text string) error {
	return feishuActionError("send_group_message", r.client.SendText(ctx, groupID, text))
}

// SendGroupMessageMentionAll posts a text message mentioning everyone
func (r *feishuRepo) SendGroupMessageMentionAll(ctx context.Context, groupID, text string) error {
	return feishuActionError("send_group_message", r.client.SendTextMentionAll(ctx, groupID, text))
}

// SendDirectMessage sends a private message to a user
func (r *feishuRepo) SendDirectMessage(ctx context.Context, userID, text string) error {
	return feishuActionError("send_direct_message", r.client.SendDirectText(ctx, userID, text))
}

// FetchImage downloads an image attached to a message
func (r *feishuRepo) FetchImage(ctx context.Context, msg *domain.Message, ref domain.ImageRef) ([]byte, error) {
	data, err := r.client.DownloadImage(ctx, msg.ID, ref.Key)
	if err != nil {
		return nil, feishuActionError("fetch_image", err)
	}
	return data, nil
}

// feishuActionError classifies a Feishu failure
func feishuActionError(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *feishu.APIError
	if errors.As(err, &apiErr) {
		var kind error
		if feishuPermissionCodes[apiErr.Code] {
			kind = repo.ErrPermissionDenied
		}
		return &repo.ActionError{Op: op, Kind: kind, Err: err}
	}
	return &repo.ActionError{Op: op, Kind: repo.ErrNetwork, Err: err}
}
