package data

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/groupguard/groupguard/internal/biz/domain"
	"github.com/groupguard/groupguard/internal/biz/repo"
	"github.com/groupguard/groupguard/internal/infra/onebot"
)

// onebotAPI is the part of the OneBot client the platform adapter uses
type onebotAPI interface {
	DeleteMsg(ctx context.Context, messageID string) error
	SetGroupBan(ctx context.Context, groupID, userID string, seconds int64) error
	SetGroupWholeBan(ctx context.Context, groupID string, enable bool) error
	SetGroupKick(ctx context.Context, groupID, userID string, reject bool) error
	SendGroupMsg(ctx context.Context, groupID, message string) error
	SendPrivateMsg(ctx context.Context, userID, message string) error
	FetchURL(ctx context.Context, url string) ([]byte, error)
}

// onebotRepo implements PlatformRepo on the OneBot v11 HTTP API (QQ)
type onebotRepo struct {
	client onebotAPI
}

// NewOneBotRepo creates the OneBot platform repository
func NewOneBotRepo(client onebotAPI) repo.PlatformRepo {
	return &onebotRepo{client: client}
}

// RecallMessage deletes a message
func (r *onebotRepo) RecallMessage(ctx context.Context, groupID, messageID string) error {
	return onebotActionError("recall", r.client.DeleteMsg(ctx, messageID))
}

// MuteUser mutes a member; QQ lifts the mute on its own when it expires
func (r *onebotRepo) MuteUser(ctx context.Context, groupID, userID string, d time.Duration) error {
	seconds := int64(d / time.Second)
	if seconds <= 0 {
		seconds = 60
	}
	return onebotActionError("mute_user", r.client.SetGroupBan(ctx, groupID, userID, seconds))
}

// UnmuteUser lifts a member mute
func (r *onebotRepo) UnmuteUser(ctx context.Context, groupID, userID string) error {
	return onebotActionError("unmute_user", r.client.SetGroupBan(ctx, groupID, userID, 0))
}

// MuteGroup toggles the whole-group mute
func (r *onebotRepo) MuteGroup(ctx context.Context, groupID string, enabled bool) error {
	return onebotActionError("mute_group", r.client.SetGroupWholeBan(ctx, groupID, enabled))
}

// KickUser removes a member, rejecting future join requests when block is set
func (r *onebotRepo) KickUser(ctx context.Context, groupID, userID string, block bool) error {
	return onebotActionError("kick_user", r.client.SetGroupKick(ctx, groupID, userID, block))
}

// SendGroupMessage posts a text message to a group
func (r *onebotRepo) SendGroupMessage(ctx context.Context, groupID, text string) error {
	return onebotActionError("send_group_message", r.client.SendGroupMsg(ctx, groupID, onebot.EscapeCQ(text)))
}

// SendGroupMessageMentionAll posts a text message mentioning everyone
func (r *onebotRepo) SendGroupMessageMentionAll(ctx context.Context, groupID, text string) error {
	return onebotActionError("send_group_message", r.client.SendGroupMsg(ctx, groupID, onebot.MentionAll(text)))
}

// SendDirectMessage sends a private message to a user
func (r *onebotRepo) SendDirectMessage(ctx context.Context, userID, text string) error {
	return onebotActionError("send_direct_message", r.client.SendPrivateMsg(ctx, userID, onebot.EscapeCQ(text)))
}

// FetchImage downloads an image by its segment URL
func (r *onebotRepo) FetchImage(ctx context.Context, msg *domain.Message, ref domain.ImageRef) ([]byte, error) {
	if ref.URL == "" {
		return nil, &repo.ActionError{Op: "fetch_image", Err: errors.New("image has no url")}
	}
	data, err := r.client.FetchURL(ctx, ref.URL)
	if err != nil {
		return nil, onebotActionError("fetch_image", err)
	}
	return data, nil
}

// onebotActionError classifies a OneBot failure
func onebotActionError(op string, err error) error {
	if err == nil {
		return nil
	}

	var actionErr *onebot.ActionError
	var statusErr *onebot.StatusError
	switch {
	case errors.As(err, &actionErr):
		var kind error
		msg := strings.ToLower(actionErr.Msg)
		if strings.Contains(msg, "permission") || strings.Contains(msg, "权限") {
			kind = repo.ErrPermissionDenied
		}
		return &repo.ActionError{Op: op, Kind: kind, Err: err}
	case errors.As(err, &statusErr):
		var kind error
		if statusErr.Status == http.StatusUnauthorized || statusErr.Status == http.StatusForbidden {
			kind = repo.ErrPermissionDenied
		}
		return &repo.ActionError{Op: op, Kind: kind, Err: err}
	}
	return &repo.ActionError{Op: op, Kind: repo.ErrNetwork, Err: err}
}
