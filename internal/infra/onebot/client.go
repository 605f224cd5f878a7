package onebot

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
)

// maxImageBytes bounds image downloads
const maxImageBytes = 10 << 20

// ActionError is a non-ok response to an action call
type ActionError struct {
	Action  string
	RetCode int
	Msg     string
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s failed: retcode=%d msg=%s", e.Action, e.RetCode, e.Msg)
}

// StatusError is a non-2xx HTTP status from the API endpoint
type StatusError struct {
	Action string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: http status %d", e.Action, e.Status)
}

type actionResponse struct {
	Status  string          `json:"status"`
	RetCode int             `json:"retcode"`
	Msg     string          `json:"msg"`
	Wording string          `json:"wording"`
	Data    json.RawMessage `json:"data"`
}

// Client calls the OneBot v11 HTTP API
type Client struct {
	apiURL      string
	accessToken string
	http        *http.Client // Action calls, never retried
	download    *http.Client // Image downloads
	logger      *slog.Logger
}

// NewClient creates a OneBot client
func NewClient(apiURL, accessToken string, actions, download *http.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		apiURL:      strings.TrimRight(apiURL, "/"),
		accessToken: accessToken,
		http:        actions,
		download:    download,
		logger:      logger.With("component", "onebot"),
	}
}

// Call invokes an action and decodes its data into out, if non-nil
func (c *Client) Call(ctx context.Context, action string, params map[string]any, out any) error {
	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode %s params: %w", action, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/"+action, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", action, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Action: action, Status: resp.StatusCode}
	}

	var result actionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode %s response: %w", action, err)
	}
	if result.RetCode != 0 || (result.Status != "" && result.Status != "ok" && result.Status != "async") {
		msg := result.Wording
		if msg == "" {
			msg = result.Msg
		}
		return &ActionError{Action: action, RetCode: result.RetCode, Msg: msg}
	}

	c.logger.Debug("action ok", "action", action)
	if out != nil && len(result.Data) > 0 {
		if err := json.Unmarshal(result.Data, out); err != nil {
			return fmt.Errorf("decode %s data: %w", action, err)
		}
	}
	return nil
}

// DeleteMsg recalls a message
func (c *Client) DeleteMsg(ctx context.Context, messageID string) error {
	return c.Call(ctx, "delete_msg", map[string]any{"message_id": ID(messageID)}, nil)
}

// SetGroupBan mutes a member for seconds; 0 lifts the mute
func (c *Client) SetGroupBan(ctx context.Context, groupID, userID string, seconds int64) error {
	return c.Call(ctx, "set_group_ban", map[string]any{
		"group_id": ID(groupID),
		"user_id":  ID(userID),
		"duration": seconds,
	}, nil)
}

// SetGroupWholeBan toggles the whole-group mute
func (c *Client) SetGroupWholeBan(ctx context.Context, groupID string, enable bool) error {
	return c.Call(ctx, "set_group_whole_ban", map[string]any{
		"group_id": ID(groupID),
		"enable":   enable,
	}, nil)
}

// SetGroupKick removes a member, optionally rejecting future join requests
func (c *Client) SetGroupKick(ctx context.Context, groupID, userID string, reject bool) error {
	return c.Call(ctx, "set_group_kick", map[string]any{
		"group_id":           ID(groupID),
		"user_id":            ID(userID),
		"reject_add_request": reject,
	}, nil)
}

// SendGroupMsg posts a message to a group
func (c *Client) SendGroupMsg(ctx context.Context, groupID, message string) error {
	return c.Call(ctx, "send_group_msg", map[string]any{
		"group_id": ID(groupID),
		"message":  message,
	}, nil)
}

// SendPrivateMsg sends a private message
func (c *Client) SendPrivateMsg(ctx context.Context, userID, message string) error {
	return c.Call(ctx, "send_private_msg", map[string]any{
		"user_id": ID(userID),
		"message": message,
	}, nil)
}

// FetchURL downloads an image referenced by a message segment
func (c *Client) FetchURL(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build image request: %w", err)
	}
	resp, err := c.download.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Action: "download image", Status: resp.StatusCode}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", maxImageBytes)
	}
	return data, nil
}

// ID sends numeric ids as numbers, which most implementations require
func ID(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	return s
}

// MentionAll prefixes plain text with an @all segment, escaping the text
func MentionAll(text string) string {
	return "[CQ:at,qq=all] " + EscapeCQ(text)
}

// VerifySignature checks the X-Signature header ("sha1=<hex hmac>") the
// implementation sends when a secret is configured
func VerifySignature(secret, header string, body []byte) bool {
	sig, ok := strings.CutPrefix(header, "sha1=")
	if !ok {
		return false
	}
	want, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), want)
}
