package server

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/groupguard/groupguard/internal/biz/domain"
	"github.com/groupguard/groupguard/internal/infra/onebot"
)

const maxEventSize = 1 << 20

// handleOneBotEvent receives OneBot v11 HTTP POST events. Non-message events
// are acknowledged and dropped.
func (s *AdminServer) handleOneBotEvent(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxEventSize))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read body")
	}
	if s.onebotSecret != "" && !onebot.VerifySignature(s.onebotSecret, c.Request().Header.Get("X-Signature"), body) {
		return echo.NewHTTPError(http.StatusUnauthorized, "bad signature")
	}

	var ev onebot.Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid event")
	}
	if ev.PostType != "message" || ev.UserID == ev.SelfID {
		return c.NoContent(http.StatusNoContent)
	}

	msg, err := eventMessage(&ev)
	if err != nil {
		s.logger.Warn("failed to decode onebot message", "message", ev.MessageID, "err", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid message")
	}
	if err := s.messages.HandleMessage(msg); err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func eventMessage(ev *onebot.Event) (*domain.Message, error) {
	segs, err := ev.Segments()
	if err != nil {
		return nil, err
	}
	text, urls := onebot.Content(segs)

	msg := &domain.Message{
		ID:         ev.MessageID.String(),
		ChatType:   domain.ChatTypeP2P,
		SenderID:   ev.UserID.String(),
		SenderName: ev.SenderName(),
		Text:       text,
	}
	if ev.IsGroupMessage() {
		msg.ChatType = domain.ChatTypeGroup
		msg.GroupID = ev.GroupID.String()
	}
	if ev.Time > 0 {
		msg.CreateTime = time.Unix(ev.Time, 0)
	}
	for _, u := range urls {
		msg.Images = append(msg.Images, domain.ImageRef{URL: u})
	}
	return msg, nil
}
