package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/groupguard/groupguard/internal/biz/domain"
	"github.com/groupguard/groupguard/internal/infra/feishu"
)

// MessageHandler accepts inbound messages for review
type MessageHandler interface {
	HandleMessage(msg *domain.Message) error
}

// feishuSource is the part of the Feishu client the server uses
type feishuSource interface {
	OnMessage(handler feishu.MessageHandler)
	Start(ctx context.Context) error
	Stop()
	GetChatMembers(ctx context.Context, chatID string) ([]*feishu.ChatMember, error)
}

// FeishuServer turns Feishu message events into review requests
type FeishuServer struct {
	client  feishuSource
	handler MessageHandler
	logger  *slog.Logger

	// chat -> open_id -> display name
	names *expirable.LRU[string, map[string]string]
}

// NewFeishuServer creates a new Feishu server
func NewFeishuServer(client feishuSource, handler MessageHandler, logger *slog.Logger) *FeishuServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &FeishuServer{
		client:  client,
		handler: handler,
		logger:  logger.With("component", "feishu_server"),
		names:   expirable.NewLRU[string, map[string]string](256, nil, 30*time.Minute),
	}
}

// Start listens for messages and blocks until ctx ends or the connection fails
func (s *FeishuServer) Start(ctx context.Context) error {
	s.client.OnMessage(s.handleMessage)
	return s.client.Start(ctx)
}

// Stop disconnects from Feishu
func (s *FeishuServer) Stop() {
	s.client.Stop()
}

func (s *FeishuServer) handleMessage(msg *feishu.Message) {
	m := toDomainMessage(msg)
	s.logger.Debug("received message",
		"type", msg.MsgType,
		"chat", msg.ChatID,
		"chat_type", msg.ChatType,
		"message", msg.MsgID,
		"images", len(msg.ImageKeys),
	)

	if m.IsGroup() && m.SenderID != "" {
		m.SenderName = s.memberName(m.GroupID, m.SenderID)
	}
	if err := s.handler.HandleMessage(m); err != nil {
		s.logger.Warn("message not accepted", "message", msg.MsgID, "err", err)
	}
}

// memberName looks the sender up in a cached member list of the chat
func (s *FeishuServer) memberName(chatID, openID string) string {
	names, ok := s.names.Get(chatID)
	if !ok || names[openID] == "" {
		members, err := s.client.GetChatMembers(context.Background(), chatID)
		if err != nil {
			s.logger.Debug("failed to load chat members", "chat", chatID, "err", err)
			return ""
		}
		names = make(map[string]string, len(members))
		for _, m := range members {
			names[m.MemberID] = m.Name
		}
		s.names.Add(chatID, names)
	}
	return names[openID]
}

func toDomainMessage(msg *feishu.Message) *domain.Message {
	m := &domain.Message{
		ID:       msg.MsgID,
		GroupID:  msg.ChatID,
		ChatType: domain.ChatTypeP2P,
		Text:     msg.Content,
	}
	if msg.ChatType == "group" {
		m.ChatType = domain.ChatTypeGroup
	}
	if msg.Sender != nil {
		m.SenderID = msg.Sender.SenderID
	}
	if msg.CreateTime > 0 {
		m.CreateTime = time.UnixMilli(msg.CreateTime)
	}
	for _, key := range msg.ImageKeys {
		m.Images = append(m.Images, domain.ImageRef{Key: key})
	}
	return m
}
