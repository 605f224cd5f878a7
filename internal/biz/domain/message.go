package domain

import "time"

// ChatType distinguishes group chats from direct chats
type ChatType string

const (
	ChatTypeGroup ChatType = "group"
	ChatTypeP2P   ChatType = "p2p"
)

// ImageRef points at an image attached to a message
type ImageRef struct {
	Key string // Platform resource key (Feishu image_key)
	URL string // Direct download URL (OneBot)
}

// Message is an inbound chat message awaiting review
type Message struct {
	ID         string
	GroupID    string
	ChatType   ChatType
	SenderID   string
	SenderName string
	Text       string
	Images     []ImageRef
	CreateTime time.Time
}

// IsGroup reports whether the message was posted in a group chat
func (m *Message) IsGroup() bool {
	return m.ChatType == ChatTypeGroup && m.GroupID != ""
}

// Sender returns a display label for the sender
func (m *Message) Sender() string {
	if m.SenderName == "" {
		return m.SenderID
	}
	return m.SenderName + " (" + m.SenderID + ")"
}
