package domain

import (
	"testing"
	"time"
)

func TestMessage_IsGroup(t *testing.T) {
	msg := &Message{ID: "m1", GroupID: "g1", ChatType: ChatTypeGroup}
	if !msg.IsGroup() {
		t.Error("Expected group message")
	}

	msg = &Message{ID: "m2", ChatType: ChatTypeP2P}
	if msg.IsGroup() {
		t.Error("Expected direct message")
	}

	msg = &Message{ID: "m3", ChatType: ChatTypeGroup}
	if msg.IsGroup() {
		t.Error("Expected group message without group id to be rejected")
	}
}

func TestMessage_Sender(t *testing.T) {
	msg := &Message{SenderID: "u1"}
	if got := msg.Sender(); got != "u1" {
		t.Errorf("Sender() = %q, want %q", got, "u1")
	}

	msg.SenderName = "Alice"
	if got := msg.Sender(); got != "Alice (u1)" {
		t.Errorf("Sender() = %q, want %q", got, "Alice (u1)")
	}
}

func TestActiveMute_IsDue(t *testing.T) {
	now := time.Now()
	m := &ActiveMute{GroupID: "g1", UserID: "u1", Until: now.Add(time.Minute)}
	if m.IsDue(now) {
		t.Error("Expected mute not yet due")
	}
	if !m.IsDue(now.Add(time.Minute)) {
		t.Error("Expected mute due at its deadline")
	}
}
