package onebot

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Event is an inbound OneBot v11 event. Only message fields are decoded.
type Event struct {
	PostType    string          `json:"post_type"`
	MessageType string          `json:"message_type"`
	SubType     string          `json:"sub_type"`
	Time        int64           `json:"time"`
	SelfID      json.Number     `json:"self_id"`
	MessageID   json.Number     `json:"message_id"`
	GroupID     json.Number     `json:"group_id"`
	UserID      json.Number     `json:"user_id"`
	RawMessage  string          `json:"raw_message"`
	Message     json.RawMessage `json:"message"`
	Sender      struct {
		Nickname string `json:"nickname"`
		Card     string `json:"card"`
	} `json:"sender"`
}

// Segment is one element of an array-format message
type Segment struct {
	Type string            `json:"type"`
	Data map[string]string `json:"data"`
}

// IsGroupMessage reports whether the event is a message posted in a group
func (e *Event) IsGroupMessage() bool {
	return e.PostType == "message" && e.MessageType == "group" && e.GroupID != ""
}

// SenderName returns the group card, falling back to the nickname
func (e *Event) SenderName() string {
	if e.Sender.Card != "" {
		return e.Sender.Card
	}
	return e.Sender.Nickname
}

// Segments decodes the message in array or CQ-string format
func (e *Event) Segments() ([]Segment, error) {
	msg := strings.TrimSpace(string(e.Message))
	if msg == "" {
		return ParseCQ(e.RawMessage), nil
	}
	if strings.HasPrefix(msg, "[") {
		var raw []struct {
			Type string                     `json:"type"`
			Data map[string]json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(e.Message, &raw); err != nil {
			return nil, fmt.Errorf("decode message segments: %w", err)
		}
		segs := make([]Segment, 0, len(raw))
		for _, r := range raw {
			seg := Segment{Type: r.Type, Data: make(map[string]string, len(r.Data))}
			for k, v := range r.Data {
				seg.Data[k] = rawString(v)
			}
			segs = append(segs, seg)
		}
		return segs, nil
	}

	var s string
	if err := json.Unmarshal(e.Message, &s); err != nil {
		return nil, fmt.Errorf("decode message string: %w", err)
	}
	return ParseCQ(s), nil
}

// Content splits segments into plain text and image URLs
func Content(segs []Segment) (string, []string) {
	var text strings.Builder
	var images []string
	for _, s := range segs {
		switch s.Type {
		case "text":
			text.WriteString(s.Data["text"])
		case "image":
			if url := s.Data["url"]; url != "" {
				images = append(images, url)
			}
		}
	}
	return strings.TrimSpace(text.String()), images
}

// ParseCQ parses a CQ-code string into segments
func ParseCQ(s string) []Segment {
	var segs []Segment
	for len(s) > 0 {
		start := strings.Index(s, "[CQ:")
		if start < 0 {
			segs = append(segs, textSegment(s))
			break
		}
		if start > 0 {
			segs = append(segs, textSegment(s[:start]))
		}
		end := strings.Index(s[start:], "]")
		if end < 0 {
			segs = append(segs, textSegment(s[start:]))
			break
		}
		segs = append(segs, parseCQCode(s[start+4:start+end]))
		s = s[start+end+1:]
	}
	return segs
}

func parseCQCode(code string) Segment {
	parts := strings.Split(code, ",")
	seg := Segment{Type: parts[0], Data: make(map[string]string, len(parts)-1)}
	for _, p := range parts[1:] {
		k, v, ok := strings.Cut(p, "=")
		if ok {
			seg.Data[k] = unescapeCQ(v)
		}
	}
	return seg
}

func textSegment(s string) Segment {
	return Segment{Type: "text", Data: map[string]string{"text": unescapeCQ(s)}}
}

var (
	cqUnescaper = strings.NewReplacer("&#91;", "[", "&#93;", "]", "&#44;", ",", "&amp;", "&")
	cqEscaper   = strings.NewReplacer("&", "&amp;", "[", "&#91;", "]", "&#93;", ",", "&#44;")
)

// EscapeCQ makes plain text safe to embed in a CQ-coded message, so that
// user-supplied names cannot smuggle in segments
func EscapeCQ(s string) string {
	return cqEscaper.Replace(s)
}

func unescapeCQ(s string) string {
	return cqUnescaper.Replace(s)
}

func rawString(v json.RawMessage) string {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		return n.String()
	}
	return string(v)
}
