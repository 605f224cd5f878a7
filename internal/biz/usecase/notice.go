package usecase

import (
	"bytes"
	"fmt"
	"text/template"
	"time"
)

// NoticeKind selects a notification template
type NoticeKind string

const (
	NoticeViolation    NoticeKind = "violation"
	NoticeSuspicious   NoticeKind = "suspicious"
	NoticeMute         NoticeKind = "mute"
	NoticeKick         NoticeKind = "kick"
	NoticeGroupMute    NoticeKind = "group_mute"
	NoticeReviewFailed NoticeKind = "review_failed"
	NoticePolicyError  NoticeKind = "policy_error"
	NoticeActionFailed NoticeKind = "action_failed"
)

// NoticeTemplates holds text/template sources for every notice
type NoticeTemplates struct {
	Violation    string
	Suspicious   string
	Mute         string
	Kick         string
	GroupMute    string
	ReviewFailed string
	PolicyError  string
	ActionFailed string
}

// DefaultNoticeTemplates are used for any template left empty
var DefaultNoticeTemplates = NoticeTemplates{
	Violation: `⚠️ Violation detected
Type: {{.ContentType}}
User: {{.User}}
Group: {{.GroupID}}
Reason: {{.Reason}}
Rule ID: {{.RuleID}}`,
	Suspicious: `❓ Suspicious content detected
Type: {{.ContentType}}
User: {{.User}}
Group: {{.GroupID}}
Reason: {{.Reason}}
Rule ID: {{.RuleID}}
Please verify manually.`,
	Mute: `⚠️ User muted
Group: {{.GroupID}}
User: {{.User}}
Violations in window: {{.UserCount}}
Muted for {{.MuteDuration}}, please keep an eye on it.
Rule ID: {{.RuleID}}`,
	Kick: `⚠️ User kicked
Group: {{.GroupID}}
User: {{.User}}
Violations in window: {{.UserCount}}
Blocked: {{if .Block}}yes{{else}}no{{end}}
Rule ID: {{.RuleID}}`,
	GroupMute: `⚠️ Large amount of violating content
Group: {{.GroupID}}
Violations in window: {{.GroupCount}}
Whole-group mute is on, admins please handle it.
Rule ID: {{.RuleID}}`,
	ReviewFailed: `⚠️ Content review failed
Group: {{.GroupID}}
Type: {{.ContentType}}
Reason: {{.Reason}}
Please check the classifier credentials or network.`,
	PolicyError: `⚠️ Policy for group {{.GroupID}} could not be loaded, global defaults were applied.
Error: {{.Error}}`,
	ActionFailed: `⚠️ Moderation actions failed in group {{.GroupID}}
User: {{.User}}
{{range .Failures}}- {{.}}
{{end}}`,
}

// NoticeData is the template input
type NoticeData struct {
	GroupID      string
	User         string
	ContentType  string
	Reason       string
	RuleID       string
	UserCount    int
	GroupCount   int
	MuteDuration string
	Block        bool
	Error        string
	Failures     []string
}

// Notices renders notification texts
type Notices struct {
	templates map[NoticeKind]*template.Template
}

// NewNotices parses the templates; empty entries use the defaults
func NewNotices(t NoticeTemplates) (*Notices, error) {
	sources := map[NoticeKind][2]string{
		NoticeViolation:    {t.Violation, DefaultNoticeTemplates.Violation},
		NoticeSuspicious:   {t.Suspicious, DefaultNoticeTemplates.Suspicious},
		NoticeMute:         {t.Mute, DefaultNoticeTemplates.Mute},
		NoticeKick:         {t.Kick, DefaultNoticeTemplates.Kick},
		NoticeGroupMute:    {t.GroupMute, DefaultNoticeTemplates.GroupMute},
		NoticeReviewFailed: {t.ReviewFailed, DefaultNoticeTemplates.ReviewFailed},
		NoticePolicyError:  {t.PolicyError, DefaultNoticeTemplates.PolicyError},
		NoticeActionFailed: {t.ActionFailed, DefaultNoticeTemplates.ActionFailed},
	}

	n := &Notices{templates: make(map[NoticeKind]*template.Template, len(sources))}
	for kind, src := range sources {
		text := src[0]
		if text == "" {
			text = src[1]
		}
		tmpl, err := template.New(string(kind)).Parse(text)
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", kind, err)
		}
		n.templates[kind] = tmpl
	}
	return n, nil
}

// Render executes the template of a notice kind
func (n *Notices) Render(kind NoticeKind, data NoticeData) string {
	tmpl, ok := n.templates[kind]
	if !ok {
		return fmt.Sprintf("[%s] group=%s user=%s", kind, data.GroupID, data.User)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Sprintf("[%s] group=%s user=%s (template error: %v)", kind, data.GroupID, data.User, err)
	}
	return buf.String()
}

// FormatDuration renders a mute duration the way admins read it
func FormatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "0s"
	case d%(24*time.Hour) == 0:
		return fmt.Sprintf("%dd", d/(24*time.Hour))
	case d%time.Hour == 0:
		return fmt.Sprintf("%dh", d/time.Hour)
	case d%time.Minute == 0:
		return fmt.Sprintf("%dm", d/time.Minute)
	}
	return d.String()
}
