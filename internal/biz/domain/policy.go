package domain

import "time"

// Policy is the effective moderation policy of one group
type Policy struct {
	RuleID              string
	NotifyGroupID       string
	SingleUserThreshold int // 0 disables user mute
	GroupThreshold      int // 0 disables group mute
	KickThreshold       int // 0 disables kick
	TimeWindow          time.Duration
	MuteDuration        time.Duration
	KickAndBlock        bool
	ResetOnPunish       bool // Clear the offender's window once a punishment fires
	NotifyMentionAll    bool // @all in the notify group when the group gets muted
}

// DefaultPolicy mirrors the defaults shipped with the bot
var DefaultPolicy = Policy{
	RuleID:              "default",
	SingleUserThreshold: 3,
	GroupThreshold:      5,
	KickThreshold:       5,
	TimeWindow:          300 * time.Second,
	MuteDuration:        86400 * time.Second,
	NotifyMentionAll:    true,
}

// PolicyOverride is a sparse set of policy fields; nil means inherit
type PolicyOverride struct {
	RuleID              *string        `json:"rule_id,omitempty"`
	NotifyGroupID       *string        `json:"notify_group_id,omitempty"`
	SingleUserThreshold *int           `json:"single_user_threshold,omitempty"`
	GroupThreshold      *int           `json:"group_threshold,omitempty"`
	KickThreshold       *int           `json:"kick_threshold,omitempty"`
	TimeWindow          *time.Duration `json:"time_window,omitempty"`
	MuteDuration        *time.Duration `json:"mute_duration,omitempty"`
	KickAndBlock        *bool          `json:"kick_and_block,omitempty"`
	ResetOnPunish       *bool          `json:"reset_on_punish,omitempty"`
	NotifyMentionAll    *bool          `json:"notify_mention_all,omitempty"`
}

// IsEmpty reports whether the override sets no field
func (o PolicyOverride) IsEmpty() bool {
	return o == PolicyOverride{}
}

// Apply returns a copy of p with every non-nil field of o applied
func (o PolicyOverride) Apply(p Policy) Policy {
	if o.RuleID != nil {
		p.RuleID = *o.RuleID
	}
	if o.NotifyGroupID != nil {
		p.NotifyGroupID = *o.NotifyGroupID
	}
	if o.SingleUserThreshold != nil {
		p.SingleUserThreshold = *o.SingleUserThreshold
	}
	if o.GroupThreshold != nil {
		p.GroupThreshold = *o.GroupThreshold
	}
	if o.KickThreshold != nil {
		p.KickThreshold = *o.KickThreshold
	}
	if o.TimeWindow != nil {
		p.TimeWindow = *o.TimeWindow
	}
	if o.MuteDuration != nil {
		p.MuteDuration = *o.MuteDuration
	}
	if o.KickAndBlock != nil {
		p.KickAndBlock = *o.KickAndBlock
	}
	if o.ResetOnPunish != nil {
		p.ResetOnPunish = *o.ResetOnPunish
	}
	if o.NotifyMentionAll != nil {
		p.NotifyMentionAll = *o.NotifyMentionAll
	}
	return p
}

// Merge layers other on top of o; fields set in other win
func (o PolicyOverride) Merge(other PolicyOverride) PolicyOverride {
	if other.RuleID != nil {
		o.RuleID = other.RuleID
	}
	if other.NotifyGroupID != nil {
		o.NotifyGroupID = other.NotifyGroupID
	}
	if other.SingleUserThreshold != nil {
		o.SingleUserThreshold = other.SingleUserThreshold
	}
	if other.GroupThreshold != nil {
		o.GroupThreshold = other.GroupThreshold
	}
	if other.KickThreshold != nil {
		o.KickThreshold = other.KickThreshold
	}
	if other.TimeWindow != nil {
		o.TimeWindow = other.TimeWindow
	}
	if other.MuteDuration != nil {
		o.MuteDuration = other.MuteDuration
	}
	if other.KickAndBlock != nil {
		o.KickAndBlock = other.KickAndBlock
	}
	if other.ResetOnPunish != nil {
		o.ResetOnPunish = other.ResetOnPunish
	}
	if other.NotifyMentionAll != nil {
		o.NotifyMentionAll = other.NotifyMentionAll
	}
	return o
}

// MergePolicy applies overrides in order on top of base
func MergePolicy(base Policy, overrides ...PolicyOverride) Policy {
	for _, o := range overrides {
		base = o.Apply(base)
	}
	return base.normalized()
}

// normalized clamps negative values to their disabled form
func (p Policy) normalized() Policy {
	if p.SingleUserThreshold < 0 {
		p.SingleUserThreshold = 0
	}
	if p.GroupThreshold < 0 {
		p.GroupThreshold = 0
	}
	if p.KickThreshold < 0 {
		p.KickThreshold = 0
	}
	if p.TimeWindow < 0 {
		p.TimeWindow = 0
	}
	if p.MuteDuration < 0 {
		p.MuteDuration = 0
	}
	return p
}
