package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/groupguard/groupguard/internal/biz/domain"
	"github.com/groupguard/groupguard/internal/conf"
)

// GroupInput selects a group
type GroupInput struct {
	GroupID string `json:"group_id" jsonschema:"the group (chat) id"`
}

// PolicyOutput is a policy in policy.yaml terms. Durations are seconds.
type PolicyOutput struct {
	GroupID             string `json:"group_id"`
	RuleID              string `json:"rule_id"`
	NotifyGroupID       string `json:"notify_group_id"`
	TimeWindow          int64  `json:"time_window"`
	SingleUserThreshold int    `json:"single_user_violation_threshold"`
	MuteDuration        int64  `json:"mute_duration"`
	KickThreshold       int    `json:"kick_user_threshold"`
	KickAndBlock        bool   `json:"is_kick_user_and_block"`
	GroupThreshold      int    `json:"group_violation_threshold"`
	ResetOnPunish       bool   `json:"reset_on_punish"`
	NotifyMentionAll    bool   `json:"notify_mention_all"`
	Warning             string `json:"warning,omitempty"`
}

func policyOutput(groupID string, p domain.Policy) PolicyOutput {
	return PolicyOutput{
		GroupID:             groupID,
		RuleID:              p.RuleID,
		NotifyGroupID:       p.NotifyGroupID,
		TimeWindow:          int64(p.TimeWindow / time.Second),
		SingleUserThreshold: p.SingleUserThreshold,
		MuteDuration:        int64(p.MuteDuration / time.Second),
		KickThreshold:       p.KickThreshold,
		KickAndBlock:        p.KickAndBlock,
		GroupThreshold:      p.GroupThreshold,
		ResetOnPunish:       p.ResetOnPunish,
		NotifyMentionAll:    p.NotifyMentionAll,
	}
}

func (s *Server) handleGetEffectivePolicy(ctx context.Context, req *mcp.CallToolRequest, input GroupInput) (*mcp.CallToolResult, PolicyOutput, error) {
	if input.GroupID == "" {
		return nil, PolicyOutput{}, errors.New("group_id is required")
	}
	return nil, s.effectivePolicy(ctx, input.GroupID), nil
}

func (s *Server) effectivePolicy(ctx context.Context, groupID string) PolicyOutput {
	policy, err := s.deps.Policies.Resolve(ctx, groupID)
	out := policyOutput(groupID, policy)
	if err != nil {
		out.Warning = "stored override unavailable: " + err.Error()
	}
	return out
}

// SetOverrideInput is a partial policy; omitted fields keep their value
type SetOverrideInput struct {
	GroupID             string  `json:"group_id" jsonschema:"the group (chat) id"`
	RuleID              *string `json:"rule_id,omitempty" jsonschema:"classifier rule or strategy id"`
	NotifyGroupID       *string `json:"notify_group_id,omitempty" jsonschema:"group receiving notices, empty to disable"`
	TimeWindow          *int    `json:"time_window,omitempty" jsonschema:"counting window in seconds"`
	SingleUserThreshold *int    `json:"single_user_violation_threshold,omitempty" jsonschema:"violations before a member is muted, 0 disables"`
	MuteDuration        *int    `json:"mute_duration,omitempty" jsonschema:"member mute length in seconds"`
	KickThreshold       *int    `json:"kick_user_threshold,omitempty" jsonschema:"violations before a member is kicked, 0 disables"`
	KickAndBlock        *bool   `json:"is_kick_user_and_block,omitempty" jsonschema:"refuse the kicked member's future join requests"`
	GroupThreshold      *int    `json:"group_violation_threshold,omitempty" jsonschema:"violations before the whole group is muted, 0 disables"`
	ResetOnPunish       *bool   `json:"reset_on_punish,omitempty" jsonschema:"clear counts once a punishment fires"`
	NotifyMentionAll    *bool   `json:"notify_mention_all,omitempty" jsonschema:"mention everyone when the group gets muted"`
}

func (in SetOverrideInput) rule() conf.GroupRule {
	return conf.GroupRule{
		GroupID:             in.GroupID,
		RuleID:              in.RuleID,
		NotifyGroupID:       in.NotifyGroupID,
		TimeWindow:          in.TimeWindow,
		SingleUserThreshold: in.SingleUserThreshold,
		MuteDuration:        in.MuteDuration,
		KickThreshold:       in.KickThreshold,
		KickAndBlock:        in.KickAndBlock,
		GroupThreshold:      in.GroupThreshold,
		ResetOnPunish:       in.ResetOnPunish,
		NotifyMentionAll:    in.NotifyMentionAll,
	}
}

func (s *Server) handleSetGroupOverride(ctx context.Context, req *mcp.CallToolRequest, input SetOverrideInput) (*mcp.CallToolResult, PolicyOutput, error) {
	if input.GroupID == "" {
		return nil, PolicyOutput{}, errors.New("group_id is required")
	}
	rule := input.rule()
	if err := rule.Validate(); err != nil {
		return nil, PolicyOutput{}, err
	}
	patch := rule.ToOverride()
	if patch.IsEmpty() {
		return nil, PolicyOutput{}, errors.New("no settings given")
	}

	current, err := s.deps.Overrides.GetOverride(ctx, input.GroupID)
	if err != nil {
		return nil, PolicyOutput{}, fmt.Errorf("load override: %w", err)
	}
	if err := s.deps.Overrides.SaveOverride(ctx, input.GroupID, current.Merge(patch)); err != nil {
		return nil, PolicyOutput{}, fmt.Errorf("save override: %w", err)
	}

	s.logger.Info("group override updated", "group", input.GroupID)
	return nil, s.effectivePolicy(ctx, input.GroupID), nil
}

func (s *Server) handleClearGroupOverride(ctx context.Context, req *mcp.CallToolRequest, input GroupInput) (*mcp.CallToolResult, PolicyOutput, error) {
	if input.GroupID == "" {
		return nil, PolicyOutput{}, errors.New("group_id is required")
	}
	if err := s.deps.Overrides.DeleteOverride(ctx, input.GroupID); err != nil {
		return nil, PolicyOutput{}, fmt.Errorf("delete override: %w", err)
	}

	s.logger.Info("group override cleared", "group", input.GroupID)
	return nil, s.effectivePolicy(ctx, input.GroupID), nil
}

// CountsInput selects a group and optionally one member
type CountsInput struct {
	GroupID string `json:"group_id" jsonschema:"the group (chat) id"`
	UserID  string `json:"user_id,omitempty" jsonschema:"member id, omit for the group total only"`
}

// CountsOutput holds violation counts inside the policy window
type CountsOutput struct {
	GroupID    string `json:"group_id"`
	UserID     string `json:"user_id,omitempty"`
	Window     int64  `json:"time_window"`
	UserCount  int    `json:"user_count"`
	GroupCount int    `json:"group_count"`
}

func (s *Server) handleGetViolationCounts(ctx context.Context, req *mcp.CallToolRequest, input CountsInput) (*mcp.CallToolResult, CountsOutput, error) {
	if input.GroupID == "" {
		return nil, CountsOutput{}, errors.New("group_id is required")
	}

	// A store failure still yields the file-level window
	policy, _ := s.deps.Policies.Resolve(ctx, input.GroupID)
	now := s.now()

	out := CountsOutput{
		GroupID:    input.GroupID,
		UserID:     input.UserID,
		Window:     int64(policy.TimeWindow / time.Second),
		GroupCount: s.deps.Ledger.CountGroupViolations(input.GroupID, policy.TimeWindow, now),
	}
	if input.UserID != "" {
		out.UserCount = s.deps.Ledger.CountUserViolations(input.GroupID, input.UserID, policy.TimeWindow, now)
	}
	return nil, out, nil
}

// MuteOutput is one active mute
type MuteOutput struct {
	GroupID string    `json:"group_id"`
	UserID  string    `json:"user_id"`
	Until   time.Time `json:"until"`
}

// MutesOutput lists active mutes
type MutesOutput struct {
	Mutes []MuteOutput `json:"mutes"`
}

// MutesInput optionally filters by group
type MutesInput struct {
	GroupID string `json:"group_id,omitempty" jsonschema:"the group (chat) id, omit for all groups"`
}

func (s *Server) handleListActiveMutes(ctx context.Context, req *mcp.CallToolRequest, input MutesInput) (*mcp.CallToolResult, MutesOutput, error) {
	mutes, err := s.deps.Mutes.ListMutes(ctx, input.GroupID)
	if err != nil {
		return nil, MutesOutput{}, fmt.Errorf("list mutes: %w", err)
	}

	out := MutesOutput{Mutes: make([]MuteOutput, 0, len(mutes))}
	for _, m := range mutes {
		out.Mutes = append(out.Mutes, MuteOutput{GroupID: m.GroupID, UserID: m.UserID, Until: m.Until})
	}
	return nil, out, nil
}
