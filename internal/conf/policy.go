package conf

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/groupguard/groupguard/internal/biz/domain"
)

// PolicyConfig is the moderation configuration loaded from policy.yaml
type PolicyConfig struct {
	EnabledGroups     []string       `yaml:"enabled_groups"`
	EnableTextCensor  *bool          `yaml:"enable_text_censor"`
	EnableImageCensor *bool          `yaml:"enable_image_censor"`
	BotOwnerID        string         `yaml:"bot_owner_id"`
	Disposal          DisposalConfig `yaml:"disposal"`
}

// DisposalConfig holds the default rule and the per-group rules
type DisposalConfig struct {
	Default     GroupRule   `yaml:"default"`
	GroupCustom []GroupRule `yaml:"group_custom"`
}

// GroupRule is a sparse policy as written in YAML. Durations are seconds.
type GroupRule struct {
	GroupID             string  `yaml:"group_id,omitempty"`
	RuleID              *string `yaml:"rule_id,omitempty"`
	NotifyGroupID       *string `yaml:"notify_group_id,omitempty"`
	TimeWindow          *int    `yaml:"time_window,omitempty"`
	SingleUserThreshold *int    `yaml:"single_user_violation_threshold,omitempty"`
	MuteDuration        *int    `yaml:"mute_duration,omitempty"`
	KickThreshold       *int    `yaml:"kick_user_threshold,omitempty"`
	KickUser            *bool   `yaml:"kick_user,omitempty"` // false disables kicking
	KickAndBlock        *bool   `yaml:"is_kick_user_and_block,omitempty"`
	GroupThreshold      *int    `yaml:"group_violation_threshold,omitempty"`
	ResetOnPunish       *bool   `yaml:"reset_on_punish,omitempty"`
	NotifyMentionAll    *bool   `yaml:"notify_mention_all,omitempty"`
}

// ToOverride converts the rule to a policy override
func (r GroupRule) ToOverride() domain.PolicyOverride {
	o := domain.PolicyOverride{
		RuleID:              r.RuleID,
		NotifyGroupID:       r.NotifyGroupID,
		SingleUserThreshold: r.SingleUserThreshold,
		GroupThreshold:      r.GroupThreshold,
		KickThreshold:       r.KickThreshold,
		KickAndBlock:        r.KickAndBlock,
		ResetOnPunish:       r.ResetOnPunish,
		NotifyMentionAll:    r.NotifyMentionAll,
	}
	if r.TimeWindow != nil {
		d := time.Duration(*r.TimeWindow) * time.Second
		o.TimeWindow = &d
	}
	if r.MuteDuration != nil {
		d := time.Duration(*r.MuteDuration) * time.Second
		o.MuteDuration = &d
	}
	if r.KickUser != nil && !*r.KickUser {
		zero := 0
		o.KickThreshold = &zero
	}
	return o
}

// LoadPolicyConfig loads the policy configuration from a YAML file. Without
// a file every group uses the built-in defaults.
func LoadPolicyConfig(configPath string) (*PolicyConfig, error) {
	data, loadedPath := readFirst(configPaths(configPath, "policy.yaml"))
	if data == nil {
		if configPath != "" {
			return nil, fmt.Errorf("failed to read policy config %s: %w", configPath, os.ErrNotExist)
		}
		slog.Info("no policy.yaml found, using defaults")
		return &PolicyConfig{}, nil
	}

	slog.Info("loading policy", "path", loadedPath)
	return ParsePolicyConfig(data)
}

// ParsePolicyConfig parses policy YAML
func ParsePolicyConfig(data []byte) (*PolicyConfig, error) {
	var config PolicyConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse policy.yaml: %w", err)
	}
	return &config, nil
}

// DefaultPolicy returns the built-in defaults with the default rule applied
func (c *PolicyConfig) DefaultPolicy() domain.Policy {
	return domain.MergePolicy(domain.DefaultPolicy, c.Disposal.Default.ToOverride())
}

// GroupOverrides returns the per-group overrides keyed by group id. When a
// group is listed twice the first entry wins.
func (c *PolicyConfig) GroupOverrides() map[string]domain.PolicyOverride {
	out := make(map[string]domain.PolicyOverride, len(c.Disposal.GroupCustom))
	for _, r := range c.Disposal.GroupCustom {
		if r.GroupID == "" {
			continue
		}
		if _, ok := out[r.GroupID]; ok {
			continue
		}
		out[r.GroupID] = r.ToOverride()
	}
	return out
}

// GroupEnabled reports whether messages of a group are reviewed
func (c *PolicyConfig) GroupEnabled(groupID string) bool {
	for _, g := range c.EnabledGroups {
		if g == groupID {
			return true
		}
	}
	return false
}

// TextEnabled reports whether text review is on (default true)
func (c *PolicyConfig) TextEnabled() bool {
	return c.EnableTextCensor == nil || *c.EnableTextCensor
}

// ImageEnabled reports whether image review is on (default true)
func (c *PolicyConfig) ImageEnabled() bool {
	return c.EnableImageCensor == nil || *c.EnableImageCensor
}

// Validate checks the rules for values the engine cannot work with
func (c *PolicyConfig) Validate() error {
	if err := c.Disposal.Default.validate("disposal.default"); err != nil {
		return err
	}
	if p := c.DefaultPolicy(); p.TimeWindow <= 0 {
		return &ConfigError{Field: "disposal.default.time_window", Message: "must be positive"}
	}
	for i, r := range c.Disposal.GroupCustom {
		field := fmt.Sprintf("disposal.group_custom[%d]", i)
		if r.GroupID == "" {
			return &ConfigError{Field: field + ".group_id", Message: "required"}
		}
		if err := r.validate(field); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks a single rule, such as one edited at runtime
func (r GroupRule) Validate() error {
	return r.validate("rule")
}

func (r GroupRule) validate(field string) error {
	nonNegative := map[string]*int{
		"time_window":                     r.TimeWindow,
		"single_user_violation_threshold": r.SingleUserThreshold,
		"mute_duration":                   r.MuteDuration,
		"kick_user_threshold":             r.KickThreshold,
		"group_violation_threshold":       r.GroupThreshold,
	}
	for name, v := range nonNegative {
		if v != nil && *v < 0 {
			return &ConfigError{Field: field + "." + name, Message: "must not be negative"}
		}
	}
	if r.TimeWindow != nil && *r.TimeWindow == 0 {
		return &ConfigError{Field: field + ".time_window", Message: "must be positive"}
	}
	return nil
}
