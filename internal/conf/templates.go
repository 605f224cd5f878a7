package conf

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/groupguard/groupguard/internal/biz/usecase"
)

// TemplatesConfig contains notice templates loaded from YAML
type TemplatesConfig struct {
	Violation    string `yaml:"violation"`
	Suspicious   string `yaml:"suspicious"`
	Mute         string `yaml:"mute"`
	Kick         string `yaml:"kick"`
	GroupMute    string `yaml:"group_mute"`
	ReviewFailed string `yaml:"review_failed"`
	PolicyError  string `yaml:"policy_error"`
	ActionFailed string `yaml:"action_failed"`
}

// LoadTemplatesConfig loads notice templates from a YAML file
func LoadTemplatesConfig(configPath string) (*TemplatesConfig, error) {
	data, loadedPath := readFirst(configPaths(configPath, "templates.yaml"))
	if data == nil {
		if configPath != "" {
			return nil, fmt.Errorf("failed to read templates config %s: %w", configPath, os.ErrNotExist)
		}
		slog.Info("no templates.yaml found, using defaults")
		return DefaultTemplatesConfig(), nil
	}

	slog.Info("loading templates", "path", loadedPath)

	var config TemplatesConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse templates.yaml: %w", err)
	}

	// Fill in defaults for empty values
	config.fillDefaults()

	return &config, nil
}

// fillDefaults fills in default values for empty fields
func (c *TemplatesConfig) fillDefaults() {
	defaults := DefaultTemplatesConfig()

	if c.Violation == "" {
		c.Violation = defaults.Violation
	}
	if c.Suspicious == "" {
		c.Suspicious = defaults.Suspicious
	}
	if c.Mute == "" {
		c.Mute = defaults.Mute
	}
	if c.Kick == "" {
		c.Kick = defaults.Kick
	}
	if c.GroupMute == "" {
		c.GroupMute = defaults.GroupMute
	}
	if c.ReviewFailed == "" {
		c.ReviewFailed = defaults.ReviewFailed
	}
	if c.PolicyError == "" {
		c.PolicyError = defaults.PolicyError
	}
	if c.ActionFailed == "" {
		c.ActionFailed = defaults.ActionFailed
	}
}

// ToNoticeTemplates converts to the notice renderer input
func (c *TemplatesConfig) ToNoticeTemplates() usecase.NoticeTemplates {
	return usecase.NoticeTemplates{
		Violation:    c.Violation,
		Suspicious:   c.Suspicious,
		Mute:         c.Mute,
		Kick:         c.Kick,
		GroupMute:    c.GroupMute,
		ReviewFailed: c.ReviewFailed,
		PolicyError:  c.PolicyError,
		ActionFailed: c.ActionFailed,
	}
}

// DefaultTemplatesConfig returns the built-in notice templates
func DefaultTemplatesConfig() *TemplatesConfig {
	d := usecase.DefaultNoticeTemplates
	return &TemplatesConfig{
		Violation:    d.Violation,
		Suspicious:   d.Suspicious,
		Mute:         d.Mute,
		Kick:         d.Kick,
		GroupMute:    d.GroupMute,
		ReviewFailed: d.ReviewFailed,
		PolicyError:  d.PolicyError,
		ActionFailed: d.ActionFailed,
	}
}
