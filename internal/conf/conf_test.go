package conf

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv(t *testing.T) {
	assert := assert.New(t)

	dir := t.TempDir()
	policyPath := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(policyPath, []byte(samplePolicy), 0o600))
	templatesPath := filepath.Join(dir, "templates.yaml")
	require.NoError(t, os.WriteFile(templatesPath, []byte("mute: \"muted {{.User}}\"\n"), 0o600))

	t.Setenv("POLICY_CONFIG_PATH", policyPath)
	t.Setenv("TEMPLATES_CONFIG_PATH", templatesPath)
	t.Setenv("PLATFORM", "OneBot")
	t.Setenv("CLASSIFIER", "baidu")
	t.Setenv("BAIDU_API_KEY", "ak")
	t.Setenv("BAIDU_SECRET_KEY", "sk")
	t.Setenv("BOT_OWNER_ID", "")
	t.Setenv("REVIEW_TIMEOUT_SECONDS", "5")
	t.Setenv("NOTIFY_PER_MINUTE", "not-a-number")

	c, err := LoadFromEnv()
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	assert.Equal(PlatformOneBot, c.Platform)
	assert.Equal("42", c.OwnerID)
	assert.Equal(20, c.NotifyPerMinute)
	assert.Equal("muted {{.User}}", c.Templates.Mute)
	assert.NotEmpty(c.Templates.Kick)

	rc := c.ToReviewConfig()
	assert.True(rc.TextEnabled)
	assert.False(rc.ImageEnabled)
	assert.Equal(int64(5), int64(rc.Timeout.Seconds()))

	assert.Equal("42", c.ToDispatcherConfig().OwnerID)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Platform:   PlatformFeishu,
			Classifier: ClassifierOpenAI,
			Feishu:     FeishuConfig{AppID: "id", AppSecret: "secret"},
			OpenAI:     OpenAIConfig{APIKey: "key", SuspiciousScore: 0.5},
			Review:     ReviewValues{MaxInFlight: 4},
			OwnerID:    "ou_owner",
			Policy:     &PolicyConfig{},
		}
	}
	require.NoError(t, base().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"feishu credentials", func(c *Config) { c.Feishu.AppSecret = "" }, "FEISHU_APP_ID/FEISHU_APP_SECRET"},
		{"unknown platform", func(c *Config) { c.Platform = "irc" }, "PLATFORM"},
		{"openai key", func(c *Config) { c.OpenAI.APIKey = "" }, "OPENAI_API_KEY"},
		{"suspicious score", func(c *Config) { c.OpenAI.SuspiciousScore = 2 }, "OPENAI_SUSPICIOUS_SCORE"},
		{"baidu credentials", func(c *Config) { c.Classifier = ClassifierBaidu }, "BAIDU_API_KEY/BAIDU_SECRET_KEY"},
		{"unknown classifier", func(c *Config) { c.Classifier = "local" }, "CLASSIFIER"},
		{"owner", func(c *Config) { c.OwnerID = "" }, "BOT_OWNER_ID"},
		{"in flight", func(c *Config) { c.Review.MaxInFlight = 0 }, "REVIEW_MAX_IN_FLIGHT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)

			var cfgErr *ConfigError
			require.True(t, errors.As(c.Validate(), &cfgErr))
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}
