package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/groupguard/groupguard/internal/biz/usecase"
)

// Supported backends
const (
	PlatformFeishu = "feishu"
	PlatformOneBot = "onebot"

	ClassifierBaidu  = "baidu"
	ClassifierOpenAI = "openai"
)

// Config represents application configuration
type Config struct {
	// Platform adapter: feishu or onebot
	Platform string

	// Classifier backend: baidu or openai
	Classifier string

	Feishu FeishuConfig
	OneBot OneBotConfig
	Baidu  BaiduConfig
	OpenAI OpenAIConfig

	// Review pipeline settings
	Review ReviewValues

	// Owner receiving failure reports; overrides bot_owner_id from policy.yaml
	OwnerID string

	// Group notices per notify group per minute, 0 = unlimited
	NotifyPerMinute int

	Store StoreConfig
	Admin AdminConfig
	Log   LogConfig

	// Policy configuration (loaded from YAML)
	Policy *PolicyConfig

	// Notice templates (loaded from YAML)
	Templates *TemplatesConfig

	// Debug mode
	Debug bool
}

// FeishuConfig contains Feishu configuration
type FeishuConfig struct {
	AppID     string
	AppSecret string
}

// OneBotConfig contains OneBot v11 HTTP API configuration
type OneBotConfig struct {
	APIURL      string // e.g. http://127.0.0.1:5700
	AccessToken string
	Secret      string // Verifies X-Signature of posted events when set
}

// BaiduConfig contains Baidu content censor credentials
type BaiduConfig struct {
	APIKey    string
	SecretKey string
	Endpoint  string // Overrides https://aip.baidubce.com, for testing
}

// OpenAIConfig contains OpenAI moderation configuration
type OpenAIConfig struct {
	APIKey          string
	BaseURL         string
	Model           string
	SuspiciousScore float64 // Category score from which unflagged content is suspicious
}

// ReviewValues contains review pipeline settings
type ReviewValues struct {
	TimeoutSeconds int
	MaxInFlight    int
	UnmuteInterval time.Duration
	SweepInterval  time.Duration
}

// StoreConfig contains sqlite configuration
type StoreConfig struct {
	DBPath string
}

// AdminConfig contains the admin HTTP server configuration
type AdminConfig struct {
	Addr      string
	EnableMCP bool
}

// LogConfig contains logging configuration
type LogConfig struct {
	Level  string
	Format string // text or json
}

// LoadFromEnv loads configuration from environment variables and the YAML
// files they point at
func LoadFromEnv() (*Config, error) {
	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		homeDir, _ := os.UserHomeDir()
		dbPath = filepath.Join(homeDir, ".groupguard", "groupguard.db")
	}

	policyConfig, err := LoadPolicyConfig(os.Getenv("POLICY_CONFIG_PATH"))
	if err != nil {
		return nil, err
	}
	templatesConfig, err := LoadTemplatesConfig(os.Getenv("TEMPLATES_CONFIG_PATH"))
	if err != nil {
		return nil, err
	}

	ownerID := os.Getenv("BOT_OWNER_ID")
	if ownerID == "" {
		ownerID = policyConfig.BotOwnerID
	}

	return &Config{
		Platform:   strings.ToLower(envString("PLATFORM", PlatformFeishu)),
		Classifier: strings.ToLower(envString("CLASSIFIER", ClassifierBaidu)),
		Feishu: FeishuConfig{
			AppID:     os.Getenv("FEISHU_APP_ID"),
			AppSecret: os.Getenv("FEISHU_APP_SECRET"),
		},
		OneBot: OneBotConfig{
			APIURL:      envString("ONEBOT_API_URL", "http://127.0.0.1:5700"),
			AccessToken: os.Getenv("ONEBOT_ACCESS_TOKEN"),
			Secret:      os.Getenv("ONEBOT_SECRET"),
		},
		Baidu: BaiduConfig{
			APIKey:    os.Getenv("BAIDU_API_KEY"),
			SecretKey: os.Getenv("BAIDU_SECRET_KEY"),
			Endpoint:  os.Getenv("BAIDU_ENDPOINT"),
		},
		OpenAI: OpenAIConfig{
			APIKey:          os.Getenv("OPENAI_API_KEY"),
			BaseURL:         os.Getenv("OPENAI_BASE_URL"),
			Model:           envString("OPENAI_MODERATION_MODEL", "omni-moderation-latest"),
			SuspiciousScore: envFloat("OPENAI_SUSPICIOUS_SCORE", 0.5),
		},
		Review: ReviewValues{
			TimeoutSeconds: envInt("REVIEW_TIMEOUT_SECONDS", 15),
			MaxInFlight:    envInt("REVIEW_MAX_IN_FLIGHT", 16),
			UnmuteInterval: time.Duration(envInt("UNMUTE_INTERVAL_SECONDS", 30)) * time.Second,
			SweepInterval:  time.Duration(envInt("LEDGER_SWEEP_MINUTES", 10)) * time.Minute,
		},
		OwnerID:         ownerID,
		NotifyPerMinute: envInt("NOTIFY_PER_MINUTE", 20),
		Store: StoreConfig{
			DBPath: dbPath,
		},
		Admin: AdminConfig{
			Addr:      envString("ADMIN_ADDR", "127.0.0.1:8090"),
			EnableMCP: os.Getenv("ADMIN_MCP") != "false",
		},
		Log: LogConfig{
			Level:  envString("LOG_LEVEL", "info"),
			Format: envString("LOG_FORMAT", "text"),
		},
		Policy:    policyConfig,
		Templates: templatesConfig,
		Debug:     os.Getenv("DEBUG") == "true",
	}, nil
}

// ToReviewConfig converts to the review coordinator configuration
func (c *Config) ToReviewConfig() usecase.ReviewConfig {
	return usecase.ReviewConfig{
		TextEnabled:  c.Policy.TextEnabled(),
		ImageEnabled: c.Policy.ImageEnabled(),
		Timeout:      time.Duration(c.Review.TimeoutSeconds) * time.Second,
	}
}

// ToDispatcherConfig converts to the action dispatcher configuration
func (c *Config) ToDispatcherConfig() usecase.DispatcherConfig {
	return usecase.DispatcherConfig{
		OwnerID:         c.OwnerID,
		NotifyPerMinute: c.NotifyPerMinute,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Platform {
	case PlatformFeishu:
		if c.Feishu.AppID == "" || c.Feishu.AppSecret == "" {
			return &ConfigError{Field: "FEISHU_APP_ID/FEISHU_APP_SECRET", Message: "required"}
		}
	case PlatformOneBot:
		if c.OneBot.APIURL == "" {
			return &ConfigError{Field: "ONEBOT_API_URL", Message: "required"}
		}
	default:
		return &ConfigError{Field: "PLATFORM", Message: fmt.Sprintf("unknown platform %q", c.Platform)}
	}

	switch c.Classifier {
	case ClassifierBaidu:
		if c.Baidu.APIKey == "" || c.Baidu.SecretKey == "" {
			return &ConfigError{Field: "BAIDU_API_KEY/BAIDU_SECRET_KEY", Message: "required"}
		}
	case ClassifierOpenAI:
		if c.OpenAI.APIKey == "" {
			return &ConfigError{Field: "OPENAI_API_KEY", Message: "required"}
		}
		if c.OpenAI.SuspiciousScore <= 0 || c.OpenAI.SuspiciousScore > 1 {
			return &ConfigError{Field: "OPENAI_SUSPICIOUS_SCORE", Message: "must be in (0, 1]"}
		}
	default:
		return &ConfigError{Field: "CLASSIFIER", Message: fmt.Sprintf("unknown classifier %q", c.Classifier)}
	}

	if c.OwnerID == "" {
		return &ConfigError{Field: "BOT_OWNER_ID", Message: "required"}
	}
	if c.Review.MaxInFlight <= 0 {
		return &ConfigError{Field: "REVIEW_MAX_IN_FLIGHT", Message: "must be positive"}
	}
	if c.Policy == nil {
		return &ConfigError{Field: "policy", Message: "not loaded"}
	}
	return c.Policy.Validate()
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}

func envString(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func envInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return def
}
