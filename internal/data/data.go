package data

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/groupguard/groupguard/internal/biz/repo"
	"github.com/groupguard/groupguard/internal/conf"
	"github.com/groupguard/groupguard/internal/infra/feishu"
	"github.com/groupguard/groupguard/internal/infra/httpclient"
	"github.com/groupguard/groupguard/internal/infra/onebot"
)

// Repositories contains all repositories
type Repositories struct {
	Classifier repo.ClassifierRepo
	Platform   repo.PlatformRepo
	Overrides  repo.OverrideRepo
	Mutes      repo.MuteRepo

	// Feishu is the client behind Platform on Feishu, nil otherwise. Event
	// intake attaches to it.
	Feishu *feishu.Client

	store *Store
}

// NewRepositories creates all repositories
func NewRepositories(cfg *conf.Config, logger *slog.Logger) (*Repositories, error) {
	classifier, err := NewClassifier(cfg, logger)
	if err != nil {
		return nil, err
	}

	store, err := NewStore(cfg.Store.DBPath)
	if err != nil {
		return nil, err
	}

	platform, feishuClient, err := NewPlatform(cfg, store, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	return &Repositories{
		Classifier: classifier,
		Platform:   platform,
		Overrides:  store,
		Mutes:      store,
		Feishu:     feishuClient,
		store:      store,
	}, nil
}

// Close releases the database
func (r *Repositories) Close() error {
	if r.store == nil {
		return nil
	}
	return r.store.Close()
}

// NewClassifier creates the configured classifier backend
func NewClassifier(cfg *conf.Config, logger *slog.Logger) (repo.ClassifierRepo, error) {
	switch cfg.Classifier {
	case conf.ClassifierBaidu:
		timeout := time.Duration(cfg.Review.TimeoutSeconds) * time.Second
		censor := httpclient.New(httpclient.Options{Timeout: timeout, Logger: logger})
		token := httpclient.New(httpclient.Options{MaxRetries: 3, Timeout: 30 * time.Second, Logger: logger})
		return NewBaiduClassifier(cfg.Baidu.Endpoint, cfg.Baidu.APIKey, cfg.Baidu.SecretKey, censor, token, logger), nil
	case conf.ClassifierOpenAI:
		return NewOpenAIClassifier(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Model, cfg.OpenAI.SuspiciousScore), nil
	}
	return nil, fmt.Errorf("unknown classifier %q", cfg.Classifier)
}

// NewPlatform creates the configured platform repository. The Feishu client
// is returned as well so the caller can attach event intake to it; it is nil
// for OneBot, whose events arrive over HTTP. mutes may be nil for callers
// that only send messages.
func NewPlatform(cfg *conf.Config, mutes repo.MuteRepo, logger *slog.Logger) (repo.PlatformRepo, *feishu.Client, error) {
	switch cfg.Platform {
	case conf.PlatformFeishu:
		client := feishu.NewClient(cfg.Feishu.AppID, cfg.Feishu.AppSecret, logger)
		return NewFeishuRepo(client, mutes, logger), client, nil
	case conf.PlatformOneBot:
		actions := httpclient.New(httpclient.Options{Timeout: 10 * time.Second, Logger: logger})
		downloads := httpclient.New(httpclient.Options{MaxRetries: 2, Timeout: 30 * time.Second, Logger: logger})
		client := onebot.NewClient(cfg.OneBot.APIURL, cfg.OneBot.AccessToken, actions, downloads, logger)
		return NewOneBotRepo(client), nil, nil
	}
	return nil, nil, fmt.Errorf("unknown platform %q", cfg.Platform)
}
