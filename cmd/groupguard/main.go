package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/groupguard/groupguard/internal/biz"
	"github.com/groupguard/groupguard/internal/conf"
	"github.com/groupguard/groupguard/internal/data"
	"github.com/groupguard/groupguard/internal/mcp"
	"github.com/groupguard/groupguard/internal/server"
	"github.com/groupguard/groupguard/internal/service"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load configuration
	cfg, err := conf.LoadFromEnv()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Debug {
		cfg.Log.Level = "debug"
	}
	logger := conf.NewLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "err", err)
		os.Exit(1)
	}
	if len(cfg.Policy.EnabledGroups) == 0 {
		logger.Warn("enabled_groups is empty, no group will be moderated")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize repository layer
	repos, err := data.NewRepositories(cfg, logger)
	if err != nil {
		logger.Error("failed to create repositories", "err", err)
		os.Exit(1)
	}
	defer repos.Close()
	logger.Info("store opened", "path", cfg.Store.DBPath)

	// Initialize usecase layer
	ucs, err := biz.NewUsecases(biz.Repos{
		Classifier: repos.Classifier,
		Platform:   repos.Platform,
		Overrides:  repos.Overrides,
		Mutes:      repos.Mutes,
	}, biz.Options{
		Defaults:       cfg.Policy.DefaultPolicy(),
		GroupOverrides: cfg.Policy.GroupOverrides(),
		Templates:      cfg.Templates.ToNoticeTemplates(),
		Dispatcher:     cfg.ToDispatcherConfig(),
		Review:         cfg.ToReviewConfig(),
	}, logger)
	if err != nil {
		logger.Error("failed to create usecases", "err", err)
		os.Exit(1)
	}
	defer ucs.Close()

	// Initialize service layer
	moderation := service.NewModerationService(ucs.Review, cfg.Policy, service.ModerationConfig{
		MaxInFlight: cfg.Review.MaxInFlight,
	}, logger)
	unmute := service.NewUnmuteRunner(repos.Platform, repos.Mutes, ucs.Ledger, ucs.Policies, cfg.Review.UnmuteInterval, cfg.Review.SweepInterval, logger)
	unmute.Start()
	defer unmute.Stop()

	// Initialize servers
	adminCfg := server.AdminConfig{
		Addr:         cfg.Admin.Addr,
		OneBotEvents: cfg.Platform == conf.PlatformOneBot,
		OneBotSecret: cfg.OneBot.Secret,
	}
	if cfg.Admin.EnableMCP {
		adminCfg.MCP = mcp.NewServer(mcp.Deps{
			Policies:  ucs.Policies,
			Overrides: repos.Overrides,
			Ledger:    ucs.Ledger,
			Mutes:     repos.Mutes,
		}, logger).Handler()
	}
	admin := server.NewAdminServer(adminCfg, moderation, logger)
	go func() {
		if err := admin.Start(); err != nil {
			logger.Error("admin server failed", "err", err)
			stop()
		}
	}()

	if repos.Feishu != nil {
		feishuServer := server.NewFeishuServer(repos.Feishu, moderation, logger)
		defer feishuServer.Stop()
		go func() {
			if err := feishuServer.Start(ctx); err != nil && ctx.Err() == nil {
				logger.Error("feishu connection failed", "err", err)
				stop()
			}
		}()
	}

	logger.Info("groupguard started",
		"platform", cfg.Platform,
		"classifier", cfg.Classifier,
		"groups", len(cfg.Policy.EnabledGroups),
	)
	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := admin.Shutdown(shutdownCtx); err != nil {
		logger.Warn("admin shutdown", "err", err)
	}
	if err := moderation.Close(shutdownCtx); err != nil {
		logger.Warn("reviews abandoned at shutdown", "err", err)
	}
}
